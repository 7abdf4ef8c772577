package subgraph

import (
	"context"
	"net/http"

	"github.com/n9te9/go-graphql-federation-core/config"
)

// FetchSDLForTest exports fetchSDL for white-box testing.
func FetchSDLForTest(host string, httpClient *http.Client, retry config.RetryOption) (string, error) {
	return NewLoader(WithHTTPClient(httpClient)).fetchSDL(context.Background(), host, retry)
}
