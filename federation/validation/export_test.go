package validation

import "github.com/n9te9/go-graphql-federation-core/federation/querygraph"

func PathKey(tail querygraph.NodeIndex, runtimeTypes []string) string {
	return subgraphPath{tail: tail, runtimeTypes: runtimeTypes}.key()
}
