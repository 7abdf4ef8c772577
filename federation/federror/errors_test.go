package federror_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/n9te9/go-graphql-federation-core/federation/federror"
)

func TestMultipleErrors_Error(t *testing.T) {
	var m federror.MultipleErrors
	m.Push(federror.New(federror.InvalidFieldSharing, "first"))
	m.Push(federror.New(federror.SatisfiabilityError, "line one\nline two"))

	want := "The following errors occurred:\n  - first\n  - line one\n    line two"
	if got := m.Error(); got != want {
		t.Errorf("unexpected message (-want +got):\n%s", cmp.Diff(want, got))
	}
}

func TestMultipleErrors_PushFlattens(t *testing.T) {
	inner := &federror.MultipleErrors{}
	inner.Push(federror.New(federror.FieldTypeMismatch, "a"))
	inner.Push(federror.New(federror.FieldTypeMismatch, "b"))

	agg := &federror.AggregateError{
		Code:    federror.SatisfiabilityError,
		Message: "wrapped",
		Causes:  []*federror.SingleError{federror.New(federror.NoQueries, "c")},
	}

	var m federror.MultipleErrors
	m.Push(inner)
	m.Push(agg)
	m.Push(nil)

	if m.Len() != 3 {
		t.Fatalf("expected 3 errors, got %d", m.Len())
	}
	var got []string
	for _, e := range m.Errors {
		got = append(got, e.Message)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, got); diff != "" {
		t.Errorf("unexpected order (-want +got):\n%s", diff)
	}
}

func TestMultipleErrors_ErrorOrNil(t *testing.T) {
	var m federror.MultipleErrors
	if m.ErrorOrNil() != nil {
		t.Fatal("expected nil for empty collection")
	}
	single := federror.New(federror.NoQueries, "no queries")
	m.Push(single)
	if got := m.ErrorOrNil(); got != single {
		t.Errorf("expected the single error to be returned as-is, got %v", got)
	}
	m.Push(federror.New(federror.NoQueries, "again"))
	if _, ok := m.ErrorOrNil().(*federror.MultipleErrors); !ok {
		t.Errorf("expected *MultipleErrors for two errors")
	}
}

func TestAggregateError_Error(t *testing.T) {
	agg := &federror.AggregateError{
		Code:    federror.InvalidGraphQL,
		Message: "Invalid schema",
		Causes: []*federror.SingleError{
			federror.New(federror.InvalidGraphQL, "x"),
			federror.New(federror.InvalidGraphQL, "y\nz"),
		},
	}
	want := "[INVALID_GRAPHQL] Invalid schema\nCaused by:\n\n  - x\n\n  - y\n    z"
	if got := agg.Error(); got != want {
		t.Errorf("unexpected message (-want +got):\n%s", cmp.Diff(want, got))
	}
}

func TestSingleError_Internal(t *testing.T) {
	err := fmt.Errorf("building graph: %w", federror.Internalf("Only one node should have been created for type %q, got %d", "User", 2))

	if !federror.IsInternal(err) {
		t.Fatal("expected wrapped error to be internal")
	}
	code, ok := federror.CodeOf(err)
	if !ok || code != federror.Internal {
		t.Errorf("expected INTERNAL, got %q (%v)", code, ok)
	}
	if federror.IsInternal(federror.New(federror.NoQueries, "x")) {
		t.Error("NO_QUERIES must not be reported as internal")
	}
}

func TestSingleError_Is(t *testing.T) {
	err := fmt.Errorf("ctx: %w", federror.New(federror.InvalidFieldSharing, "boom"))
	if !errors.Is(err, &federror.SingleError{Code: federror.InvalidFieldSharing}) {
		t.Error("expected errors.Is to match by code")
	}
	if errors.Is(err, &federror.SingleError{Code: federror.NoQueries}) {
		t.Error("expected errors.Is not to match a different code")
	}
}

func TestFlatten_ForeignError(t *testing.T) {
	errs := federror.Flatten(errors.New("disk on fire"))
	if len(errs) != 1 || errs[0].Code != federror.Internal {
		t.Fatalf("expected one internal error, got %v", errs)
	}
	if errs[0].Cause == nil {
		t.Error("expected the foreign error to be kept as cause")
	}
}

// -----------------------------------------------------------------------
// Accumulator
// -----------------------------------------------------------------------

func TestAccumulator_DeterministicOrder(t *testing.T) {
	acc := federror.NewAccumulator()

	var wg sync.WaitGroup
	for i := 9; i >= 0; i-- {
		wg.Add(1)
		go func(seq int) {
			defer wg.Done()
			acc.Add(seq, federror.New(federror.FieldTypeMismatch, "%d-a", seq))
			acc.Add(seq, federror.New(federror.FieldTypeMismatch, "%d-b", seq))
		}(i)
	}
	wg.Wait()
	acc.Add(3, nil)

	if acc.Len() != 20 {
		t.Fatalf("expected 20 errors, got %d", acc.Len())
	}

	res := acc.Result()
	var got []string
	for _, e := range res.Errors {
		got = append(got, e.Message)
	}
	var want []string
	for i := 0; i < 10; i++ {
		want = append(want, fmt.Sprintf("%d-a", i), fmt.Sprintf("%d-b", i))
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected order (-want +got):\n%s", diff)
	}
}
