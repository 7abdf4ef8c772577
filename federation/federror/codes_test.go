package federror_test

import (
	"testing"

	"github.com/n9te9/go-graphql-federation-core/federation/federror"
)

func TestCatalog_Definition(t *testing.T) {
	c := federror.NewCatalog()

	tests := []struct {
		code    federror.Code
		addedIn string
	}{
		{federror.Internal, "2.0.0"},
		{federror.ExternalMissingOnBase, "0.x"},
		{federror.MaxValidationSubgraphPathsExceeded, "2.8.0"},
		{federror.KeyFieldsHasArgs, "2.0.0"},
		{federror.RequiresFieldsMissingExternal, "0.x"},
		{federror.RootMutationUsed, "0.x"},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			def, ok := c.Definition(tt.code)
			if !ok {
				t.Fatalf("code %s not found in catalog", tt.code)
			}
			if def.Metadata.AddedIn != tt.addedIn {
				t.Errorf("expected added in %q, got %q", tt.addedIn, def.Metadata.AddedIn)
			}
			if def.Description == "" {
				t.Error("expected a description")
			}
		})
	}
}

func TestCategory_CodeFor(t *testing.T) {
	cat := federror.DirectiveCategory("INVALID_FIELDS", "bad @%s fields", federror.Metadata{})
	def := cat.CodeFor("requires")
	if def.Code != federror.RequiresInvalidFields {
		t.Errorf("expected %s, got %s", federror.RequiresInvalidFields, def.Code)
	}
	if def.Description != "bad @requires fields" {
		t.Errorf("unexpected description %q", def.Description)
	}

	root := federror.RootTypeCategory("root %s", federror.Metadata{AddedIn: "0.x"})
	if got := root.CodeFor("subscription").Code; got != federror.RootSubscriptionUsed {
		t.Errorf("expected %s, got %s", federror.RootSubscriptionUsed, got)
	}
}

func TestCatalog_DefinitionsSorted(t *testing.T) {
	defs := federror.NewCatalog().Definitions()
	for i := 1; i < len(defs); i++ {
		if defs[i-1].Code >= defs[i].Code {
			t.Fatalf("definitions not sorted at %d: %s >= %s", i, defs[i-1].Code, defs[i].Code)
		}
	}
}

func TestCatalog_NewHint(t *testing.T) {
	c := federror.NewCatalog()
	h := c.NewHint(federror.OverriddenFieldCanBeRemoved, "T.f", "field %q can go", "T.f")
	if h.Level != federror.HintInfo {
		t.Errorf("expected INFO, got %s", h.Level)
	}
	if h.String() != `[OVERRIDDEN_FIELD_CAN_BE_REMOVED] field "T.f" can go` {
		t.Errorf("unexpected hint text %q", h.String())
	}
}
