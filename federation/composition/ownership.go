package composition

import "github.com/vektah/gqlparser/v2/ast"

// fieldOwners maps every object field, as "Type.field", to the subgraphs
// resolving it.
func fieldOwners(merged []*mergedType) map[string][]string {
	owners := make(map[string][]string)
	for _, mt := range merged {
		if mt.def == nil || mt.kind != ast.Object {
			continue
		}
		for _, f := range mt.def.Fields {
			if names := mt.owners[f.Name]; len(names) > 0 {
				owners[mt.name+"."+f.Name] = names
			}
		}
	}
	return owners
}
