package operation

// OptimizeSiblingTypenames removes, in every selection set, an undirected
// __typename that has a non-__typename sibling field, and records it on the
// first such sibling instead. Selection sets on interfaceObjectTypes keep
// their __typename: it must be fetched from the subgraph that knows the
// real implementation.
func (ss *SelectionSet) OptimizeSiblingTypenames(interfaceObjectTypes map[string]bool) (*SelectionSet, error) {
	optimized, err := ss.LazyMap(func(sel Selection) ([]Selection, error) {
		sub := sel.SelectionSet()
		if sub == nil {
			return []Selection{sel}, nil
		}
		newSub, err := sub.OptimizeSiblingTypenames(interfaceObjectTypes)
		if err != nil {
			return nil, err
		}
		if newSub == sub {
			return []Selection{sel}, nil
		}
		return []Selection{sel.WithSelectionSet(newSub)}, nil
	})
	if err != nil {
		return nil, err
	}
	if interfaceObjectTypes[optimized.parent.Name] {
		return optimized, nil
	}

	var typename, sibling *Field
	for _, f := range optimized.Fields() {
		if f.Position.IsTypename() {
			if typename == nil && len(f.directives) == 0 {
				typename = f
			}
			continue
		}
		if sibling == nil {
			sibling = f
		}
	}
	if typename == nil || sibling == nil {
		return optimized, nil
	}

	attached := sibling.WithSiblingTypename(&SiblingTypename{Alias: typename.Alias})
	return optimized.LazyMap(func(sel Selection) ([]Selection, error) {
		switch sel {
		case Selection(typename):
			return nil, nil
		case Selection(sibling):
			return []Selection{attached}, nil
		}
		return []Selection{sel}, nil
	})
}

// AddBackTypenameInAttachments undoes OptimizeSiblingTypenames: each
// recorded __typename is inserted right before the field carrying it.
func (ss *SelectionSet) AddBackTypenameInAttachments() (*SelectionSet, error) {
	return ss.LazyMap(func(sel Selection) ([]Selection, error) {
		if sub := sel.SelectionSet(); sub != nil {
			newSub, err := sub.AddBackTypenameInAttachments()
			if err != nil {
				return nil, err
			}
			if newSub != sub {
				sel = sel.WithSelectionSet(newSub)
			}
		}
		f, ok := sel.(*Field)
		if !ok || f.SiblingTypename == nil {
			return []Selection{sel}, nil
		}
		typename := NewField(ss.parent.Typename(), f.SiblingTypename.Alias, nil, nil, nil)
		return []Selection{typename, f.WithSiblingTypename(nil)}, nil
	})
}
