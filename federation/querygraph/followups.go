package querygraph

// precomputeNonTrivialFollowupEdges records, for every edge, the out-edges of
// its tail worth taking next. After a key jump A -> B, a key jump B -> C
// with the same key is pointless when A -> C exists, and the same goes for
// chained root type jumps. Right after entering a subgraph from the
// federated root, a root type jump is never useful: entering the other
// subgraph directly is always possible.
func (g *QueryGraph) precomputeNonTrivialFollowupEdges() {
	for _, e := range g.edges {
		candidates := g.OutEdges(e.Tail)
		followups := make([]EdgeIndex, 0, len(candidates))
		for _, f := range candidates {
			if g.isTrivialFollowup(e, f) {
				continue
			}
			followups = append(followups, f.Index)
		}
		g.nonTrivialFollowupEdges[e.Index] = followups
	}
}

func (g *QueryGraph) isTrivialFollowup(e, f *Edge) bool {
	switch {
	case e.Transition.Kind == SubgraphEnteringTransition:
		return f.Transition.Kind == RootTypeResolution
	case e.Transition.Kind == KeyResolution && f.Transition.Kind == KeyResolution:
		for _, direct := range g.OutEdgesWithFederationSelfEdges(e.Head) {
			if direct.Transition.Kind == KeyResolution && direct.Tail == f.Tail && direct.Conditions.Equal(f.Conditions) {
				return true
			}
		}
	case e.Transition.Kind == RootTypeResolution && f.Transition.Kind == RootTypeResolution:
		for _, direct := range g.OutEdgesWithFederationSelfEdges(e.Head) {
			if direct.Transition.Kind == RootTypeResolution && direct.Tail == f.Tail {
				return true
			}
		}
	}
	return false
}
