package querygraph

import (
	"io"

	"github.com/goccy/go-yaml"
)

// GraphDump is the serializable form of a QueryGraph.
type GraphDump struct {
	Name      string     `yaml:"name"`
	Federated bool       `yaml:"federated"`
	Sources   []string   `yaml:"sources"`
	Nodes     []NodeDump `yaml:"nodes"`
	Edges     []EdgeDump `yaml:"edges"`
}

// NodeDump is the serializable form of a Node.
type NodeDump struct {
	Index         int    `yaml:"index"`
	Type          string `yaml:"type"`
	Source        string `yaml:"source"`
	ProvideID     int    `yaml:"provide_id,omitempty"`
	Root          string `yaml:"root,omitempty"`
	CrossSubgraph bool   `yaml:"cross_subgraph,omitempty"`
}

// EdgeDump is the serializable form of an Edge.
type EdgeDump struct {
	Index      int    `yaml:"index"`
	Head       int    `yaml:"head"`
	Tail       int    `yaml:"tail"`
	Kind       string `yaml:"kind"`
	Transition string `yaml:"transition"`
	Conditions string `yaml:"conditions,omitempty"`
	Provides   bool   `yaml:"provides,omitempty"`
}

// Dump returns the serializable form of g.
func (g *QueryGraph) Dump() GraphDump {
	d := GraphDump{
		Name:      g.name,
		Federated: g.isFederated,
		Sources:   g.Sources(),
		Nodes:     make([]NodeDump, len(g.nodes)),
		Edges:     make([]EdgeDump, len(g.edges)),
	}
	for i, n := range g.nodes {
		nd := NodeDump{
			Index:         int(n.Index),
			Type:          n.Type.String(),
			Source:        n.Source,
			ProvideID:     n.ProvideID,
			CrossSubgraph: n.HasReachableCrossSubgraphEdges,
		}
		if n.IsRoot {
			nd.Root = n.RootKind.String()
		}
		d.Nodes[i] = nd
	}
	for i, e := range g.edges {
		ed := EdgeDump{
			Index:      int(e.Index),
			Head:       int(e.Head),
			Tail:       int(e.Tail),
			Kind:       e.Transition.Kind.String(),
			Transition: e.Transition.String(),
			Provides:   e.Transition.IsPartOfProvides,
		}
		if !e.Conditions.IsEmpty() {
			ed.Conditions = e.Conditions.String()
		}
		d.Edges[i] = ed
	}
	return d
}

// WriteYAML writes the dump of g to w.
func (g *QueryGraph) WriteYAML(w io.Writer) error {
	return yaml.NewEncoder(w).Encode(g.Dump())
}
