package types

// NodeDefinition is the host-supplied description of one node instance: its
// unique name, the registry type tag used to construct it, and a bag of
// type-coerced settings the node reads at construction or execution time via
// node.GetSetting.
type NodeDefinition struct {
	Name     string
	Type     string
	Settings map[string]any
}

// GraphDefinition is the declarative, serialization-friendly description of
// an entire graph: every node to construct and every connection to wire
// between them. It mirrors the wire shape documented in §6.1; pkg/loader
// produces it and graph.New consumes it.
type GraphDefinition struct {
	Name        string
	Nodes       []NodeDefinition
	Connections []Connection
}
