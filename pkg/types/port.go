// Package types defines the identifier algebra and document shapes shared
// across the engine: ports, connections, node definitions and graph
// definitions. Keeping these in one leaf package avoids import cycles
// between connector, node, registry and graph.
package types

import "strings"

// PortKind distinguishes the two roles a port can play once it has been
// connected. A port's kind is decided the first time it is used in a
// connection and never changes afterwards.
type PortKind int

const (
	// PortUnclassified marks a port that has not yet been used in any
	// connection.
	PortUnclassified PortKind = iota
	PortInput
	PortOutput
)

func (k PortKind) String() string {
	switch k {
	case PortInput:
		return "input"
	case PortOutput:
		return "output"
	default:
		return "unclassified"
	}
}

// Port names one side of a connection: a node and a named port on it.
type Port struct {
	NodeName string
	PortName string
}

// PortId returns the canonical string form "nodeName:portName" used as the
// connector's internal key for this port.
func (p Port) PortId() string {
	return p.NodeName + ":" + p.PortName
}

func (p Port) String() string { return p.PortId() }

// Connection is a directed edge from an output port to an input port.
type Connection struct {
	Src Port
	Dst Port
}

// Name returns the canonical connection name "src:port->dst:port" used as
// the connector's key for the shared value cell and as the sort key in the
// graph's ordered connection set.
func (c Connection) Name() string {
	return c.Src.PortId() + "->" + c.Dst.PortId()
}

func (c Connection) String() string { return c.Name() }

// Less gives connections a total order, keyed by canonical name.
func (c Connection) Less(other Connection) bool {
	return c.Name() < other.Name()
}

// ParsePort splits a "node:port" string into a Port. It returns false if the
// string does not contain exactly one colon separator, or either side is
// empty.
func ParsePort(s string) (Port, bool) {
	idx := strings.IndexByte(s, ':')
	if idx <= 0 || idx == len(s)-1 {
		return Port{}, false
	}
	if strings.IndexByte(s[idx+1:], ':') >= 0 {
		return Port{}, false
	}
	return Port{NodeName: s[:idx], PortName: s[idx+1:]}, true
}
