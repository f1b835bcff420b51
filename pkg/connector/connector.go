// Package connector implements the value-exchange fabric shared by every
// node in a graph: a single mutable object that tracks which ports are
// connected to which, classifies each port as an input or an output the
// first time it is used, and holds the type-erased value currently sitting
// on each connection.
package connector

import (
	"fmt"
	"sync"

	"github.com/kestrelflow/dagflow/pkg/types"
)

// Connector is the graph-wide fabric nodes read and write through. All
// state is guarded by a single mutex; spec.md §5 deliberately favors one
// coarse lock over per-port locking since port operations are cheap map
// accesses, not blocking I/O.
type Connector struct {
	mu sync.Mutex

	// edgeValues holds the most recently written value for each
	// connected output, keyed by the output's PortId; every input
	// connected to that output reads the same cell. An output with no
	// entry here has not been written to yet.
	edgeValues map[string]any

	// portToEdge maps an output port's PortId to itself and an input
	// port's PortId to the PortId of the output it is connected to,
	// giving the edgeValues key for either side.
	portToEdge map[string]string

	// portKind records whether a port, once used, is an input or an
	// output. Classification is permanent for the lifetime of the
	// connector.
	portKind map[string]types.PortKind

	// inputsByNode and outputsByNode index connected port names per
	// node, for introspection (getConnectedPorts) and for the node base
	// contract's getInputPortNames/getOutputPortNames.
	inputsByNode  map[string]map[string]struct{}
	outputsByNode map[string]map[string]struct{}
}

// New returns an empty Connector.
func New() *Connector {
	return &Connector{
		edgeValues:    make(map[string]any),
		portToEdge:    make(map[string]string),
		portKind:      make(map[string]types.PortKind),
		inputsByNode:  make(map[string]map[string]struct{}),
		outputsByNode: make(map[string]map[string]struct{}),
	}
}

// Connect registers conn, classifying its source port as an output and its
// destination port as an input. It returns ErrPortKindConflict if either
// port was already classified as the opposite kind.
func (c *Connector) Connect(conn types.Connection) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conn.Src.NodeName == conn.Dst.NodeName {
		return types.ErrorInvalidConnection(conn, "connection is reflexive")
	}
	key := conn.Src.PortId()
	if existing, ok := c.portToEdge[conn.Dst.PortId()]; ok && existing != key {
		return types.ErrorInvalidConnection(conn, fmt.Sprintf("input %s is already connected", conn.Dst))
	}

	if err := c.classify(conn.Src, types.PortOutput); err != nil {
		return err
	}
	if err := c.classify(conn.Dst, types.PortInput); err != nil {
		return err
	}

	c.portToEdge[conn.Src.PortId()] = key
	c.portToEdge[conn.Dst.PortId()] = key
	c.index(c.outputsByNode, conn.Src)
	c.index(c.inputsByNode, conn.Dst)
	return nil
}

// Disconnect removes conn's bookkeeping: the input port's mapping and node
// port index entry, and, once no other input is still connected to the
// source output, that output's mapping, index entry and any pending value.
// Port kind classification is left intact: once a port has played a role it
// keeps that role even while momentarily unconnected, matching the original
// connector's lifetime semantics.
func (c *Connector) Disconnect(conn types.Connection) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := conn.Src.PortId()
	delete(c.portToEdge, conn.Dst.PortId())
	c.unindex(c.inputsByNode, conn.Dst)
	for id, k := range c.portToEdge {
		if k == key && id != key {
			return
		}
	}
	delete(c.edgeValues, key)
	delete(c.portToEdge, key)
	c.unindex(c.outputsByNode, conn.Src)
}

// classify assigns want as port's kind if unclassified, or verifies the
// existing classification matches. Must be called with mu held.
func (c *Connector) classify(port types.Port, want types.PortKind) error {
	id := port.PortId()
	have, ok := c.portKind[id]
	if !ok {
		c.portKind[id] = want
		return nil
	}
	if have != want {
		return types.ErrorPortKindConflict(port, have, want)
	}
	return nil
}

func (c *Connector) index(by map[string]map[string]struct{}, port types.Port) {
	set, ok := by[port.NodeName]
	if !ok {
		set = make(map[string]struct{})
		by[port.NodeName] = set
	}
	set[port.PortName] = struct{}{}
}

func (c *Connector) unindex(by map[string]map[string]struct{}, port types.Port) {
	set, ok := by[port.NodeName]
	if !ok {
		return
	}
	delete(set, port.PortName)
	if len(set) == 0 {
		delete(by, port.NodeName)
	}
}

// SetObject writes obj onto the connection attached to the output port. If
// the port is not connected to anything, the write is a silent no-op: a
// node is free to produce an output nobody consumes (see Design Notes §9).
func (c *Connector) SetObject(port types.Port, obj any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if kind, ok := c.portKind[port.PortId()]; ok && kind != types.PortOutput {
		return types.ErrorPortNotOutput(port)
	}
	edge, ok := c.portToEdge[port.PortId()]
	if !ok {
		return nil
	}
	// A duplicate write before the previous value is consumed simply
	// overwrites it (Design Notes §9).
	c.edgeValues[edge] = obj
	return nil
}

// HasObject reports whether port is an input with a connected edge that
// currently carries a value. An unclassified port leniently reports false
// rather than erroring (Design Notes §9).
func (c *Connector) HasObject(port types.Port) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if kind, ok := c.portKind[port.PortId()]; !ok || kind != types.PortInput {
		return false
	}
	edge, ok := c.portToEdge[port.PortId()]
	if !ok {
		return false
	}
	_, ok = c.edgeValues[edge]
	return ok
}

// GetObject returns the value currently sitting on the connection attached
// to an input port. It errors distinctly for an undefined port and for a
// port that is not an input; a missing connection and a connection with no
// value yet both report NoValueOnEdge.
func (c *Connector) GetObject(port types.Port) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	kind, ok := c.portKind[port.PortId()]
	if !ok {
		return nil, types.ErrorUndefinedPort(port)
	}
	if kind != types.PortInput {
		return nil, types.ErrorPortNotInput(port)
	}
	edge, ok := c.portToEdge[port.PortId()]
	if !ok {
		return nil, types.ErrorNoValueOnEdge(port)
	}
	val, ok := c.edgeValues[edge]
	if !ok {
		return nil, types.ErrorNoValueOnEdge(port)
	}
	return val, nil
}

// GetObjectFromOutput reads the value sitting on the connection attached to
// an output port, bypassing the input-side classification check. Used by
// graph.GetOutput for host-side introspection of a node's last produced
// value.
func (c *Connector) GetObjectFromOutput(port types.Port) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	kind, ok := c.portKind[port.PortId()]
	if !ok {
		return nil, types.ErrorUndefinedPort(port)
	}
	if kind != types.PortOutput {
		return nil, types.ErrorPortNotOutput(port)
	}
	edge, ok := c.portToEdge[port.PortId()]
	if !ok {
		return nil, types.ErrorNoValueOnEdge(port)
	}
	val, ok := c.edgeValues[edge]
	if !ok {
		return nil, types.ErrorNoValueOnEdge(port)
	}
	return val, nil
}

// ClearObjects drops every value currently held on every connection,
// without disturbing connections or port classifications. Used between
// repeated executions of the same graph.
func (c *Connector) ClearObjects() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.edgeValues = make(map[string]any, len(c.edgeValues))
}

// GetConnectedPorts returns the sorted port names of kind connected on
// nodeName. kind must be PortInput or PortOutput.
func (c *Connector) GetConnectedPorts(nodeName string, kind types.PortKind) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	by := c.inputsByNode
	if kind == types.PortOutput {
		by = c.outputsByNode
	}
	set, ok := by[nodeName]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sortStrings(names)
	return names
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
