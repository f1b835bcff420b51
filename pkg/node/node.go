// Package node defines the contract every graph node implements and the
// generic, type-coerced helpers node authors use to read inputs, write
// outputs, and read settings through the shared connector.
package node

import (
	"sort"

	"github.com/kestrelflow/dagflow/pkg/connector"
	"github.com/kestrelflow/dagflow/pkg/types"
)

// Node is the contract every concrete node type implements. Execute reads
// whatever inputs it needs through the embedded Base and writes whatever
// outputs it produces the same way; the graph never inspects a node's
// fields directly.
type Node interface {
	Execute() error
	Name() string
	Type() string
}

// Constructor builds a Node instance from its definition and a handle onto
// the graph's connector. Constructors are registered against a type tag in
// pkg/registry.
type Constructor func(def types.NodeDefinition, conn *connector.Connector) (Node, error)

// Base is embedded by concrete node implementations to get Name/Type and
// the typed I/O helpers for free; it is the Go analogue of the C++ Node
// base class's protected helper methods.
type Base struct {
	name     string
	typeTag  string
	settings map[string]any
	conn     *connector.Connector
}

// NewBase constructs the embeddable base from a node definition and a
// connector handle. Concrete constructors call this first.
func NewBase(def types.NodeDefinition, conn *connector.Connector) Base {
	return Base{name: def.Name, typeTag: def.Type, settings: def.Settings, conn: conn}
}

func (b *Base) Name() string { return b.name }
func (b *Base) Type() string { return b.typeTag }

// HasInput reports whether portName currently has a value available to
// read. An unclassified or unconnected port reports false rather than
// erroring.
func (b *Base) HasInput(portName string) bool {
	return b.conn.HasObject(types.Port{NodeName: b.name, PortName: portName})
}

// GetInput reads and type-asserts the value on portName. It returns a
// TypeMismatchOnPort error if the stored value is not assignable to T, and
// propagates the connector's UndefinedPort/PortNotInput/NoValueOnEdge
// errors unchanged.
func GetInput[T any](b *Base, portName string) (T, error) {
	var zero T
	val, err := b.conn.GetObject(types.Port{NodeName: b.name, PortName: portName})
	if err != nil {
		return zero, err
	}
	typed, ok := val.(T)
	if !ok {
		return zero, types.ErrorTypeMismatchOnPort(b.name, b.typeTag, portName, zero, val)
	}
	return typed, nil
}

// SetOutput writes obj onto portName. A write to an unconnected output port
// is a silent no-op.
func SetOutput[T any](b *Base, portName string, obj T) error {
	return b.conn.SetObject(types.Port{NodeName: b.name, PortName: portName}, obj)
}

// GetSetting reads and type-asserts a construction-time setting. It returns
// a TypeMismatchOnPort-shaped error (portName set to the setting key) if
// the key is absent or not assignable to T.
func GetSetting[T any](b *Base, key string) (T, error) {
	var zero T
	raw, ok := b.settings[key]
	if !ok {
		return zero, types.ErrorTypeMismatchOnPort(b.name, b.typeTag, key, zero, nil)
	}
	typed, ok := raw.(T)
	if !ok {
		return zero, types.ErrorTypeMismatchOnPort(b.name, b.typeTag, key, zero, raw)
	}
	return typed, nil
}

// GetInputPortNames returns the sorted names of every input port currently
// connected on this node. Unlike a static schema, this reflects the live
// connection set rather than a declared port list.
func (b *Base) GetInputPortNames() []string {
	names := b.conn.GetConnectedPorts(b.name, types.PortInput)
	sort.Strings(names)
	return names
}

// GetOutputPortNames returns the sorted names of every output port
// currently connected on this node.
func (b *Base) GetOutputPortNames() []string {
	names := b.conn.GetConnectedPorts(b.name, types.PortOutput)
	sort.Strings(names)
	return names
}
