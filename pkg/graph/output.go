package graph

import "github.com/kestrelflow/dagflow/pkg/types"

// GetOutput reads the value currently sitting on the connection attached to
// an output port, for host-side inspection after a run completes. It
// errors the same way connector.GetObjectFromOutput does, plus a
// TypeMismatchOnPort-shaped error if the stored value is not assignable to
// T.
func GetOutput[T any](g *Graph, port types.Port) (T, error) {
	var zero T
	val, err := g.conn.GetObjectFromOutput(port)
	if err != nil {
		return zero, err
	}
	typed, ok := val.(T)
	if !ok {
		return zero, types.ErrorTypeMismatchOnPort(port.NodeName, "", port.PortName, zero, val)
	}
	return typed, nil
}

// FakeOutput injects obj as if port's node had produced it, without running
// the node. Intended for tests and for host tooling that wants to seed a
// graph with precomputed values before executing only the downstream part
// of it.
func FakeOutput[T any](g *Graph, port types.Port, obj T) error {
	return g.conn.SetObject(port, obj)
}
