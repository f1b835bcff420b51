// Package testnodes provides the small node types the engine's end-to-end
// test scenarios are built from: a seeded source, a pass-through, and a
// sink that records what it received. These are fixtures for pkg/graph's
// tests and for any host wanting a minimal smoke-test registry; the core
// engine never imports this package.
package testnodes

import (
	"errors"

	"github.com/kestrelflow/dagflow/pkg/connector"
	"github.com/kestrelflow/dagflow/pkg/node"
	"github.com/kestrelflow/dagflow/pkg/registry"
	"github.com/kestrelflow/dagflow/pkg/types"
)

const (
	TypeTestSource = "test_source"
	TypeDummy      = "dummy"
	TypeTestSink   = "test_sink"
	TypePassThrough = "pass_through"
	TypeFailing    = "failing"
)

// ErrFailingNode is returned by every FailingNode.Execute call.
var ErrFailingNode = errors.New("testnodes: failing node always fails")

// TestSource writes the integer configured under its "seed" setting (42 by
// default) to its "out" output port.
type TestSource struct {
	node.Base
	seed int
}

// NewTestSource builds a TestSource from its definition's "seed" setting.
func NewTestSource(def types.NodeDefinition, conn *connector.Connector) (node.Node, error) {
	seed := 42
	if raw, ok := def.Settings["seed"]; ok {
		if v, ok := raw.(int); ok {
			seed = v
		}
	}
	return &TestSource{Base: node.NewBase(def, conn), seed: seed}, nil
}

func (s *TestSource) Execute() error {
	return node.SetOutput(&s.Base, "out", s.seed)
}

// DummyNode copies its "in" input straight to its "out" output, unchanged.
// Used to build longer chains and diamonds without any real computation.
type DummyNode struct {
	node.Base
}

func NewDummyNode(def types.NodeDefinition, conn *connector.Connector) (node.Node, error) {
	return &DummyNode{Base: node.NewBase(def, conn)}, nil
}

func (d *DummyNode) Execute() error {
	val, err := node.GetInput[int](&d.Base, "in")
	if err != nil {
		return err
	}
	return node.SetOutput(&d.Base, "out", val)
}

// PassThrough is an alias construction for DummyNode under a different type
// tag, used by the S/L/R/J diamond scenario where the node's role (split,
// left branch, right branch, join) is better conveyed by its name than by
// a separate Go type.
func NewPassThrough(def types.NodeDefinition, conn *connector.Connector) (node.Node, error) {
	return NewDummyNode(def, conn)
}

// JoinNode sums its "left" and "right" inputs onto its "out" output. Used
// as the join (J) node in the diamond scenario.
type JoinNode struct {
	node.Base
}

func NewJoinNode(def types.NodeDefinition, conn *connector.Connector) (node.Node, error) {
	return &JoinNode{Base: node.NewBase(def, conn)}, nil
}

func (j *JoinNode) Execute() error {
	left, err := node.GetInput[int](&j.Base, "left")
	if err != nil {
		return err
	}
	right, err := node.GetInput[int](&j.Base, "right")
	if err != nil {
		return err
	}
	return node.SetOutput(&j.Base, "out", left+right)
}

// TestSink reads its "in" input and stores it on Received so a test can
// assert on it after execution. Received is safe to read only after the
// graph run that produced it has returned.
type TestSink struct {
	node.Base
	Received *int
}

func NewTestSink(def types.NodeDefinition, conn *connector.Connector) (node.Node, error) {
	return &TestSink{Base: node.NewBase(def, conn), Received: new(int)}, nil
}

func (s *TestSink) Execute() error {
	val, err := node.GetInput[int](&s.Base, "in")
	if err != nil {
		return err
	}
	*s.Received = val
	return nil
}

// FailingNode always returns ErrFailingNode from Execute, regardless of its
// inputs. Used to build scenarios where execution must stop partway
// through a chain and the remaining nodes must never run.
type FailingNode struct {
	node.Base
}

func NewFailingNode(def types.NodeDefinition, conn *connector.Connector) (node.Node, error) {
	return &FailingNode{Base: node.NewBase(def, conn)}, nil
}

func (f *FailingNode) Execute() error {
	return ErrFailingNode
}

// Register adds every fixture type in this package to reg under its type
// tag.
func Register(reg *registry.Registry) {
	reg.MustRegister(TypeTestSource, NewTestSource)
	reg.MustRegister(TypeDummy, NewDummyNode)
	reg.MustRegister(TypeTestSink, NewTestSink)
	reg.MustRegister(TypePassThrough, NewPassThrough)
	reg.MustRegister("join", NewJoinNode)
	reg.MustRegister(TypeFailing, NewFailingNode)
}
