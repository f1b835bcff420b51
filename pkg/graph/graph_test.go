package graph

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/kestrelflow/dagflow/pkg/observer"
	"github.com/kestrelflow/dagflow/pkg/registry"
	"github.com/kestrelflow/dagflow/pkg/telemetry"
	"github.com/kestrelflow/dagflow/pkg/testnodes"
	"github.com/kestrelflow/dagflow/pkg/types"
)

func newRegistry() *registry.Registry {
	reg := registry.New()
	testnodes.Register(reg)
	return reg
}

func port(node, p string) types.Port { return types.Port{NodeName: node, PortName: p} }

func connection(srcNode, srcPort, dstNode, dstPort string) types.Connection {
	return types.Connection{Src: port(srcNode, srcPort), Dst: port(dstNode, dstPort)}
}

// linearABC builds scenario (1)'s graph: A(seed=42) -> B(dummy) -> C(sink).
func linearABC(t *testing.T) *Graph {
	t.Helper()
	def := types.GraphDefinition{
		Name: "linear-abc",
		Nodes: []types.NodeDefinition{
			{Name: "A", Type: testnodes.TypeTestSource, Settings: map[string]any{"seed": 42}},
			{Name: "B", Type: testnodes.TypeDummy},
			{Name: "C", Type: testnodes.TypeTestSink, Settings: map[string]any{"expected": 42}},
		},
		Connections: []types.Connection{
			connection("A", "out", "B", "in"),
			connection("B", "out", "C", "in"),
		},
	}
	g, err := New(def, newRegistry())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func sinkOf(t *testing.T, g *Graph, name string) *testnodes.TestSink {
	t.Helper()
	for _, n := range g.nodes {
		if n.Name() == name {
			sink, ok := n.(*testnodes.TestSink)
			if !ok {
				t.Fatalf("node %q is not a TestSink", name)
			}
			return sink
		}
	}
	t.Fatalf("node %q not found", name)
	return nil
}

// --- Scenario 1: linear A -> B -> C, serial execute, trace + final value ---

func TestScenario1_LinearABC(t *testing.T) {
	g := linearABC(t)
	var trace []string
	for _, n := range g.nodes {
		trace = append(trace, n.Name())
	}
	if !reflect.DeepEqual(trace, []string{"A", "B", "C"}) {
		t.Fatalf("execution order = %v, want [A B C]", trace)
	}

	if err := g.ExecuteSerial(context.Background()); err != nil {
		t.Fatalf("ExecuteSerial: %v", err)
	}
	sink := sinkOf(t, g, "C")
	if *sink.Received != 42 {
		t.Fatalf("C received %d, want 42", *sink.Received)
	}
}

// --- Scenario 2: remove middle connection, C is pruned ---

func TestScenario2_RemoveMiddleConnectionPrunesSink(t *testing.T) {
	g := linearABC(t)
	if err := g.RemoveConnection(connection("B", "out", "C", "in")); err != nil {
		t.Fatalf("RemoveConnection: %v", err)
	}
	if g.HasNode("C") {
		t.Fatal("C should have been pruned once isolated")
	}
	var trace []string
	for _, n := range g.nodes {
		trace = append(trace, n.Name())
	}
	if !reflect.DeepEqual(trace, []string{"A", "B"}) {
		t.Fatalf("execution order = %v, want [A B]", trace)
	}
}

// --- Scenario 3: re-add sink, trace restored ---

func TestScenario3_ReAddSinkRestoresTrace(t *testing.T) {
	g := linearABC(t)
	if err := g.RemoveConnection(connection("B", "out", "C", "in")); err != nil {
		t.Fatalf("RemoveConnection: %v", err)
	}
	if g.HasNode("C") {
		t.Fatal("C should already be pruned from (2) before re-adding")
	}
	def := types.NodeDefinition{Name: "C", Type: testnodes.TypeTestSink, Settings: map[string]any{"expected": 42}}
	if err := g.AddNode(def, []types.Connection{connection("B", "out", "C", "in")}); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	var trace []string
	for _, n := range g.nodes {
		trace = append(trace, n.Name())
	}
	if !reflect.DeepEqual(trace, []string{"A", "B", "C"}) {
		t.Fatalf("execution order = %v, want [A B C]", trace)
	}
	if err := g.ExecuteSerial(context.Background()); err != nil {
		t.Fatalf("ExecuteSerial: %v", err)
	}
	if sink := sinkOf(t, g, "C"); *sink.Received != 42 {
		t.Fatalf("C received %d, want 42", *sink.Received)
	}
}

// --- Scenario 4: remove B, connect A directly to C, trace [A C] ---

func TestScenario4_SkipMiddleNode(t *testing.T) {
	g := linearABC(t)
	if err := g.RemoveNode("B"); err != nil {
		t.Fatalf("RemoveNode: %v", err)
	}
	if err := g.AddConnection(connection("A", "out", "C", "in")); err != nil {
		t.Fatalf("AddConnection: %v", err)
	}
	var trace []string
	for _, n := range g.nodes {
		trace = append(trace, n.Name())
	}
	if !reflect.DeepEqual(trace, []string{"A", "C"}) {
		t.Fatalf("execution order = %v, want [A C]", trace)
	}
}

// --- Scenario 5: fakeOutput then execute overwrites it ---

func TestScenario5_FakeOutputThenExecuteOverwrites(t *testing.T) {
	g := linearABC(t)
	if err := FakeOutput(g, port("A", "out"), 69); err != nil {
		t.Fatalf("FakeOutput: %v", err)
	}
	got, err := GetOutput[int](g, port("A", "out"))
	if err != nil {
		t.Fatalf("GetOutput: %v", err)
	}
	if got != 69 {
		t.Fatalf("got %d, want 69", got)
	}

	if err := g.ExecuteSerial(context.Background()); err != nil {
		t.Fatalf("ExecuteSerial: %v", err)
	}
	got, err = GetOutput[int](g, port("A", "out"))
	if err != nil {
		t.Fatalf("GetOutput after execute: %v", err)
	}
	if got != 42 {
		t.Fatalf("got %d, want 42 (A's real output should have overwritten the fake one)", got)
	}
}

// --- Regression: ClearObjects wipes stale/faked values before each run ---

// failThenChain builds A(failing) -> B(dummy) -> C(sink). A always fails,
// so ExecuteSerial/ExecuteParallel must stop before B or C ever run.
func failThenChain(t *testing.T) *Graph {
	t.Helper()
	def := types.GraphDefinition{
		Name: "fail-then-chain",
		Nodes: []types.NodeDefinition{
			{Name: "A", Type: testnodes.TypeFailing},
			{Name: "B", Type: testnodes.TypeDummy},
			{Name: "C", Type: testnodes.TypeTestSink},
		},
		Connections: []types.Connection{
			connection("A", "out", "B", "in"),
			connection("B", "out", "C", "in"),
		},
	}
	g, err := New(def, newRegistry())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func TestExecuteSerial_ClearsStaleObjectBeforeRun(t *testing.T) {
	g := failThenChain(t)
	if err := FakeOutput(g, port("B", "out"), 99); err != nil {
		t.Fatalf("FakeOutput: %v", err)
	}

	if err := g.ExecuteSerial(context.Background()); err == nil {
		t.Fatal("ExecuteSerial: want error from A, got nil")
	}

	_, err := GetOutput[int](g, port("B", "out"))
	if !errors.Is(err, types.ErrNoValueOnEdge) {
		t.Fatalf("GetOutput on B:out after run = %v, want ErrNoValueOnEdge (stale fake value should have been cleared, and B never ran to replace it)", err)
	}
}

func TestExecuteParallel_ClearsStaleObjectBeforeRun(t *testing.T) {
	g := failThenChain(t)
	if err := FakeOutput(g, port("B", "out"), 99); err != nil {
		t.Fatalf("FakeOutput: %v", err)
	}

	if err := g.ExecuteParallel(context.Background()); err == nil {
		t.Fatal("ExecuteParallel: want error from A, got nil")
	}

	_, err := GetOutput[int](g, port("B", "out"))
	if !errors.Is(err, types.ErrNoValueOnEdge) {
		t.Fatalf("GetOutput on B:out after run = %v, want ErrNoValueOnEdge (stale fake value should have been cleared, and B never ran to replace it)", err)
	}
}

// --- Scenario 6: parallel diamond, valid orderings ---

func diamond(t *testing.T) *Graph {
	t.Helper()
	def := types.GraphDefinition{
		Name: "diamond",
		Nodes: []types.NodeDefinition{
			{Name: "S", Type: testnodes.TypeTestSource, Settings: map[string]any{"seed": 1}},
			{Name: "L", Type: testnodes.TypePassThrough},
			{Name: "R", Type: testnodes.TypePassThrough},
			{Name: "J", Type: "join"},
			// K consumes J:out so that J's result sits on an edge cell where
			// GetOutput can read it; an unconnected output holds no value.
			{Name: "K", Type: testnodes.TypeTestSink},
		},
		Connections: []types.Connection{
			connection("S", "out", "L", "in"),
			connection("S", "out", "R", "in"),
			connection("L", "out", "J", "left"),
			connection("R", "out", "J", "right"),
			connection("J", "out", "K", "in"),
		},
	}
	g, err := New(def, newRegistry())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func TestScenario6_ParallelDiamond(t *testing.T) {
	g := diamond(t)

	var rec recordingObserver
	g.RegisterObserver(&rec)

	if err := g.ExecuteParallel(context.Background()); err != nil {
		t.Fatalf("ExecuteParallel: %v", err)
	}

	starts := rec.nodeStarts()
	pos := make(map[string]int, len(starts))
	for i, name := range starts {
		pos[name] = i
	}
	if pos["S"] > pos["L"] || pos["S"] > pos["R"] {
		t.Fatalf("S must start before L and R: %v", starts)
	}
	if pos["L"] > pos["J"] || pos["R"] > pos["J"] {
		t.Fatalf("L and R must start before J: %v", starts)
	}

	got, err := GetOutput[int](g, port("J", "out"))
	if err != nil {
		t.Fatalf("GetOutput: %v", err)
	}
	if got != 2 {
		t.Fatalf("J output = %d, want 2 (1 from each branch)", got)
	}
}

// --- Scenario 7: cycle introduction is rejected and rolled back ---

func TestScenario7_CycleRejectedAndRolledBack(t *testing.T) {
	def := types.GraphDefinition{
		Name: "cycle",
		Nodes: []types.NodeDefinition{
			{Name: "A", Type: testnodes.TypeDummy},
			{Name: "B", Type: testnodes.TypeDummy},
		},
		Connections: []types.Connection{
			connection("A", "out", "B", "in"),
		},
	}
	g, err := New(def, newRegistry())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = g.AddConnection(connection("B", "out", "A", "in"))
	if !errors.Is(err, types.ErrCyclicGraph) {
		t.Fatalf("err = %v, want ErrCyclicGraph", err)
	}

	if len(g.connections) != 1 {
		t.Fatalf("connections = %v, want exactly the original A->B edge", g.connections)
	}
	if _, ok := g.connections[connection("A", "out", "B", "in").Name()]; !ok {
		t.Fatal("original A->B connection should still be present")
	}
}

// --- Scenario 8: unknown node type fails construction ---

func TestScenario8_UnknownNodeType(t *testing.T) {
	def := types.GraphDefinition{
		Name: "bad-type",
		Nodes: []types.NodeDefinition{
			{Name: "A", Type: "Nope"},
		},
	}
	_, err := New(def, newRegistry())
	if !errors.Is(err, types.ErrUnknownNodeType) {
		t.Fatalf("err = %v, want ErrUnknownNodeType", err)
	}
}

// --- Quantified invariants ---

func TestInvariant_ConnectionEndpointsIndexOrdering(t *testing.T) {
	g := linearABC(t)
	pos := make(map[string]int, len(g.nodes))
	for i, n := range g.nodes {
		pos[n.Name()] = i
	}
	for _, c := range g.connections {
		if pos[c.Src.NodeName] >= pos[c.Dst.NodeName] {
			t.Fatalf("connection %s violates src-before-dst ordering", c)
		}
	}
}

func TestInvariant_PortKindNeverChanges(t *testing.T) {
	g := linearABC(t)
	err := g.conn.Connect(connection("C", "in", "A", "out"))
	if !errors.Is(err, types.ErrInvalidConnection) && !errors.Is(err, types.ErrPortKindConflict) {
		t.Fatalf("reusing a classified port in the opposite role should fail, got %v", err)
	}
}

func TestInvariant_EdgeValuesExistOnlyIfWritten(t *testing.T) {
	g := linearABC(t)
	if err := g.RemoveConnection(connection("B", "out", "C", "in")); err != nil {
		t.Fatalf("RemoveConnection: %v", err)
	}
	if _, err := g.conn.GetObjectFromOutput(port("A", "out")); !errors.Is(err, types.ErrNoValueOnEdge) {
		t.Fatalf("A's output should have no value before A runs, got %v", err)
	}
	if err := g.ExecuteSerial(context.Background()); err != nil {
		t.Fatalf("ExecuteSerial: %v", err)
	}
	if _, err := g.conn.GetObjectFromOutput(port("A", "out")); err != nil {
		t.Fatalf("A's output should have a value: %v", err)
	}
}

// --- Laws ---

func TestLaw_FakeOutputRoundTrips(t *testing.T) {
	g := linearABC(t)
	if err := FakeOutput(g, port("B", "out"), 100); err != nil {
		t.Fatalf("FakeOutput: %v", err)
	}
	got, err := GetOutput[int](g, port("B", "out"))
	if err != nil {
		t.Fatalf("GetOutput: %v", err)
	}
	if got != 100 {
		t.Fatalf("got %d, want 100", got)
	}
}

func TestLaw_DuplicateAddConnectionIsNoOp(t *testing.T) {
	g := linearABC(t)
	before := len(g.connections)
	if err := g.AddConnection(connection("A", "out", "B", "in")); err != nil {
		t.Fatalf("duplicate AddConnection should be a no-op, got error: %v", err)
	}
	if len(g.connections) != before {
		t.Fatalf("connection count changed on duplicate add: %d -> %d", before, len(g.connections))
	}
}

func TestLaw_AddRemoveConnectionIsInverse(t *testing.T) {
	g := linearABC(t)
	originalNames := connectionNames(g)
	var originalOrder []string
	for _, n := range g.nodes {
		originalOrder = append(originalOrder, n.Name())
	}

	// A new edge between two already-present nodes, onto a port nothing
	// else uses, so adding then removing it is a genuine round trip
	// rather than colliding with an already-connected input.
	conn := connection("A", "out", "C", "extra")
	if err := g.AddConnection(conn); err != nil {
		t.Fatalf("AddConnection: %v", err)
	}
	if err := g.RemoveConnection(conn); err != nil {
		t.Fatalf("RemoveConnection: %v", err)
	}

	if !reflect.DeepEqual(connectionNames(g), originalNames) {
		t.Fatalf("connection set not restored: %v vs %v", connectionNames(g), originalNames)
	}
	var trace []string
	for _, n := range g.nodes {
		trace = append(trace, n.Name())
	}
	if !reflect.DeepEqual(trace, originalOrder) {
		t.Fatalf("linear order not restored: %v vs %v", trace, originalOrder)
	}
}

func connectionNames(g *Graph) map[string]bool {
	names := make(map[string]bool, len(g.connections))
	for name := range g.connections {
		names[name] = true
	}
	return names
}

func TestLaw_SortStableUnderIrrelevantEdit(t *testing.T) {
	g := linearABC(t)
	before := make([]string, len(g.nodes))
	for i, n := range g.nodes {
		before[i] = n.Name()
	}

	def := types.NodeDefinition{Name: "D", Type: testnodes.TypeDummy}
	if err := g.AddNode(def, []types.Connection{connection("A", "out", "D", "in")}); err != nil {
		t.Fatalf("AddNode: %v", err)
	}

	// D lands right after A ([A D B C]); the nodes that were already
	// present must keep their relative order around it.
	var after []string
	for _, n := range g.nodes {
		if n.Name() != "D" {
			after = append(after, n.Name())
		}
	}
	if !reflect.DeepEqual(after, before) {
		t.Fatalf("relative order of pre-existing nodes changed: %v, want %v", after, before)
	}
}

// --- Boundary behaviors ---

func TestBoundary_EmptyGraphExecuteIsNoOp(t *testing.T) {
	g, err := New(types.GraphDefinition{Name: "empty"}, newRegistry())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := g.ExecuteSerial(context.Background()); err != nil {
		t.Fatalf("ExecuteSerial on empty graph: %v", err)
	}
}

func TestBoundary_NodesWithNoConnectionsSortToEmpty(t *testing.T) {
	def := types.GraphDefinition{
		Name: "isolated-only",
		Nodes: []types.NodeDefinition{
			{Name: "A", Type: testnodes.TypeDummy},
			{Name: "B", Type: testnodes.TypeDummy},
		},
	}
	g, err := New(def, newRegistry())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(g.nodes) != 0 {
		t.Fatalf("nodes = %v, want all pruned", g.nodes)
	}
	if err := g.ExecuteSerial(context.Background()); err != nil {
		t.Fatalf("ExecuteSerial on all-isolated graph should be a no-op, got %v", err)
	}
}

func TestBoundary_ConnectionToNonexistentNodeFailsCleanly(t *testing.T) {
	g := linearABC(t)
	before := len(g.connections)
	err := g.AddConnection(connection("A", "out", "NoSuchNode", "in"))
	if !errors.Is(err, types.ErrInvalidConnection) {
		t.Fatalf("err = %v, want ErrInvalidConnection", err)
	}
	if len(g.connections) != before {
		t.Fatalf("connection count changed after failed add: %d -> %d", before, len(g.connections))
	}
}

func TestBoundary_CycleIntroductionRolledBack(t *testing.T) {
	g := linearABC(t)
	before := connectionNames(g)
	err := g.AddConnection(connection("C", "out", "A", "in"))
	if !errors.Is(err, types.ErrCyclicGraph) {
		t.Fatalf("err = %v, want ErrCyclicGraph", err)
	}
	if !reflect.DeepEqual(connectionNames(g), before) {
		t.Fatalf("connections changed after rolled-back cycle: %v vs %v", connectionNames(g), before)
	}
}

// recordingObserver records node-start order for scenario 6's ordering
// assertions without depending on pkg/observer's own tests.
type recordingObserver struct {
	mu     sync.Mutex
	starts []string
}

func (o *recordingObserver) OnEvent(ctx context.Context, evt observer.Event) {
	if evt.Type != observer.EventNodeStart {
		return
	}
	o.mu.Lock()
	o.starts = append(o.starts, evt.NodeName)
	o.mu.Unlock()
}

func (o *recordingObserver) nodeStarts() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.starts))
	copy(out, o.starts)
	return out
}

func TestTelemetry_RecordsGraphAndNodeExecutions(t *testing.T) {
	provider, err := telemetry.NewProvider(context.Background(), telemetry.Config{
		ServiceName: "dagflow-test", ServiceVersion: "test", Environment: "test",
		EnableTracing: true, EnableMetrics: true,
	})
	if err != nil {
		t.Fatalf("telemetry.NewProvider: %v", err)
	}
	defer provider.Shutdown(context.Background())

	def := types.GraphDefinition{
		Name: "telemetry-demo",
		Nodes: []types.NodeDefinition{
			{Name: "A", Type: testnodes.TypeTestSource, Settings: map[string]any{"seed": 7}},
			{Name: "B", Type: testnodes.TypeTestSink},
		},
		Connections: []types.Connection{connection("A", "out", "B", "in")},
	}
	g, err := New(def, newRegistry(), WithTelemetry(provider))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// A Provider wired through WithTelemetry must not change execution
	// outcome or panic on span/metric recording.
	if err := g.Execute(context.Background(), Serial); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := *sinkOf(t, g, "B").Received; got != 7 {
		t.Fatalf("sink received %d, want 7", got)
	}
}
