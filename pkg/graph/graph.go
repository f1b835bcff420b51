package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelflow/dagflow/pkg/config"
	"github.com/kestrelflow/dagflow/pkg/connector"
	"github.com/kestrelflow/dagflow/pkg/logging"
	"github.com/kestrelflow/dagflow/pkg/node"
	"github.com/kestrelflow/dagflow/pkg/observer"
	"github.com/kestrelflow/dagflow/pkg/registry"
	"github.com/kestrelflow/dagflow/pkg/scheduler"
	"github.com/kestrelflow/dagflow/pkg/telemetry"
	"github.com/kestrelflow/dagflow/pkg/toposort"
	"github.com/kestrelflow/dagflow/pkg/types"
)

// ExecutionMode selects how Execute walks the graph's nodes.
type ExecutionMode int

const (
	Serial ExecutionMode = iota
	Parallel
)

// Graph is the assembled, executable dataflow graph: a connector shared by
// every node, the registry used to construct new nodes, the live set of
// nodes kept in execution order, and the ordered connection set that order
// was derived from.
type Graph struct {
	name string

	conn *connector.Connector
	reg  *registry.Registry
	cfg  *config.Config

	nodes     []node.Node
	nodeIndex map[string]int

	// connections is keyed by types.Connection.Name() so duplicate-add
	// detection and removal are O(1). Its iteration order is unspecified;
	// toposort.Sort orders what it reads from it, so the execution order
	// does not depend on map iteration.
	connections map[string]types.Connection

	order toposort.Order

	observerMgr *observer.Manager
	logger      *logging.Logger
	pool        scheduler.Pool
	threadCount int
}

// Option configures optional collaborators on a Graph at construction time.
type Option func(*Graph)

// WithConfig overrides the default config.Config.
func WithConfig(cfg *config.Config) Option {
	return func(g *Graph) { g.cfg = cfg }
}

// WithLogger overrides the default logger.
func WithLogger(l *logging.Logger) Option {
	return func(g *Graph) { g.logger = l }
}

// WithPool overrides the default graph-scoped worker pool used by
// ExecuteParallel.
func WithPool(p scheduler.Pool) Option {
	return func(g *Graph) { g.pool = p }
}

// WithTelemetry attaches an OpenTelemetry provider by registering a
// telemetry.TelemetryObserver on the graph's observer fan-out: every
// Execute call becomes a trace span, every node execution a child span,
// and both record p's duration/outcome counters. Omitting this option
// leaves tracing and metrics off entirely rather than defaulting to a
// no-op provider, since constructing one means standing up a meter/tracer
// a host may not want.
func WithTelemetry(p *telemetry.Provider) Option {
	return func(g *Graph) { g.observerMgr.Register(telemetry.NewTelemetryObserver(p)) }
}

// New constructs a Graph from def using reg to build each node. Nodes are
// constructed first, then every connection is wired through the connector,
// then the graph is sorted once. Construction fails with UnknownNodeType if
// a node's type tag has no registered constructor, NullConstructor if the
// registered constructor is nil, InvalidConnection if a connection names a
// node absent from def.Nodes, and CyclicGraph if the resulting connections
// are not acyclic.
func New(def types.GraphDefinition, reg *registry.Registry, opts ...Option) (*Graph, error) {
	if reg == nil {
		return nil, ErrNilRegistry
	}

	g := &Graph{
		name:        def.Name,
		conn:        connector.New(),
		reg:         reg,
		cfg:         config.Default(),
		nodeIndex:   make(map[string]int, len(def.Nodes)),
		connections: make(map[string]types.Connection, len(def.Connections)),
		observerMgr: observer.NewManager(),
		logger:      logging.New(logging.DefaultConfig()),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.pool == nil {
		g.pool = scheduler.NewGoroutinePool(g.cfg.MaxConcurrency)
		g.threadCount = g.cfg.MaxConcurrency
	}

	if g.cfg.MaxNodes > 0 && len(def.Nodes) > g.cfg.MaxNodes {
		return nil, ErrTooManyNodes
	}
	if g.cfg.MaxConnections > 0 && len(def.Connections) > g.cfg.MaxConnections {
		return nil, ErrTooManyEdges
	}

	for _, nodeDef := range def.Nodes {
		if err := g.createAndAddNode(nodeDef); err != nil {
			return nil, err
		}
	}
	for _, conn := range def.Connections {
		if err := g.addConnection(conn); err != nil {
			return nil, err
		}
	}
	if err := g.sortNodes(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Graph) createAndAddNode(def types.NodeDefinition) error {
	if _, exists := g.nodeIndex[def.Name]; exists {
		return types.ErrorDuplicateNodeName(def.Name)
	}
	ctor := g.reg.Lookup(def.Type)
	if ctor == nil {
		for _, t := range g.reg.ListTypes() {
			if t == def.Type {
				return types.ErrorNullConstructor(def.Type)
			}
		}
		return types.ErrorUnknownNodeType(def.Name, def.Type)
	}
	n, err := ctor(def, g.conn)
	if err != nil {
		return fmt.Errorf("constructing node %q (type %q): %w", def.Name, def.Type, err)
	}
	if n == nil {
		return types.ErrorNullConstructor(def.Type)
	}
	g.nodeIndex[def.Name] = len(g.nodes)
	g.nodes = append(g.nodes, n)
	g.logger.Debugf("added node %q of type %q", def.Name, def.Type)
	return nil
}

// AddNode constructs a single node from def and wires conns, then re-sorts.
// conns must be non-empty and every entry must name def.Name as either its
// source or its destination; a node added with no connections at all would
// be pruned right back out by the next sort. On any failure — an unknown
// type, a duplicate name, or a connection naming some other node, a
// reflexive edge, or an already-connected input — nothing is left behind:
// the node and whichever of its connections had already been wired are
// rolled back before the error is returned.
func (g *Graph) AddNode(def types.NodeDefinition, conns []types.Connection) error {
	if len(conns) == 0 {
		return ErrEmptyConnections
	}
	for _, c := range conns {
		if c.Src.NodeName != def.Name && c.Dst.NodeName != def.Name {
			return ErrConnectionNotIncident
		}
	}

	if err := g.createAndAddNode(def); err != nil {
		return err
	}

	wired := make([]types.Connection, 0, len(conns))
	for _, c := range conns {
		if err := g.addConnection(c); err != nil {
			for _, w := range wired {
				g.removeConnection(w)
			}
			delete(g.nodeIndex, def.Name)
			g.nodes = g.nodes[:len(g.nodes)-1]
			g.logger.Warnf("rolled back node %q: %v", def.Name, err)
			return err
		}
		wired = append(wired, c)
	}

	if err := g.sortNodes(); err != nil {
		for _, w := range wired {
			g.removeConnection(w)
		}
		delete(g.nodeIndex, def.Name)
		g.nodes = g.nodes[:len(g.nodes)-1]
		g.logger.Warnf("rolled back node %q after cycle detection: %v", def.Name, err)
		return err
	}
	return nil
}

// HasNode reports whether nodeName is currently present in the graph.
func (g *Graph) HasNode(nodeName string) bool {
	_, ok := g.nodeIndex[nodeName]
	return ok
}

// RemoveNode removes nodeName and every connection touching it. Unlike
// AddNode/AddConnection/RemoveConnection, this does not re-sort: deleting a
// node from a valid topological order always leaves the remaining nodes in
// a still-valid relative order, so there is nothing for a sort to fix. A
// node this leaves isolated stays addressable (by AddConnection, AddNode,
// HasNode) until the next operation that does sort prunes it from the live
// sequence.
func (g *Graph) RemoveNode(nodeName string) error {
	idx, ok := g.nodeIndex[nodeName]
	if !ok {
		return ErrNodeNotFound
	}

	for _, c := range g.connectionsTouching(nodeName) {
		g.removeConnection(c)
	}

	g.nodes = append(g.nodes[:idx], g.nodes[idx+1:]...)
	delete(g.nodeIndex, nodeName)
	for name, i := range g.nodeIndex {
		if i > idx {
			g.nodeIndex[name] = i - 1
		}
	}
	g.logger.Debugf("removed node %q", nodeName)
	return nil
}

func (g *Graph) connectionsTouching(nodeName string) []types.Connection {
	var touching []types.Connection
	for _, c := range g.connections {
		if c.Src.NodeName == nodeName || c.Dst.NodeName == nodeName {
			touching = append(touching, c)
		}
	}
	return touching
}

// checkConnectionValid reports a descriptive InvalidConnection error if
// either endpoint of conn does not name a node present in the graph.
func (g *Graph) checkConnectionValid(conn types.Connection) error {
	if _, ok := g.nodeIndex[conn.Src.NodeName]; !ok {
		return types.ErrorInvalidConnection(conn, fmt.Sprintf("source node %q does not exist", conn.Src.NodeName))
	}
	if _, ok := g.nodeIndex[conn.Dst.NodeName]; !ok {
		return types.ErrorInvalidConnection(conn, fmt.Sprintf("destination node %q does not exist", conn.Dst.NodeName))
	}
	return nil
}

func (g *Graph) addConnection(conn types.Connection) error {
	if err := g.checkConnectionValid(conn); err != nil {
		return err
	}
	if _, exists := g.connections[conn.Name()]; exists {
		g.logger.Warnf("connection %s already exists, ignoring duplicate add", conn)
		return nil
	}
	if err := g.conn.Connect(conn); err != nil {
		return err
	}
	g.connections[conn.Name()] = conn
	g.logger.Debugf("added connection %s", conn)
	return nil
}

// AddConnection wires conn into a live graph and re-sorts. If sorting fails
// because conn closes a cycle, the connection is rolled back — removed
// from the connection set and disconnected in the connector — so the graph
// is left exactly as it was before the call. The original engine this is
// modeled on does not roll back here, leaving a broken graph behind; this
// is an intentional correction.
func (g *Graph) AddConnection(conn types.Connection) error {
	alreadyPresent := false
	if _, exists := g.connections[conn.Name()]; exists {
		alreadyPresent = true
	}
	if err := g.addConnection(conn); err != nil {
		return err
	}
	if err := g.sortNodes(); err != nil {
		if !alreadyPresent {
			delete(g.connections, conn.Name())
			g.conn.Disconnect(conn)
			g.logger.Debugf("rolled back connection %s after cycle detection", conn)
		}
		return err
	}
	return nil
}

func (g *Graph) removeConnection(conn types.Connection) {
	if _, exists := g.connections[conn.Name()]; !exists {
		g.logger.Warnf("connection %s not found, ignoring remove", conn)
		return
	}
	delete(g.connections, conn.Name())
	g.conn.Disconnect(conn)
	g.logger.Debugf("removed connection %s", conn)
}

// RemoveConnection unwires conn from a live graph and re-sorts.
func (g *Graph) RemoveConnection(conn types.Connection) error {
	g.removeConnection(conn)
	return g.sortNodes()
}

// sortNodes recomputes the topological order from the live connection set
// and reorders g.nodes/g.nodeIndex to match. A node with no connection at
// all, to or from it, is pruned from g.nodes entirely: the sorter never
// reports it, so it silently drops out of the live node sequence until a
// new connection brings it back in.
func (g *Graph) sortNodes() error {
	names := make([]string, len(g.nodes))
	for i, n := range g.nodes {
		names[i] = n.Name()
	}
	conns := make([]types.Connection, 0, len(g.connections))
	for _, c := range g.connections {
		conns = append(conns, c)
	}

	order, err := toposort.Sort(names, conns)
	if err != nil {
		return err
	}

	byName := make(map[string]node.Node, len(g.nodes))
	for _, n := range g.nodes {
		byName[n.Name()] = n
	}

	reordered := make([]node.Node, 0, len(order.Linear))
	for _, name := range order.Linear {
		reordered = append(reordered, byName[name])
	}

	g.nodes = reordered
	g.nodeIndex = make(map[string]int, len(reordered))
	for i, n := range reordered {
		g.nodeIndex[n.Name()] = i
	}
	g.order = order
	return nil
}

// DetectCycles runs the sorter against the live connection set without
// committing its result, as a cheap pre-flight check.
func (g *Graph) DetectCycles() error {
	names := make([]string, len(g.nodes))
	for i, n := range g.nodes {
		names[i] = n.Name()
	}
	conns := make([]types.Connection, 0, len(g.connections))
	for _, c := range g.connections {
		conns = append(conns, c)
	}
	_, err := toposort.Sort(names, conns)
	return err
}

// SourceNodes returns, in the graph's current execution order, the names of
// nodes with no incoming connection in the live connection set.
func (g *Graph) SourceNodes() []string {
	hasIncoming := make(map[string]bool, len(g.connections))
	for _, c := range g.connections {
		hasIncoming[c.Dst.NodeName] = true
	}
	var out []string
	for _, n := range g.nodes {
		if !hasIncoming[n.Name()] {
			out = append(out, n.Name())
		}
	}
	return out
}

// TerminalNodes returns, in the graph's current execution order, the names
// of nodes with no outgoing connection in the live connection set.
func (g *Graph) TerminalNodes() []string {
	hasOutgoing := make(map[string]bool, len(g.connections))
	for _, c := range g.connections {
		hasOutgoing[c.Src.NodeName] = true
	}
	var out []string
	for _, n := range g.nodes {
		if !hasOutgoing[n.Name()] {
			out = append(out, n.Name())
		}
	}
	return out
}

// RegisterObserver adds obs to the graph's observer fan-out.
func (g *Graph) RegisterObserver(obs observer.Observer) *Graph {
	g.observerMgr.Register(obs)
	return g
}

// SetLogger overrides the graph's logger after construction.
func (g *Graph) SetLogger(l *logging.Logger) *Graph {
	g.logger = l
	return g
}

// SetPool overrides the graph's worker pool after construction.
func (g *Graph) SetPool(p scheduler.Pool) *Graph {
	g.pool = p
	return g
}

// SetParallelThreadCount replaces the graph's worker pool with a fresh one
// bounded to n concurrent submissions (n <= 0 means unbounded). Only safe to
// call between executions: ExecuteParallel is not re-entrant and swapping
// the pool mid-run would orphan in-flight handles.
func (g *Graph) SetParallelThreadCount(n int) {
	g.pool = scheduler.NewGoroutinePool(n)
	g.threadCount = n
}

// GetParallelThreadCount returns the concurrency bound last set via
// SetParallelThreadCount, or the config-derived default from construction.
func (g *Graph) GetParallelThreadCount() int {
	return g.threadCount
}

// Execute runs every node in mode, against a freshly generated execution
// ID attached to ctx and to every observer event and log line for the run.
func (g *Graph) Execute(ctx context.Context, mode ExecutionMode) error {
	switch mode {
	case Parallel:
		return g.ExecuteParallel(ctx)
	default:
		return g.ExecuteSerial(ctx)
	}
}

func (g *Graph) newExecutionContext(ctx context.Context) (context.Context, string, *logging.Logger) {
	execID := uuid.New().String()
	ctx = context.WithValue(ctx, executionIDKey{}, execID)
	log := g.logger.WithGraphName(g.name).WithExecutionID(execID)
	return ctx, execID, log
}

type executionIDKey struct{}

// ExecutionIDFromContext extracts the execution ID Graph.Execute attached
// to ctx, or "" if ctx was not produced by a Graph execution.
func ExecutionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(executionIDKey{}).(string)
	return id
}

// ExecuteSerial walks g.nodes in their topologically sorted order, calling
// Execute on each in turn and stopping at the first failure.
func (g *Graph) ExecuteSerial(ctx context.Context) error {
	g.conn.ClearObjects()

	ctx, execID, log := g.newExecutionContext(ctx)
	start := time.Now()

	g.observerMgr.OnEvent(ctx, observer.Event{
		Type: observer.EventGraphStart, Status: observer.StatusStarted,
		Timestamp: start, ExecutionID: execID, GraphName: g.name,
	})
	log.Info("graph execution started")

	var runErr error
	executed := 0
	for _, n := range g.nodes {
		if err := g.executeNode(ctx, n, log); err != nil {
			runErr = err
			break
		}
		executed++
	}

	status := observer.StatusSuccess
	if runErr != nil {
		status = observer.StatusFailure
	}
	g.observerMgr.OnEvent(ctx, observer.Event{
		Type: observer.EventGraphEnd, Status: status, Timestamp: time.Now(),
		ExecutionID: execID, GraphName: g.name, Error: runErr,
		Metadata: map[string]interface{}{"nodes_executed": executed},
	})
	if runErr != nil {
		log.WithError(runErr).Error("graph execution failed")
	} else {
		log.Info("graph execution completed")
	}
	return runErr
}

func (g *Graph) executeNode(ctx context.Context, n node.Node, log *logging.Logger) error {
	nodeLog := log.WithNodeName(n.Name()).WithNodeType(n.Type())
	nodeStart := time.Now()

	g.observerMgr.OnEvent(ctx, observer.Event{
		Type: observer.EventNodeStart, Status: observer.StatusStarted, Timestamp: nodeStart,
		ExecutionID: ExecutionIDFromContext(ctx), GraphName: g.name, NodeName: n.Name(), NodeType: n.Type(),
	})
	nodeLog.Debug("node execution started")

	err := runNode(n)

	elapsed := time.Since(nodeStart)
	evtType := observer.EventNodeSuccess
	status := observer.StatusSuccess
	if err != nil {
		evtType = observer.EventNodeFailure
		status = observer.StatusFailure
		err = types.ErrorNodeExecutionFailed(n.Name(), n.Type(), err)
	}
	g.observerMgr.OnEvent(ctx, observer.Event{
		Type: evtType, Status: status, Timestamp: time.Now(), StartTime: nodeStart, ElapsedTime: elapsed,
		ExecutionID: ExecutionIDFromContext(ctx), GraphName: g.name, NodeName: n.Name(), NodeType: n.Type(), Error: err,
	})
	if err != nil {
		nodeLog.WithError(err).Error("node execution failed")
	} else {
		nodeLog.Debug("node execution completed")
	}
	return err
}

// runNode recovers a panicking node body into an error so one broken node
// can never take down the whole Execute call.
func runNode(n node.Node) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return n.Execute()
}
