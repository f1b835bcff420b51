// Package observer provides an event-driven observer pattern for graph
// execution.
//
// # Overview
//
// The observer package lets a host track graph and node execution — start,
// success, failure — without the core engine depending on any particular
// logging or metrics backend. A Graph holds exactly one Observer (typically
// a *Manager fanning out to several registered observers).
//
// # Observer interface
//
//	type Observer interface {
//	    OnEvent(ctx context.Context, event Event)
//	}
//
// # Events
//
// EventGraphStart / EventGraphEnd are emitted once per Execute/ExecuteParallel
// call. EventNodeStart and then EventNodeSuccess or EventNodeFailure are
// emitted around each node's Execute call; EventNodeEnd is defined but the
// graph does not emit it. Event carries the execution ID,
// graph name, node name/type, timing, and an error field for failure events.
//
// # Basic usage
//
//	mgr := observer.NewManager()
//	mgr.Register(observer.NewConsoleObserver())
//	g.RegisterObserver(mgr)
//
// # Built-in observers
//
// NoOpObserver discards every event. ConsoleObserver writes each event
// through a Logger (NoOpLogger
// or DefaultLogger, or any host-supplied implementation of this package's
// Logger interface).
//
// Observer implementations must not block for long: OnEvent is called
// synchronously from the executing goroutine.
package observer
