package graph

import (
	"context"
	"sync"
	"time"

	"github.com/kestrelflow/dagflow/pkg/node"
	"github.com/kestrelflow/dagflow/pkg/observer"
	"github.com/kestrelflow/dagflow/pkg/scheduler"
)

// ExecuteParallel runs nodes whose predecessors have all finished
// concurrently, submitting each ready batch to the graph's worker pool and
// polling for the next completion rather than waiting for a whole level to
// finish before starting the next one. This lets an independent branch
// that finishes early start its own successors immediately instead of
// waiting on the slowest sibling in its batch, which a level-barrier
// scheduler would force it to do.
func (g *Graph) ExecuteParallel(ctx context.Context) error {
	g.conn.ClearObjects()

	ctx, execID, log := g.newExecutionContext(ctx)
	start := time.Now()

	g.observerMgr.OnEvent(ctx, observer.Event{
		Type: observer.EventGraphStart, Status: observer.StatusStarted,
		Timestamp: start, ExecutionID: execID, GraphName: g.name,
	})
	log.Info("parallel graph execution started")

	byName := make(map[string]node.Node, len(g.nodes))
	queued := make(map[string]struct{}, len(g.nodes))
	for _, n := range g.nodes {
		byName[n.Name()] = n
		queued[n.Name()] = struct{}{}
	}
	finished := make(map[string]struct{}, len(g.nodes))
	running := make(map[string]struct{}, len(g.nodes))
	handles := make(map[string]scheduler.Handle, len(g.nodes))

	var mu sync.Mutex
	var firstErr error

	for len(finished) < len(g.nodes) {
		mu.Lock()
		failed := firstErr != nil
		mu.Unlock()

		var ready []string
		if !failed {
			// Once a node has failed, stop starting new work: its
			// dependents would read missing or stale inputs. Let
			// whatever is already running drain, then stop.
			ready = scheduler.ReadyBatch(queued, finished, g.order.Predecessors)
		}
		for _, name := range ready {
			delete(queued, name)
			running[name] = struct{}{}
			n := byName[name]
			handles[name] = g.pool.Submit(func() error {
				err := g.executeNode(ctx, n, log)
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
				}
				return err
			})
		}

		if len(running) == 0 {
			// Nothing queued is ready and nothing is in flight: the
			// remaining nodes depend on one that already failed and
			// was never marked finished. Stop here rather than spin
			// forever waiting on work that will never complete.
			break
		}

		doneName := scheduler.WaitAny(handles, g.cfg.WaitAnyPollInterval)
		delete(running, doneName)
		delete(handles, doneName)
		finished[doneName] = struct{}{}
	}

	mu.Lock()
	runErr := firstErr
	mu.Unlock()

	status := observer.StatusSuccess
	if runErr != nil {
		status = observer.StatusFailure
	}
	g.observerMgr.OnEvent(ctx, observer.Event{
		Type: observer.EventGraphEnd, Status: status, Timestamp: time.Now(),
		ExecutionID: execID, GraphName: g.name, Error: runErr,
		Metadata: map[string]interface{}{"nodes_executed": len(finished)},
	})
	if runErr != nil {
		log.WithError(runErr).Error("parallel graph execution failed")
	} else {
		log.Info("parallel graph execution completed")
	}
	return runErr
}
