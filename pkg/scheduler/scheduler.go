// Package scheduler provides the collaborators the graph's parallel
// execution strategy needs: a readiness filter over a predecessor map, a
// worker-pool abstraction scoped to a single graph instance, and a
// poll-based wait-for-any primitive. It is grounded on the goroutine/
// semaphore/WaitGroup patterns in the teacher's parallel_executor.go,
// restructured from that file's level-barrier BFS model to the
// ready-batch/poll-any model spec.md §5 requires.
package scheduler

import (
	"sync"
	"time"
)

// ReadyBatch returns the sorted names of every node in queued whose
// predecessors are all present in finished. predecessors maps a node name
// to the set of node names that must finish before it may start; a node
// absent from predecessors, or mapped to an empty set, has no
// predecessors and is immediately ready.
func ReadyBatch(queued map[string]struct{}, finished map[string]struct{}, predecessors map[string][]string) []string {
	var ready []string
	for n := range queued {
		ok := true
		for _, p := range predecessors[n] {
			if _, done := finished[p]; !done {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, n)
		}
	}
	sortStrings(ready)
	return ready
}

// Handle is a non-blocking handle onto one submitted unit of work.
type Handle interface {
	// Done reports whether the work has finished. Safe to poll
	// repeatedly from any goroutine.
	Done() bool
	// Err returns the work's result once Done reports true; it returns
	// nil until then.
	Err() error
}

// Pool runs submitted work concurrently, bounded by whatever concurrency
// limit the implementation enforces. A Pool is scoped to a single graph
// instance — per Design Notes §9, sharing one pool across unrelated graphs
// is a host-level optimization, not a core requirement, and this package
// does not provide a process-wide singleton.
type Pool interface {
	Submit(fn func() error) Handle
	// WaitAll blocks until every handle returned by Submit so far has
	// completed.
	WaitAll()
}

// WaitAny polls handles at pollInterval until at least one reports Done,
// then returns the name of the first one found ready, in sorted-name
// iteration order for determinism when several complete in the same poll.
// This mirrors spec.md §5's pragmatic choice of a short-interval poll loop
// over a native multi-wait primitive.
func WaitAny(handles map[string]Handle, pollInterval time.Duration) string {
	names := make([]string, 0, len(handles))
	for n := range handles {
		names = append(names, n)
	}
	sortStrings(names)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		for _, n := range names {
			if handles[n].Done() {
				return n
			}
		}
		<-ticker.C
	}
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// goroutineHandle is the Handle implementation backing NewGoroutinePool.
type goroutineHandle struct {
	mu   sync.Mutex
	done bool
	err  error
}

func (h *goroutineHandle) Done() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.done
}

func (h *goroutineHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *goroutineHandle) finish(err error) {
	h.mu.Lock()
	h.done = true
	h.err = err
	h.mu.Unlock()
}

// goroutinePool is the default Pool: a counting semaphore bounds how many
// submitted functions run concurrently, grounded on the semaphore-channel
// pattern in the teacher's executeLevel.
type goroutinePool struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

// NewGoroutinePool returns a Pool that runs at most maxConcurrency
// submissions at once. maxConcurrency <= 0 means unbounded.
func NewGoroutinePool(maxConcurrency int) Pool {
	p := &goroutinePool{}
	if maxConcurrency > 0 {
		p.sem = make(chan struct{}, maxConcurrency)
	}
	return p
}

func (p *goroutinePool) Submit(fn func() error) Handle {
	h := &goroutineHandle{}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if p.sem != nil {
			p.sem <- struct{}{}
			defer func() { <-p.sem }()
		}
		h.finish(fn())
	}()
	return h
}

func (p *goroutinePool) WaitAll() {
	p.wg.Wait()
}
