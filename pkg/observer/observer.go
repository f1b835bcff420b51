// Package observer provides the Observer pattern implementation for graph
// execution monitoring, letting a host track execution behavior without
// the core engine depending on any particular logging or
// metrics backend.
package observer

import (
	"context"
	"time"
)

// EventType represents the type of execution event.
type EventType string

const (
	// Graph-level events
	EventGraphStart EventType = "graph_start"
	EventGraphEnd   EventType = "graph_end"

	// Node-level events
	EventNodeStart   EventType = "node_start"
	EventNodeEnd     EventType = "node_end"
	EventNodeSuccess EventType = "node_success"
	EventNodeFailure EventType = "node_failure"
)

// ExecutionStatus represents the status of a node or graph execution.
type ExecutionStatus string

const (
	StatusStarted   ExecutionStatus = "started"
	StatusSuccess   ExecutionStatus = "success"
	StatusFailure   ExecutionStatus = "failure"
	StatusCompleted ExecutionStatus = "completed"
)

// Event represents an execution event with all relevant metadata.
type Event struct {
	Type      EventType       `json:"type"`
	Status    ExecutionStatus `json:"status"`
	Timestamp time.Time       `json:"timestamp"`

	ExecutionID string `json:"execution_id"`
	GraphName   string `json:"graph_name,omitempty"`

	// Node-specific data (empty for graph-level events).
	NodeName string `json:"node_name,omitempty"`
	NodeType string `json:"node_type,omitempty"`

	StartTime   time.Time     `json:"start_time,omitempty"`
	ElapsedTime time.Duration `json:"elapsed_time,omitempty"`

	Error error `json:"error,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Observer receives notifications about stages of graph execution.
type Observer interface {
	// OnEvent is called when an execution event occurs. The context can
	// be used for cancellation and passing request-scoped values.
	OnEvent(ctx context.Context, event Event)
}

// Manager fans a single event out to every registered Observer, in
// registration order. It is itself an Observer, letting Graph hold exactly
// one observer reference regardless of how many are registered.
type Manager struct {
	observers []Observer
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{}
}

// Register adds obs to the fan-out list. Nil observers are ignored.
func (m *Manager) Register(obs Observer) {
	if obs == nil {
		return
	}
	m.observers = append(m.observers, obs)
}

// Count returns how many observers are currently registered.
func (m *Manager) Count() int {
	return len(m.observers)
}

// OnEvent implements Observer by forwarding event to every registered
// observer.
func (m *Manager) OnEvent(ctx context.Context, event Event) {
	for _, obs := range m.observers {
		obs.OnEvent(ctx, event)
	}
}
