// Package events broadcasts committed ledger mutations to external
// consumers. In-process consumers use the docstore watch surface instead;
// this package exists for mirrors running in other processes.
package events

import (
	"context"
	"encoding/json"
	"time"
)

// Op identifies the kind of committed mutation.
type Op string

const (
	OpAdd        Op = "add"
	OpUpdate     Op = "update"
	OpStatus     Op = "status"
	OpDelete     Op = "delete"
	OpMove       Op = "move"
	OpBulkStatus Op = "bulk_status"
	OpRecompute  Op = "recompute"
)

// Event is a lightweight change notification. Consumers re-read the source
// from the store rather than trusting a payload snapshot.
type Event struct {
	Source        string    `json:"source"`
	Op            Op        `json:"op"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewEvent creates an event stamped with the current time.
func NewEvent(source string, op Op, transactionID string) Event {
	return Event{Source: source, Op: op, TransactionID: transactionID, Timestamp: time.Now()}
}

// ToJSON converts the event to JSON bytes.
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EventFromJSON parses an event from JSON bytes.
func EventFromJSON(data []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(data, &e)
	return e, err
}

// Publisher is the outbound port for change notifications.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Noop is the publisher used when no broker is configured.
type Noop struct{}

// Publish discards the event.
func (Noop) Publish(context.Context, Event) error { return nil }

// Close is a no-op.
func (Noop) Close() error { return nil }
