package client

import (
	"context"
	"encoding/json"
)

// Transport performs SurrealDB RPC calls. Implementations own the
// connection; Client never dials anything itself.
type Transport interface {
	// Call invokes method with params and returns the raw result.
	Call(ctx context.Context, method string, params ...any) (json.RawMessage, error)
	// Notifications delivers live query notifications. It may return nil
	// when the transport does not support live queries.
	Notifications() <-chan Notification
}

// Action is the kind of change a live query notification reports.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
	// ActionClose ends a subscription. It carries no data change.
	ActionClose Action = "CLOSE"
)

// Notification is a single live query message.
type Notification struct {
	ID     string          `json:"id"`
	Action Action          `json:"action"`
	Result json.RawMessage `json:"result"`
}
