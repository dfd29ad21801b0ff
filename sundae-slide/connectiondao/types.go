package connectiondao

import "errors"

var ErrNotFound = errors.New("connection not found")

// Connection records a live websocket attached to a slide coordinator.
type Connection struct {
	ConnectionID string `dynamodbav:"pk"           ddb:"hash"`
	SlideKey     string `dynamodbav:"slide_key"`
	Identity     string `dynamodbav:"identity,omitempty"`
	ConnectedAt  int64  `dynamodbav:"connected_at"`
	TTL          int64  `dynamodbav:"ttl"`
}
