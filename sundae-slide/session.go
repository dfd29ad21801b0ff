package sundaeslide

import "time"

// Session is the attachment persisted on each connection. It survives
// coordinator hibernation because it lives on the Conn, not the Slide.
type Session struct {
	Identity    string    `json:"identity,omitempty"`
	ConnectedAt time.Time `json:"connectedAt"`
}
