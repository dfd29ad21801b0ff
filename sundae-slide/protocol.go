package sundaeslide

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/SundaeSwap-finance/sundae-slides/sundae-slide/feedbackdao"
)

const (
	ScopeBroadcast = "broadcast"

	KindReaction      = "reaction"
	KindSlidePosition = "slide-position-update"
	KindConnected     = "connected"
	KindError         = "error"
)

// error frame codes
const (
	CodeMalformedMessage    = "malformed_message"
	CodeFeedbackUnavailable = "feedback_unavailable"
)

var (
	ErrMalformedMessage = errors.New("malformed message")
	ErrUnknownCategory  = feedbackdao.ErrUnknownCategory
)

// SlideNumber is a client chosen slide identifier. It is accepted on the wire
// as either a JSON number or a numeric string.
type SlideNumber int64

func (n *SlideNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(strings.TrimSpace(s))
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid slide number %s", data)
	}
	*n = SlideNumber(v)
	return nil
}

// Message is an inbound frame. Fields the server does not interpret are kept
// so relayed copies carry the original payload.
type Message struct {
	Scope string
	Kind  string

	fields map[string]json.RawMessage
}

// Reaction holds the fields of a validated reaction message.
type Reaction struct {
	SlideNumber SlideNumber
	SlideTitle  string
	Category    feedbackdao.Category
}

// ParseMessage decodes an inbound frame. Anything other than a JSON object is
// rejected with ErrMalformedMessage.
func ParseMessage(data []byte) (*Message, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: payload is not an object", ErrMalformedMessage)
	}

	return &Message{
		Scope:  stringField(fields, "scope"),
		Kind:   stringField(fields, "kind"),
		fields: fields,
	}, nil
}

// Reaction extracts and validates the reaction fields of the message.
func (m *Message) Reaction() (Reaction, error) {
	var r Reaction

	raw, ok := m.fields["slideNumber"]
	if !ok {
		return Reaction{}, fmt.Errorf("%w: missing slideNumber", ErrMalformedMessage)
	}
	if err := json.Unmarshal(raw, &r.SlideNumber); err != nil {
		return Reaction{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	r.SlideTitle = stringField(m.fields, "slideTitle")

	tag := stringField(m.fields, "category")
	category, ok := feedbackdao.ParseCategory(tag)
	if !ok {
		return Reaction{}, fmt.Errorf("%w: %q", ErrUnknownCategory, tag)
	}
	r.Category = category

	return r, nil
}

// Relay returns the original payload with identity set to the sender's
// identity.
func (m *Message) Relay(identity string) ([]byte, error) {
	out := make(map[string]json.RawMessage, len(m.fields)+1)
	for k, v := range m.fields {
		out[k] = v
	}

	id, err := json.Marshal(identity)
	if err != nil {
		return nil, err
	}
	out["identity"] = id

	return json.Marshal(out)
}

func stringField(fields map[string]json.RawMessage, name string) string {
	raw, ok := fields[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

type connectedMessage struct {
	Kind     string `json:"kind"`
	Identity string `json:"identity"`
}

type errorMessage struct {
	Kind    string `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ConnectedMessage returns the acknowledgment sent to a connection when it is
// assigned an identity.
func ConnectedMessage(identity string) []byte {
	b, _ := json.Marshal(connectedMessage{Kind: KindConnected, Identity: identity})
	return b
}

// ErrorMessage returns an error frame.
func ErrorMessage(code, message string) []byte {
	b, _ := json.Marshal(errorMessage{Kind: KindError, Code: code, Message: message})
	return b
}
