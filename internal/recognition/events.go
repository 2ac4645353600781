package recognition

import "encoding/json"

// Event is a provider message parsed into a closed tagged set at the channel
// boundary so downstream logic stays exhaustive.
type Event interface {
	// Type returns the provider message type tag
	Type() string
}

// SessionStarted is emitted once by the provider when the session is live
type SessionStarted struct {
	ModelID string
}

// Partial is an in-progress transcript for the current utterance, replaced
// wholesale by each newer partial
type Partial struct {
	Text string
}

// Committed is a finalized transcript fragment
type Committed struct {
	Text string
}

// AuthError is the provider rejecting the session credentials
type AuthError struct {
	Reason string
}

// Unknown is any provider message the gateway does not act on
type Unknown struct {
	MessageType string
}

func (SessionStarted) Type() string { return "session_started" }
func (Partial) Type() string        { return "partial_transcript" }
func (Committed) Type() string      { return "committed_transcript" }
func (AuthError) Type() string      { return "auth_error" }
func (e Unknown) Type() string      { return e.MessageType }

// wireEvent is the raw provider message shape
type wireEvent struct {
	MessageType string `json:"message_type"`
	Text        string `json:"text"`
	Error       string `json:"error"`
	Config      struct {
		ModelID string `json:"model_id"`
	} `json:"config"`
}

// parseEvent maps a raw provider payload onto the tagged event set
func parseEvent(data []byte) Event {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return Unknown{MessageType: "unparseable"}
	}

	switch w.MessageType {
	case "session_started":
		return SessionStarted{ModelID: w.Config.ModelID}
	case "partial_transcript":
		return Partial{Text: w.Text}
	case "committed_transcript":
		return Committed{Text: w.Text}
	case "auth_error":
		return AuthError{Reason: w.Error}
	default:
		return Unknown{MessageType: w.MessageType}
	}
}
