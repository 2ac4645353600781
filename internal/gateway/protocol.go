// Package gateway runs the per-connection voice protocol: audio ingress,
// live captions, turn-taking and interruption.
package gateway

import (
	"encoding/base64"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
)

// ServerMessage is the outbound client protocol. Type is one of transcript,
// partial, audio, text or interrupt.
type ServerMessage struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Audio string `json:"audio,omitempty"`
}

const (
	messageTranscript = "transcript"
	messagePartial    = "partial"
	messageAudio      = "audio"
	messageText       = "text"
	messageInterrupt  = "interrupt"
)

// clientControl is the only structured inbound text frame
type clientControl struct {
	Type string `json:"type"`
}

// parseControl reports whether a text frame is a control message
func parseControl(data []byte) (clientControl, bool) {
	var ctl clientControl
	if err := json.Unmarshal(data, &ctl); err != nil || ctl.Type == "" {
		return clientControl{}, false
	}
	return ctl, true
}

// Sender delivers protocol messages to the client
type Sender interface {
	Send(msg ServerMessage) error
}

// connWriter serializes all writes to the client socket. gorilla/websocket
// allows only one concurrent writer and both the event consumer and turn
// tasks send messages.
type connWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newConnWriter(conn *websocket.Conn) *connWriter {
	return &connWriter{conn: conn}
}

func (w *connWriter) Send(msg ServerMessage) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(msg)
}

func (w *connWriter) writeClose(code int, reason string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason))
}

func partialMessage(text string) ServerMessage {
	return ServerMessage{Type: messagePartial, Text: text}
}

func transcriptMessage(text string) ServerMessage {
	return ServerMessage{Type: messageTranscript, Text: text}
}

func audioMessage(audio []byte, text string) ServerMessage {
	return ServerMessage{
		Type:  messageAudio,
		Audio: base64.StdEncoding.EncodeToString(audio),
		Text:  text,
	}
}

func textMessage(text string) ServerMessage {
	return ServerMessage{Type: messageText, Text: text}
}

func interruptMessage() ServerMessage {
	return ServerMessage{Type: messageInterrupt}
}
