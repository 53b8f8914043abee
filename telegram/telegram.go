// Package telegram receives the frames decoded by the dongle drivers and
// passes them on: to logs, to a database, to live websocket clients.
package telegram

import (
	"encoding/hex"
	"strings"
	"time"
)

// Telegram is one decoded wM-Bus frame.
type Telegram struct {
	// Source names the device the frame arrived on.
	Source   string
	Received time.Time
	// Payload starts with the wM-Bus length field.
	Payload []byte
}

// Hex returns the payload as upper-case hex.
func (t Telegram) Hex() string {
	return strings.ToUpper(hex.EncodeToString(t.Payload))
}

// Handler consumes decoded telegrams. HandleTelegram is called from the
// serial event loop and must not block for long.
type Handler interface {
	HandleTelegram(t Telegram)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(t Telegram)

func (f HandlerFunc) HandleTelegram(t Telegram) { f(t) }

// Multi hands every telegram to each of its handlers in order.
type Multi []Handler

func (m Multi) HandleTelegram(t Telegram) {
	for _, h := range m {
		if h != nil {
			h.HandleTelegram(t)
		}
	}
}

// Discard drops every telegram.
var Discard Handler = HandlerFunc(func(Telegram) {})
