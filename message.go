package ssehub

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// fieldSep terminates every protocol line. The SSE spec allows bare LF, but
// CRLF is what every intermediary copes with, so that is what we emit.
const fieldSep = "\r\n"

// lineBreaks matches any line break sequence inside field values.
var lineBreaks = regexp.MustCompile(`\r\n|\r|\n`)

// pingMessage is the keep-alive comment frame. Lines starting with a colon
// are ignored by EventSource consumers, so this is safe to broadcast blindly.
// https://www.w3.org/TR/eventsource/#event-stream-interpretation
var pingMessage = []byte(": ping" + fieldSep + fieldSep)

// ErrInvalidRetry is returned when a publish payload carries a retry value
// that is not an integral number of milliseconds.
var ErrInvalidRetry = errors.New("ssehub: retry must be an integer")

// SSEMessage is a message suitable for sending over a Server-Sent Event
// stream.
//
// Note: Channel is not part of the SSE spec, it is merely used internally to
// route a message to the matching subscribers, and is never framed.
type SSEMessage struct {
	ID      string // last-event-id value for the client [optional]
	Event   string // event scope for the message [optional]
	Data    []byte // message payload
	Retry   int    // client reconnection hint in milliseconds, 0 to omit
	Channel string // target channel, empty to broadcast to all subscribers
}

// Format renders the message as a complete wire frame, ready to be sent.
//
// ID and Event must occupy exactly one protocol line each, so any embedded
// line breaks are stripped from them. Data is split on line breaks instead,
// one "data:" line per segment, which lets multi-line payloads round-trip.
// The frame ends with a blank line marking the end of the record.
func (msg SSEMessage) Format() []byte {
	var b bytes.Buffer
	if msg.ID != "" {
		b.WriteString("id: ")
		b.WriteString(lineBreaks.ReplaceAllString(msg.ID, ""))
		b.WriteString(fieldSep)
	}
	if msg.Event != "" {
		b.WriteString("event: ")
		b.WriteString(lineBreaks.ReplaceAllString(msg.Event, ""))
		b.WriteString(fieldSep)
	}
	for _, chunk := range lineBreaks.Split(string(msg.Data), -1) {
		b.WriteString("data: ")
		b.WriteString(chunk)
		b.WriteString(fieldSep)
	}
	if msg.Retry > 0 {
		b.WriteString("retry: ")
		b.WriteString(strconv.Itoa(msg.Retry))
		b.WriteString(fieldSep)
	}
	b.WriteString(fieldSep)
	return b.Bytes()
}

// ParseMessage decodes a JSON publish payload into an SSEMessage.
//
// Expected shape: {"data": "...", "id": "...", "event": "...", "retry": 5,
// "channel": "..."} with everything but data optional. A retry value that is
// not an integral JSON number (a string, a float) fails with ErrInvalidRetry
// rather than being coerced.
func ParseMessage(raw []byte) (SSEMessage, error) {
	var aux struct {
		ID      string          `json:"id"`
		Event   string          `json:"event"`
		Data    string          `json:"data"`
		Retry   json.RawMessage `json:"retry"`
		Channel string          `json:"channel"`
	}
	if err := json.Unmarshal(raw, &aux); err != nil {
		return SSEMessage{}, fmt.Errorf("ssehub: malformed message: %w", err)
	}

	msg := SSEMessage{
		ID:      aux.ID,
		Event:   aux.Event,
		Data:    []byte(aux.Data),
		Channel: aux.Channel,
	}
	if len(aux.Retry) > 0 && string(aux.Retry) != "null" {
		n, err := strconv.Atoi(string(aux.Retry))
		if err != nil {
			return SSEMessage{}, fmt.Errorf("%w: got %s", ErrInvalidRetry, aux.Retry)
		}
		msg.Retry = n
	}
	return msg, nil
}
