package ssehub

import (
	"errors"
	"testing"
)

var messageTests = []struct {
	msg         SSEMessage
	expected    []byte
	description string
}{
	{
		SSEMessage{Data: []byte("foobar")},
		[]byte("data: foobar\r\n\r\n"),
		"DataFieldOnly",
	},
	{
		SSEMessage{Event: "e12", Data: []byte("foobar")},
		[]byte("event: e12\r\ndata: foobar\r\n\r\n"),
		"Event+DataField",
	},
	{
		SSEMessage{ID: "1", Event: "msg", Data: []byte("hello"), Retry: 5},
		[]byte("id: 1\r\nevent: msg\r\ndata: hello\r\nretry: 5\r\n\r\n"),
		"AllFields",
	},
	{
		SSEMessage{Data: []byte("line1\nline2\r\nline3\rline4")},
		[]byte("data: line1\r\ndata: line2\r\ndata: line3\r\ndata: line4\r\n\r\n"),
		"MultilineData",
	},
	{
		SSEMessage{ID: "a\nb", Event: "x\r\ny", Data: []byte("ok")},
		[]byte("id: ab\r\nevent: xy\r\ndata: ok\r\n\r\n"),
		"LineBreaksStrippedFromIDAndEvent",
	},
	{
		SSEMessage{Data: []byte("")},
		[]byte("data: \r\n\r\n"),
		"EmptyData",
	},
	{
		SSEMessage{Data: []byte("foobar"), Channel: "jobs"},
		[]byte("data: foobar\r\n\r\n"),
		"ChannelNeverFramed",
	},
}

func TestFormat(t *testing.T) {
	for _, test := range messageTests {
		observed := test.msg.Format()
		if string(observed) != string(test.expected) {
			t.Errorf("%s: expected: %q, actual: %q",
				test.description, test.expected, observed)
		}
	}
}

func TestParseMessage(t *testing.T) {
	msg, err := ParseMessage([]byte(`{"data": "hello", "id": "1", "event": "msg", "retry": 5, "channel": "jobs"}`))
	if err != nil {
		t.Fatal(err)
	}
	want := SSEMessage{ID: "1", Event: "msg", Data: []byte("hello"), Retry: 5, Channel: "jobs"}
	if string(msg.Data) != string(want.Data) || msg.ID != want.ID ||
		msg.Event != want.Event || msg.Retry != want.Retry || msg.Channel != want.Channel {
		t.Errorf("got %+v want %+v", msg, want)
	}
}

func TestParseMessageRetryValidation(t *testing.T) {
	var testcases = []struct {
		name string
		body string
	}{
		{"string", `{"data": "x", "retry": "5"}`},
		{"float", `{"data": "x", "retry": 5.5}`},
		{"bool", `{"data": "x", "retry": true}`},
	}
	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseMessage([]byte(tc.body))
			if !errors.Is(err, ErrInvalidRetry) {
				t.Errorf("expected ErrInvalidRetry, got %v", err)
			}
		})
	}

	// absent and null retry are fine
	for _, body := range []string{`{"data": "x"}`, `{"data": "x", "retry": null}`} {
		msg, err := ParseMessage([]byte(body))
		if err != nil {
			t.Errorf("unexpected error for %s: %v", body, err)
		}
		if msg.Retry != 0 {
			t.Errorf("expected zero retry for %s, got %d", body, msg.Retry)
		}
	}
}

func BenchmarkFormat(b *testing.B) {
	for _, test := range messageTests {
		b.Run(test.description, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				test.msg.Format()
			}
		})
	}
}
