/*
Package ssehub implements a publish/subscribe hub for streaming Server-Sent
Events over HTTP to web browsers.

Messages published to the hub are fanned out to per-subscriber queues and
streamed to each client over its own long-lived connection. Queues are
unbounded, so publishing never blocks on a slow consumer, and a keep-alive
comment frame is broadcast periodically so proxies do not reap idle
connections.

# Channels

Clients may subscribe to a named channel by passing a channel_id query
parameter:

	HTTP GET /events                  // unscoped, receives broadcasts only
	HTTP GET /events?channel_id=jobs  // also receives messages sent to "jobs"

Publishing an SSEMessage with an empty Channel reaches every subscriber
regardless of how it joined. A named channel id is owned by a single
subscriber at a time; attempting to register a second subscription with the
same id is rejected.

# Wire format

Frames are standard EventSource records with CRLF line endings:

	id: 1
	event: msg
	data: hello
	retry: 5

each record terminated by a blank line. Multi-line payloads are split into
one data line per line of payload.
*/
package ssehub
