package ssehub

import (
	"fmt"
	"os"
	"sort"
	"sync/atomic"
	"time"
)

// ReportingStatus is a snapshot of metadata about the status of a Server.
//
// It can be serialized to JSON and is what gets reported to the admin API
// endpoint.
type ReportingStatus struct {
	Node        string             `json:"node"`
	Status      string             `json:"status"`
	Reported    int64              `json:"reported_at"`
	StartupTime int64              `json:"startup_time"`
	SentMsgs    uint64             `json:"msgs_broadcast"`
	Subscribers int                `json:"subscribers"`
	Connections []ConnectionStatus `json:"connections"`
}

// ConnectionStatus describes a single live subscription.
type ConnectionStatus struct {
	Path      string `json:"request_path"`
	Channel   string `json:"channel"`
	Created   int64  `json:"created_at"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent"`
	MsgsSent  uint64 `json:"msgs_sent"`
}

// Status returns a snapshot of status metadata for the Server.
//
// Primarily intended for logging and reporting.
func (s *Server) Status() ReportingStatus {
	p := s.pubsub

	p.mu.RLock()
	cl := make([]ConnectionStatus, 0, len(p.subs))
	for _, sub := range p.subs {
		cl = append(cl, ConnectionStatus{
			Path:      sub.path,
			Channel:   sub.channel,
			Created:   sub.created.Unix(),
			ClientIP:  sub.clientIP,
			UserAgent: sub.userAgent,
			MsgsSent:  sub.sent.Load(),
		})
	}
	p.mu.RUnlock()

	// sort by age of connection
	sort.Slice(cl, func(i, j int) bool {
		return cl[i].Created < cl[j].Created
	})

	return ReportingStatus{
		Node:        fmt.Sprintf("%s-%s-%s", platform(), env(), nodeName()),
		Status:      "OK",
		Reported:    time.Now().Unix(),
		StartupTime: p.startupTime.Unix(),
		SentMsgs:    atomic.LoadUint64(&p.sent),
		Subscribers: len(cl),
		Connections: cl,
	}
}

// The name of the platform we are running on. For now this is just "go", and
// is more or less a legacy from when there were other implementations of
// this server.
func platform() string {
	return "go"
}

// Attempts to intelligently get the name of the node we are running on.
//
// First checks for a Heroku $DYNO variable (e.g. `web.2` etc), if that isn't
// found will default to the local hostname.
func nodeName() string {
	if dyno := os.Getenv("DYNO"); dyno != "" {
		return dyno
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "unknown.X"
}

// A string representing the environment (dev/staging/prod), for reporting.
func env() string {
	if env := os.Getenv("GO_ENV"); env != "" {
		return env
	}
	return "development"
}
