package ssehub

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultPingInterval is how often the keep-alive comment frame is broadcast
// when not overridden with WithPingInterval.
const DefaultPingInterval = 15 * time.Second

// broadcastBufSize is the buffer of the public Broadcast channel. Sends are
// drained continuously by a background goroutine, the buffer only absorbs
// bursts so producers are effectively never blocked.
const broadcastBufSize = 64

// Server is the primary interface to an SSE pub/sub hub.
//
// It owns a PubSub registry and the keep-alive ticker, and implements
// http.Handler for subscription requests, so it can be chained into existing
// HTTP routing muxes. Clients pick a channel via the channel_id query
// parameter; without one they receive only unscoped broadcasts.
//
// Exposes a receive-only chan Broadcast as the non-blocking publish variant:
// any SSEMessage sent to it is fanned out by a background goroutine. Start
// must have been called for Broadcast and the keep-alive ticker to be live.
type Server struct {
	Broadcast chan<- SSEMessage

	pubsub    *PubSub
	conf      serverConfig
	logger    zerolog.Logger
	broadcast chan SSEMessage
	done      chan struct{}
	wg        sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

// serverConfig defines configurable options that can be customized for a Server.
type serverConfig struct {
	pingInterval    time.Duration
	corsAllowOrigin string
	beforeRequest   func(*http.Request) error
	channelID       func(*http.Request) string
	disableAdmin    bool
}

// NewServer creates a new Server with optional ServerOptions for
// configuration. The returned server is inert until Start is called.
func NewServer(opts ...ServerOption) (*Server, error) {
	broadcast := make(chan SSEMessage, broadcastBufSize)
	s := &Server{
		Broadcast: broadcast,
		broadcast: broadcast,
		pubsub:    NewPubSub(),
		logger:    zerolog.Nop(),
		done:      make(chan struct{}),
		conf: serverConfig{
			pingInterval: DefaultPingInterval,
			channelID: func(r *http.Request) string {
				return r.URL.Query().Get("channel_id")
			},
		},
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// ServerOption defines a high-level user option that can be customized.
type ServerOption func(s *Server) error

// WithPingInterval sets the keep-alive broadcast interval.
func WithPingInterval(d time.Duration) ServerOption {
	return func(s *Server) error {
		if d <= 0 {
			return fmt.Errorf("ssehub: ping interval must be positive, got %v", d)
		}
		s.conf.pingInterval = d
		return nil
	}
}

// WithCORSAllowOrigin sets the Access-Control-Allow-Origin header value to
// origin. If set to the zero value (""), the header will not be sent.
//
// If you want to allow connections from browsers at any origin, set to "*".
//
// See https://developer.mozilla.org/en-US/docs/Web/HTTP/Headers/Access-Control-Allow-Origin.
func WithCORSAllowOrigin(origin string) ServerOption {
	return func(s *Server) error {
		s.conf.corsAllowOrigin = origin
		return nil
	}
}

// WithBeforeRequest installs a hook that runs before each subscription is
// registered, typically for authorization. A non-nil error from the hook
// rejects the request before any registry entry exists.
func WithBeforeRequest(hook func(*http.Request) error) ServerOption {
	return func(s *Server) error {
		if hook == nil {
			return errors.New("ssehub: before-request hook must not be nil")
		}
		s.conf.beforeRequest = hook
		return nil
	}
}

// WithChannelExtractor overrides how a subscription request names its
// channel. The returned value is treated as an opaque channel id; empty
// means unscoped. The default reads the channel_id query parameter.
func WithChannelExtractor(fn func(*http.Request) string) ServerOption {
	return func(s *Server) error {
		if fn == nil {
			return errors.New("ssehub: channel extractor must not be nil")
		}
		s.conf.channelID = fn
		return nil
	}
}

// WithLogger routes connection and lifecycle logs to logger. The default is
// a no-op logger, keeping the library silent unless asked.
func WithLogger(logger zerolog.Logger) ServerOption {
	return func(s *Server) error {
		s.logger = logger
		return nil
	}
}

// WithoutAdminEndpoints disables the admin HTTP endpoints.
func WithoutAdminEndpoints() ServerOption {
	return func(s *Server) error {
		s.conf.disableAdmin = true
		return nil
	}
}

// Start spawns the keep-alive ticker and the Broadcast channel consumer.
// Safe to call once; subsequent calls are no-ops.
func (s *Server) Start() {
	s.startOnce.Do(func() {
		s.wg.Add(2)
		go s.pingLoop()
		go s.broadcastLoop()
		s.logger.Info().Dur("ping_interval", s.conf.pingInterval).Msg("ssehub started")
	})
}

// Shutdown stops the background goroutines, waits for them to exit, and then
// closes the registry, terminating every active stream. The ticker is joined
// before the close broadcast so a late tick cannot race the shutdown
// sentinels. Safe to call multiple times.
func (s *Server) Shutdown() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		s.pubsub.Close()
		s.logger.Info().Msg("ssehub stopped")
	})
}

// pingLoop periodically broadcasts the keep-alive comment frame to all
// subscribers so intermediary proxies and clients do not time out idle
// connections.
func (s *Server) pingLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.conf.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.pubsub.Publish(pingMessage, "")
		case <-s.done:
			return
		}
	}
}

// broadcastLoop drains the public Broadcast channel into the registry.
func (s *Server) broadcastLoop() {
	defer s.wg.Done()
	for {
		select {
		case msg := <-s.broadcast:
			s.Publish(msg)
		case <-s.done:
			return
		}
	}
}

// Publish formats msg and fans it out to the subscribers matching
// msg.Channel (all of them when empty). It never blocks on a consumer and
// returns the number of subscribers reached.
func (s *Server) Publish(msg SSEMessage) int {
	return s.pubsub.Publish(msg.Format(), msg.Channel)
}

// Registry exposes the underlying PubSub for collaborators that manage
// subscriptions themselves instead of going through ServeHTTP.
func (s *Server) Registry() *PubSub {
	return s.pubsub
}

// AdminEndpointsDisabled reports whether the admin endpoints were disabled
// at construction.
func (s *Server) AdminEndpointsDisabled() bool {
	return s.conf.disableAdmin
}

// ServeHTTP implements the http.Handler interface for subscription requests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	connectionHandler{server: s}.ServeHTTP(w, r)
}

// PublishHandler returns an http.Handler accepting POST requests whose JSON
// body is an SSEMessage publish payload (see ParseMessage). Malformed bodies
// and non-integer retry values are rejected with 400.
func (s *Server) PublishHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "405 method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "400 bad request", http.StatusBadRequest)
			return
		}
		msg, err := ParseMessage(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.Publish(msg)
		w.WriteHeader(http.StatusAccepted)
	})
}
