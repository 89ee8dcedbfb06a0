package ssehub

import (
	"errors"
	"net/http"

	"github.com/azer/debug"
)

// A connectionHandler is an http.Handler that turns each incoming request
// into a subscription and streams its queue until it closes.
type connectionHandler struct {
	server *Server
}

func (ch connectionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s := ch.server

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// the pre-subscription hook gates registration; a failure here must
	// leave no connection open and no registry entry behind
	if hook := s.conf.beforeRequest; hook != nil {
		if err := hook(r); err != nil {
			s.logger.Warn().Err(err).Str("remote", r.RemoteAddr).
				Msg("subscription rejected by before-request hook")
			http.Error(w, "401 unauthorized", http.StatusUnauthorized)
			return
		}
	}

	channelID := s.conf.channelID(r)
	id, err := s.pubsub.Register(channelID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	// this must run on every exit path: a leaked entry means future
	// publishes enqueue into a queue nobody will ever drain
	defer s.pubsub.Unregister(id, channelID)

	// override RemoteAddr to trust proxy IP headers if they exist
	// pattern taken from http://git.io/xDD3Mw
	ip := r.Header.Get("X-Real-IP")
	if ip == "" {
		ip = r.Header.Get("X-Forwarded-For")
	}
	if ip != "" {
		r.RemoteAddr = ip
	}

	s.pubsub.describe(id, r.URL.Path, r.RemoteAddr, r.UserAgent())

	headers := w.Header()
	if origin := s.conf.corsAllowOrigin; origin != "" {
		headers.Set("Access-Control-Allow-Origin", origin)
	}
	headers.Set("Content-Type", "text/event-stream; charset=utf-8")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	flusher.Flush() // commit headers now so the client sees the stream open

	s.logger.Info().Str("subscriber", id).Str("channel", channelID).
		Str("remote", r.RemoteAddr).Msg("connect")
	defer s.logger.Info().Str("subscriber", id).Str("channel", channelID).
		Str("remote", r.RemoteAddr).Msg("disconnect")

	ch.stream(w, r, flusher, id)
}

// stream is the per-connection consumer loop. It exits on the stop sentinel,
// on request-context cancellation, or on the first failed write; the caller
// owns cleanup.
func (ch connectionHandler) stream(w http.ResponseWriter, r *http.Request, flusher http.Flusher, id string) {
	s := ch.server
	sub := s.pubsub.lookup(id)
	for {
		frame, err := s.pubsub.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) {
				debug.Debug("queue closed, shutting down conn " + id)
			}
			return
		}
		if _, err := w.Write(frame); err != nil {
			debug.Debug("error writing frame to client, closing " + id)
			return
		}
		flusher.Flush()
		if sub != nil {
			sub.sent.Add(1)
		}
	}
}
