package ssehub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/azer/debug"
	"github.com/google/uuid"
)

var (
	// ErrQueueClosed signals an orderly end of a subscription. It is the
	// normal terminal condition of a stream loop, not a fault.
	ErrQueueClosed = errors.New("ssehub: subscription closed")

	// ErrChannelTaken is returned when registering an explicit channel id
	// that is already the identity of a live subscriber.
	ErrChannelTaken = errors.New("ssehub: channel id already registered")
)

// subscriber pairs a delivery queue with the identity it was registered
// under, plus per-connection bookkeeping for status reporting.
type subscriber struct {
	id      string
	channel string // "" when registered without an explicit channel
	queue   *queue
	created time.Time
	sent    atomic.Uint64 // frames flushed to this subscriber's connection

	// connection metadata, set once by the stream loop before streaming
	path      string
	clientIP  string
	userAgent string
}

// A PubSub tracks every active subscription and fans published frames out to
// the matching delivery queues.
//
// Every subscriber is indexed in the global set regardless of how it joined,
// so a publish with no channel reaches everyone. A subscriber that named a
// channel additionally appears in that channel's bucket; the channel id
// doubles as its subscriber id, and a second registration of a live id fails
// with ErrChannelTaken. Generated ids act as implicit personal channels:
// publishing to one reaches exactly that subscriber.
type PubSub struct {
	mu       sync.RWMutex
	subs     map[string]*subscriber            // every live subscriber
	channels map[string]map[string]*subscriber // named channel -> members

	sent        uint64 // publish calls since startup, for reporting
	startupTime time.Time
}

// NewPubSub returns an empty registry, ready for use.
func NewPubSub() *PubSub {
	return &PubSub{
		subs:        make(map[string]*subscriber),
		channels:    make(map[string]map[string]*subscriber),
		startupTime: time.Now(),
	}
}

// Register creates a subscription and returns its subscriber id.
//
// With an empty channelID a fresh unique id is generated. An explicit
// channelID becomes the subscriber id itself, and fails with ErrChannelTaken
// if it is already live.
func (p *PubSub) Register(channelID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := channelID
	if id == "" {
		id = uuid.NewString()
	}
	if _, taken := p.subs[id]; taken {
		return "", fmt.Errorf("%w: %q", ErrChannelTaken, id)
	}

	sub := &subscriber{
		id:      id,
		channel: channelID,
		queue:   newQueue(),
		created: time.Now(),
	}
	p.subs[id] = sub
	if channelID != "" {
		members := p.channels[channelID]
		if members == nil {
			members = make(map[string]*subscriber)
			p.channels[channelID] = members
		}
		members[id] = sub
	}
	debug.Debug("registered subscriber " + id)
	return id, nil
}

// Unregister removes a subscription, reporting whether it was present.
//
// Absent ids are a no-op returning false, never an error: the stream loop's
// deferred cleanup and the stop-sentinel path may both race to remove the
// same subscription. A channel bucket left empty is dropped entirely.
func (p *PubSub) Unregister(subscriberID, channelID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.subs[subscriberID]; !ok {
		return false
	}
	delete(p.subs, subscriberID)
	if channelID != "" {
		if members, ok := p.channels[channelID]; ok {
			delete(members, subscriberID)
			if len(members) == 0 {
				delete(p.channels, channelID)
			}
		}
	}
	debug.Debug("unregistered subscriber " + subscriberID)
	return true
}

// Publish enqueues frame into every queue registered under channelID, or
// into every queue process-wide if channelID is empty. It never blocks on a
// consumer and returns the number of subscribers the frame was enqueued for.
//
// Fan-out walks a snapshot of the target set taken at call time; a
// subscriber removed after the snapshot simply drops the frame with its
// queue.
func (p *PubSub) Publish(frame []byte, channelID string) int {
	targets := p.snapshot(channelID)
	for _, sub := range targets {
		sub.queue.push(frame)
	}
	atomic.AddUint64(&p.sent, 1)
	return len(targets)
}

func (p *PubSub) snapshot(channelID string) []*subscriber {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if channelID == "" {
		targets := make([]*subscriber, 0, len(p.subs))
		for _, sub := range p.subs {
			targets = append(targets, sub)
		}
		return targets
	}
	if members, ok := p.channels[channelID]; ok {
		targets := make([]*subscriber, 0, len(members))
		for _, sub := range members {
			targets = append(targets, sub)
		}
		return targets
	}
	// implicit personal channel: a generated id targets its own subscriber
	if sub, ok := p.subs[channelID]; ok {
		return []*subscriber{sub}
	}
	return nil
}

// Get blocks until the next frame for subscriberID is available and returns
// it. On the stop sentinel it removes the subscription and reports
// ErrQueueClosed. An unknown id reports ErrQueueClosed as well, since by
// then the subscription has already been torn down.
//
// Get honors ctx cancellation; this is the stream loop's only blocking
// point, so cancelling the connection's context is enough to break it out.
func (p *PubSub) Get(ctx context.Context, subscriberID string) ([]byte, error) {
	p.mu.RLock()
	sub, ok := p.subs[subscriberID]
	p.mu.RUnlock()
	if !ok {
		return nil, ErrQueueClosed
	}

	it, err := sub.queue.pop(ctx)
	if err != nil {
		return nil, err
	}
	if it.stop {
		p.Unregister(subscriberID, sub.channel)
		return nil, ErrQueueClosed
	}
	return it.frame, nil
}

// Close delivers the stop sentinel to every current subscriber. Each stream
// loop terminates on its next Get; the subscriptions remove themselves as
// the sentinels are consumed.
func (p *PubSub) Close() {
	for _, sub := range p.snapshot("") {
		sub.queue.pushStop()
	}
	debug.Debug("close broadcast to all subscribers")
}

// Size reports the number of live subscribers.
func (p *PubSub) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subs)
}

// describe attaches connection metadata to a live subscriber, for status
// reporting. Taken under the write lock so Status never observes a torn set.
func (p *PubSub) describe(id, path, clientIP, userAgent string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sub, ok := p.subs[id]; ok {
		sub.path = path
		sub.clientIP = clientIP
		sub.userAgent = userAgent
	}
}

// lookup returns the live subscriber for id, or nil.
func (p *PubSub) lookup(id string) *subscriber {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.subs[id]
}
