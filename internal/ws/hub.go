package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/petadopt-messaging/internal/metrics"
	"github.com/fathima-sithara/petadopt-messaging/internal/models"
)

// PresenceStore records which users have a live connection somewhere in the
// deployment.
type PresenceStore interface {
	SetOnline(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string) error
	Online(ctx context.Context, userID string) (bool, error)
}

// Hub is the registry of live connections, keyed by user id. A user may hold
// several connections (tabs, devices); every one of them receives the user's
// events.
type Hub struct {
	mu    sync.RWMutex
	users map[string]map[*Client]struct{}

	log      *zap.Logger
	metrics  *metrics.Metrics
	presence PresenceStore
	fanout   *RedisFanout
}

type HubOption func(*Hub)

func WithPresence(p PresenceStore) HubOption { return func(h *Hub) { h.presence = p } }

func WithFanout(f *RedisFanout) HubOption { return func(h *Hub) { h.fanout = f } }

func WithMetrics(m *metrics.Metrics) HubOption { return func(h *Hub) { h.metrics = m } }

func NewHub(log *zap.Logger, opts ...HubOption) *Hub {
	h := &Hub{
		users: make(map[string]map[*Client]struct{}),
		log:   log,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Run consumes events published by other instances until ctx is done. It is
// a no-op without a fanout.
func (h *Hub) Run(ctx context.Context) {
	if h.fanout == nil {
		return
	}
	h.fanout.Run(ctx, h.deliver)
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	conns := h.users[c.uid]
	if conns == nil {
		conns = make(map[*Client]struct{})
		h.users[c.uid] = conns
	}
	conns[c] = struct{}{}
	n := len(conns)
	h.mu.Unlock()

	h.metrics.ConnOpened()
	h.touch(c.uid)
	h.log.Info("client connected", zap.String("user_id", c.uid), zap.String("conn_id", c.id), zap.Int("user_conns", n))
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	conns, ok := h.users[c.uid]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := conns[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(conns, c)
	last := len(conns) == 0
	if last {
		delete(h.users, c.uid)
	}
	h.mu.Unlock()

	c.close()
	h.metrics.ConnClosed()
	if last && h.presence != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		if err := h.presence.SetOffline(ctx, c.uid); err != nil {
			h.log.Warn("presence offline failed", zap.String("user_id", c.uid), zap.Error(err))
		}
		cancel()
	}
	h.log.Info("client disconnected", zap.String("user_id", c.uid), zap.String("conn_id", c.id))
}

// touch refreshes the user's presence marker.
func (h *Hub) touch(userID string) {
	if h.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := h.presence.SetOnline(ctx, userID); err != nil {
		h.log.Warn("presence refresh failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// Notify pushes ev to every connection of userID, here and, with a fanout,
// on the other instances. It never blocks on a slow client.
func (h *Hub) Notify(userID string, ev Event) {
	userID = models.NormalizeID(userID)
	b, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("marshal event", zap.Error(err))
		return
	}
	h.deliver(userID, b)
	if h.fanout != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := h.fanout.Publish(ctx, userID, b); err != nil {
			h.log.Warn("fanout publish failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
}

func (h *Hub) deliver(userID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.users[userID] {
		if !c.enqueue(payload) {
			h.metrics.EventDropped()
			h.log.Debug("dropping event for slow client", zap.String("user_id", userID), zap.String("conn_id", c.id))
		}
	}
}

// Connections returns the number of local connections held by userID.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[models.NormalizeID(userID)])
}

// Online reports whether userID is connected anywhere. Without a presence
// store only local connections are known.
func (h *Hub) Online(ctx context.Context, userID string) (bool, error) {
	userID = models.NormalizeID(userID)
	if h.Connections(userID) > 0 {
		return true, nil
	}
	if h.presence == nil {
		return false, nil
	}
	return h.presence.Online(ctx, userID)
}

// Shutdown closes every connection.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	var all []*Client
	for _, conns := range h.users {
		for c := range conns {
			all = append(all, c)
		}
	}
	h.mu.Unlock()
	for _, c := range all {
		h.Unregister(c)
	}
}
