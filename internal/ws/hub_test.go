package ws

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memPresence struct {
	mu     sync.Mutex
	online map[string]bool
}

func newMemPresence() *memPresence { return &memPresence{online: map[string]bool{}} }

func (p *memPresence) SetOnline(_ context.Context, uid string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online[uid] = true
	return nil
}

func (p *memPresence) SetOffline(_ context.Context, uid string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.online, uid)
	return nil
}

func (p *memPresence) Online(_ context.Context, uid string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online[uid], nil
}

// testClient builds a client without a socket; tests read its send channel.
func testClient(h *Hub, uid string, buf int) *Client {
	return NewClient(nil, uid, h, Config{SendBuffer: buf})
}

func recv(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case b := <-c.send:
		var ev Event
		require.NoError(t, json.Unmarshal(b, &ev))
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
		return Event{}
	}
}

func TestNotifyReachesEveryConnectionOfUser(t *testing.T) {
	h := NewHub(zap.NewNop())
	a1, a2 := testClient(h, "a", 4), testClient(h, "a", 4)
	b := testClient(h, "b", 4)
	h.Register(a1)
	h.Register(a2)
	h.Register(b)

	h.Notify("A", NewEvent(EventActivity, "c1", "m1", time.Unix(100, 0)))

	for _, c := range []*Client{a1, a2} {
		ev := recv(t, c)
		assert.Equal(t, EventActivity, ev.Type)
		assert.Equal(t, "c1", ev.ConversationID)
		assert.Equal(t, "m1", ev.MessageID)
		assert.Equal(t, int64(100), ev.At)
	}
	assert.Len(t, b.send, 0)
}

func TestNotifyDropsForFullBuffer(t *testing.T) {
	h := NewHub(zap.NewNop())
	c := testClient(h, "a", 1)
	h.Register(c)

	h.Notify("a", NewEvent(EventActivity, "c1", "", time.Now()))
	h.Notify("a", NewEvent(EventActivity, "c2", "", time.Now()))

	assert.Equal(t, "c1", recv(t, c).ConversationID)
	assert.Len(t, c.send, 0)
	assert.Equal(t, 1, h.Connections("a"), "slow client stays registered")
}

func TestNotifyOfflineUserIsNoop(t *testing.T) {
	h := NewHub(zap.NewNop())
	h.Notify("ghost", NewEvent(EventRead, "c1", "", time.Now()))
	assert.Equal(t, 0, h.Connections("ghost"))
}

func TestUnregisterTracksPresence(t *testing.T) {
	p := newMemPresence()
	h := NewHub(zap.NewNop(), WithPresence(p))
	c1, c2 := testClient(h, "a", 1), testClient(h, "a", 1)
	h.Register(c1)
	h.Register(c2)

	online, err := h.Online(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, online)

	h.Unregister(c1)
	assert.True(t, p.online["a"], "user still has a connection")
	h.Unregister(c1)
	assert.Equal(t, 1, h.Connections("a"))

	h.Unregister(c2)
	assert.False(t, p.online["a"])
	online, err = h.Online(context.Background(), "a")
	require.NoError(t, err)
	assert.False(t, online)

	_, open := <-c2.send
	assert.False(t, open, "send channel closed on unregister")
	assert.False(t, c2.enqueue([]byte("x")))
}

func TestShutdownClosesAll(t *testing.T) {
	h := NewHub(zap.NewNop())
	h.Register(testClient(h, "a", 1))
	h.Register(testClient(h, "b", 1))
	h.Shutdown()
	assert.Equal(t, 0, h.Connections("a"))
	assert.Equal(t, 0, h.Connections("b"))
}
