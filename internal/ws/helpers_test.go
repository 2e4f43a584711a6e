package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/visitorpulse/pulse/internal/alert"
	"github.com/visitorpulse/pulse/internal/session"
)

var errBrokenPipe = errors.New("broken pipe")

// fakeTransport records frames instead of writing them to a socket.
type fakeTransport struct {
	frames    chan []byte
	pings     atomic.Int32
	failWrite atomic.Bool

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		frames: make(chan []byte, 1024),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) WriteMessage(data []byte) error {
	if f.failWrite.Load() {
		return errBrokenPipe
	}
	f.frames <- append([]byte(nil), data...)
	return nil
}

func (f *fakeTransport) Ping() error {
	f.pings.Add(1)
	return nil
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

// waitFor returns the next frame of type want, skipping others.
func (f *fakeTransport) waitFor(t *testing.T, want MessageType) inboundMessage {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case data := <-f.frames:
			var msg inboundMessage
			require.NoError(t, json.Unmarshal(data, &msg))
			if msg.Type == want {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
			return inboundMessage{}
		}
	}
}

// expect reads until one frame of each wanted type has arrived, in any order.
func (f *fakeTransport) expect(t *testing.T, want ...MessageType) map[MessageType]inboundMessage {
	t.Helper()
	got := make(map[MessageType]inboundMessage)
	deadline := time.After(2 * time.Second)
	for len(got) < len(want) {
		select {
		case data := <-f.frames:
			var msg inboundMessage
			require.NoError(t, json.Unmarshal(data, &msg))
			for _, w := range want {
				if msg.Type == w {
					if _, seen := got[w]; !seen {
						got[w] = msg
					}
				}
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %v, got %d", want, len(got))
			return got
		}
	}
	return got
}

// collect gathers every frame of type want that arrives within d.
func (f *fakeTransport) collect(t *testing.T, want MessageType, d time.Duration) []inboundMessage {
	t.Helper()
	var got []inboundMessage
	deadline := time.After(d)
	for {
		select {
		case data := <-f.frames:
			var msg inboundMessage
			require.NoError(t, json.Unmarshal(data, &msg))
			if msg.Type == want {
				got = append(got, msg)
			}
		case <-deadline:
			return got
		}
	}
}

func decode[T any](t *testing.T, msg inboundMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(msg.Data, &v))
	return v
}

var testNoon = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestHub(t *testing.T, opts Options) (*Hub, *session.Aggregator) {
	t.Helper()
	agg := session.NewAggregator(session.WithClock(func() time.Time { return testNoon }))
	h := NewHub(agg, alert.NewEngine(alert.DefaultThresholds, alert.PolicyOnce), opts)
	t.Cleanup(h.Close)
	return h, agg
}

func connect(t *testing.T, h *Hub) (string, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	id, err := h.Connect(ft)
	require.NoError(t, err)
	ft.waitFor(t, MsgUserConnected)
	return id, ft
}

func recordAndBroadcast(t *testing.T, h *Hub, agg *session.Aggregator, e session.VisitorEvent) {
	t.Helper()
	r, err := agg.Record(e)
	require.NoError(t, err)
	h.BroadcastVisitorUpdate(r)
	h.BroadcastSessionActivity(r.Session)
}
