package ws

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_EnqueueNeverBlocks(t *testing.T) {
	ft := newFakeTransport()
	c := newClient(ft, 1)

	require.NoError(t, c.enqueue([]byte("one")))
	assert.True(t, errors.Is(c.enqueue([]byte("two")), ErrSendBufferFull))

	c.close()
	assert.True(t, errors.Is(c.enqueue([]byte("three")), ErrClientClosed))
	assert.True(t, errors.Is(c.ping(), ErrClientClosed))
	assert.True(t, ft.isClosed())
}

func TestWritePump_ReportsWriteError(t *testing.T) {
	ft := newFakeTransport()
	ft.failWrite.Store(true)

	errCh := make(chan error, 1)
	c := newClient(ft, 4)
	c.onWriteError = func(err error) { errCh <- err }
	c.start()

	require.NoError(t, c.enqueue([]byte("hello")))

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, errBrokenPipe)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for write error")
	}
	require.Eventually(t, ft.isClosed, time.Second, 10*time.Millisecond)
}

func TestWritePump_DeliversInOrder(t *testing.T) {
	ft := newFakeTransport()
	c := newClient(ft, 8)
	c.start()
	defer c.close()

	for _, m := range []string{"a", "b", "c"} {
		require.NoError(t, c.enqueue([]byte(m)))
	}
	for _, want := range []string{"a", "b", "c"} {
		select {
		case got := <-ft.frames:
			assert.Equal(t, want, string(got))
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}
