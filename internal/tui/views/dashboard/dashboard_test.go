package dashboard

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/visitorpulse/pulse/internal/client"
)

func TestTop(t *testing.T) {
	counts := map[string]int{"/a": 1, "/b": 5, "/c": 5, "/d": 2}

	assert.Equal(t, []Entry{{"/b", 5}, {"/c", 5}, {"/d", 2}}, Top(counts, 3))
	assert.Len(t, Top(counts, 10), 4)
	assert.Empty(t, Top(nil, 5))
}

func TestFormatDuration(t *testing.T) {
	tests := map[int64]string{
		0:    "0:00",
		-5:   "0:00",
		59:   "0:59",
		75:   "1:15",
		3600: "1:00:00",
		3725: "1:02:05",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatDuration(in), "seconds=%d", in)
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "/very-lon…", truncate("/very-long-page", 10))
}

func TestEmptyView(t *testing.T) {
	m := New()
	m.Width = 100
	m.SetView(client.View{})

	v := m.View()
	assert.Contains(t, v, "Active: 0")
	assert.Contains(t, v, "No active sessions")
	assert.Contains(t, v, "Waiting for visitors")
	assert.Contains(t, v, "none yet")
}
