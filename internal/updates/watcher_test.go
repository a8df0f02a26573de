package updates

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PBH-BTN/pbh-adapter-deluge/internal/types"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pushServer writes its script to every connection and then hangs up.
func pushServer(t *testing.T, script ...types.Update) (*httptest.Server, *int32) {
	t.Helper()
	var conns int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws/updates" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		atomic.AddInt32(&conns, 1)
		for _, u := range script {
			if err := conn.WriteJSON(u); err != nil {
				return
			}
		}
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	}))
	t.Cleanup(srv.Close)
	return srv, &conns
}

func TestNewWatcherBuildsUrl(t *testing.T) {
	w, err := NewWatcher(Options{BaseUrl: "https://deluge.lan:8112/"})
	require.NoError(t, err)
	assert.Equal(t, "wss://deluge.lan:8112/ws/updates", w.Url())

	_, err = NewWatcher(Options{BaseUrl: "ftp://deluge.lan"})
	assert.Error(t, err)
}

func TestWatcherDeliversBlocklistUpdatesAndReconnects(t *testing.T) {
	srv, conns := pushServer(t,
		types.Update{Type: "score-update", Data: []byte(`{}`)},
		types.Update{Type: types.UpdateTypeBlocklist, Data: []byte(`{"size":3}`)},
	)

	var logins int32
	w, err := NewWatcher(Options{
		BaseUrl:    srv.URL,
		MinBackoff: time.Millisecond,
		MaxBackoff: 5 * time.Millisecond,
		Login: func(ctx context.Context) error {
			atomic.AddInt32(&logins, 1)
			return nil
		},
	})
	require.NoError(t, err)

	var mu sync.Mutex
	var got []int
	w.OnBlocklist = func(u types.BlocklistUpdate) {
		mu.Lock()
		got = append(got, u.Size)
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}

	mu.Lock()
	assert.Equal(t, 3, got[0])
	mu.Unlock()
	assert.GreaterOrEqual(t, atomic.LoadInt32(conns), int32(2))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&logins), int32(2))
}

func TestWatcherStopsWhileBackingOff(t *testing.T) {
	w, err := NewWatcher(Options{
		BaseUrl:    "http://127.0.0.1:1",
		MinBackoff: time.Hour,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
