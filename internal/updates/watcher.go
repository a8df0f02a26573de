package updates

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PBH-BTN/pbh-adapter-deluge/internal/types"
	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

// Options configures a Watcher.
type Options struct {
	BaseUrl       string
	Jar           http.CookieJar
	SkipVerifyTLS bool
	Keepalive     time.Duration
	MinBackoff    time.Duration
	MaxBackoff    time.Duration

	// Login is called before every dial so the session cookie is fresh.
	Login func(ctx context.Context) error
}

// Watcher follows the updates websocket of the adapter core and calls
// OnBlocklist for every blocklist-update.
type Watcher struct {
	url       string
	dialer    *websocket.Dialer
	keepalive time.Duration
	backoff   *backoff.Backoff
	login     func(ctx context.Context) error

	OnBlocklist func(types.BlocklistUpdate)
}

func NewWatcher(opts Options) (*Watcher, error) {
	u, err := url.Parse(strings.TrimRight(opts.BaseUrl, "/"))
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, errors.New("unsupported scheme " + u.Scheme)
	}
	u.Path += "/ws/updates"

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 45 * time.Second,
		Jar:              opts.Jar,
	}
	if opts.SkipVerifyTLS {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	keepalive := opts.Keepalive
	if keepalive <= 0 {
		keepalive = 30 * time.Second
	}
	minBackoff := opts.MinBackoff
	if minBackoff <= 0 {
		minBackoff = time.Second
	}
	maxBackoff := opts.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 5 * time.Minute
	}

	return &Watcher{
		url:       u.String(),
		dialer:    dialer,
		keepalive: keepalive,
		backoff:   &backoff.Backoff{Min: minBackoff, Max: maxBackoff, Factor: 2},
		login:     opts.Login,
	}, nil
}

func (w *Watcher) Url() string {
	return w.url
}

// Run keeps a connection open until ctx is canceled, reconnecting with
// exponential backoff.
func (w *Watcher) Run(ctx context.Context) {
	zap.L().Info("[update] Watching for blocklist updates", zap.String("url", w.url))
	for {
		if ctx.Err() != nil {
			return
		}

		err := w.session(ctx)
		if ctx.Err() != nil {
			zap.L().Info("[update] Watcher exiting")
			return
		}

		wait := w.backoff.Duration()
		zap.L().Warn("[update] WebSocket disconnected, retrying...",
			zap.Error(err),
			zap.Duration("retryIn", wait))

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// session dials once and reads until the connection fails.
func (w *Watcher) session(ctx context.Context) error {
	if w.login != nil {
		if err := w.login(ctx); err != nil {
			return err
		}
	}

	conn, _, err := w.dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	w.backoff.Reset()
	zap.L().Info("[update] Connected to update WebSocket")

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			conn.Close()
		case <-done:
		}
	}()
	go w.pingLoop(conn, done)

	conn.SetReadDeadline(time.Now().Add(2 * w.keepalive))
	conn.SetPongHandler(func(string) error {
		zap.L().Debug("[update] Received pong")
		conn.SetReadDeadline(time.Now().Add(2 * w.keepalive))
		return nil
	})
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(2 * w.keepalive))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			logReadError(err)
			return err
		}

		var update types.Update
		if err := json.Unmarshal(msg, &update); err != nil {
			zap.L().Error("Failed to unmarshal update", zap.ByteString("payload", msg), zap.Error(err))
			continue
		}
		w.process(update)
	}
}

func (w *Watcher) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(w.keepalive)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				zap.L().Warn("[update] Failed to send client ping, closing connection", zap.Error(err))
				conn.Close()
				return
			}
		}
	}
}

func logReadError(err error) {
	var closeErr *websocket.CloseError
	var netErr net.Error
	switch {
	case errors.As(err, &closeErr):
		zap.L().Warn("[update] Close received", zap.Int("code", closeErr.Code), zap.String("text", closeErr.Text))
	case errors.Is(err, io.EOF):
		zap.L().Warn("[update] EOF received")
	case errors.As(err, &netErr) && netErr.Timeout():
		zap.L().Warn("[update] Read timeout", zap.Error(err))
	default:
		zap.L().Warn("[update] Read error", zap.Error(err))
	}
}

func (w *Watcher) process(update types.Update) {
	switch update.Type {
	case types.UpdateTypeBlocklist:
		var data types.BlocklistUpdate
		if err := json.Unmarshal(update.Data, &data); err != nil {
			zap.L().Error("Failed to parse blocklist-update", zap.Error(err))
			return
		}
		zap.L().Info("[update] Processing blocklist-update", zap.Int("size", data.Size))
		if w.OnBlocklist != nil {
			w.OnBlocklist(data)
		}
	default:
		zap.L().Warn("Unknown update type received", zap.String("type", update.Type))
	}
}
