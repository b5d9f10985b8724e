// Package monitor consumes a test's live attempt stream.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	ws "github.com/stemsi/examflow/internal/websocket"
)

const (
	handshakeTimeout = 10 * time.Second
	pingInterval     = 30 * time.Second
)

// URL returns the monitor endpoint for testID under an http(s) base URL.
func URL(base *url.URL, testID int64) (string, error) {
	u := *base
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = fmt.Sprintf("%s/ws/tests/%d/monitor", u.Path, testID)
	return u.String(), nil
}

// Stream dials wsURL with the session cookies in jar and calls fn for every
// frame until ctx ends, the server closes or fn returns an error.
func Stream(ctx context.Context, wsURL string, jar http.CookieJar, fn func(ws.Frame) error) error {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
		Jar:              jar,
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial monitor: status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("dial monitor: %w", err)
	}
	defer conn.Close()

	// Unblock ReadJSON when ctx ends.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				_ = conn.Close()
				return
			case <-stop:
				return
			case <-ticker.C:
				if err := ws.WriteTyped(conn, ws.RequestEnvelope{Action: ws.ActionPing}); err != nil {
					return
				}
			}
		}
	}()

	for {
		var f ws.Frame
		if err := ws.ReadJSON(conn, &f); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read monitor frame: %w", err)
		}
		if f.Event == ws.EventPing || f.Event == ws.EventPong {
			continue
		}
		if err := fn(f); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
}

// ErrStop can be returned by the Stream callback to end streaming cleanly.
var ErrStop = errors.New("stop streaming")
