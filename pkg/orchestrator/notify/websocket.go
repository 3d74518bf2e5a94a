package notify

import (
	"context"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/askiada/molsim/pkg/wire"
)

// WebSocket subscribes to the push channel at URL, such as ws://host/session/ws.
type WebSocket struct {
	URL    string
	Dialer *websocket.Dialer
	Header http.Header
	Logger zerolog.Logger
}

// NewWebSocket returns a WebSocket notifier for url with the default dialer.
func NewWebSocket(url string, logger zerolog.Logger) *WebSocket {
	return &WebSocket{URL: url, Dialer: websocket.DefaultDialer, Logger: logger}
}

// Subscribe dials the push channel and sends the session subscription. Only session_update notifications for
// sessionID are delivered. The channel is closed when the connection drops.
func (w *WebSocket) Subscribe(ctx context.Context, sessionID string) (<-chan wire.Notification, error) {
	dialer := w.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, resp, err := dialer.DialContext(ctx, w.URL, w.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, errors.Wrapf(err, "unable to dial %s", w.URL)
	}

	sub, err := sonic.Marshal(wire.NewNotification(wire.MethodSession, sessionID))
	if err != nil {
		_ = conn.Close()

		return nil, errors.Wrap(err, "unable to encode subscription")
	}

	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		_ = conn.Close()

		return nil, errors.Wrap(err, "unable to subscribe")
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = conn.Close()
	}()

	ch := make(chan wire.Notification)
	go func() {
		defer close(ch)
		defer close(done)

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					w.Logger.Warn().Err(err).Str("run_id", sessionID).Msg("push channel closed")
				}

				return
			}

			var n wire.Notification
			if err := sonic.Unmarshal(data, &n); err != nil {
				w.Logger.Debug().Err(err).Msg("ignoring malformed push message")

				continue
			}

			if n.Method != wire.MethodSessionUpdate || n.Params.SessionID != sessionID {
				continue
			}

			select {
			case ch <- n:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}
