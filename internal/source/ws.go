package source

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"agenttree/internal/event"
)

const (
	wsHandshakeTimeout = 10 * time.Second
	wsBackoffStart     = time.Second
	wsBackoffMax       = 15 * time.Second
)

// WebSocket streams events from a remote runtime that broadcasts stream-json
// lines as text messages. The read loop reconnects with backoff until ctx is
// cancelled; parser state survives reconnects so dedup keeps working.
type WebSocket struct {
	ch     chan event.Envelope
	done   chan struct{}
	cancel context.CancelFunc
	err    error
}

// NewWebSocket starts the connection loop against url.
func NewWebSocket(ctx context.Context, url string) *WebSocket {
	ctx, cancel := context.WithCancel(ctx)
	w := &WebSocket{
		ch:     make(chan event.Envelope, chanBuffer),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go w.run(ctx, url)
	return w
}

func (w *WebSocket) run(ctx context.Context, url string) {
	defer close(w.ch)
	defer close(w.done)

	parser := event.NewParser()
	backoff := wsBackoffStart

	for {
		if ctx.Err() != nil {
			return
		}

		dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
		conn, _, err := dialer.DialContext(ctx, url, nil)
		if err != nil {
			w.err = err
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > wsBackoffMax {
				backoff = wsBackoffMax
			}
			continue
		}
		backoff = wsBackoffStart
		w.err = nil

		go func() {
			<-ctx.Done()
			conn.Close()
		}()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				conn.Close()
				if ctx.Err() != nil {
					return
				}
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return
				}
				w.err = err
				break
			}
			evs, err := parser.ParseLine(string(data))
			if err != nil {
				w.send(ctx, event.Envelope{Kind: event.KindUnknown, Raw: string(data)})
				continue
			}
			for _, ev := range evs {
				if !w.send(ctx, ev) {
					return
				}
			}
		}
	}
}

func (w *WebSocket) send(ctx context.Context, ev event.Envelope) bool {
	select {
	case w.ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Events returns the envelope channel; it closes on normal remote close or
// cancellation.
func (w *WebSocket) Events() <-chan event.Envelope { return w.ch }

// Err reports the last connection failure.
func (w *WebSocket) Err() error {
	select {
	case <-w.done:
		return w.err
	default:
		return nil
	}
}

// Close cancels the connection loop.
func (w *WebSocket) Close() error {
	w.cancel()
	return nil
}
