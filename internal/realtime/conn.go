package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onchain-voice-lab/internal/logging"
)

// ErrClosed is returned by Recv once the server closed the stream normally
// or the connection was closed locally.
var ErrClosed = errors.New("realtime: connection closed")

// Dialer opens realtime connections.
type Dialer struct {
	URL       string
	APIKey    string
	Header    http.Header
	Handshake time.Duration
}

// Dial connects and returns once the websocket handshake has completed.
func (d Dialer) Dial(ctx context.Context) (*Conn, error) {
	if d.URL == "" {
		return nil, errors.New("realtime: url is required")
	}
	header := http.Header{}
	for k, v := range d.Header {
		header[k] = append([]string(nil), v...)
	}
	if d.APIKey != "" {
		header.Set("Authorization", "Bearer "+d.APIKey)
	}
	if header.Get("OpenAI-Beta") == "" {
		header.Set("OpenAI-Beta", "realtime=v1")
	}
	ws := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.Handshake,
	}
	conn, resp, err := ws.DialContext(ctx, d.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial realtime: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial realtime: %w", err)
	}
	return newConn(conn), nil
}

// Conn is one realtime session. Send may be called from any goroutine;
// Recv must be called from a single reader.
type Conn struct {
	ws        *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

func newConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws, closed: make(chan struct{})}
}

// Send writes one client event.
func (c *Conn) Send(ev ClientEvent) error {
	data, err := EncodeClientEvent(ev)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send %s: %w", ev.ClientEventType(), err)
	}
	return nil
}

// Recv blocks for the next server event. Frames that do not decode are
// logged and skipped.
func (c *Conn) Recv() (Event, error) {
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				return nil, ErrClosed
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, ErrClosed
			}
			return nil, fmt.Errorf("read realtime: %w", err)
		}
		if mt != websocket.TextMessage {
			continue
		}
		ev, err := DecodeEvent(data)
		if err != nil {
			logging.Warnw("skipping malformed realtime frame", "error", err, "bytes", len(data))
			continue
		}
		return ev, nil
	}
}

// Close sends a close frame and tears down the socket. Safe to call more
// than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		close(c.closed)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}
