package livesync

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parentrak/parentrak-backend/internal/realtime"
)

// WSSource dials the server's websocket feed,
// GET {base}/children/{id}/feed/ws?resource=...
type WSSource struct {
	// BaseURL is the API root, http(s) or ws(s), e.g. "https://host/api/v1".
	BaseURL string
	Token   string
	Dialer  *websocket.Dialer
	// PongWait bounds the silence tolerated before the feed is declared dead.
	PongWait time.Duration
}

// Dial opens the feed for key.
func (w *WSSource) Dial(ctx context.Context, key Key) (Channel, error) {
	u, err := w.feedURL(key)
	if err != nil {
		return nil, err
	}
	d := w.Dialer
	if d == nil {
		d = websocket.DefaultDialer
	}
	hdr := http.Header{}
	if w.Token != "" {
		hdr.Set("Authorization", "Bearer "+w.Token)
	}
	conn, resp, err := d.DialContext(ctx, u, hdr)
	if err != nil {
		if resp != nil {
			return nil, &Error{Status: resp.StatusCode, Message: "feed dial: " + err.Error()}
		}
		return nil, fmt.Errorf("livesync: dial %s: %w", key, err)
	}
	wait := w.PongWait
	if wait <= 0 {
		wait = 90 * time.Second
	}
	c := &wsChannel{conn: conn, wait: wait}
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})
	return c, nil
}

func (w *WSSource) feedURL(key Key) (string, error) {
	u, err := url.Parse(strings.TrimRight(w.BaseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("livesync: base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path += "/children/" + key.ChildID + "/feed/ws"
	u.RawQuery = url.Values{"resource": {string(key.Resource)}}.Encode()
	return u.String(), nil
}

type wsChannel struct {
	conn *websocket.Conn
	wait time.Duration
	once sync.Once
}

// Next reads one event. A cancelled ctx closes the connection so the blocked
// read returns.
func (c *wsChannel) Next(ctx context.Context) (realtime.Event, error) {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	_ = c.conn.SetReadDeadline(time.Now().Add(c.wait))
	var ev realtime.Event
	if err := c.conn.ReadJSON(&ev); err != nil {
		if ctx.Err() != nil {
			return realtime.Event{}, ctx.Err()
		}
		return realtime.Event{}, fmt.Errorf("livesync: feed read: %w", err)
	}
	return ev, nil
}

func (c *wsChannel) Close() error {
	var err error
	c.once.Do(func() {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = c.conn.Close()
	})
	return err
}
