package realtime

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Filter decides whether an event is forwarded to one stream.
type Filter func(Event) bool

// ForRecipient drops notification events addressed to someone else.
func ForRecipient(userID string) Filter {
	return func(ev Event) bool {
		if ev.Resource != ResourceNotifications {
			return true
		}
		return ev.Recipient == userID
	}
}

// Streamer forwards a topic to websocket clients.
type Streamer struct {
	Broker       Broker
	Upgrader     websocket.Upgrader
	WriteTimeout time.Duration
	PingInterval time.Duration
	Log          zerolog.Logger
}

// Serve subscribes to topic, upgrades the connection and forwards matching
// events as JSON text frames until the client goes away, the request context
// ends or the subscription closes.
//
// An error is returned only when nothing was written to w yet, so the caller
// can still send an HTTP error. Failures after the upgrade are logged.
func (s *Streamer) Serve(w http.ResponseWriter, r *http.Request, topic string, allow Filter) error {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub, err := s.Broker.Subscribe(ctx, topic)
	if err != nil {
		return err
	}
	defer sub.Close()

	conn, err := s.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader already replied with an HTTP error.
		s.Log.Debug().Err(err).Str("topic", topic).Msg("websocket upgrade failed")
		return nil
	}
	defer conn.Close()

	openStreams.Inc()
	defer openStreams.Dec()

	writeTimeout := s.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	pingEvery := s.PingInterval
	if pingEvery <= 0 {
		pingEvery = 30 * time.Second
	}
	pongWait := 2 * pingEvery

	// Clients only send control frames; the reader keeps pong handling alive
	// and cancels the stream once the peer disconnects.
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingEvery)
	defer ping.Stop()

	lg := s.Log.With().Str("topic", topic).Logger()
	for {
		select {
		case <-ctx.Done():
			s.closeConn(conn, writeTimeout)
			return nil
		case ev, ok := <-sub.C:
			if !ok {
				s.closeConn(conn, writeTimeout)
				return nil
			}
			if allow != nil && !allow(ev) {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					lg.Warn().Err(err).Msg("websocket write failed")
				}
				return nil
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				lg.Debug().Err(err).Msg("websocket ping failed")
				return nil
			}
		}
	}
}

func (s *Streamer) closeConn(conn *websocket.Conn, timeout time.Duration) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(timeout))
}
