package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var errSendClosed = errors.New("send channel closed")

func (c *Client) writePump(ctx context.Context, conn *wsConn) error {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	ping, _ := json.Marshal(typed{Type: msgPing})

	for {
		var data []byte
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			data = ping
		case msg, ok := <-conn.send:
			if !ok {
				return errSendClosed
			}
			data = msg
		}
		if err := conn.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
			return err
		}
		if err := conn.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
			return err
		}
	}
}

func (c *Client) readPump(ctx context.Context, conn *wsConn) error {
	defer conn.Close()
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, data, err := conn.conn.ReadMessage()
		if err != nil {
			return err
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	var env typed
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}
	if env.Type == msgPong {
		return
	}
	c.hmu.Lock()
	l, ok := c.handlers[env.Type]
	c.hmu.Unlock()
	if !ok || l.Len() == 0 {
		log.Debug().Str("module", "signal").Str("type", env.Type).Msg("unhandled signal")
		return
	}
	for _, fn := range l.Snapshot() {
		fn(data)
	}
}
