package signal

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *Controller) writePump(ctx context.Context, wc *wsConn) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-wc.send:
			if !ok {
				return
			}
			if err := wc.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := wc.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, c *connection, wc *wsConn) {
	defer ctl.teardown(c)

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := wc.conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("conn", string(c.id)).Msg("readPump done")
				return
			}
			ctl.handleMessage(c, data)
		}
	}
}
