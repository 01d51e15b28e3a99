package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/vigia-cam/vigia/internal/domain"
	"github.com/vigia-cam/vigia/internal/relay"
)

type errorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type authFailedMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type authenticatedMsg struct {
	Type   string        `json:"type"`
	UserID domain.UserID `json:"userId"`
	Role   domain.Role   `json:"role"`
}

type registeredMsg struct {
	Type string        `json:"type"`
	ID   domain.ConnID `json:"id"`
	Role domain.Role   `json:"role"`
}

// send is fire-and-forget: a full buffer or closed socket drops the frame,
// same as any other routing race.
func (ctl *Controller) send(c *connection, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("send marshal")
		return
	}
	_ = c.tr.TrySend(relay.Frame(b))
}

func (ctl *Controller) sendError(c *connection, msg string) {
	ctl.send(c, errorMsg{Type: "error", Message: msg})
}
