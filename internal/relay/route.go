package relay

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/vigia-cam/vigia/internal/domain"
)

// Route forwards a signaling frame (offer/answer/ice-candidate) verbatim to
// the target connection, with the sender's id injected as "from". The
// target is looked up across both tables; a miss means the peer already
// disconnected and the frame is dropped silently. A failed send counts as
// the same race and is not escalated.
func (r *Registry) Route(from, to domain.ConnID, raw Frame) {
	r.mu.Lock()
	p := r.lookupLocked(to)
	r.mu.Unlock()
	if p == nil {
		log.Debug().Str("module", "relay").Str("target", string(to)).Msg("route: target gone")
		return
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		log.Error().Err(err).Str("module", "relay").Msg("route: bad frame")
		return
	}
	m["from"] = string(from)
	b, err := json.Marshal(m)
	if err != nil {
		log.Error().Err(err).Str("module", "relay").Msg("route: marshal")
		return
	}
	_ = p.TrySend(Frame(b))
}
