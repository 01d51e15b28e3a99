package relay

import (
	"github.com/rs/zerolog/log"

	"github.com/vigia-cam/vigia/internal/domain"
)

// Disconnect removes whatever the closed connection registered, keyed by
// table membership rather than role (a connection may close before ever
// registering). A camera close notifies each of its viewers and triggers a
// roster broadcast; a viewer close only detaches it from the watched
// camera — no notice travels in that direction. Back-references are purged
// under the same lock, so no dangling viewer id or watch pointer survives.
func (r *Registry) Disconnect(id domain.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cam, ok := r.cameras[id]; ok {
		note := marshal(cameraDisconnectedMsg{Type: "camera-disconnected", CameraID: id})
		for vid := range cam.viewers {
			v, ok := r.viewers[vid]
			if !ok {
				continue
			}
			v.watching = ""
			_ = v.peer.TrySend(note)
		}
		delete(r.cameras, id)
		r.dropOrderLocked(id)
		r.broadcastRosterLocked()
		log.Info().Str("module", "relay").Str("conn", string(id)).Int("viewers", len(cam.viewers)).Msg("camera disconnected")
		return
	}

	if v, ok := r.viewers[id]; ok {
		if v.watching != "" {
			if cam, ok := r.cameras[v.watching]; ok {
				delete(cam.viewers, id)
			}
		}
		delete(r.viewers, id)
		log.Info().Str("module", "relay").Str("conn", string(id)).Msg("viewer disconnected")
	}
}
