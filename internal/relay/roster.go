package relay

import "github.com/vigia-cam/vigia/internal/domain"

// Roster projects the current cameras in registration order. Viewer counts
// are read live from the viewer sets, never cached.
func (r *Registry) Roster() []CameraInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rosterLocked()
}

func (r *Registry) rosterLocked() []CameraInfo {
	out := make([]CameraInfo, 0, len(r.order))
	for _, id := range r.order {
		cam, ok := r.cameras[id]
		if !ok {
			continue
		}
		out = append(out, CameraInfo{ID: id, Name: cam.name, Viewers: len(cam.viewers)})
	}
	return out
}

func (r *Registry) broadcastRosterLocked() {
	frame := marshal(cameraListMsg{Type: "camera-list", Cameras: r.rosterLocked()})
	for _, v := range r.viewers {
		_ = v.peer.TrySend(frame)
	}
}

func (r *Registry) dropOrderLocked(id domain.ConnID) {
	for i, cid := range r.order {
		if cid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}
