// Package relay owns the in-memory connection registry: the camera and
// viewer tables, the roster derived from them, signal forwarding between
// paired peers and the cleanup that runs when a connection goes away.
package relay

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/vigia-cam/vigia/internal/domain"
)

type cameraEntry struct {
	name    string
	owner   domain.UserID
	peer    Peer
	viewers map[domain.ConnID]struct{}
}

type viewerEntry struct {
	owner    domain.UserID
	peer     Peer
	watching domain.ConnID // empty while not paired
}

// Registry is the authoritative store of live connections, partitioned by
// role. One mutex guards both tables: camera/viewer entries are mutated
// from concurrent connection events and the pairing links must never be
// observed half-updated. All sends go through non-blocking TrySend, so
// holding the lock across a fan-out is fine.
type Registry struct {
	mu      sync.Mutex
	cameras map[domain.ConnID]*cameraEntry
	order   []domain.ConnID // camera registration order, drives the roster
	viewers map[domain.ConnID]*viewerEntry
}

func NewRegistry() *Registry {
	return &Registry{
		cameras: make(map[domain.ConnID]*cameraEntry),
		viewers: make(map[domain.ConnID]*viewerEntry),
	}
}

// RegisterCamera adds a camera entry and pushes the updated roster to every
// registered viewer. An empty name gets the default "Cámara N" where N is
// the current camera count + 1; the number is a snapshot, never renumbered
// when earlier cameras leave. Returns the assigned display name.
func (r *Registry) RegisterCamera(id domain.ConnID, owner domain.UserID, name string, p Peer) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name == "" {
		name = fmt.Sprintf("Cámara %d", len(r.cameras)+1)
	}
	r.cameras[id] = &cameraEntry{
		name:    name,
		owner:   owner,
		peer:    p,
		viewers: make(map[domain.ConnID]struct{}),
	}
	r.order = append(r.order, id)
	r.broadcastRosterLocked()
	log.Info().Str("module", "relay").Str("conn", string(id)).Str("user", string(owner)).Str("name", name).Msg("camera registered")
	return name
}

// RegisterViewer adds a viewer entry and sends the current roster once,
// directly to the new viewer. Viewers do not appear in the roster, so no
// broadcast happens here.
func (r *Registry) RegisterViewer(id domain.ConnID, owner domain.UserID, p Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.viewers[id] = &viewerEntry{owner: owner, peer: p}
	_ = p.TrySend(marshal(cameraListMsg{Type: "camera-list", Cameras: r.rosterLocked()}))
	log.Info().Str("module", "relay").Str("conn", string(id)).Str("user", string(owner)).Msg("viewer registered")
}

// Pair links a viewer to a camera and tells the camera side so it can
// initiate the offer. A missing camera or viewer is a silent no-op: the
// peer disconnecting moments earlier is an expected race, not an error.
// A viewer watches at most one camera; re-pairing moves it.
func (r *Registry) Pair(viewerID, cameraID domain.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cam, ok := r.cameras[cameraID]
	if !ok {
		log.Debug().Str("module", "relay").Str("camera", string(cameraID)).Msg("pair: camera gone")
		return
	}
	v, ok := r.viewers[viewerID]
	if !ok {
		return
	}
	if v.watching != "" {
		if old, ok := r.cameras[v.watching]; ok {
			delete(old.viewers, viewerID)
		}
	}
	v.watching = cameraID
	cam.viewers[viewerID] = struct{}{}
	_ = cam.peer.TrySend(marshal(viewerJoinedMsg{Type: "viewer-joined", ViewerID: viewerID}))
	log.Info().Str("module", "relay").Str("viewer", string(viewerID)).Str("camera", string(cameraID)).Msg("paired")
}

// Counts reports live table sizes for the health endpoint.
func (r *Registry) Counts() (cameras, viewers int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cameras), len(r.viewers)
}

func (r *Registry) lookupLocked(id domain.ConnID) Peer {
	if c, ok := r.cameras[id]; ok {
		return c.peer
	}
	if v, ok := r.viewers[id]; ok {
		return v.peer
	}
	return nil
}
