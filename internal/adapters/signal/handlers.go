package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/vigia-cam/vigia/internal/domain"
	"github.com/vigia-cam/vigia/internal/relay"
)

// handleMessage dispatches one inbound frame. Until the connection is
// authenticated, only "authenticate" is admitted; anything else gets an
// error frame and the auth timer keeps running.
func (ctl *Controller) handleMessage(c *connection, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		ctl.sendError(c, "malformed message")
		return
	}

	if c.current() == stateClosed {
		return
	}
	if env.Type == "authenticate" {
		ctl.handleAuthenticate(c, data)
		return
	}
	if c.current() == stateConnecting {
		ctl.sendError(c, "must authenticate first")
		return
	}

	switch env.Type {
	case "register-camera":
		ctl.handleRegisterCamera(c, data)
	case "register-viewer":
		ctl.handleRegisterViewer(c)
	case "request-camera":
		ctl.handleRequestCamera(c, data)
	case "offer", "answer", "ice-candidate":
		ctl.handleRelay(c, data)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown message type")
		ctl.sendError(c, "unknown message type")
	}
}

// handleAuthenticate accepts exactly one attempt per connection. An invalid
// or expired token is unrecoverable: the client is told and the socket is
// force-closed.
func (ctl *Controller) handleAuthenticate(c *connection, data []byte) {
	if c.current() != stateConnecting {
		ctl.sendError(c, "already authenticated")
		return
	}
	var p struct {
		Token string `json:"token"`
	}
	_ = json.Unmarshal(data, &p)

	identity, ok := ctl.auth.Verify(p.Token)
	if !ok {
		c.shutdown()
		ctl.send(c, authFailedMsg{Type: "auth-failed", Message: "invalid or expired token"})
		c.tr.Close()
		log.Warn().Str("module", "signal").Str("conn", string(c.id)).Msg("auth failed")
		return
	}
	if !c.bind(identity) {
		ctl.sendError(c, "already authenticated")
		return
	}
	ctl.send(c, authenticatedMsg{Type: "authenticated", UserID: identity.UserID, Role: identity.Role})
	log.Info().Str("module", "signal").Str("conn", string(c.id)).Str("user", string(identity.UserID)).Str("role", string(identity.Role)).Msg("authenticated")
}

func (ctl *Controller) handleRegisterCamera(c *connection, data []byte) {
	if c.who().Role != domain.RoleCamera {
		ctl.sendError(c, "not authorized to broadcast")
		return
	}
	if !c.register() {
		ctl.sendError(c, "already registered")
		return
	}
	var p struct {
		Name string `json:"name"`
	}
	_ = json.Unmarshal(data, &p)
	name := p.Name
	if len(name) > domain.MaxCameraNameLen {
		name = name[:domain.MaxCameraNameLen]
	}

	ctl.send(c, registeredMsg{Type: "registered", ID: c.id, Role: domain.RoleCamera})
	ctl.registry.RegisterCamera(c.id, c.who().UserID, name, c.tr)
}

func (ctl *Controller) handleRegisterViewer(c *connection) {
	if c.who().Role != domain.RoleViewer {
		ctl.sendError(c, "not authorized to view")
		return
	}
	if !c.register() {
		ctl.sendError(c, "already registered")
		return
	}

	ctl.send(c, registeredMsg{Type: "registered", ID: c.id, Role: domain.RoleViewer})
	ctl.registry.RegisterViewer(c.id, c.who().UserID, c.tr)
}

func (ctl *Controller) handleRequestCamera(c *connection, data []byte) {
	var p struct {
		CameraID string `json:"cameraId"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.CameraID == "" {
		ctl.sendError(c, "malformed message")
		return
	}
	// Silent no-op when either side is gone, see relay.Pair.
	ctl.registry.Pair(c.id, domain.ConnID(p.CameraID))
}

func (ctl *Controller) handleRelay(c *connection, data []byte) {
	var p struct {
		Target string `json:"target"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Target == "" {
		ctl.sendError(c, "malformed message")
		return
	}
	ctl.registry.Route(c.id, domain.ConnID(p.Target), relay.Frame(data))
}
