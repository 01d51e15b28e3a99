package signal

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/vigia-cam/vigia/internal/config"
	"github.com/vigia-cam/vigia/internal/domain"
	"github.com/vigia-cam/vigia/internal/relay"
)

// fakeTransport records frames and close calls instead of touching a socket.
type fakeTransport struct {
	mu     sync.Mutex
	frames []relay.Frame
	closed bool
}

func (f *fakeTransport) TrySend(fr relay.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeTransport) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func (f *fakeTransport) decoded(t *testing.T) []map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, 0, len(f.frames))
	for _, fr := range f.frames {
		var m map[string]any
		if err := json.Unmarshal(fr, &m); err != nil {
			t.Fatalf("undecodable frame %q: %v", fr, err)
		}
		out = append(out, m)
	}
	return out
}

func (f *fakeTransport) last(t *testing.T) map[string]any {
	t.Helper()
	msgs := f.decoded(t)
	if len(msgs) == 0 {
		t.Fatalf("expected at least one frame")
	}
	return msgs[len(msgs)-1]
}

type fakeVerifier struct {
	tokens map[string]domain.Identity
}

func (v fakeVerifier) Verify(token string) (domain.Identity, bool) {
	id, ok := v.tokens[token]
	return id, ok
}

func newTestController(reg *relay.Registry) *Controller {
	verifier := fakeVerifier{tokens: map[string]domain.Identity{
		"cam-token":  {UserID: "Cam_1", Role: domain.RoleCamera},
		"view-token": {UserID: "User_1", Role: domain.RoleViewer},
	}}
	cfg := &config.Config{
		AuthTimeout: 10 * time.Second,
		SendBuffer:  32,
		ReadLimit:   32768,
	}
	return NewController(reg, verifier, cfg)
}

func authenticate(t *testing.T, ctl *Controller, c *connection, token string) {
	t.Helper()
	ctl.handleMessage(c, []byte(`{"type":"authenticate","token":"`+token+`"}`))
	if c.current() != stateAuthenticated {
		t.Fatalf("expected authenticated state, got %v", c.current())
	}
}

func TestMessageBeforeAuthRejected(t *testing.T) {
	ctl := newTestController(relay.NewRegistry())
	tr := &fakeTransport{}
	c := newConnection("conn-1", tr)

	ctl.handleMessage(c, []byte(`{"type":"register-camera","name":"porch"}`))

	last := tr.last(t)
	if last["type"] != "error" || last["message"] != "must authenticate first" {
		t.Fatalf("expected must-authenticate error, got %v", last)
	}
	if tr.isClosed() {
		t.Fatalf("connection must stay open on protocol error")
	}
	if c.current() != stateConnecting {
		t.Fatalf("state must stay connecting, got %v", c.current())
	}
	if cams, _ := ctl.registry.Counts(); cams != 0 {
		t.Fatalf("no registry entry may exist before auth")
	}
}

func TestMalformedFrame(t *testing.T) {
	ctl := newTestController(relay.NewRegistry())
	tr := &fakeTransport{}
	c := newConnection("conn-1", tr)

	for _, raw := range []string{`{"type":`, `not json`, `{}`, `{"name":"porch"}`} {
		ctl.handleMessage(c, []byte(raw))
	}

	for _, m := range tr.decoded(t) {
		if m["type"] != "error" || m["message"] != "malformed message" {
			t.Fatalf("expected malformed-message error, got %v", m)
		}
	}
	if tr.count() != 4 {
		t.Fatalf("expected 4 error frames, got %d", tr.count())
	}
	if tr.isClosed() {
		t.Fatalf("malformed frames alone must not close the connection")
	}
}

func TestAuthenticateSuccess(t *testing.T) {
	ctl := newTestController(relay.NewRegistry())
	tr := &fakeTransport{}
	c := newConnection("conn-1", tr)
	c.authTimer = time.AfterFunc(time.Hour, func() {})

	authenticate(t, ctl, c, "view-token")

	last := tr.last(t)
	if last["type"] != "authenticated" || last["userId"] != "User_1" || last["role"] != "viewer" {
		t.Fatalf("unexpected authenticated frame %v", last)
	}
	c.mu.Lock()
	timer := c.authTimer
	c.mu.Unlock()
	if timer != nil {
		t.Fatalf("auth timer must be cancelled on success")
	}
}

func TestAuthenticateBadTokenCloses(t *testing.T) {
	ctl := newTestController(relay.NewRegistry())
	tr := &fakeTransport{}
	c := newConnection("conn-1", tr)

	ctl.handleMessage(c, []byte(`{"type":"authenticate","token":"bogus"}`))

	last := tr.last(t)
	if last["type"] != "auth-failed" {
		t.Fatalf("expected auth-failed, got %v", last)
	}
	if !tr.isClosed() {
		t.Fatalf("expected force close on auth failure")
	}
	if c.current() != stateClosed {
		t.Fatalf("expected closed state, got %v", c.current())
	}

	// Nothing after the failure is processed.
	before := tr.count()
	ctl.handleMessage(c, []byte(`{"type":"register-viewer"}`))
	if tr.count() != before {
		t.Fatalf("expected no processing after auth failure")
	}
}

func TestAuthenticateMissingTokenCloses(t *testing.T) {
	ctl := newTestController(relay.NewRegistry())
	tr := &fakeTransport{}
	c := newConnection("conn-1", tr)

	ctl.handleMessage(c, []byte(`{"type":"authenticate"}`))

	if tr.last(t)["type"] != "auth-failed" || !tr.isClosed() {
		t.Fatalf("expected auth-failed and close for missing token")
	}
}

func TestAuthenticateTwiceRejected(t *testing.T) {
	ctl := newTestController(relay.NewRegistry())
	tr := &fakeTransport{}
	c := newConnection("conn-1", tr)
	authenticate(t, ctl, c, "view-token")

	ctl.handleMessage(c, []byte(`{"type":"authenticate","token":"cam-token"}`))

	last := tr.last(t)
	if last["type"] != "error" || last["message"] != "already authenticated" {
		t.Fatalf("expected already-authenticated error, got %v", last)
	}
	// The bound identity did not change.
	if c.who().Role != domain.RoleViewer {
		t.Fatalf("identity must be immutable once bound")
	}
}

func TestRegisterCameraWrongRole(t *testing.T) {
	ctl := newTestController(relay.NewRegistry())
	tr := &fakeTransport{}
	c := newConnection("conn-1", tr)
	authenticate(t, ctl, c, "view-token")

	ctl.handleMessage(c, []byte(`{"type":"register-camera","name":"porch"}`))

	last := tr.last(t)
	if last["type"] != "error" || last["message"] != "not authorized to broadcast" {
		t.Fatalf("expected authorization error, got %v", last)
	}
	if tr.isClosed() {
		t.Fatalf("authorization errors keep the connection open")
	}
	if cams, _ := ctl.registry.Counts(); cams != 0 {
		t.Fatalf("no state change on authorization error")
	}
}

func TestRegisterViewerWrongRole(t *testing.T) {
	ctl := newTestController(relay.NewRegistry())
	tr := &fakeTransport{}
	c := newConnection("conn-1", tr)
	authenticate(t, ctl, c, "cam-token")

	ctl.handleMessage(c, []byte(`{"type":"register-viewer"}`))

	last := tr.last(t)
	if last["type"] != "error" || last["message"] != "not authorized to view" {
		t.Fatalf("expected authorization error, got %v", last)
	}
}

func TestRegisterCamera(t *testing.T) {
	ctl := newTestController(relay.NewRegistry())
	tr := &fakeTransport{}
	c := newConnection("conn-1", tr)
	authenticate(t, ctl, c, "cam-token")

	ctl.handleMessage(c, []byte(`{"type":"register-camera","name":"porch"}`))

	last := tr.last(t)
	if last["type"] != "registered" || last["id"] != "conn-1" || last["role"] != "camera" {
		t.Fatalf("unexpected registered frame %v", last)
	}
	if c.current() != stateRegistered {
		t.Fatalf("expected registered state")
	}
	roster := ctl.registry.Roster()
	if len(roster) != 1 || roster[0].Name != "porch" {
		t.Fatalf("unexpected roster %v", roster)
	}
}

func TestRegisterTwiceIsProtocolError(t *testing.T) {
	ctl := newTestController(relay.NewRegistry())
	tr := &fakeTransport{}
	c := newConnection("conn-1", tr)
	authenticate(t, ctl, c, "cam-token")

	ctl.handleMessage(c, []byte(`{"type":"register-camera","name":"porch"}`))
	ctl.handleMessage(c, []byte(`{"type":"register-camera","name":"garage"}`))

	last := tr.last(t)
	if last["type"] != "error" || last["message"] != "already registered" {
		t.Fatalf("expected already-registered error, got %v", last)
	}
	roster := ctl.registry.Roster()
	if len(roster) != 1 || roster[0].Name != "porch" {
		t.Fatalf("repeat registration must not change the registry, got %v", roster)
	}
}

func TestRegisterViewerGetsRoster(t *testing.T) {
	reg := relay.NewRegistry()
	reg.RegisterCamera("cam-x", "Cam_1", "porch", &fakeTransport{})
	ctl := newTestController(reg)
	tr := &fakeTransport{}
	c := newConnection("conn-1", tr)
	authenticate(t, ctl, c, "view-token")

	ctl.handleMessage(c, []byte(`{"type":"register-viewer"}`))

	msgs := tr.decoded(t)
	n := len(msgs)
	if n < 2 || msgs[n-2]["type"] != "registered" || msgs[n-1]["type"] != "camera-list" {
		t.Fatalf("expected registered then camera-list, got %v", msgs)
	}
}

func TestUnknownMessageType(t *testing.T) {
	ctl := newTestController(relay.NewRegistry())
	tr := &fakeTransport{}
	c := newConnection("conn-1", tr)
	authenticate(t, ctl, c, "view-token")

	ctl.handleMessage(c, []byte(`{"type":"mystery"}`))

	last := tr.last(t)
	if last["type"] != "error" || last["message"] != "unknown message type" {
		t.Fatalf("expected unknown-type error, got %v", last)
	}
	if tr.isClosed() {
		t.Fatalf("unknown types keep the connection open")
	}
}

func TestRelayMissingTarget(t *testing.T) {
	ctl := newTestController(relay.NewRegistry())
	tr := &fakeTransport{}
	c := newConnection("conn-1", tr)
	authenticate(t, ctl, c, "view-token")

	ctl.handleMessage(c, []byte(`{"type":"offer","sdp":"v=0"}`))

	last := tr.last(t)
	if last["type"] != "error" || last["message"] != "malformed message" {
		t.Fatalf("expected malformed-message error, got %v", last)
	}
}

func TestRequestCameraGoneIsSilent(t *testing.T) {
	ctl := newTestController(relay.NewRegistry())
	tr := &fakeTransport{}
	c := newConnection("conn-1", tr)
	authenticate(t, ctl, c, "view-token")
	ctl.handleMessage(c, []byte(`{"type":"register-viewer"}`))
	before := tr.count()

	ctl.handleMessage(c, []byte(`{"type":"request-camera","cameraId":"cam-gone"}`))

	if tr.count() != before {
		t.Fatalf("expected no response for vanished camera")
	}
}

func TestAuthTimeout(t *testing.T) {
	ctl := newTestController(relay.NewRegistry())
	tr := &fakeTransport{}
	c := newConnection("conn-1", tr)

	ctl.authTimedOut(c)

	last := tr.last(t)
	if last["type"] != "error" || last["message"] != "authentication timeout" {
		t.Fatalf("expected timeout error, got %v", last)
	}
	if !tr.isClosed() {
		t.Fatalf("expected close on auth timeout")
	}
}

func TestAuthTimeoutAfterAuthIsNoop(t *testing.T) {
	ctl := newTestController(relay.NewRegistry())
	tr := &fakeTransport{}
	c := newConnection("conn-1", tr)
	authenticate(t, ctl, c, "cam-token")
	before := tr.count()

	ctl.authTimedOut(c)

	if tr.count() != before || tr.isClosed() {
		t.Fatalf("late timeout must not touch an authenticated connection")
	}
}

func TestTeardownCleansRegistryOnce(t *testing.T) {
	ctl := newTestController(relay.NewRegistry())
	tr := &fakeTransport{}
	c := newConnection("conn-1", tr)
	c.authTimer = time.AfterFunc(time.Hour, func() {})
	authenticate(t, ctl, c, "cam-token")
	ctl.handleMessage(c, []byte(`{"type":"register-camera"}`))

	ctl.teardown(c)
	ctl.teardown(c) // idempotent

	if !tr.isClosed() || c.current() != stateClosed {
		t.Fatalf("expected closed connection")
	}
	if cams, _ := ctl.registry.Counts(); cams != 0 {
		t.Fatalf("expected registry entry removed")
	}
}

// Full handshake flow across two connections sharing one registry.
func TestCameraViewerHandshakeFlow(t *testing.T) {
	ctl := newTestController(relay.NewRegistry())

	camTr := &fakeTransport{}
	cam := newConnection("cam-conn", camTr)
	authenticate(t, ctl, cam, "cam-token")
	ctl.handleMessage(cam, []byte(`{"type":"register-camera","name":"porch"}`))

	viewTr := &fakeTransport{}
	view := newConnection("view-conn", viewTr)
	authenticate(t, ctl, view, "view-token")
	ctl.handleMessage(view, []byte(`{"type":"register-viewer"}`))
	ctl.handleMessage(view, []byte(`{"type":"request-camera","cameraId":"cam-conn"}`))

	last := camTr.last(t)
	if last["type"] != "viewer-joined" || last["viewerId"] != "view-conn" {
		t.Fatalf("camera expected viewer-joined, got %v", last)
	}

	ctl.handleMessage(cam, []byte(`{"type":"offer","target":"view-conn","sdp":"v=0"}`))
	got := viewTr.last(t)
	if got["type"] != "offer" || got["from"] != "cam-conn" || got["sdp"] != "v=0" {
		t.Fatalf("viewer expected relayed offer, got %v", got)
	}

	ctl.handleMessage(view, []byte(`{"type":"answer","target":"cam-conn","sdp":"v=0a"}`))
	got = camTr.last(t)
	if got["type"] != "answer" || got["from"] != "view-conn" {
		t.Fatalf("camera expected relayed answer, got %v", got)
	}

	ctl.teardown(cam)
	var sawDisconnect bool
	for _, m := range viewTr.decoded(t) {
		if m["type"] == "camera-disconnected" && m["cameraId"] == "cam-conn" {
			sawDisconnect = true
		}
	}
	if !sawDisconnect {
		t.Fatalf("viewer expected camera-disconnected notice")
	}
	if cams := viewTr.last(t)["cameras"].([]any); len(cams) != 0 {
		t.Fatalf("viewer expected empty roster after camera left, got %v", cams)
	}
}
