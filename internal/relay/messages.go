package relay

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/vigia-cam/vigia/internal/domain"
)

// CameraInfo is the roster projection of one camera. Viewers is the live
// size of the camera's viewer set at projection time.
type CameraInfo struct {
	ID      domain.ConnID `json:"id"`
	Name    string        `json:"name"`
	Viewers int           `json:"viewers"`
}

type cameraListMsg struct {
	Type    string       `json:"type"`
	Cameras []CameraInfo `json:"cameras"`
}

type viewerJoinedMsg struct {
	Type     string        `json:"type"`
	ViewerID domain.ConnID `json:"viewerId"`
}

type cameraDisconnectedMsg struct {
	Type     string        `json:"type"`
	CameraID domain.ConnID `json:"cameraId"`
}

func marshal(v any) Frame {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "relay").Msg("marshal frame")
		return nil
	}
	return Frame(b)
}
