package protocol

import (
	"encoding/json"

	"cardmesh/pkg/types"
)

// GameSnapshot is the network-serializable state used for joining a lobby
// and for catch-up after a sequence gap. Keep minimal and stable.
type GameSnapshot struct {
	Cfg     types.GameConfig `json:"cfg"`
	Seq     uint64           `json:"seq"`
	Host    PlayerRef        `json:"host"`
	Lobby   []PlayerRef      `json:"lobby,omitempty"`
	Started bool             `json:"started"`

	// engine snapshot payload as JSON to avoid protocol↔engine import cycles.
	EngineJSON json.RawMessage `json:"engine,omitempty"`
}
