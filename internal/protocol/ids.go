package protocol

import (
	"strings"

	"github.com/google/uuid"
)

// NodeID is the stable peer identifier. Display names are carried
// separately and never used for addressing.
type NodeID string

type GameID string

func NewNodeID() NodeID { return NodeID(uuid.NewString()) }
func NewGameID() GameID { return GameID("g-" + shortUUID()) }

// NewActionID generates a unique action id for deduplication.
func NewActionID() string { return uuid.NewString() }

func shortUUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Short is the first eight characters, for logs and the CLI.
func (id NodeID) Short() string {
	if len(id) <= 8 {
		return string(id)
	}
	return string(id[:8])
}
