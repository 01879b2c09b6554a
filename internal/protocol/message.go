package protocol

type MsgType string

const (
	// lobby
	MsgJoin     MsgType = "JOIN"
	MsgHostName MsgType = "HOST_NAME"
	MsgNewGame  MsgType = "NEW_GAME"
	MsgEndGame  MsgType = "END_GAME"

	// host confirmations, applied by replicas in Seq order
	MsgGiveCard      MsgType = "GIVE_CARD"
	MsgPlayConfirmed MsgType = "PLAY_CONFIRMED"
	MsgSwapConfirmed MsgType = "SWAP_CONFIRMED"
	MsgNextTurn      MsgType = "NEXT_TURN"

	// client proposals, sent to the host only
	MsgPlayProposal MsgType = "PLAY_PROPOSAL"
	MsgSwapProposal MsgType = "SWAP_PROPOSAL"
	MsgReject       MsgType = "REJECT"

	// informational, not sequenced
	MsgRemainingTime MsgType = "REMAINING_TIME"
	MsgRoundWinner   MsgType = "ROUND_WINNER"
	MsgGameWinner    MsgType = "GAME_WINNER"

	// resync
	MsgStateQuery MsgType = "STATE_QUERY"
	MsgSnapshot   MsgType = "SNAPSHOT"
)

// Sequenced reports whether replicas must apply t in host sequence order.
func (t MsgType) Sequenced() bool {
	switch t {
	case MsgNewGame, MsgGiveCard, MsgPlayConfirmed, MsgSwapConfirmed, MsgNextTurn, MsgEndGame:
		return true
	}
	return false
}

// PlayerRef names a seat on the wire.
type PlayerRef struct {
	ID   NodeID `json:"id"`
	Name string `json:"name,omitempty"`
}

// Action is the body of proposals and confirmations. Which fields matter
// depends on the message type: Card for plays and deals, Index for swaps,
// Roster for NEW_GAME.
type Action struct {
	ID     string      `json:"id"`
	Player PlayerRef   `json:"player"`
	Card   string      `json:"card,omitempty"`
	Index  int         `json:"index,omitempty"`
	Roster []PlayerRef `json:"roster,omitempty"`
}

// NetMessage is the envelope every transport carries. An empty To means
// broadcast; receivers drop messages addressed to another node.
type NetMessage struct {
	Game    GameID        `json:"game"`
	From    NodeID        `json:"from"`
	To      NodeID        `json:"to,omitempty"`
	Type    MsgType       `json:"type"`
	Lamport uint64        `json:"lamport"`
	Seq     uint64        `json:"seq,omitempty"`
	Action  *Action       `json:"action,omitempty"`
	Clock   string        `json:"clock,omitempty"`
	Reason  string        `json:"reason,omitempty"`
	State   *GameSnapshot `json:"state,omitempty"`
}

// For reports whether self should handle msg.
func (m NetMessage) For(self NodeID) bool {
	return m.From != self && (m.To == "" || m.To == self)
}
