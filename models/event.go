package models

const (
	EventCreate = "Create"
	EventEntry  = "Entry"
	EventJudge  = "Judge"
	EventClose  = "Close"
)

// Event はレジストリの遷移ごとに発行される通知です。状態ではありません。
type Event struct {
	Type          string `json:"type"`
	CompetitionID string `json:"id"`
	Seq           uint64 `json:"seq"`
	Deposit       uint64 `json:"deposit,omitempty"`
	Host          string `json:"host,omitempty"`
	Opponent      string `json:"opponent,omitempty"`
	Winner        string `json:"winner,omitempty"`
	HostHand      *Hand  `json:"hostHand,omitempty"`
	OpponentHand  *Hand  `json:"opponentHand,omitempty"`
	Forfeit       bool   `json:"forfeit,omitempty"`
	Timestamp     int64  `json:"timestamp"`
}
