package registry

import "rpsserver/models"

// Outcome は判定結果
type Outcome uint8

const (
	Draw Outcome = iota
	HostWins
	OpponentWins
)

// Decide は (host - opponent + 3) mod 3 で勝敗を決める。
// 0: 引き分け, 1: ホストの勝ち, 2: 対戦相手の勝ち
func Decide(host, opponent models.Hand) Outcome {
	return Outcome((int(host) - int(opponent) + 3) % 3)
}

// winnerOf returns the winning address, or "" for a draw.
func winnerOf(c *models.Competition, hostHand models.Hand) string {
	switch Decide(hostHand, *c.OpponentHand) {
	case HostWins:
		return c.Host
	case OpponentWins:
		return c.Opponent
	}
	return ""
}
