package models

import (
	"encoding/json"
	"fmt"
)

// Phase はCompetitionのライフサイクル段階です。
type Phase uint8

const (
	PhaseCreated Phase = iota
	PhaseEntered
	PhaseJudged
	PhaseClosed
)

var phaseNames = [...]string{"created", "entered", "judged", "closed"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", uint8(p))
}

func (p Phase) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Phase) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for i, n := range phaseNames {
		if n == name {
			*p = Phase(i)
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", name)
}

// Hand はじゃんけんの手。各値は1つ小さい値(mod 3)に勝つ。
type Hand uint8

const (
	Rock Hand = iota
	Paper
	Scissors
)

func (h Hand) Valid() bool {
	return h <= Scissors
}

func (h Hand) String() string {
	switch h {
	case Rock:
		return "rock"
	case Paper:
		return "paper"
	case Scissors:
		return "scissors"
	}
	return fmt.Sprintf("hand(%d)", uint8(h))
}

// Competition モデルの定義
type Competition struct {
	ID             string `gorm:"primaryKey" json:"id"`
	Seq            uint64 `gorm:"uniqueIndex;not null" json:"seq"`
	Host           string `gorm:"index;not null" json:"host"`
	HostCommitment string `gorm:"not null" json:"hostCommitment"`
	Deposit        uint64 `gorm:"not null" json:"deposit"`
	Opponent       string `gorm:"index" json:"opponent,omitempty"`
	OpponentHand   *Hand  `json:"opponentHand,omitempty"`
	HostHand       *Hand  `json:"hostHand,omitempty"`
	Winner         string `json:"winner,omitempty"` // 空文字は引き分け
	Phase          Phase  `gorm:"index;not null" json:"phase"`
	CreatedAt      int64  `gorm:"autoCreateTime:false;not null" json:"createdAt"`
	EnteredAt      int64  `json:"enteredAt,omitempty"`
	JudgedAt       int64  `json:"judgedAt,omitempty"`
	ClosedAt       int64  `json:"closedAt,omitempty"`
	Forfeited      bool   `gorm:"default:false" json:"forfeited"`
}
