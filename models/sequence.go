package models

// Sequence は名前付きの採番カウンタ。NextSeq が次に払い出す値
type Sequence struct {
	Name    string `gorm:"primaryKey"`
	NextSeq uint64 `gorm:"not null;default:0"`
}

// CompetitionSequence は Competition.Seq の採番に使う
const CompetitionSequence = "competitions"
