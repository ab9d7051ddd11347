package models

// EscrowAddress は清算前の全ての賭け金を保持する予約済みアカウント
const EscrowAddress = "registry:escrow"

// Account は保管台帳の残高
type Account struct {
	Address string `gorm:"primaryKey" json:"address"`
	Balance uint64 `gorm:"not null;default:0" json:"balance"`
}
