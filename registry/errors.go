package registry

import "errors"

// 呼び出し元にそのまま返されるエラー。リトライはしない。
var (
	ErrCompetitionExists   = errors.New("Competition already exists.")
	ErrCompetitionNotFound = errors.New("Competition not found.")
	ErrInvalidID           = errors.New("Invalid id.")
	ErrMissingCaller       = errors.New("Missing caller.")
	ErrInvalidDeposit      = errors.New("Invalid deposit.")
	ErrInvalidHash         = errors.New("Invalid hash.")
	ErrInvalidHand         = errors.New("Invalid hand.")
	ErrPhase               = errors.New("Invalid phase.")
	ErrUnreachedTimestamp  = errors.New("Unreached ForceClosableTimeStamp.")
	ErrInsufficientFunds   = errors.New("Insufficient funds.")
	ErrBalanceOverflow     = errors.New("Balance overflow.")
)
