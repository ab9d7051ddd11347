package registry

import (
	"context"

	"rpsserver/models"
)

// Store persists competitions and the custody ledger. Transaction must be
// all-or-nothing: when fn returns an error no write made through tx survives.
type Store interface {
	Transaction(ctx context.Context, fn func(tx Tx) error) error

	Get(ctx context.Context, id string) (*models.Competition, error)
	// List returns competitions ordered by Seq.
	List(ctx context.Context, offset, limit uint64) ([]models.Competition, error)
	// ListEntered returns competitions in PhaseEntered with EnteredAt <= enteredBefore.
	ListEntered(ctx context.Context, enteredBefore int64) ([]models.Competition, error)
	Balance(ctx context.Context, address string) (uint64, error)
}

// Tx is the write view handed to Store.Transaction.
type Tx interface {
	// Find returns ErrCompetitionNotFound when id is unknown.
	Find(id string) (*models.Competition, error)
	// NextSeq allocates the creation index of a new competition. An index
	// taken by a transaction that fails is given out again.
	NextSeq() (uint64, error)
	Insert(c *models.Competition) error
	Update(c *models.Competition) error
	// Debit returns ErrInsufficientFunds when the balance is short.
	Debit(address string, amount uint64) error
	Credit(address string, amount uint64) error
}
