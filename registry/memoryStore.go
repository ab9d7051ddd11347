package registry

import (
	"context"
	"math"
	"sync"

	"rpsserver/models"
)

// MemoryStore keeps everything in process memory. Transactions write to the
// live state and keep an undo journal that is replayed when fn fails.
type MemoryStore struct {
	mu    sync.RWMutex
	state memoryState
}

type memoryState struct {
	competitions map[string]*models.Competition
	order        []string
	balances     map[string]uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: memoryState{
		competitions: make(map[string]*models.Competition),
		balances:     make(map[string]uint64),
	}}
}

func copyCompetition(c *models.Competition) *models.Competition {
	cp := *c
	if c.OpponentHand != nil {
		h := *c.OpponentHand
		cp.OpponentHand = &h
	}
	if c.HostHand != nil {
		h := *c.HostHand
		cp.HostHand = &h
	}
	return &cp
}

func (s *MemoryStore) Transaction(ctx context.Context, fn func(tx Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{state: &s.state}
	defer func() {
		if p := recover(); p != nil {
			tx.rollback()
			panic(p)
		}
		if err != nil {
			tx.rollback()
		}
	}()
	return fn(tx)
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Competition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.state.competitions[id]
	if !ok {
		return nil, ErrCompetitionNotFound
	}
	return copyCompetition(c), nil
}

func (s *MemoryStore) List(ctx context.Context, offset, limit uint64) ([]models.Competition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := uint64(len(s.state.order))
	if offset >= total || limit == 0 {
		return []models.Competition{}, nil
	}
	end := total
	if limit < total-offset {
		end = offset + limit
	}
	out := make([]models.Competition, 0, end-offset)
	for _, id := range s.state.order[offset:end] {
		out = append(out, *copyCompetition(s.state.competitions[id]))
	}
	return out, nil
}

func (s *MemoryStore) ListEntered(ctx context.Context, enteredBefore int64) ([]models.Competition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Competition
	for _, id := range s.state.order {
		c := s.state.competitions[id]
		if c.Phase == models.PhaseEntered && c.EnteredAt <= enteredBefore {
			out = append(out, *copyCompetition(c))
		}
	}
	return out, nil
}

func (s *MemoryStore) Balance(ctx context.Context, address string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.balances[address], nil
}

type memoryTx struct {
	state *memoryState
	undo  []func()
}

func (tx *memoryTx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

func (tx *memoryTx) Find(id string) (*models.Competition, error) {
	c, ok := tx.state.competitions[id]
	if !ok {
		return nil, ErrCompetitionNotFound
	}
	return copyCompetition(c), nil
}

func (tx *memoryTx) NextSeq() (uint64, error) {
	return uint64(len(tx.state.order)), nil
}

func (tx *memoryTx) Insert(c *models.Competition) error {
	if _, ok := tx.state.competitions[c.ID]; ok {
		return ErrCompetitionExists
	}
	id, n := c.ID, len(tx.state.order)
	tx.state.competitions[id] = copyCompetition(c)
	tx.state.order = append(tx.state.order, id)
	tx.undo = append(tx.undo, func() {
		delete(tx.state.competitions, id)
		tx.state.order = tx.state.order[:n]
	})
	return nil
}

func (tx *memoryTx) Update(c *models.Competition) error {
	id := c.ID
	prev, ok := tx.state.competitions[id]
	if !ok {
		return ErrCompetitionNotFound
	}
	tx.state.competitions[id] = copyCompetition(c)
	tx.undo = append(tx.undo, func() { tx.state.competitions[id] = prev })
	return nil
}

func (tx *memoryTx) setBalance(address string, balance uint64) {
	prev, ok := tx.state.balances[address]
	tx.state.balances[address] = balance
	tx.undo = append(tx.undo, func() {
		if ok {
			tx.state.balances[address] = prev
		} else {
			delete(tx.state.balances, address)
		}
	})
}

func (tx *memoryTx) Debit(address string, amount uint64) error {
	balance := tx.state.balances[address]
	if balance < amount {
		return ErrInsufficientFunds
	}
	tx.setBalance(address, balance-amount)
	return nil
}

func (tx *memoryTx) Credit(address string, amount uint64) error {
	balance := tx.state.balances[address]
	if balance > math.MaxUint64-amount {
		return ErrBalanceOverflow
	}
	tx.setBalance(address, balance+amount)
	return nil
}
