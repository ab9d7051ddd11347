// Package registry implements the competition state machine and the custody
// of the stakes paid into it.
//
// A competition moves Created -> Entered -> Judged -> Closed. Funds are
// escrowed on create and entry and leave escrow exactly once, either on
// Close (winner or draw refund) or on ForceClose (opponent takes the pot
// when the host never reveals).
package registry

import (
	"context"
	"math"
	"sync"
	"time"

	"rpsserver/models"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	gometrics "github.com/rcrowley/go-metrics"
	"go.uber.org/zap"
)

// Registry serialises every mutating call and runs it in one store
// transaction together with the fund movements it authorises.
type Registry struct {
	mu                 sync.Mutex
	store              Store
	clock              clock.Clock
	publisher          Publisher
	logger             *zap.Logger
	metrics            opMetrics
	forceCloseInterval time.Duration
}

// MaxDeposit keeps the pot of 2*deposit within int64.
const MaxDeposit = math.MaxInt64 / 2

type Option func(*Registry)

func WithClock(c clock.Clock) Option {
	return func(r *Registry) { r.clock = c }
}

func WithPublisher(p Publisher) Option {
	return func(r *Registry) { r.publisher = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

func WithMetrics(reg gometrics.Registry) Option {
	return func(r *Registry) { r.metrics = opMetrics{reg: reg} }
}

// New creates a registry. forceCloseInterval is fixed for its lifetime.
func New(store Store, forceCloseInterval time.Duration, opts ...Option) *Registry {
	r := &Registry{
		store:              store,
		clock:              clock.New(),
		publisher:          nopPublisher{},
		logger:             zap.NewNop(),
		metrics:            opMetrics{reg: gometrics.NewRegistry()},
		forceCloseInterval: forceCloseInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) ForceCloseInterval() time.Duration {
	return r.forceCloseInterval
}

func (r *Registry) Metrics() gometrics.Registry {
	return r.metrics.reg
}

type transition func(tx Tx, now int64) (*models.Competition, models.Event, error)

func (r *Registry) mutate(ctx context.Context, op, caller, id string, fn transition) (*models.Competition, error) {
	if caller == "" {
		return nil, ErrMissingCaller
	}
	if id == "" {
		return nil, ErrInvalidID
	}

	var (
		out *models.Competition
		ev  models.Event
	)
	// 購読者への配信はロックの外で行う
	err := func() error {
		r.mu.Lock()
		defer r.mu.Unlock()

		start := time.Now()
		now := r.clock.Now().Unix()
		err := r.store.Transaction(ctx, func(tx Tx) error {
			c, e, err := fn(tx, now)
			if err != nil {
				return err
			}
			out, ev = c, e
			return nil
		})
		r.metrics.observe(op, start, err)
		return err
	}()
	if err != nil {
		r.logger.Info("competition operation rejected",
			zap.String("op", op),
			zap.String("id", id),
			zap.String("caller", caller),
			zap.Error(err),
		)
		return nil, err
	}

	r.logger.Info("competition updated",
		zap.String("op", op),
		zap.String("id", id),
		zap.String("caller", caller),
		zap.Stringer("phase", out.Phase),
	)
	if err := r.publisher.Publish(ctx, ev); err != nil {
		r.logger.Warn("failed to publish competition event",
			zap.String("type", ev.Type),
			zap.String("id", id),
			zap.Error(err),
		)
	}
	return out, nil
}

func requirePhase(op string, c *models.Competition, want models.Phase) error {
	if c.Phase != want {
		return errors.Wrapf(ErrPhase, "%s requires %s, competition %s is %s", op, want, c.ID, c.Phase)
	}
	return nil
}

// escrow moves amount from the payer's account into escrow.
func escrow(tx Tx, payer string, amount uint64) error {
	if err := tx.Debit(payer, amount); err != nil {
		return err
	}
	return tx.Credit(models.EscrowAddress, amount)
}

// release moves amount out of escrow to the payee.
func release(tx Tx, payee string, amount uint64) error {
	if err := tx.Debit(models.EscrowAddress, amount); err != nil {
		return err
	}
	return tx.Credit(payee, amount)
}

// Create opens a competition, escrowing stake from caller as the deposit.
func (r *Registry) Create(ctx context.Context, caller, id string, commitment Commitment, stake uint64) (*models.Competition, error) {
	if stake == 0 || stake > MaxDeposit {
		return nil, ErrInvalidDeposit
	}
	c, err := r.mutate(ctx, "create", caller, id, func(tx Tx, now int64) (*models.Competition, models.Event, error) {
		if _, err := tx.Find(id); err == nil {
			return nil, models.Event{}, ErrCompetitionExists
		} else if !errors.Is(err, ErrCompetitionNotFound) {
			return nil, models.Event{}, err
		}
		seq, err := tx.NextSeq()
		if err != nil {
			return nil, models.Event{}, err
		}
		if err := escrow(tx, caller, stake); err != nil {
			return nil, models.Event{}, err
		}
		c := &models.Competition{
			ID:             id,
			Seq:            seq,
			Host:           caller,
			HostCommitment: commitment.Hex(),
			Deposit:        stake,
			Phase:          models.PhaseCreated,
			CreatedAt:      now,
		}
		if err := tx.Insert(c); err != nil {
			return nil, models.Event{}, err
		}
		return c, models.Event{
			Type:          models.EventCreate,
			CompetitionID: id,
			Seq:           seq,
			Deposit:       stake,
			Host:          caller,
			Timestamp:     now,
		}, nil
	})
	if err == nil {
		r.metrics.escrowed(int64(stake))
	}
	return c, err
}

// Entry joins caller as the opponent. stake must equal the deposit.
func (r *Registry) Entry(ctx context.Context, caller, id string, hand models.Hand, stake uint64) (*models.Competition, error) {
	c, err := r.mutate(ctx, "entry", caller, id, func(tx Tx, now int64) (*models.Competition, models.Event, error) {
		c, err := tx.Find(id)
		if err != nil {
			return nil, models.Event{}, err
		}
		if err := requirePhase("entry", c, models.PhaseCreated); err != nil {
			return nil, models.Event{}, err
		}
		if !hand.Valid() {
			return nil, models.Event{}, ErrInvalidHand
		}
		if stake != c.Deposit {
			return nil, models.Event{}, ErrInvalidDeposit
		}
		if err := escrow(tx, caller, stake); err != nil {
			return nil, models.Event{}, err
		}
		c.Opponent = caller
		c.OpponentHand = &hand
		c.EnteredAt = now
		c.Phase = models.PhaseEntered
		if err := tx.Update(c); err != nil {
			return nil, models.Event{}, err
		}
		return c, models.Event{
			Type:          models.EventEntry,
			CompetitionID: id,
			Seq:           c.Seq,
			Host:          c.Host,
			Opponent:      c.Opponent,
			Timestamp:     now,
		}, nil
	})
	if err == nil {
		r.metrics.escrowed(int64(stake))
	}
	return c, err
}

// Judge reveals the host hand, checks it against the commitment and
// records the winner.
func (r *Registry) Judge(ctx context.Context, caller, id string, hand models.Hand, salt string) (*models.Competition, error) {
	return r.mutate(ctx, "judge", caller, id, func(tx Tx, now int64) (*models.Competition, models.Event, error) {
		c, err := tx.Find(id)
		if err != nil {
			return nil, models.Event{}, err
		}
		if err := requirePhase("judge", c, models.PhaseEntered); err != nil {
			return nil, models.Event{}, err
		}
		if !hand.Valid() {
			return nil, models.Event{}, ErrInvalidHand
		}
		commitment, err := ParseCommitment(c.HostCommitment)
		if err != nil {
			return nil, models.Event{}, errors.Wrapf(err, "stored commitment of %s", id)
		}
		if !commitment.Matches(hand, salt) {
			return nil, models.Event{}, ErrInvalidHash
		}
		c.HostHand = &hand
		c.Winner = winnerOf(c, hand)
		c.JudgedAt = now
		c.Phase = models.PhaseJudged
		if err := tx.Update(c); err != nil {
			return nil, models.Event{}, err
		}
		return c, models.Event{
			Type:          models.EventJudge,
			CompetitionID: id,
			Seq:           c.Seq,
			Winner:        c.Winner,
			HostHand:      c.HostHand,
			OpponentHand:  c.OpponentHand,
			Timestamp:     now,
		}, nil
	})
}

// Close pays out a judged competition. Anyone may call it; the payees come
// from the stored result.
func (r *Registry) Close(ctx context.Context, caller, id string) (*models.Competition, error) {
	c, err := r.mutate(ctx, "close", caller, id, func(tx Tx, now int64) (*models.Competition, models.Event, error) {
		c, err := tx.Find(id)
		if err != nil {
			return nil, models.Event{}, err
		}
		if err := requirePhase("close", c, models.PhaseJudged); err != nil {
			return nil, models.Event{}, err
		}
		if c.Winner != "" {
			err = release(tx, c.Winner, 2*c.Deposit)
		} else {
			// 引き分けはそれぞれに返金
			if err = release(tx, c.Host, c.Deposit); err == nil {
				err = release(tx, c.Opponent, c.Deposit)
			}
		}
		if err != nil {
			return nil, models.Event{}, err
		}
		return closeCompetition(tx, c, now, false)
	})
	if err == nil {
		r.metrics.escrowed(-int64(2 * c.Deposit))
	}
	return c, err
}

// ForceClose hands the whole pot to the opponent once the host has failed
// to judge within the force-close interval after entry.
func (r *Registry) ForceClose(ctx context.Context, caller, id string) (*models.Competition, error) {
	c, err := r.mutate(ctx, "forceClose", caller, id, func(tx Tx, now int64) (*models.Competition, models.Event, error) {
		c, err := tx.Find(id)
		if err != nil {
			return nil, models.Event{}, err
		}
		if err := requirePhase("forceClose", c, models.PhaseEntered); err != nil {
			return nil, models.Event{}, err
		}
		if now < r.forceClosableAt(c) {
			return nil, models.Event{}, ErrUnreachedTimestamp
		}
		if err := release(tx, c.Opponent, 2*c.Deposit); err != nil {
			return nil, models.Event{}, err
		}
		return closeCompetition(tx, c, now, true)
	})
	if err == nil {
		r.metrics.escrowed(-int64(2 * c.Deposit))
	}
	return c, err
}

func closeCompetition(tx Tx, c *models.Competition, now int64, forfeited bool) (*models.Competition, models.Event, error) {
	c.Phase = models.PhaseClosed
	c.ClosedAt = now
	c.Forfeited = forfeited
	if err := tx.Update(c); err != nil {
		return nil, models.Event{}, err
	}
	return c, models.Event{
		Type:          models.EventClose,
		CompetitionID: c.ID,
		Seq:           c.Seq,
		Forfeit:       forfeited,
		Timestamp:     now,
	}, nil
}

func (r *Registry) forceClosableAt(c *models.Competition) int64 {
	return c.EnteredAt + int64(r.forceCloseInterval/time.Second)
}

// ForceClosable lists entered competitions whose force-close deadline has
// passed.
func (r *Registry) ForceClosable(ctx context.Context) ([]models.Competition, error) {
	now := r.clock.Now().Unix()
	return r.store.ListEntered(ctx, now-int64(r.forceCloseInterval/time.Second))
}

// GetCompetitions returns up to size competitions in creation order,
// starting at index page*size.
func (r *Registry) GetCompetitions(ctx context.Context, page, size uint64) ([]models.Competition, error) {
	if size == 0 || page > math.MaxUint64/size {
		return []models.Competition{}, nil
	}
	return r.store.List(ctx, page*size, size)
}

func (r *Registry) GetCompetition(ctx context.Context, id string) (*models.Competition, error) {
	return r.store.Get(ctx, id)
}

func (r *Registry) Balance(ctx context.Context, address string) (uint64, error) {
	return r.store.Balance(ctx, address)
}

// Grant credits a custody account from outside the registry, e.g. the
// starting balance of a newly issued address.
func (r *Registry) Grant(ctx context.Context, address string, amount uint64) error {
	if address == "" {
		return ErrMissingCaller
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Transaction(ctx, func(tx Tx) error {
		return tx.Credit(address, amount)
	})
}
