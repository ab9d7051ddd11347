package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"rpsserver/models"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	host     = "host"
	opponent = "opponent"
	stranger = "stranger"
	deposit  = uint64(100)
	salt     = "abc"
	interval = 60 * time.Second
)

type recorder struct {
	mu     sync.Mutex
	events []models.Event
	err    error
}

func (r *recorder) Publish(_ context.Context, ev models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recorder) last() models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type fixture struct {
	reg    *Registry
	store  *MemoryStore
	clock  *clock.Mock
	events *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  NewMemoryStore(),
		clock:  clock.NewMock(),
		events: &recorder{},
	}
	f.clock.Set(time.Unix(1700000000, 0))
	f.reg = New(f.store, interval, WithClock(f.clock), WithPublisher(f.events))
	ctx := context.Background()
	for _, addr := range []string{host, opponent, stranger} {
		require.NoError(t, f.reg.Grant(ctx, addr, 1000))
	}
	return f
}

func (f *fixture) balance(t *testing.T, addr string) uint64 {
	t.Helper()
	b, err := f.reg.Balance(context.Background(), addr)
	require.NoError(t, err)
	return b
}

func (f *fixture) entered(t *testing.T, id string, hostHand, oppHand models.Hand) {
	t.Helper()
	ctx := context.Background()
	_, err := f.reg.Create(ctx, host, id, Commit(hostHand, salt), deposit)
	require.NoError(t, err)
	_, err = f.reg.Entry(ctx, opponent, id, oppHand, deposit)
	require.NoError(t, err)
}

func TestPlay(t *testing.T) {
	tests := []struct {
		name     string
		hostHand models.Hand
		oppHand  models.Hand
		winner   string
	}{
		{"host win", models.Paper, models.Rock, host},
		{"opponent win", models.Paper, models.Scissors, opponent},
		{"draw", models.Scissors, models.Scissors, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			c, err := f.reg.Create(ctx, host, "game", Commit(tt.hostHand, salt), deposit)
			require.NoError(t, err)
			assert.Equal(t, models.PhaseCreated, c.Phase)
			assert.Equal(t, models.Event{
				Type:          models.EventCreate,
				CompetitionID: "game",
				Seq:           0,
				Deposit:       deposit,
				Host:          host,
				Timestamp:     1700000000,
			}, f.events.last())
			assert.Equal(t, uint64(900), f.balance(t, host))

			c, err = f.reg.Entry(ctx, opponent, "game", tt.oppHand, deposit)
			require.NoError(t, err)
			assert.Equal(t, models.PhaseEntered, c.Phase)
			assert.Equal(t, host, f.events.last().Host)
			assert.Equal(t, opponent, f.events.last().Opponent)
			assert.Equal(t, uint64(900), f.balance(t, opponent))
			assert.Equal(t, 2*deposit, f.balance(t, models.EscrowAddress))

			c, err = f.reg.Judge(ctx, host, "game", tt.hostHand, salt)
			require.NoError(t, err)
			assert.Equal(t, models.PhaseJudged, c.Phase)
			assert.Equal(t, tt.winner, c.Winner)
			ev := f.events.last()
			assert.Equal(t, models.EventJudge, ev.Type)
			assert.Equal(t, tt.winner, ev.Winner)
			assert.Equal(t, tt.hostHand, *ev.HostHand)
			assert.Equal(t, tt.oppHand, *ev.OpponentHand)

			hostBefore, oppBefore := f.balance(t, host), f.balance(t, opponent)
			c, err = f.reg.Close(ctx, stranger, "game")
			require.NoError(t, err)
			assert.Equal(t, models.PhaseClosed, c.Phase)
			assert.False(t, c.Forfeited)
			assert.Equal(t, models.Event{Type: models.EventClose, CompetitionID: "game", Timestamp: 1700000000}, f.events.last())

			switch tt.winner {
			case host:
				assert.Equal(t, hostBefore+2*deposit, f.balance(t, host))
				assert.Equal(t, oppBefore, f.balance(t, opponent))
			case opponent:
				assert.Equal(t, hostBefore, f.balance(t, host))
				assert.Equal(t, oppBefore+2*deposit, f.balance(t, opponent))
			default:
				assert.Equal(t, hostBefore+deposit, f.balance(t, host))
				assert.Equal(t, oppBefore+deposit, f.balance(t, opponent))
			}
			assert.Equal(t, uint64(0), f.balance(t, models.EscrowAddress))
			assert.Equal(t, uint64(1000), f.balance(t, stranger))
		})
	}
}

func TestCreateRejectsDuplicateID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.entered(t, "game", models.Paper, models.Rock)

	_, err := f.reg.Create(ctx, stranger, "game", Commit(models.Rock, salt), deposit)
	assert.ErrorIs(t, err, ErrCompetitionExists)

	_, err = f.reg.Judge(ctx, host, "game", models.Paper, salt)
	require.NoError(t, err)
	_, err = f.reg.Close(ctx, host, "game")
	require.NoError(t, err)

	// ids stay reserved after closure
	_, err = f.reg.Create(ctx, stranger, "game", Commit(models.Rock, salt), deposit)
	assert.ErrorIs(t, err, ErrCompetitionExists)
	assert.Equal(t, uint64(1000), f.balance(t, stranger))
}

func TestCreateRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.reg.Create(ctx, host, "game", Commit(models.Rock, salt), 0)
	assert.ErrorIs(t, err, ErrInvalidDeposit)

	_, err = f.reg.Create(ctx, host, "game", Commit(models.Rock, salt), 1<<63)
	assert.ErrorIs(t, err, ErrInvalidDeposit)

	_, err = f.reg.Create(ctx, host, "game", Commit(models.Rock, salt), MaxDeposit+1)
	assert.ErrorIs(t, err, ErrInvalidDeposit)

	_, err = f.reg.Create(ctx, host, "", Commit(models.Rock, salt), deposit)
	assert.ErrorIs(t, err, ErrInvalidID)

	_, err = f.reg.Create(ctx, "", "game", Commit(models.Rock, salt), deposit)
	assert.ErrorIs(t, err, ErrMissingCaller)

	_, err = f.reg.Create(ctx, host, "game", Commit(models.Rock, salt), 1001)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = f.reg.GetCompetition(ctx, "game")
	assert.ErrorIs(t, err, ErrCompetitionNotFound)
	assert.Equal(t, uint64(1000), f.balance(t, host))
	assert.Empty(t, f.events.events)
}

func TestEntryInvalidDeposit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.reg.Create(ctx, host, "game", Commit(models.Paper, salt), deposit)
	require.NoError(t, err)

	for _, stake := range []uint64{1, deposit - 1, deposit + 1} {
		_, err = f.reg.Entry(ctx, opponent, "game", models.Rock, stake)
		assert.ErrorIs(t, err, ErrInvalidDeposit)
		assert.EqualError(t, err, "Invalid deposit.")
	}

	c, err := f.reg.GetCompetition(ctx, "game")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseCreated, c.Phase)
	assert.Empty(t, c.Opponent)
	assert.Equal(t, uint64(1000), f.balance(t, opponent))
}

func TestEntryRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.reg.Entry(ctx, opponent, "missing", models.Rock, deposit)
	assert.ErrorIs(t, err, ErrCompetitionNotFound)

	_, err = f.reg.Create(ctx, host, "game", Commit(models.Paper, salt), deposit)
	require.NoError(t, err)

	_, err = f.reg.Entry(ctx, opponent, "game", models.Hand(7), deposit)
	assert.ErrorIs(t, err, ErrInvalidHand)

	_, err = f.reg.Entry(ctx, opponent, "game", models.Rock, deposit)
	require.NoError(t, err)

	// opponent is set at most once
	_, err = f.reg.Entry(ctx, stranger, "game", models.Rock, deposit)
	assert.ErrorIs(t, err, ErrPhase)
	assert.Equal(t, uint64(1000), f.balance(t, stranger))
}

func TestJudgeInvalidHash(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.entered(t, "game", models.Rock, models.Rock)

	_, err := f.reg.Judge(ctx, host, "game", models.Paper, salt)
	assert.ErrorIs(t, err, ErrInvalidHash)
	assert.EqualError(t, err, "Invalid hash.")

	_, err = f.reg.Judge(ctx, host, "game", models.Rock, "abd")
	assert.ErrorIs(t, err, ErrInvalidHash)

	c, err := f.reg.GetCompetition(ctx, "game")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseEntered, c.Phase)
	assert.Nil(t, c.HostHand)
}

func TestJudgeRequiresEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.reg.Create(ctx, host, "game", Commit(models.Paper, salt), deposit)
	require.NoError(t, err)

	_, err = f.reg.Judge(ctx, host, "game", models.Paper, salt)
	assert.ErrorIs(t, err, ErrPhase)

	_, err = f.reg.Close(ctx, host, "game")
	assert.ErrorIs(t, err, ErrPhase)
}

func TestCloseExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.entered(t, "game", models.Paper, models.Rock)

	_, err := f.reg.Close(ctx, host, "game")
	assert.ErrorIs(t, err, ErrPhase, "close before judge")

	_, err = f.reg.Judge(ctx, host, "game", models.Paper, salt)
	require.NoError(t, err)
	_, err = f.reg.Close(ctx, host, "game")
	require.NoError(t, err)
	hostAfter := f.balance(t, host)

	_, err = f.reg.Close(ctx, host, "game")
	assert.ErrorIs(t, err, ErrPhase)
	f.clock.Add(interval)
	_, err = f.reg.ForceClose(ctx, opponent, "game")
	assert.ErrorIs(t, err, ErrPhase)
	assert.Equal(t, hostAfter, f.balance(t, host))
}

func TestForceClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.entered(t, "game", models.Rock, models.Paper)

	_, err := f.reg.ForceClose(ctx, opponent, "game")
	assert.ErrorIs(t, err, ErrUnreachedTimestamp)
	assert.EqualError(t, err, "Unreached ForceClosableTimeStamp.")

	f.clock.Add(interval - time.Second)
	_, err = f.reg.ForceClose(ctx, opponent, "game")
	assert.ErrorIs(t, err, ErrUnreachedTimestamp)

	closable, err := f.reg.ForceClosable(ctx)
	require.NoError(t, err)
	assert.Empty(t, closable)

	f.clock.Add(time.Second)
	closable, err = f.reg.ForceClosable(ctx)
	require.NoError(t, err)
	require.Len(t, closable, 1)
	assert.Equal(t, "game", closable[0].ID)

	before := f.balance(t, opponent)
	c, err := f.reg.ForceClose(ctx, opponent, "game")
	require.NoError(t, err)
	assert.Equal(t, models.PhaseClosed, c.Phase)
	assert.True(t, c.Forfeited)
	assert.Equal(t, before+2*deposit, f.balance(t, opponent))
	assert.Equal(t, uint64(900), f.balance(t, host))
	assert.True(t, f.events.last().Forfeit)

	_, err = f.reg.ForceClose(ctx, opponent, "game")
	assert.ErrorIs(t, err, ErrPhase)
	_, err = f.reg.Judge(ctx, host, "game", models.Rock, salt)
	assert.ErrorIs(t, err, ErrPhase)
}

func TestForceCloseOnlyFromEntered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.reg.Create(ctx, host, "created", Commit(models.Rock, salt), deposit)
	require.NoError(t, err)
	f.entered(t, "judged", models.Rock, models.Paper)
	_, err = f.reg.Judge(ctx, host, "judged", models.Rock, salt)
	require.NoError(t, err)

	f.clock.Add(10 * interval)
	_, err = f.reg.ForceClose(ctx, opponent, "created")
	assert.ErrorIs(t, err, ErrPhase)
	_, err = f.reg.ForceClose(ctx, opponent, "judged")
	assert.ErrorIs(t, err, ErrPhase)
}

func TestGetCompetitions(t *testing.T) {
	tests := []struct {
		n, page, size uint64
		want          int
	}{
		{10, 0, 5, 5},
		{10, 1, 7, 3},
		{10, 1, 5, 5},
		{10, 2, 5, 0},
		{10, 0, 0, 0},
		{10, 0, 20, 10},
		{0, 0, 5, 0},
		{3, 1 << 62, 8, 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("n=%d page=%d size=%d", tt.n, tt.page, tt.size), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			require.NoError(t, f.reg.Grant(ctx, host, tt.n*deposit))
			require.NoError(t, f.reg.Grant(ctx, opponent, tt.n*deposit))

			ids := make([]string, tt.n)
			for i := range ids {
				ids[i] = fmt.Sprintf("game-%02d", i)
				// leave some competitions open to check every phase is listed
				if i%2 == 0 {
					f.entered(t, ids[i], models.Paper, models.Scissors)
					_, err := f.reg.Judge(ctx, host, ids[i], models.Paper, salt)
					require.NoError(t, err)
				} else {
					_, err := f.reg.Create(ctx, host, ids[i], Commit(models.Rock, salt), deposit)
					require.NoError(t, err)
				}
			}

			got, err := f.reg.GetCompetitions(ctx, tt.page, tt.size)
			require.NoError(t, err)
			require.Len(t, got, tt.want)
			for i, c := range got {
				idx := tt.page*tt.size + uint64(i)
				assert.Equal(t, ids[idx], c.ID)
				assert.Equal(t, idx, c.Seq)
			}
		})
	}
}

func TestPublishFailureKeepsState(t *testing.T) {
	f := newFixture(t)
	f.events.err = errors.New("broker down")
	ctx := context.Background()

	c, err := f.reg.Create(ctx, host, "game", Commit(models.Rock, salt), deposit)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseCreated, c.Phase)
	assert.Equal(t, uint64(900), f.balance(t, host))
}

func TestMetricsCountOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.entered(t, "game", models.Rock, models.Paper)
	_, err := f.reg.Judge(ctx, host, "game", models.Paper, salt)
	require.Error(t, err)

	snapshot := map[string]int64{}
	f.reg.Metrics().Each(func(name string, m interface{}) {
		if c, ok := m.(interface{ Count() int64 }); ok {
			snapshot[name] = c.Count()
		}
	})
	assert.Equal(t, int64(1), snapshot["competition.create.ok"])
	assert.Equal(t, int64(1), snapshot["competition.entry.ok"])
	assert.Equal(t, int64(1), snapshot["competition.judge.rejected"])
	assert.Equal(t, int64(2*deposit), snapshot["competition.escrow.balance"])
}

func TestEscrowMetricWithLargestDeposit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.reg.Grant(ctx, "whale", MaxDeposit))
	require.NoError(t, f.reg.Grant(ctx, "shark", MaxDeposit))

	escrowed := func() int64 {
		return f.reg.Metrics().Get("competition.escrow.balance").(interface{ Count() int64 }).Count()
	}

	_, err := f.reg.Create(ctx, "whale", "big", Commit(models.Rock, salt), MaxDeposit)
	require.NoError(t, err)
	_, err = f.reg.Entry(ctx, "shark", "big", models.Paper, MaxDeposit)
	require.NoError(t, err)
	assert.Equal(t, int64(2*MaxDeposit), escrowed())
	assert.Greater(t, escrowed(), int64(0))

	f.clock.Add(interval)
	_, err = f.reg.ForceClose(ctx, stranger, "big")
	require.NoError(t, err)
	assert.Equal(t, int64(0), escrowed())
	assert.Equal(t, uint64(2*MaxDeposit), f.balance(t, "shark"))
}

func TestSlowPublisherDoesNotBlockOtherOperations(t *testing.T) {
	store := NewMemoryStore()
	entered := make(chan struct{})
	release := make(chan struct{})
	publisher := PublisherFunc(func(ctx context.Context, ev models.Event) error {
		if ev.CompetitionID == "slow" {
			close(entered)
			<-release
		}
		return nil
	})
	reg := New(store, interval, WithPublisher(publisher))
	ctx := context.Background()
	require.NoError(t, reg.Grant(ctx, host, 1000))
	require.NoError(t, reg.Grant(ctx, opponent, 1000))

	slowDone := make(chan error, 1)
	go func() {
		_, err := reg.Create(ctx, host, "slow", Commit(models.Rock, salt), deposit)
		slowDone <- err
	}()
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("publisher was never called")
	}

	otherDone := make(chan error, 1)
	go func() {
		_, err := reg.Create(ctx, opponent, "other", Commit(models.Paper, salt), deposit)
		otherDone <- err
	}()
	select {
	case err := <-otherDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		close(release)
		t.Fatal("create waited for another competition's event delivery")
	}

	close(release)
	require.NoError(t, <-slowDone)
	c, err := reg.GetCompetition(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), c.Seq)
}
