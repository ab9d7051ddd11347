package database

import (
	"context"
	"math"

	"rpsserver/models"
	"rpsserver/registry"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CompetitionStore はPostgreSQL上の registry.Store 実装です。
// 競技の行は更新前に SELECT ... FOR UPDATE でロックする。
type CompetitionStore struct {
	db *gorm.DB
}

func NewCompetitionStore(db *gorm.DB) *CompetitionStore {
	return &CompetitionStore{db: db}
}

func (s *CompetitionStore) Transaction(ctx context.Context, fn func(tx registry.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

func (s *CompetitionStore) Get(ctx context.Context, id string) (*models.Competition, error) {
	var c models.Competition
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, notFound(err, id)
	}
	return &c, nil
}

func (s *CompetitionStore) List(ctx context.Context, offset, limit uint64) ([]models.Competition, error) {
	competitions := []models.Competition{}
	if offset > math.MaxInt32 || limit == 0 {
		return competitions, nil
	}
	if limit > math.MaxInt32 {
		limit = math.MaxInt32
	}
	err := s.db.WithContext(ctx).
		Order("seq").
		Offset(int(offset)).
		Limit(int(limit)).
		Find(&competitions).Error
	if err != nil {
		return nil, errors.Wrap(err, "list competitions")
	}
	return competitions, nil
}

func (s *CompetitionStore) ListEntered(ctx context.Context, enteredBefore int64) ([]models.Competition, error) {
	var competitions []models.Competition
	err := s.db.WithContext(ctx).
		Where("phase = ? AND entered_at <= ?", models.PhaseEntered, enteredBefore).
		Order("seq").
		Find(&competitions).Error
	if err != nil {
		return nil, errors.Wrap(err, "list entered competitions")
	}
	return competitions, nil
}

func (s *CompetitionStore) Balance(ctx context.Context, address string) (uint64, error) {
	var account models.Account
	err := s.db.WithContext(ctx).Where("address = ?", address).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "balance of %s", address)
	}
	return account.Balance, nil
}

func notFound(err error, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return registry.ErrCompetitionNotFound
	}
	return errors.Wrapf(err, "load competition %s", id)
}

type gormTx struct {
	db *gorm.DB
}

func (tx *gormTx) Find(id string) (*models.Competition, error) {
	var c models.Competition
	err := tx.db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&c).Error
	if err != nil {
		return nil, notFound(err, id)
	}
	return &c, nil
}

// NextSeq はカウンタ行を FOR UPDATE でロックして採番する。
// 同時に作成する他のインスタンスはこのトランザクションの終了を待つ
func (tx *gormTx) NextSeq() (uint64, error) {
	seq, err := tx.lockSequence()
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := tx.seedSequence(); err != nil {
			return 0, err
		}
		seq, err = tx.lockSequence()
	}
	if err != nil {
		return 0, errors.Wrap(err, "lock competition sequence")
	}
	err = tx.db.Model(&models.Sequence{}).
		Where("name = ?", models.CompetitionSequence).
		UpdateColumn("next_seq", gorm.Expr("next_seq + 1")).Error
	if err != nil {
		return 0, errors.Wrap(err, "advance competition sequence")
	}
	return seq.NextSeq, nil
}

func (tx *gormTx) lockSequence() (models.Sequence, error) {
	var seq models.Sequence
	err := tx.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("name = ?", models.CompetitionSequence).
		First(&seq).Error
	return seq, err
}

// seedSequence は既存の競技数からカウンタ行を作成する
func (tx *gormTx) seedSequence() error {
	var n int64
	if err := tx.db.Model(&models.Competition{}).Count(&n).Error; err != nil {
		return errors.Wrap(err, "count competitions")
	}
	err := tx.db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.Sequence{Name: models.CompetitionSequence, NextSeq: uint64(n)}).Error
	return errors.Wrap(err, "seed competition sequence")
}

// Insert は同じIDの行がある場合だけ ErrCompetitionExists を返す。
// その他の一意制約違反はそのままエラーになる
func (tx *gormTx) Insert(c *models.Competition) error {
	res := tx.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(c)
	if res.Error != nil {
		return errors.Wrapf(res.Error, "insert competition %s", c.ID)
	}
	if res.RowsAffected == 0 {
		return registry.ErrCompetitionExists
	}
	return nil
}

func (tx *gormTx) Update(c *models.Competition) error {
	return errors.Wrapf(tx.db.Save(c).Error, "update competition %s", c.ID)
}

func (tx *gormTx) Debit(address string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	res := tx.db.Model(&models.Account{}).
		Where("address = ? AND balance >= ?", address, amount).
		UpdateColumn("balance", gorm.Expr("balance - ?", amount))
	if res.Error != nil {
		return errors.Wrapf(res.Error, "debit %s", address)
	}
	if res.RowsAffected == 0 {
		return registry.ErrInsufficientFunds
	}
	return nil
}

func (tx *gormTx) Credit(address string, amount uint64) error {
	err := tx.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"balance": gorm.Expr("accounts.balance + ?", amount)}),
	}).Create(&models.Account{Address: address, Balance: amount}).Error
	return errors.Wrapf(err, "credit %s", address)
}
