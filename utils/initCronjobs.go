package utils

import (
	"context"
	"time"

	"rpsserver/registry"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const keeperTimeout = 30 * time.Second

// CronKeeper はホストが判定しないまま期限を過ぎた競技を定期的に強制終了する。
// 払い出し先は対戦相手で、keeper のアドレスは呼び出し元として記録されるだけ。
func CronKeeper(reg *registry.Registry, schedule, keeper string, logger *zap.Logger) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), keeperTimeout)
		defer cancel()
		ForceCloseOverdue(ctx, reg, keeper, logger)
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}

// ForceCloseOverdue は強制終了可能な競技を全て終了し、終了できた数を返す
func ForceCloseOverdue(ctx context.Context, reg *registry.Registry, keeper string, logger *zap.Logger) int {
	overdue, err := reg.ForceClosable(ctx)
	if err != nil {
		logger.Error("強制終了対象の取得に失敗しました", zap.Error(err))
		return 0
	}

	closed := 0
	for _, c := range overdue {
		if _, err := reg.ForceClose(ctx, keeper, c.ID); err != nil {
			// 他のインスタンスが先に終了した場合など
			logger.Warn("強制終了に失敗しました", zap.String("id", c.ID), zap.Error(err))
			continue
		}
		closed++
	}
	if closed > 0 {
		logger.Info("期限切れの競技を強制終了しました", zap.Int("closed", closed))
	}
	return closed
}
