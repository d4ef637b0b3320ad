package lifecycle

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/shell-gate/shell-gate/internal/cache"
)

// Activator 删除除当前世代外的所有缓存世代。
type Activator struct {
	store  cache.Store
	logger *logrus.Logger
}

// NewActivator constructs an Activator over the shared store.
func NewActivator(store cache.Store, logger *logrus.Logger) *Activator {
	return &Activator{store: store, logger: logger}
}

// Run 列出磁盘上的世代并回收过期的那些。删除失败仅记录告警，
// 返回 error 仅代表 ctx 被取消或世代列举本身失败。
func (a *Activator) Run(ctx context.Context, current string) error {
	generations, err := a.store.Generations(ctx)
	if err != nil {
		return err
	}

	dropped := 0
	for _, name := range generations {
		if name == current {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.store.DropGeneration(ctx, name); err != nil {
			a.logger.WithError(err).WithFields(logrus.Fields{
				"action":     "activate",
				"generation": name,
			}).Warn("drop_generation_failed")
			continue
		}
		dropped++
	}

	a.logger.WithFields(logrus.Fields{
		"action":     "activate",
		"generation": current,
		"dropped":    dropped,
	}).Info("activate_complete")
	return nil
}
