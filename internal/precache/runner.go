package precache

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/any-hub/imghub/internal/cache"
)

// Runner 为每个集合启动一次性预缓存任务，与 HTTP 流量共享同一个派生缓存。
type Runner struct {
	walker      *Walker
	collections []cache.Collection
	logger      *logrus.Logger
}

// NewRunner 构造 Runner，collections 按配置顺序传入。
func NewRunner(walker *Walker, collections []cache.Collection, logger *logrus.Logger) *Runner {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Runner{
		walker:      walker,
		collections: append([]cache.Collection(nil), collections...),
		logger:      logger,
	}
}

// RunAll walks every collection concurrently and waits for all of them. One
// collection failing to walk does not stop the others; the first such error
// is returned after every walk has finished.
func (r *Runner) RunAll(ctx context.Context) ([]*Report, error) {
	reports := make([]*Report, len(r.collections))

	var g errgroup.Group
	for i, col := range r.collections {
		g.Go(func() error {
			report, err := r.walker.Run(ctx, col)
			reports[i] = report
			return err
		})
	}
	err := g.Wait()
	return reports, err
}

// Start 在后台运行 RunAll，返回的 channel 在所有集合完成后关闭。
func (r *Runner) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.logger.WithFields(logrus.Fields{
			"action":      "precache",
			"collections": len(r.collections),
		}).Info("precache_started")
		if _, err := r.RunAll(ctx); err != nil {
			r.logger.WithError(err).WithField("action", "precache").Warn("precache_incomplete")
		}
	}()
	return done
}
