package job

import (
	"context"
	"time"

	"hgnc/internal/service"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Decayer 积分释放
type Decayer interface {
	DecayPoints(ctx context.Context, rate decimal.Decimal) (*service.DecayResult, error)
}

// PointDecayJob 每天固定时刻按 default_point_dump_rate 释放积分
type PointDecayJob struct {
	decayer Decayer
	props   service.PropertySource
	hour    int
	log     *logrus.Entry
	stopCh  chan struct{}
	now     func() time.Time
}

func NewPointDecayJob(decayer Decayer, props service.PropertySource, hour int, log *logrus.Logger) *PointDecayJob {
	if hour < 0 || hour > 23 {
		hour = 3
	}
	return &PointDecayJob{
		decayer: decayer,
		props:   props,
		hour:    hour,
		log:     log.WithField("job", "point_decay"),
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}
}

// nextRun now 之后（不含）的下一个 hour 点整，按 now 的时区计算
func nextRun(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (j *PointDecayJob) Start(ctx context.Context) {
	j.log.WithField("hour", j.hour).Info("积分释放任务启动")

	for {
		now := j.now()
		next := nextRun(now, j.hour)
		timer := time.NewTimer(next.Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			j.log.Info("收到停止信号，任务退出")
			return
		case <-j.stopCh:
			timer.Stop()
			j.log.Info("任务停止")
			return
		case <-timer.C:
			j.RunOnce(ctx)
		}
	}
}

func (j *PointDecayJob) Stop() {
	close(j.stopCh)
}

// RunOnce 立即执行一次
func (j *PointDecayJob) RunOnce(ctx context.Context) (*service.DecayResult, error) {
	rate := j.props.Properties().DefaultPointDumpRate
	start := time.Now()

	result, err := j.decayer.DecayPoints(ctx, rate)
	if result == nil {
		result = &service.DecayResult{}
	}
	entry := j.log.WithFields(logrus.Fields{
		"rate":     rate.String(),
		"users":    result.Users,
		"released": result.Released,
		"failed":   result.Failed,
		"cost":     time.Since(start).String(),
	})
	if err != nil {
		entry.WithError(err).Error("积分释放失败")
		return result, err
	}
	entry.Info("积分释放完成")
	return result, nil
}
