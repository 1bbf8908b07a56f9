package job

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Retrier 补偿未完成的确认收货结算
type Retrier interface {
	RetryUnsettled(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// FulfillmentRetryJob 定期重试失败的结算步骤
type FulfillmentRetryJob struct {
	retrier   Retrier
	log       *logrus.Entry
	stopCh    chan struct{}
	interval  time.Duration
	olderThan time.Duration
	batchSize int
}

func NewFulfillmentRetryJob(retrier Retrier, interval time.Duration, log *logrus.Logger) *FulfillmentRetryJob {
	if interval <= 0 {
		interval = time.Minute
	}
	return &FulfillmentRetryJob{
		retrier:   retrier,
		log:       log.WithField("job", "fulfillment_retry"),
		stopCh:    make(chan struct{}),
		interval:  interval,
		olderThan: interval,
		batchSize: 50,
	}
}

func (j *FulfillmentRetryJob) Start(ctx context.Context) {
	j.log.Info("结算补偿任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info("收到停止信号，任务退出")
			return
		case <-j.stopCh:
			j.log.Info("任务停止")
			return
		case <-ticker.C:
			j.retry(ctx)
		}
	}
}

func (j *FulfillmentRetryJob) Stop() {
	close(j.stopCh)
}

func (j *FulfillmentRetryJob) retry(ctx context.Context) int {
	settled, err := j.retrier.RetryUnsettled(ctx, j.olderThan, j.batchSize)
	if err != nil {
		j.log.WithError(err).Error("结算补偿失败")
		return 0
	}
	if settled > 0 {
		j.log.WithField("settled", settled).Info("补偿完成结算")
	}
	return settled
}
