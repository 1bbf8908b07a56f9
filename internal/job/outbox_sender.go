package job

import (
	"context"
	"time"

	"hgnc/internal/model"

	"github.com/sirupsen/logrus"
)

//go:generate mockgen -destination=mocks/mock_publisher.go -package=mocks hgnc/internal/job Publisher

// Publisher 消息发送方，Kafka 生产者实现
type Publisher interface {
	SendMessage(topic, key, value string) error
}

// OutboxStore 本地消息表
type OutboxStore interface {
	GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error)
	MarkAsSent(ctx context.Context, id int64) error
	IncrementRetryCount(ctx context.Context, id int64) error
	MarkAsFailed(ctx context.Context, id int64) error
}

// OutboxSender 轮询本地消息表，把结算事件投递到消息队列
type OutboxSender struct {
	store     OutboxStore
	publisher Publisher
	maxRetry  int
	log       *logrus.Entry
	stopCh    chan struct{}
	interval  time.Duration
	batchSize int
}

func NewOutboxSender(store OutboxStore, publisher Publisher, maxRetry int, log *logrus.Logger) *OutboxSender {
	if maxRetry <= 0 {
		maxRetry = 1
	}
	return &OutboxSender{
		store:     store,
		publisher: publisher,
		maxRetry:  maxRetry,
		log:       log.WithField("job", "outbox_sender"),
		stopCh:    make(chan struct{}),
		interval:  500 * time.Millisecond,
		batchSize: 100,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	s.log.Info("消息发送任务启动")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("收到停止信号，任务退出")
			return
		case <-s.stopCh:
			s.log.Info("任务停止")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

func (s *OutboxSender) processPendingMessages(ctx context.Context) int {
	messages, err := s.store.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		s.log.WithError(err).Error("查询消息失败")
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if s.sendMessage(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) bool {
	entry := s.log.WithFields(logrus.Fields{"id": msg.ID, "topic": msg.Topic, "key": msg.MessageKey})

	err := s.publisher.SendMessage(msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		if updateErr := s.store.MarkAsSent(ctx, msg.ID); updateErr != nil {
			entry.WithError(updateErr).Error("更新消息状态失败")
		} else {
			entry.Debug("消息发送成功")
		}
		return true
	}

	entry.WithError(err).Warn("消息发送失败")

	if err := s.store.IncrementRetryCount(ctx, msg.ID); err != nil {
		entry.WithError(err).Error("增加重试次数失败")
	}

	if msg.RetryCount+1 >= s.maxRetry {
		if err := s.store.MarkAsFailed(ctx, msg.ID); err != nil {
			entry.WithError(err).Error("标记消息失败状态失败")
		} else {
			entry.Error("消息超过最大重试次数，标记为失败")
		}
	}
	return false
}
