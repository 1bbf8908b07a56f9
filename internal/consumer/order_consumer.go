// Package consumer 订单确认收货事件消费
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"hgnc/internal/config"
	"hgnc/internal/model"
	"hgnc/internal/repository"
	"hgnc/internal/service"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	reconnectDelay       = 5 * time.Second
	maxReconnectAttempts = 10
	handleTimeout        = 30 * time.Second

	// 同一订单正在被其他实例结算时，延迟后再重新入队
	defaultBusyBackoff = 2 * time.Second
)

// Receiver 确认收货
type Receiver interface {
	Received(ctx context.Context, orderID int64) (*model.FulfillmentRecord, error)
}

// OrderReceivedMessage 上游订单系统发出的确认收货消息
type OrderReceivedMessage struct {
	OrderID int64  `json:"order_id"`
	EventID string `json:"event_id"`
}

type OrderConsumer struct {
	cfg      config.RabbitMQConfig
	log      *logrus.Entry
	receiver Receiver

	busyBackoff time.Duration

	conn    *amqp.Connection
	channel *amqp.Channel
	mu      sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewOrderConsumer(cfg config.RabbitMQConfig, receiver Receiver, log *logrus.Logger) (*OrderConsumer, error) {
	ctx, cancel := context.WithCancel(context.Background())

	c := &OrderConsumer{
		cfg:      cfg,
		log:      log.WithField("component", "order_consumer"),
		receiver: receiver,
		ctx:      ctx,
		cancel:   cancel,

		busyBackoff: defaultBusyBackoff,
	}

	if err := c.connect(); err != nil {
		cancel()
		return nil, err
	}
	return c, nil
}

func (c *OrderConsumer) connect() error {
	dsn := fmt.Sprintf("amqp://%s:%s@%s:%d%s", c.cfg.User, c.cfg.Password, c.cfg.Host, c.cfg.Port, c.cfg.VHost)

	conn, err := amqp.Dial(dsn)
	if err != nil {
		return fmt.Errorf("连接 RabbitMQ 失败: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("打开 channel 失败: %w", err)
	}

	if _, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("声明队列失败: %w", err)
	}

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("设置 QoS 失败: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = ch
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{"host": c.cfg.Host, "queue": c.cfg.Queue}).Info("RabbitMQ 连接成功")

	go c.monitorConnection(conn)
	return nil
}

func (c *OrderConsumer) monitorConnection(conn *amqp.Connection) {
	notifyClose := conn.NotifyClose(make(chan *amqp.Error, 1))

	select {
	case err := <-notifyClose:
		if err != nil {
			c.log.WithError(err).Error("RabbitMQ 连接异常断开")
			c.reconnect()
		}
	case <-c.ctx.Done():
	}
}

func (c *OrderConsumer) reconnect() {
	c.mu.Lock()
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		if err := c.connect(); err == nil {
			go func() {
				if err := c.Start(c.ctx); err != nil && c.ctx.Err() == nil {
					c.log.WithError(err).Error("重连后启动消费失败")
				}
			}()
			return
		}

		delay := reconnectDelay * time.Duration(attempt)
		c.log.WithFields(logrus.Fields{"attempt": attempt, "delay": delay.String()}).Warn("重连失败，稍后重试")

		select {
		case <-time.After(delay):
		case <-c.ctx.Done():
			return
		}
	}

	c.log.Error("超过最大重连次数，放弃重连")
}

// Start 阻塞直到 ctx 取消
func (c *OrderConsumer) Start(ctx context.Context) error {
	c.mu.RLock()
	channel := c.channel
	c.mu.RUnlock()

	if channel == nil {
		return errors.New("channel 未初始化")
	}

	msgs, err := channel.Consume(c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("开始消费失败: %w", err)
	}

	workers := c.cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	c.log.WithField("workers", workers).Info("启动消费协程")

	for i := 0; i < workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx, msgs, i)
	}

	<-ctx.Done()
	c.wg.Wait()
	return nil
}

func (c *OrderConsumer) worker(ctx context.Context, msgs <-chan amqp.Delivery, workerID int) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				c.log.WithField("worker_id", workerID).Warn("消息通道已关闭")
				return
			}
			c.handle(ctx, msg)
		}
	}
}

// handle 成功或不可重试的错误确认消息，其他错误重新入队
func (c *OrderConsumer) handle(ctx context.Context, msg amqp.Delivery) {
	ctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	var payload OrderReceivedMessage
	if err := json.Unmarshal(msg.Body, &payload); err != nil || payload.OrderID <= 0 {
		c.log.WithField("body", string(msg.Body)).Error("消息格式错误，丢弃")
		_ = msg.Nack(false, false)
		return
	}

	entry := c.log.WithFields(logrus.Fields{"order_id": payload.OrderID, "event_id": payload.EventID})

	record, err := c.receiver.Received(ctx, payload.OrderID)
	switch {
	case err == nil:
		entry.WithField("settled", record.Settled()).Debug("确认收货处理完成")
		_ = msg.Ack(false)
	case permanent(err):
		entry.WithError(err).Warn("确认收货失败，丢弃消息")
		_ = msg.Nack(false, false)
	case errors.Is(err, service.ErrFulfillmentInProgress):
		entry.Info("订单正在结算，延迟后重新入队")
		c.backoff(ctx)
		_ = msg.Nack(false, true)
	default:
		entry.WithError(err).Warn("确认收货失败，重新入队")
		_ = msg.Nack(false, true)
	}
}

// backoff 等待 busyBackoff 或 ctx 结束
func (c *OrderConsumer) backoff(ctx context.Context) {
	if c.busyBackoff <= 0 {
		return
	}
	timer := time.NewTimer(c.busyBackoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func permanent(err error) bool {
	return errors.Is(err, repository.ErrOrderNotFound) ||
		errors.Is(err, repository.ErrOrderStatusInvalid)
}

func (c *OrderConsumer) Close() {
	c.cancel()
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.log.Info("消费者已关闭")
}

var _ Receiver = (*service.FulfillmentService)(nil)
