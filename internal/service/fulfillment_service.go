package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hgnc/internal/infrastructure/lock"
	"hgnc/internal/metrics"
	"hgnc/internal/model"
	"hgnc/internal/repository"
	"hgnc/pkg/idgen"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ============================================================================
// 确认收货结算
// ============================================================================
//
// 订单 HAS_DELIVER -> DONE 后依次执行三个步骤：
//   1. 积分入账（普通会员记给上级）
//   2. 累计消费（可能晋升 VIP）
//   3. 佣金结算
//
// 【步骤之间不回滚】每个步骤单独一个事务，事务内同时把该步骤标记为 DONE，
// 因此同一步骤最多生效一次。失败的步骤记为 FAILED 并继续执行后续步骤，
// 由 FulfillmentRetryJob 或再次调用 Received 向前补偿。
//
// ============================================================================

const (
	maxLastErrorLen = 512

	DefaultMaxAttempts = 5
)

type FulfillmentService struct {
	tx         Transactor
	orders     OrderRepository
	records    FulfillmentRepository
	ledger     *LedgerService
	commission *CommissionService
	locker     Locker
	props      PropertySource
	log        *logrus.Entry

	maxAttempts int
}

func NewFulfillmentService(
	tx Transactor,
	orders OrderRepository,
	records FulfillmentRepository,
	ledger *LedgerService,
	commission *CommissionService,
	locker Locker,
	props PropertySource,
	log *logrus.Logger,
) *FulfillmentService {
	return &FulfillmentService{
		tx:         tx,
		orders:     orders,
		records:    records,
		ledger:     ledger,
		commission: commission,
		locker:     locker,
		props:      props,
		log:        log.WithFields(logrus.Fields{"component": "service", "module": "fulfillment"}),

		maxAttempts: DefaultMaxAttempts,
	}
}

// WithMaxAttempts 补偿任务对同一订单的最大失败轮数，达到后需人工处理
func (s *FulfillmentService) WithMaxAttempts(n int) *FulfillmentService {
	if n > 0 {
		s.maxAttempts = n
	}
	return s
}

// Received 确认收货；已结算完成的订单直接返回记录，未完成的步骤继续执行
func (s *FulfillmentService) Received(ctx context.Context, orderID int64) (*model.FulfillmentRecord, error) {
	release, err := s.locker.Acquire(ctx, lock.FulfillmentKey(orderID), uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFulfillmentInProgress, err)
	}
	defer func() {
		if err := release(context.Background()); err != nil {
			s.log.WithError(err).WithField("order_id", orderID).Warn("释放结算锁失败")
		}
	}()

	record, err := s.records.GetByOrderID(ctx, nil, orderID)
	if err != nil {
		return nil, fmt.Errorf("查询结算记录失败: %w", err)
	}

	if record == nil {
		record, err = s.complete(ctx, orderID)
		if err != nil {
			return nil, err
		}
	}

	if record.Settled() {
		return record, nil
	}

	for _, step := range model.FulfillmentSteps {
		status := record.StepStatus(step)
		if status == model.StepStatusDone || status == model.StepStatusSkipped {
			continue
		}
		s.runStep(ctx, record, step)
	}

	if !record.Settled() {
		s.recordAttempt(ctx, record)
	}

	return record, nil
}

func (s *FulfillmentService) recordAttempt(ctx context.Context, record *model.FulfillmentRecord) {
	entry := s.log.WithField("order_id", record.OrderID)
	if err := s.records.IncrementAttempts(ctx, nil, record.ID); err != nil {
		entry.WithError(err).Error("累加结算失败次数失败")
		return
	}
	record.Attempts++

	if record.Abandoned(s.maxAttempts) {
		metrics.FulfillmentStepsTotal.WithLabelValues("record", "abandoned").Inc()
		entry.WithFields(logrus.Fields{
			"attempts":   record.Attempts,
			"last_error": record.LastError,
		}).Error("结算失败次数已达上限，停止自动重试")
	}
}

// complete 订单状态变更与结算记录创建在同一事务
func (s *FulfillmentService) complete(ctx context.Context, orderID int64) (*model.FulfillmentRecord, error) {
	items, err := s.orders.ListItems(ctx, nil, orderID)
	if err != nil {
		return nil, fmt.Errorf("查询订单失败: %w", err)
	}
	if len(items) == 0 {
		return nil, repository.ErrOrderNotFound
	}
	for _, item := range items {
		if item.Status != model.OrderStatusHasDeliver {
			return nil, fmt.Errorf("%w: 仅已发货待收货状态可确认收货, 当前 %s", repository.ErrOrderStatusInvalid, item.Status)
		}
	}

	price, points := model.OrderTotals(items, s.props.Properties().DefaultGoodsPointRate)

	record := &model.FulfillmentRecord{
		OrderID:        orderID,
		SettlementNo:   idgen.GenerateSettlementNo(),
		UserID:         items[0].UserID,
		Price:          price,
		Points:         points,
		PointsStep:     model.StepStatusPending,
		SpendStep:      model.StepStatusPending,
		CommissionStep: model.StepStatusPending,
	}

	err = s.tx.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.orders.UpdateStatus(ctx, tx, orderID, model.OrderStatusHasDeliver, model.OrderStatusDone); err != nil {
			return err
		}
		return s.records.Create(ctx, tx, record)
	})
	if err != nil {
		return nil, fmt.Errorf("确认收货失败: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"order_id":      orderID,
		"user_id":       record.UserID,
		"price":         price.String(),
		"points":        points,
		"settlement_no": record.SettlementNo,
	}).Info("订单已确认收货")
	return record, nil
}

func (s *FulfillmentService) skip(record *model.FulfillmentRecord, step model.FulfillmentStep) bool {
	switch step {
	case model.StepPoints:
		return record.Points == 0
	default:
		return !record.Price.IsPositive()
	}
}

func (s *FulfillmentService) runStep(ctx context.Context, record *model.FulfillmentRecord, step model.FulfillmentStep) {
	entry := s.log.WithFields(logrus.Fields{"order_id": record.OrderID, "step": string(step)})

	if s.skip(record, step) {
		if err := s.records.MarkStep(ctx, nil, record.ID, step, model.StepStatusSkipped, ""); err != nil {
			entry.WithError(err).Error("标记步骤跳过失败")
			return
		}
		record.SetStepStatus(step, model.StepStatusSkipped)
		metrics.FulfillmentStepsTotal.WithLabelValues(string(step), "skipped").Inc()
		return
	}

	var settlement *Settlement
	err := s.tx.Transaction(ctx, func(tx *gorm.DB) error {
		var err error
		switch step {
		case model.StepPoints:
			_, err = s.ledger.CreditPointsTx(ctx, tx, record.UserID, record.Points)
		case model.StepSpend:
			_, err = s.ledger.CreditSpendTx(ctx, tx, record.UserID, record.Price)
		case model.StepCommission:
			settlement, err = s.commission.ClearTx(ctx, tx, record.UserID, record.Price, record.SettlementNo)
		default:
			err = fmt.Errorf("未知结算步骤: %s", step)
		}
		if err != nil {
			return err
		}
		return s.records.MarkStep(ctx, tx, record.ID, step, model.StepStatusDone, "")
	})

	if err != nil {
		msg := truncate(err.Error(), maxLastErrorLen)
		if markErr := s.records.MarkStep(ctx, nil, record.ID, step, model.StepStatusFailed, msg); markErr != nil {
			entry.WithError(markErr).Error("标记步骤失败状态失败")
		}
		record.SetStepStatus(step, model.StepStatusFailed)
		record.LastError = msg
		metrics.FulfillmentStepsTotal.WithLabelValues(string(step), "failed").Inc()
		entry.WithError(err).Error("结算步骤执行失败，等待重试")
		return
	}

	record.SetStepStatus(step, model.StepStatusDone)
	metrics.FulfillmentStepsTotal.WithLabelValues(string(step), "done").Inc()
	if settlement != nil {
		s.commission.Observe(settlement)
	}
}

// RetryUnsettled 重试 olderThan 之前更新且未完成的结算，返回本次完成的数量
// 失败轮数达到上限的记录不再返回，Received 仍可手动推进
func (s *FulfillmentService) RetryUnsettled(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	records, err := s.records.ListUnsettled(ctx, time.Now().Add(-olderThan), s.maxAttempts, limit)
	if err != nil {
		return 0, fmt.Errorf("查询未完成结算失败: %w", err)
	}

	settled := 0
	for _, r := range records {
		record, err := s.Received(ctx, r.OrderID)
		if err != nil {
			if errors.Is(err, ErrFulfillmentInProgress) {
				continue
			}
			s.log.WithError(err).WithField("order_id", r.OrderID).Error("重试结算失败")
			continue
		}
		if record.Settled() {
			settled++
		}
	}
	return settled, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
