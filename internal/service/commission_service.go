package service

import (
	"context"
	"fmt"
	"time"

	"hgnc/internal/commission"
	"hgnc/internal/metrics"
	"hgnc/internal/model"
	"hgnc/internal/referral"
	"hgnc/pkg/idgen"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type CommissionService struct {
	tx     Transactor
	users  UserRepository
	ledger LedgerRepository
	outbox OutboxRepository
	walker *referral.Walker
	props  PropertySource
	topic  string
	log    *logrus.Entry
}

func NewCommissionService(
	tx Transactor,
	users UserRepository,
	ledger LedgerRepository,
	outbox OutboxRepository,
	walker *referral.Walker,
	props PropertySource,
	topic string,
	log *logrus.Logger,
) *CommissionService {
	return &CommissionService{
		tx:     tx,
		users:  users,
		ledger: ledger,
		outbox: outbox,
		walker: walker,
		props:  props,
		topic:  topic,
		log:    log.WithFields(logrus.Fields{"component": "service", "module": "commission"}),
	}
}

// Settlement 一次佣金结算的结果
type Settlement struct {
	SettlementNo string              `json:"settlement_no"`
	PayerID      string              `json:"payer_id"`
	Amount       decimal.Decimal     `json:"amount"`
	Payouts      []commission.Payout `json:"-"`
	Credits      []commission.Credit `json:"credits"`
}

// Plan 计算各槽位的收款人与金额，不写库
func (s *CommissionService) Plan(ctx context.Context, tx *gorm.DB, payerID string, amount decimal.Decimal) ([]commission.Payout, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	payer, err := s.users.GetByID(ctx, tx, payerID)
	if err != nil {
		return nil, err
	}

	ancestors, err := s.walker.Ancestors(ctx, payer)
	if err != nil {
		return nil, err
	}

	assignment := commission.Resolve(payer, commission.Partition(ancestors))
	return commission.Split(assignment, amount, commission.RatesFrom(s.props.Properties())), nil
}

// Clear 为 payer 的一笔消费结算佣金
func (s *CommissionService) Clear(ctx context.Context, payerID string, amount decimal.Decimal) (*Settlement, error) {
	var settlement *Settlement
	err := s.tx.Transaction(ctx, func(tx *gorm.DB) error {
		var err error
		settlement, err = s.ClearTx(ctx, tx, payerID, amount, idgen.GenerateSettlementNo())
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Observe(settlement)
	return settlement, nil
}

// ClearTx 同一用户的多个槽位合并为一次入账，日志按槽位逐条记录；任一入账失败整体回滚
func (s *CommissionService) ClearTx(ctx context.Context, tx *gorm.DB, payerID string, amount decimal.Decimal, settlementNo string) (*Settlement, error) {
	payouts, err := s.Plan(ctx, tx, payerID, amount)
	if err != nil {
		return nil, err
	}

	settlement := &Settlement{
		SettlementNo: settlementNo,
		PayerID:      payerID,
		Amount:       amount,
		Payouts:      payouts,
		Credits:      commission.Net(payouts),
	}
	if len(payouts) == 0 {
		return settlement, nil
	}

	for _, c := range settlement.Credits {
		if c.Amount.IsZero() {
			continue
		}
		if err := s.users.IncrementBalance(ctx, tx, c.UserID, model.BalanceDelta{Remain: c.Amount}); err != nil {
			return nil, fmt.Errorf("佣金入账失败 user=%s: %w", c.UserID, err)
		}
	}

	entries := make([]*model.LedgerEntry, 0, len(payouts))
	shares := make([]model.CommissionShared, 0, len(payouts))
	for _, p := range payouts {
		entries = append(entries, &model.LedgerEntry{
			Type:        p.Slot.LedgerType(),
			Executor:    payerID,
			Influencer:  p.User.ID,
			Description: p.Amount.StringFixed(3),
		})
		shares = append(shares, model.CommissionShared{
			Slot:   p.Slot.String(),
			UserID: p.User.ID,
			Amount: p.Amount,
		})
	}
	if err := s.ledger.Append(ctx, tx, model.StreamGeneral, entries...); err != nil {
		return nil, fmt.Errorf("记录佣金日志失败: %w", err)
	}

	event := model.CommissionSettledEvent{
		SettlementNo: settlementNo,
		PayerID:      payerID,
		Amount:       amount,
		Shares:       shares,
		SettledAt:    time.Now(),
	}
	if err := s.outbox.CreateEvent(ctx, tx, s.topic, settlementNo, event); err != nil {
		return nil, fmt.Errorf("写入结算消息失败: %w", err)
	}

	return settlement, nil
}

// Observe 事务提交后记录指标与日志
func (s *CommissionService) Observe(settlement *Settlement) {
	if settlement == nil {
		return
	}
	for _, p := range settlement.Payouts {
		metrics.CommissionPayoutsTotal.WithLabelValues(p.Slot.String()).Inc()
	}
	s.log.WithFields(logrus.Fields{
		"settlement_no": settlement.SettlementNo,
		"payer":         settlement.PayerID,
		"amount":        settlement.Amount.String(),
		"slots":         len(settlement.Payouts),
		"recipients":    len(settlement.Credits),
	}).Info("佣金结算完成")
}
