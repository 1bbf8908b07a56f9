package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"hgnc/internal/metrics"
	"hgnc/internal/model"
	"hgnc/internal/promotion"
	"hgnc/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ============================================================================
// 积分 / 消费 / 金币
// ============================================================================
//
// 所有余额变动都在事务内先行锁再原子增量更新，并写入对应日志流：
//   积分    -> t_log_point
//   消费    -> t_log_cost
//   其他    -> t_log
//
// ============================================================================

type LedgerService struct {
	tx     Transactor
	users  UserRepository
	ledger LedgerRepository
	props  PropertySource
	log    *logrus.Entry
	now    func() time.Time

	decayBatchSize int
}

func NewLedgerService(tx Transactor, users UserRepository, ledger LedgerRepository, props PropertySource, log *logrus.Logger) *LedgerService {
	return &LedgerService{
		tx:             tx,
		users:          users,
		ledger:         ledger,
		props:          props,
		log:            log.WithFields(logrus.Fields{"component": "service", "module": "ledger"}),
		now:            time.Now,
		decayBatchSize: 200,
	}
}

func (s *LedgerService) WithDecayBatchSize(n int) *LedgerService {
	if n > 0 {
		s.decayBatchSize = n
	}
	return s
}

func transition(before, after fmt.Stringer) string {
	return before.String() + "=>" + after.String()
}

// ============================================================================
// 积分
// ============================================================================

type CreditResult struct {
	RecipientID string `json:"recipient_id"`
	Redirected  bool   `json:"redirected"`
	Before      int64  `json:"before"`
	After       int64  `json:"after"`
}

func (s *LedgerService) CreditPoints(ctx context.Context, userID string, amount int64) (*CreditResult, error) {
	var result *CreditResult
	err := s.tx.Transaction(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = s.CreditPointsTx(ctx, tx, userID, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CreditPointsTx 普通会员的积分记到存活的上级名下，找不到上级时记给自己
// amount 为 0 时不写入，负数拒绝
func (s *LedgerService) CreditPointsTx(ctx context.Context, tx *gorm.DB, userID string, amount int64) (*CreditResult, error) {
	if amount < 0 {
		return nil, ErrInvalidAmount
	}

	user, err := s.users.GetByID(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	recipientID, redirected, err := s.pointRecipient(ctx, user)
	if err != nil {
		return nil, err
	}

	recipient, err := s.users.GetByIDForUpdate(ctx, tx, recipientID)
	if err != nil {
		return nil, err
	}

	delta := model.BalanceDelta{ComPoint: amount}
	result := &CreditResult{
		RecipientID: recipient.ID,
		Redirected:  redirected,
		Before:      recipient.ComPoint,
		After:       delta.Apply(*recipient).ComPoint,
	}
	if delta.IsZero() {
		return result, nil
	}

	if err := s.users.IncrementBalance(ctx, tx, recipient.ID, delta); err != nil {
		return nil, fmt.Errorf("更新积分失败: %w", err)
	}

	err = s.ledger.Append(ctx, tx, model.StreamPoint, &model.LedgerEntry{
		Type:        model.LedgerTypePointAdd,
		Executor:    userID,
		Influencer:  recipient.ID,
		Description: transition(decimal.NewFromInt(result.Before), decimal.NewFromInt(result.After)),
	})
	if err != nil {
		return nil, fmt.Errorf("记录积分日志失败: %w", err)
	}

	return result, nil
}

func (s *LedgerService) pointRecipient(ctx context.Context, user *model.User) (string, bool, error) {
	if !promotion.RedirectsPoints(user.Role) || !user.HasParent() {
		return user.ID, false, nil
	}
	parent, err := s.users.FindByReferralCode(ctx, user.ParentCode)
	if err != nil {
		return "", false, fmt.Errorf("查询上级失败: %w", err)
	}
	if parent == nil || !parent.Alive || parent.ID == user.ID {
		return user.ID, false, nil
	}
	return parent.ID, true, nil
}

// ============================================================================
// 消费
// ============================================================================

type SpendResult struct {
	Before   decimal.Decimal `json:"before"`
	After    decimal.Decimal `json:"after"`
	Role     model.Role      `json:"role"`
	Promoted bool            `json:"promoted"`
}

func (s *LedgerService) CreditSpend(ctx context.Context, userID string, amount decimal.Decimal) (*SpendResult, error) {
	var result *SpendResult
	err := s.tx.Transaction(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = s.CreditSpendTx(ctx, tx, userID, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CreditSpendTx 累加消费额，同一事务内判断是否晋升 VIP
func (s *LedgerService) CreditSpendTx(ctx context.Context, tx *gorm.DB, userID string, amount decimal.Decimal) (*SpendResult, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	user, err := s.users.GetByIDForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if !user.Alive {
		return nil, repository.ErrUserNotFound
	}

	delta := model.BalanceDelta{Cost: amount}
	if err := s.users.IncrementBalance(ctx, tx, user.ID, delta); err != nil {
		return nil, fmt.Errorf("更新消费额失败: %w", err)
	}

	result := &SpendResult{
		Before: user.Cost,
		After:  delta.Apply(*user).Cost,
	}
	result.Role, result.Promoted = promotion.Evaluate(user.Role, result.After, s.props.Properties().VIPThreshold)

	err = s.ledger.Append(ctx, tx, model.StreamCost, &model.LedgerEntry{
		Type:        model.LedgerTypeConsumptionAdd,
		Executor:    userID,
		Influencer:  userID,
		Description: amount.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("记录消费日志失败: %w", err)
	}

	if !result.Promoted {
		return result, nil
	}

	if err := s.users.UpdateRole(ctx, tx, user.ID, result.Role); err != nil {
		return nil, fmt.Errorf("更新角色失败: %w", err)
	}
	err = s.ledger.Append(ctx, tx, model.StreamGeneral, &model.LedgerEntry{
		Type:        model.LedgerTypeRolePromote,
		Executor:    model.ExecutorSystem,
		Influencer:  userID,
		Description: transition(user.Role, result.Role),
	})
	if err != nil {
		return nil, fmt.Errorf("记录晋升日志失败: %w", err)
	}

	s.log.WithFields(logrus.Fields{"user_id": userID, "cost": result.After.String()}).Info("用户晋升为 VIP")
	return result, nil
}

// ============================================================================
// 金币划转
// ============================================================================

type TransferResult struct {
	FromID     string          `json:"from_id"`
	ToID       string          `json:"to_id"`
	Amount     decimal.Decimal `json:"amount"`
	FromBefore decimal.Decimal `json:"from_before"`
	FromAfter  decimal.Decimal `json:"from_after"`
	ToBefore   decimal.Decimal `json:"to_before"`
	ToAfter    decimal.Decimal `json:"to_after"`
}

// TransferGoldByCode 按邀请码划转
func (s *LedgerService) TransferGoldByCode(ctx context.Context, fromCode, toCode string, amount decimal.Decimal) (*TransferResult, error) {
	from, err := s.aliveByCode(ctx, fromCode)
	if err != nil {
		return nil, err
	}
	to, err := s.aliveByCode(ctx, toCode)
	if err != nil {
		return nil, err
	}
	return s.TransferGold(ctx, from.ID, to.ID, amount)
}

func (s *LedgerService) aliveByCode(ctx context.Context, code string) (*model.User, error) {
	if code == "" {
		return nil, repository.ErrUserNotFound
	}
	u, err := s.users.FindByReferralCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if u == nil || !u.Alive {
		return nil, repository.ErrUserNotFound
	}
	return u, nil
}

// TransferGold 余额校验在任何写入之前完成，两行更新与两条日志在同一事务
func (s *LedgerService) TransferGold(ctx context.Context, fromID, toID string, amount decimal.Decimal) (*TransferResult, error) {
	result, err := s.transferGold(ctx, fromID, toID, amount)
	outcome := "success"
	if err != nil {
		outcome = "failed"
		if errors.Is(err, repository.ErrBalanceNotEnough) {
			outcome = "rejected"
		}
	}
	metrics.GoldTransfersTotal.WithLabelValues(outcome).Inc()
	return result, err
}

func (s *LedgerService) transferGold(ctx context.Context, fromID, toID string, amount decimal.Decimal) (*TransferResult, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if fromID == toID {
		return nil, ErrSelfTransfer
	}

	from, err := s.users.GetByID(ctx, nil, fromID)
	if err != nil {
		return nil, err
	}
	if _, err := s.users.GetByID(ctx, nil, toID); err != nil {
		return nil, err
	}
	if from.Gold.LessThan(amount) {
		return nil, repository.ErrBalanceNotEnough
	}

	result := &TransferResult{FromID: fromID, ToID: toID, Amount: amount}

	err = s.tx.Transaction(ctx, func(tx *gorm.DB) error {
		// 固定加锁顺序
		ids := []string{fromID, toID}
		sort.Strings(ids)
		locked := make(map[string]*model.User, 2)
		for _, id := range ids {
			u, err := s.users.GetByIDForUpdate(ctx, tx, id)
			if err != nil {
				return err
			}
			if !u.Alive {
				return repository.ErrUserNotFound
			}
			locked[id] = u
		}

		if err := s.users.DeductGold(ctx, tx, fromID, amount); err != nil {
			return err
		}
		if err := s.users.IncrementBalance(ctx, tx, toID, model.BalanceDelta{Gold: amount}); err != nil {
			return err
		}

		result.FromBefore = locked[fromID].Gold
		result.FromAfter = result.FromBefore.Sub(amount)
		result.ToBefore = locked[toID].Gold
		result.ToAfter = result.ToBefore.Add(amount)

		return s.ledger.Append(ctx, tx, model.StreamGeneral,
			&model.LedgerEntry{
				Type:        model.LedgerTypeGoldTransferOut,
				Executor:    fromID,
				Influencer:  fromID,
				Description: transition(result.FromBefore, result.FromAfter),
			},
			&model.LedgerEntry{
				Type:        model.LedgerTypeGoldTransferIn,
				Executor:    fromID,
				Influencer:  toID,
				Description: transition(result.ToBefore, result.ToAfter),
			},
		)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"from":   fromID,
		"to":     toID,
		"amount": amount.String(),
	}).Info("金币划转成功")
	return result, nil
}

// DailyReleasedGold 当天（服务器本地时区零点起）积分释放的金币总数
func (s *LedgerService) DailyReleasedGold(ctx context.Context, userID string) (decimal.Decimal, error) {
	now := s.now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 0, 1)
	return s.ledger.SumByType(ctx, model.StreamPoint, userID, model.LedgerTypeGoldRelease, start, end)
}

// ============================================================================
// 积分释放
// ============================================================================

type DecayResult struct {
	Users    int   `json:"users"`
	Released int64 `json:"released"`
	Failed   int   `json:"failed"`
}

// DecayPoints 每个用户释放 floor(积分 × rate) 的积分为等量金币，单个用户失败不影响其他用户
func (s *LedgerService) DecayPoints(ctx context.Context, rate decimal.Decimal) (*DecayResult, error) {
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, ErrInvalidRate
	}

	result := &DecayResult{}
	if rate.IsZero() {
		return result, nil
	}

	afterID := ""
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		users, err := s.users.ListPointHolders(ctx, afterID, s.decayBatchSize)
		if err != nil {
			return result, fmt.Errorf("查询积分用户失败: %w", err)
		}
		if len(users) == 0 {
			break
		}

		for _, u := range users {
			released, err := s.decayUser(ctx, u.ID, rate)
			if err != nil {
				result.Failed++
				s.log.WithError(err).WithField("user_id", u.ID).Error("积分释放失败")
				continue
			}
			if released > 0 {
				result.Users++
				result.Released += released
				metrics.PointDecayUsersTotal.Inc()
			}
		}
		afterID = users[len(users)-1].ID
	}

	return result, nil
}

func (s *LedgerService) decayUser(ctx context.Context, userID string, rate decimal.Decimal) (int64, error) {
	var released int64
	err := s.tx.Transaction(ctx, func(tx *gorm.DB) error {
		u, err := s.users.GetByIDForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		released = decimal.NewFromInt(u.ComPoint).Mul(rate).Floor().IntPart()
		if released <= 0 {
			return nil
		}

		delta := model.BalanceDelta{ComPoint: -released, Gold: decimal.NewFromInt(released)}
		if err := s.users.IncrementBalance(ctx, tx, userID, delta); err != nil {
			return err
		}
		return s.ledger.Append(ctx, tx, model.StreamPoint, &model.LedgerEntry{
			Type:        model.LedgerTypeGoldRelease,
			Executor:    model.ExecutorSystem,
			Influencer:  userID,
			Description: decimal.NewFromInt(released).String(),
		})
	})
	return released, err
}

// ============================================================================
// 日志查询
// ============================================================================

type HistoryQuery struct {
	UserID   string
	Stream   model.Stream
	Types    []string
	Start    time.Time
	End      time.Time
	Page     int
	PageSize int
}

type HistoryPage struct {
	List     []*model.LedgerEntry `json:"list"`
	Total    int64                `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
}

const maxPageSize = 100

func (s *LedgerService) History(ctx context.Context, q HistoryQuery) (*HistoryPage, error) {
	if q.Page < 1 || q.PageSize < 1 || q.PageSize > maxPageSize {
		return nil, ErrInvalidPage
	}
	if !q.Start.IsZero() && !q.End.IsZero() && !q.Start.Before(q.End) {
		return nil, ErrInvalidTimeRange
	}
	if q.Stream == "" {
		q.Stream = model.StreamPoint
	}
	if !q.Stream.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStream, q.Stream)
	}

	list, total, err := s.ledger.List(ctx, model.LedgerQuery{
		Stream:     q.Stream,
		Influencer: q.UserID,
		Types:      q.Types,
		Start:      q.Start,
		End:        q.End,
		Page:       q.Page,
		PageSize:   q.PageSize,
	})
	if err != nil {
		return nil, err
	}

	return &HistoryPage{List: list, Total: total, Page: q.Page, PageSize: q.PageSize}, nil
}
