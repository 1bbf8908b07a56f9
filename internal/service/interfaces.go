package service

import (
	"context"
	"time"

	"hgnc/internal/config"
	"hgnc/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Transactor fn 返回错误时整体回滚；tx 需传给各仓储方法
type Transactor interface {
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type UserRepository interface {
	Create(ctx context.Context, tx *gorm.DB, user *model.User) error
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*model.User, error)
	GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id string) (*model.User, error)
	GetByPhone(ctx context.Context, phone string) (*model.User, error)
	FindByReferralCode(ctx context.Context, code string) (*model.User, error)
	ListByParentCodes(ctx context.Context, codes []string) ([]*model.User, error)
	IncrementBalance(ctx context.Context, tx *gorm.DB, id string, delta model.BalanceDelta) error
	DeductGold(ctx context.Context, tx *gorm.DB, id string, amount decimal.Decimal) error
	UpdateRole(ctx context.Context, tx *gorm.DB, id string, role model.Role) error
	UpdatePassword(ctx context.Context, tx *gorm.DB, id, hash string) error
	UpdatePhone(ctx context.Context, tx *gorm.DB, id, phone string) error
	SetAlive(ctx context.Context, tx *gorm.DB, id string, alive bool) error
	ListPointHolders(ctx context.Context, afterID string, limit int) ([]*model.User, error)
}

type LedgerRepository interface {
	Append(ctx context.Context, tx *gorm.DB, stream model.Stream, entries ...*model.LedgerEntry) error
	SumByType(ctx context.Context, stream model.Stream, influencer, typ string, start, end time.Time) (decimal.Decimal, error)
	List(ctx context.Context, q model.LedgerQuery) ([]*model.LedgerEntry, int64, error)
}

type OrderRepository interface {
	ListItems(ctx context.Context, tx *gorm.DB, orderID int64) ([]*model.OrderItem, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, orderID int64, fromStatus, toStatus string) error
}

type FulfillmentRepository interface {
	Create(ctx context.Context, tx *gorm.DB, record *model.FulfillmentRecord) error
	GetByOrderID(ctx context.Context, tx *gorm.DB, orderID int64) (*model.FulfillmentRecord, error)
	MarkStep(ctx context.Context, tx *gorm.DB, id int64, step model.FulfillmentStep, status, lastErr string) error
	IncrementAttempts(ctx context.Context, tx *gorm.DB, id int64) error
	ListUnsettled(ctx context.Context, before time.Time, maxAttempts, limit int) ([]*model.FulfillmentRecord, error)
}

type OutboxRepository interface {
	CreateEvent(ctx context.Context, tx *gorm.DB, topic, key string, event interface{}) error
}

// PropertySource 运营参数来源，每次调用返回最新快照
type PropertySource interface {
	Properties() config.Properties
}

//go:generate mockgen -destination=mocks/mock_locker.go -package=mocks hgnc/internal/service Locker

// Locker 分布式锁，返回释放函数
type Locker interface {
	Acquire(ctx context.Context, key, owner string) (func(context.Context) error, error)
}
