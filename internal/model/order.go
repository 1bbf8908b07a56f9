package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderStatusWaitPay    = "WAIT_PAY"
	OrderStatusAlreadyPay = "ALREADY_PAY"
	OrderStatusHasDeliver = "HAS_DELIVER"
	OrderStatusDone       = "DONE"
	OrderStatusClosed     = "CLOSED"
)

var ValidStatusTransitions = map[string][]string{
	OrderStatusWaitPay:    {OrderStatusAlreadyPay, OrderStatusClosed},
	OrderStatusAlreadyPay: {OrderStatusHasDeliver},
	OrderStatusHasDeliver: {OrderStatusDone},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// OrderItem 订单行，同一订单的多行共享 order_id
// point_rate 为 0 时使用默认积分比例
type OrderItem struct {
	ID        int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID   int64           `gorm:"index;not null" json:"order_id"`
	UserID    string          `gorm:"type:varchar(36);index;not null" json:"user_id"`
	GoodsID   string          `gorm:"type:varchar(36);not null" json:"goods_id"`
	Price     decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"price"`
	PointRate decimal.Decimal `gorm:"type:decimal(10,4);not null;default:0" json:"point_rate"`
	Status    string          `gorm:"type:varchar(20);index;not null" json:"status"`
	Alive     bool            `gorm:"not null;default:true" json:"alive"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OrderItem) TableName() string {
	return "t_order"
}

// OrderTotals 订单总额与应得积分
// 积分 = round(Σ price × rate)，rate 为 0 时取 defaultRate
func OrderTotals(items []*OrderItem, defaultRate decimal.Decimal) (decimal.Decimal, int64) {
	price := decimal.Zero
	point := decimal.Zero
	for _, item := range items {
		rate := item.PointRate
		if rate.IsZero() {
			rate = defaultRate
		}
		price = price.Add(item.Price)
		point = point.Add(item.Price.Mul(rate))
	}
	return price, point.Round(0).IntPart()
}
