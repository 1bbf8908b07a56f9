package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// FulfillmentStep 确认收货后的结算步骤，按顺序执行
type FulfillmentStep string

const (
	StepPoints     FulfillmentStep = "points"
	StepSpend      FulfillmentStep = "spend"
	StepCommission FulfillmentStep = "commission"
)

var FulfillmentSteps = []FulfillmentStep{StepPoints, StepSpend, StepCommission}

func (s FulfillmentStep) Column() string {
	return string(s) + "_step"
}

const (
	StepStatusPending = "PENDING"
	StepStatusDone    = "DONE"
	StepStatusFailed  = "FAILED"
	StepStatusSkipped = "SKIPPED"
)

// FulfillmentRecord 订单结算记录，每个订单一条
// 每个步骤各自提交，重试时只执行未完成的步骤
type FulfillmentRecord struct {
	ID             int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID        int64           `gorm:"uniqueIndex;not null" json:"order_id"`
	SettlementNo   string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"settlement_no"`
	UserID         string          `gorm:"type:varchar(36);index;not null" json:"user_id"`
	Price          decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"price"`
	Points         int64           `gorm:"not null" json:"points"`
	PointsStep     string          `gorm:"type:varchar(20);not null;default:PENDING" json:"points_step"`
	SpendStep      string          `gorm:"type:varchar(20);not null;default:PENDING" json:"spend_step"`
	CommissionStep string          `gorm:"type:varchar(20);not null;default:PENDING" json:"commission_step"`
	LastError      string          `gorm:"type:varchar(512)" json:"last_error"`
	Attempts       int             `gorm:"not null;default:0;index" json:"attempts"`
	CreatedAt      time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (FulfillmentRecord) TableName() string {
	return "t_fulfillment"
}

func (r *FulfillmentRecord) StepStatus(step FulfillmentStep) string {
	switch step {
	case StepPoints:
		return r.PointsStep
	case StepSpend:
		return r.SpendStep
	case StepCommission:
		return r.CommissionStep
	}
	return ""
}

func (r *FulfillmentRecord) SetStepStatus(step FulfillmentStep, status string) {
	switch step {
	case StepPoints:
		r.PointsStep = status
	case StepSpend:
		r.SpendStep = status
	case StepCommission:
		r.CommissionStep = status
	}
}

// Abandoned 失败次数达到上限，补偿任务不再处理
func (r *FulfillmentRecord) Abandoned(maxAttempts int) bool {
	return !r.Settled() && r.Attempts >= maxAttempts
}

// Settled 所有步骤都已完成或跳过
func (r *FulfillmentRecord) Settled() bool {
	for _, step := range FulfillmentSteps {
		status := r.StepStatus(step)
		if status != StepStatusDone && status != StepStatusSkipped {
			return false
		}
	}
	return true
}
