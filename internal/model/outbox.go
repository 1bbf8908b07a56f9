package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// OutboxMessage 本地消息表，与业务数据同一事务写入，由 OutboxSender 异步投递到 Kafka
type OutboxMessage struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageKey string    `gorm:"type:varchar(64);not null" json:"message_key"`
	Topic      string    `gorm:"type:varchar(64);not null" json:"topic"`
	Payload    string    `gorm:"type:text;not null" json:"payload"`
	Status     string    `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	RetryCount int       `gorm:"not null;default:0" json:"retry_count"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "t_outbox_message"
}

// CommissionSettledEvent 佣金结算完成事件
type CommissionSettledEvent struct {
	SettlementNo string             `json:"settlement_no"`
	PayerID      string             `json:"payer_id"`
	Amount       decimal.Decimal    `json:"amount"`
	Shares       []CommissionShared `json:"shares"`
	SettledAt    time.Time          `json:"settled_at"`
}

type CommissionShared struct {
	Slot   string          `json:"slot"`
	UserID string          `json:"user_id"`
	Amount decimal.Decimal `json:"amount"`
}
