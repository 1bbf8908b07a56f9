package repository

import (
	"context"
	"errors"

	"hgnc/internal/model"

	"gorm.io/gorm"
)

var (
	ErrOrderNotFound      = errors.New("订单不存在")
	ErrOrderStatusInvalid = errors.New("订单状态不合法")
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// ListItems 返回订单的全部有效行
func (r *OrderRepository) ListItems(ctx context.Context, tx *gorm.DB, orderID int64) ([]*model.OrderItem, error) {
	if tx == nil {
		tx = r.db
	}
	var items []*model.OrderItem
	err := tx.WithContext(ctx).
		Where("order_id = ? AND alive = ?", orderID, true).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

// UpdateStatus 条件更新整单状态，当前状态不符时返回 ErrOrderStatusInvalid
func (r *OrderRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, orderID int64, fromStatus, toStatus string) error {
	if !model.CanTransitionTo(fromStatus, toStatus) {
		return ErrOrderStatusInvalid
	}

	if tx == nil {
		tx = r.db
	}

	result := tx.WithContext(ctx).
		Model(&model.OrderItem{}).
		Where("order_id = ? AND status = ? AND alive = ?", orderID, fromStatus, true).
		Update("status", toStatus)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrOrderStatusInvalid
	}

	return nil
}
