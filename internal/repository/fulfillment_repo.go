package repository

import (
	"context"
	"errors"
	"time"

	"hgnc/internal/model"

	"gorm.io/gorm"
)

var ErrRecordNotFound = errors.New("结算记录不存在")

type FulfillmentRepository struct {
	db *gorm.DB
}

func NewFulfillmentRepository(db *gorm.DB) *FulfillmentRepository {
	return &FulfillmentRepository{db: db}
}

func (r *FulfillmentRepository) Create(ctx context.Context, tx *gorm.DB, record *model.FulfillmentRecord) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(record).Error
}

// GetByOrderID 不存在时返回 nil, nil
func (r *FulfillmentRepository) GetByOrderID(ctx context.Context, tx *gorm.DB, orderID int64) (*model.FulfillmentRecord, error) {
	if tx == nil {
		tx = r.db
	}
	var record model.FulfillmentRecord
	err := tx.WithContext(ctx).Where("order_id = ?", orderID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// MarkStep 更新单个步骤状态，与步骤本身的写入放在同一事务；只有失败时记录错误信息
func (r *FulfillmentRepository) MarkStep(ctx context.Context, tx *gorm.DB, id int64, step model.FulfillmentStep, status, lastErr string) error {
	if tx == nil {
		tx = r.db
	}
	updates := map[string]interface{}{step.Column(): status}
	if status == model.StepStatusFailed {
		updates["last_error"] = lastErr
	}
	result := tx.WithContext(ctx).
		Model(&model.FulfillmentRecord{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// IncrementAttempts 一轮结算结束仍有失败步骤时累加一次
func (r *FulfillmentRepository) IncrementAttempts(ctx context.Context, tx *gorm.DB, id int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.FulfillmentRecord{}).
		Where("id = ?", id).
		Update("attempts", gorm.Expr("attempts + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// ListUnsettled 查询 before 之前更新过、仍有步骤未完成且失败次数未到 maxAttempts 的记录
func (r *FulfillmentRepository) ListUnsettled(ctx context.Context, before time.Time, maxAttempts, limit int) ([]*model.FulfillmentRecord, error) {
	var records []*model.FulfillmentRecord
	unfinished := []string{model.StepStatusPending, model.StepStatusFailed}
	err := r.db.WithContext(ctx).
		Where("updated_at < ?", before).
		Where("attempts < ?", maxAttempts).
		Where(r.db.Where("points_step IN ?", unfinished).
			Or("spend_step IN ?", unfinished).
			Or("commission_step IN ?", unfinished)).
		Order("updated_at ASC").
		Limit(limit).
		Find(&records).Error
	return records, err
}
