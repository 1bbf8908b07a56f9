package repository

import (
	"context"
	"fmt"
	"time"

	"hgnc/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// NewEntryID 日志 id 使用时间有序的 UUID v1
func NewEntryID() string {
	id, err := uuid.NewUUID()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (r *LedgerRepository) Append(ctx context.Context, tx *gorm.DB, stream model.Stream, entries ...*model.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if !stream.Valid() {
		return fmt.Errorf("未知日志流: %s", stream)
	}
	if tx == nil {
		tx = r.db
	}
	for _, e := range entries {
		if e.ID == "" {
			e.ID = NewEntryID()
		}
	}
	return tx.WithContext(ctx).Table(string(stream)).Create(entries).Error
}

// SumByType description 按数值求和，用于统计当日释放金币等
func (r *LedgerRepository) SumByType(ctx context.Context, stream model.Stream, influencer, typ string, start, end time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	row := r.db.WithContext(ctx).
		Table(string(stream)).
		Select("COALESCE(SUM(CAST(description AS DECIMAL(20,3))), 0)").
		Where("influencer = ? AND type = ? AND created_at >= ? AND created_at < ?", influencer, typ, start, end).
		Row()
	if err := row.Scan(&total); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

func (r *LedgerRepository) List(ctx context.Context, q model.LedgerQuery) ([]*model.LedgerEntry, int64, error) {
	var entries []*model.LedgerEntry
	var total int64

	query := r.db.WithContext(ctx).Table(string(q.Stream)).Where("influencer = ?", q.Influencer)
	if len(q.Types) > 0 {
		query = query.Where("type IN ?", q.Types)
	}
	if !q.Start.IsZero() {
		query = query.Where("created_at >= ?", q.Start)
	}
	if !q.End.IsZero() {
		query = query.Where("created_at < ?", q.End)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Offset((q.Page - 1) * q.PageSize).
		Limit(q.PageSize).
		Find(&entries).Error

	return entries, total, err
}
