package repository

import (
	"context"
	"errors"
	"strings"

	"hgnc/internal/model"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrUserNotFound          = errors.New("用户不存在")
	ErrBalanceNotEnough      = errors.New("余额不足")
	ErrDuplicateReferralCode = errors.New("邀请码重复")
)

const mysqlDuplicateEntry = 1062

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

// Create 邀请码唯一索引冲突时返回 ErrDuplicateReferralCode，由调用方重新生成后重试
func (r *UserRepository) Create(ctx context.Context, tx *gorm.DB, user *model.User) error {
	err := r.conn(tx).WithContext(ctx).Create(user).Error
	if isDuplicateReferralCode(err) {
		return ErrDuplicateReferralCode
	}
	return err
}

func isDuplicateReferralCode(err error) bool {
	if err == nil {
		return false
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
		return strings.Contains(mysqlErr.Message, "referral_code")
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// GetByID 只返回未注销用户
func (r *UserRepository) GetByID(ctx context.Context, tx *gorm.DB, id string) (*model.User, error) {
	var user model.User
	err := r.conn(tx).WithContext(ctx).Where("id = ? AND alive = ?", id, true).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetByIDForUpdate 行锁读取，不过滤注销状态
func (r *UserRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id string) (*model.User, error) {
	var user model.User
	err := r.conn(tx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByPhone(ctx context.Context, phone string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("phone = ? AND alive = ?", phone, true).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindByReferralCode 推荐链遍历使用，包含已注销用户，找不到返回 nil, nil
func (r *UserRepository) FindByReferralCode(ctx context.Context, code string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("referral_code = ?", code).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) ListByParentCodes(ctx context.Context, codes []string) ([]*model.User, error) {
	var users []*model.User
	if len(codes) == 0 {
		return users, nil
	}
	err := r.db.WithContext(ctx).
		Where("parent_code IN ?", codes).
		Order("created_at ASC, id ASC").
		Find(&users).Error
	return users, err
}

// IncrementBalance 原子增量更新，余额变动都通过 col = col + ? 下推到数据库
func (r *UserRepository) IncrementBalance(ctx context.Context, tx *gorm.DB, id string, delta model.BalanceDelta) error {
	if delta.IsZero() {
		return nil
	}

	updates := map[string]interface{}{
		"version": gorm.Expr("version + 1"),
	}
	if delta.ComPoint != 0 {
		updates["com_point"] = gorm.Expr("com_point + ?", delta.ComPoint)
	}
	if !delta.Gold.IsZero() {
		updates["gold"] = gorm.Expr("gold + ?", delta.Gold)
	}
	if !delta.Remain.IsZero() {
		updates["remain"] = gorm.Expr("remain + ?", delta.Remain)
	}
	if !delta.Cost.IsZero() {
		updates["cost"] = gorm.Expr("cost + ?", delta.Cost)
	}

	result := r.conn(tx).WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", id).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}

// DeductGold 带余额条件的扣减，余额不足时不更新
func (r *UserRepository) DeductGold(ctx context.Context, tx *gorm.DB, id string, amount decimal.Decimal) error {
	result := r.conn(tx).WithContext(ctx).
		Model(&model.User{}).
		Where("id = ? AND gold >= ?", id, amount).
		Updates(map[string]interface{}{
			"gold":    gorm.Expr("gold - ?", amount),
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		var count int64
		if err := r.conn(tx).WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrUserNotFound
		}
		return ErrBalanceNotEnough
	}

	return nil
}

func (r *UserRepository) updateColumn(ctx context.Context, tx *gorm.DB, id, column string, value interface{}) error {
	result := r.conn(tx).WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", id).
		Update(column, value)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) UpdateRole(ctx context.Context, tx *gorm.DB, id string, role model.Role) error {
	return r.updateColumn(ctx, tx, id, "role", role)
}

func (r *UserRepository) UpdatePassword(ctx context.Context, tx *gorm.DB, id, hash string) error {
	return r.updateColumn(ctx, tx, id, "pwd", hash)
}

func (r *UserRepository) UpdatePhone(ctx context.Context, tx *gorm.DB, id, phone string) error {
	return r.updateColumn(ctx, tx, id, "phone", phone)
}

func (r *UserRepository) SetAlive(ctx context.Context, tx *gorm.DB, id string, alive bool) error {
	return r.updateColumn(ctx, tx, id, "alive", alive)
}

// ListPointHolders 按 id 游标分页返回积分大于 0 的用户
func (r *UserRepository) ListPointHolders(ctx context.Context, afterID string, limit int) ([]*model.User, error) {
	var users []*model.User
	err := r.db.WithContext(ctx).
		Where("com_point > 0 AND id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&users).Error
	return users, err
}
