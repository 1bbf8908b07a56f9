package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 用户角色
// ============================================================================

// Role 角色等级，数值越大等级越高
type Role int

const (
	RoleCommon   Role = iota // 普通会员
	RoleVIP                  // VIP
	RoleManager              // 经理
	RoleDirector             // 总监
	RoleAgent                // 代理
)

var roleNames = map[Role]string{
	RoleCommon:   "COMMON",
	RoleVIP:      "VIP",
	RoleManager:  "MANAGER",
	RoleDirector: "DIRECTOR",
	RoleAgent:    "AGENT",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("ROLE(%d)", int(r))
}

func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// AtLeast 等级不低于 other
func (r Role) AtLeast(other Role) bool {
	return r >= other
}

func ParseRole(s string) (Role, error) {
	for role, name := range roleNames {
		if strings.EqualFold(name, s) {
			return role, nil
		}
	}
	return 0, fmt.Errorf("未知角色: %s", s)
}

// ============================================================================
// 用户实体
// ============================================================================

// User 用户表
// 用户不做物理删除，alive=false 即为注销；推荐关系通过 parent_code 指向上级的 referral_code
type User struct {
	ID           string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	Phone        string          `gorm:"type:varchar(20);index" json:"phone"`
	Pwd          string          `gorm:"type:varchar(100)" json:"-"`
	SecondaryPwd string          `gorm:"type:varchar(100)" json:"-"`
	ReferralCode string          `gorm:"type:varchar(16);uniqueIndex:uk_user_referral_code;not null" json:"referral_code"` // 本人邀请码
	ParentCode   string          `gorm:"type:varchar(16);index" json:"parent_code"`                                        // 上级邀请码，空表示无上级
	Role         Role            `gorm:"not null;default:0" json:"role"`
	ComPoint     int64           `gorm:"not null;default:0" json:"com_point"`                 // 普通积分
	Gold         decimal.Decimal `gorm:"type:decimal(20,3);not null;default:0" json:"gold"`   // 金币
	Remain       decimal.Decimal `gorm:"type:decimal(20,3);not null;default:0" json:"remain"` // 佣金余额
	Cost         decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"cost"`   // 累计消费
	Version      int             `gorm:"not null;default:0" json:"version"`
	Alive        bool            `gorm:"not null;default:true;index" json:"alive"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "t_user"
}

func (u *User) HasParent() bool {
	return u.ParentCode != ""
}

// BalanceDelta 一次余额变动，零值字段不更新
type BalanceDelta struct {
	ComPoint int64
	Gold     decimal.Decimal
	Remain   decimal.Decimal
	Cost     decimal.Decimal
}

func (d BalanceDelta) IsZero() bool {
	return d.ComPoint == 0 && d.Gold.IsZero() && d.Remain.IsZero() && d.Cost.IsZero()
}

// Apply 在内存中应用变动，返回新的副本
func (d BalanceDelta) Apply(u User) User {
	u.ComPoint += d.ComPoint
	u.Gold = u.Gold.Add(d.Gold)
	u.Remain = u.Remain.Add(d.Remain)
	u.Cost = u.Cost.Add(d.Cost)
	u.Version++
	return u
}
