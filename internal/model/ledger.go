package model

import (
	"time"
)

// ============================================================================
// 日志流
// ============================================================================

// Stream 日志分三张表存放
type Stream string

const (
	StreamGeneral Stream = "t_log"       // 通用日志（角色、金币划转、佣金）
	StreamPoint   Stream = "t_log_point" // 积分日志
	StreamCost    Stream = "t_log_cost"  // 消费日志
)

var Streams = []Stream{StreamGeneral, StreamPoint, StreamCost}

func (s Stream) Valid() bool {
	switch s {
	case StreamGeneral, StreamPoint, StreamCost:
		return true
	}
	return false
}

const (
	LedgerTypeUserCreate              = "user_create"
	LedgerTypePointAdd                = "user_comPoint_add"
	LedgerTypeConsumptionAdd          = "user_consumption_add"
	LedgerTypeRolePromote             = "user_role_promote"
	LedgerTypeRoleAssign              = "user_role_assign"
	LedgerTypeGoldTransferOut         = "gold_transfer_out"
	LedgerTypeGoldTransferIn          = "gold_transfer_in"
	LedgerTypeGoldRelease             = "gold_release"
	LedgerTypeCommissionManager       = "commission_manager"
	LedgerTypeCommissionGuideManager  = "commission_guide_manager"
	LedgerTypeCommissionDirector      = "commission_director"
	LedgerTypeCommissionGuideDirector = "commission_guide_director"
	LedgerTypeCommissionAgent         = "commission_agent"
)

const (
	ExecutorSystem = "system" // 系统任务
	ExecutorAdmin  = "admin"  // 管理端操作
)

// LedgerEntry 日志条目，只追加不修改
// executor 为发起方，influencer 为受影响的用户，description 记录数额或 before=>after
type LedgerEntry struct {
	ID          string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Type        string    `gorm:"type:varchar(64);index;not null" json:"type"`
	Executor    string    `gorm:"type:varchar(36);not null" json:"executor"`
	Influencer  string    `gorm:"type:varchar(36);index;not null" json:"influencer"`
	Description string    `gorm:"type:varchar(255)" json:"description"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// LedgerQuery 分页查询日志
type LedgerQuery struct {
	Stream     Stream
	Influencer string
	Types      []string
	Start      time.Time
	End        time.Time
	Page       int
	PageSize   int
}
