// Package promotion 角色晋升规则
package promotion

import (
	"hgnc/internal/model"

	"github.com/shopspring/decimal"
)

// Evaluate 累计消费更新后的角色
// 只有普通会员会自动晋升为 VIP，消费额需严格大于阈值；不会降级，其他角色只能由管理端调整
func Evaluate(role model.Role, newCost, threshold decimal.Decimal) (model.Role, bool) {
	if role != model.RoleCommon {
		return role, false
	}
	if newCost.GreaterThan(threshold) {
		return model.RoleVIP, true
	}
	return role, false
}

// RedirectsPoints 普通会员获得的积分记到上级名下
func RedirectsPoints(role model.Role) bool {
	return role == model.RoleCommon
}
