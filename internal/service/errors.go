package service

import "errors"

var (
	ErrInviteCodeInvalid     = errors.New("邀请码无效")
	ErrPhoneRegistered       = errors.New("手机号已注册")
	ErrRoleInvalid           = errors.New("用户角色无效")
	ErrInvalidAmount         = errors.New("金额必须大于 0")
	ErrInvalidRate           = errors.New("比例必须在 0 到 1 之间")
	ErrSelfTransfer          = errors.New("不能给自己转账")
	ErrInvalidPage           = errors.New("分页参数错误")
	ErrInvalidTimeRange      = errors.New("开始时间必须早于结束时间")
	ErrUnknownStream         = errors.New("未知日志流")
	ErrFulfillmentInProgress = errors.New("订单正在结算，请稍后重试")
)
