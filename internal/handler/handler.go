package handler

import (
	"context"
	"errors"
	"strconv"
	"time"

	"hgnc/internal/config"
	"hgnc/internal/model"
	"hgnc/internal/repository"
	"hgnc/internal/service"
	"hgnc/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type UserAPI interface {
	SignUp(ctx context.Context, req service.SignUpRequest) (*model.User, error)
	ChangePassword(ctx context.Context, phone, password string) error
	GroupMembers(ctx context.Context, userID string) ([]*model.User, error)
	TeamSize(ctx context.Context, userID string) (int, error)
	AssignRole(ctx context.Context, userID string, role model.Role) (*model.User, error)
}

type LedgerAPI interface {
	TransferGoldByCode(ctx context.Context, fromCode, toCode string, amount decimal.Decimal) (*service.TransferResult, error)
	DailyReleasedGold(ctx context.Context, userID string) (decimal.Decimal, error)
	History(ctx context.Context, q service.HistoryQuery) (*service.HistoryPage, error)
}

type FulfillmentAPI interface {
	Received(ctx context.Context, orderID int64) (*model.FulfillmentRecord, error)
}

type PropertiesAPI interface {
	Properties() config.Properties
	Reload() (config.Properties, error)
}

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	users       UserAPI
	ledger      LedgerAPI
	fulfillment FulfillmentAPI
	props       PropertiesAPI
	log         *logrus.Entry
}

func NewHandler(users UserAPI, ledger LedgerAPI, fulfillment FulfillmentAPI, props PropertiesAPI, log *logrus.Logger) *Handler {
	return &Handler{
		users:       users,
		ledger:      ledger,
		fulfillment: fulfillment,
		props:       props,
		log:         log.WithField("component", "handler"),
	}
}

// fail 业务错误映射为响应码，其余按服务器错误返回
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInviteCodeInvalid):
		response.BusinessError(c, response.CodeInviteCodeInvalid, err.Error())
	case errors.Is(err, service.ErrPhoneRegistered):
		response.BusinessError(c, response.CodePhoneRegistered, err.Error())
	case errors.Is(err, repository.ErrUserNotFound):
		response.BusinessError(c, response.CodeUserNotFound, err.Error())
	case errors.Is(err, repository.ErrBalanceNotEnough):
		response.BusinessError(c, response.CodeBalanceNotEnough, err.Error())
	case errors.Is(err, repository.ErrOrderNotFound):
		response.BusinessError(c, response.CodeOrderNotFound, err.Error())
	case errors.Is(err, repository.ErrOrderStatusInvalid):
		response.BusinessError(c, response.CodeOrderStatusInvalid, err.Error())
	case errors.Is(err, service.ErrFulfillmentInProgress):
		response.BusinessError(c, response.CodeFulfillmentInProgress, err.Error())
	case errors.Is(err, service.ErrRoleInvalid):
		response.BusinessError(c, response.CodeRoleInvalid, err.Error())
	case errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrSelfTransfer),
		errors.Is(err, service.ErrInvalidPage),
		errors.Is(err, service.ErrInvalidTimeRange),
		errors.Is(err, service.ErrUnknownStream):
		response.ParamError(c, err.Error())
	default:
		h.log.WithError(err).WithField("path", c.FullPath()).Error("请求处理失败")
		response.ServerError(c, err.Error())
	}
}

// ============================================================
// 用户相关接口
// ============================================================

type SignUpRequest struct {
	Phone      string `json:"phone" binding:"required"`
	Password   string `json:"password" binding:"required,min=6"`
	InviteCode string `json:"invite_code" binding:"required"`
}

// SignUp 注册
// POST /api/v1/user/signup
func (h *Handler) SignUp(c *gin.Context) {
	var req SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	user, err := h.users.SignUp(c.Request.Context(), service.SignUpRequest{
		Phone:      req.Phone,
		Password:   req.Password,
		InviteCode: req.InviteCode,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, gin.H{
		"user_id":       user.ID,
		"referral_code": user.ReferralCode,
		"role":          user.Role.String(),
	})
}

type ChangePasswordRequest struct {
	Phone    string `json:"phone" binding:"required"`
	Password string `json:"password" binding:"required,min=6"`
}

// ChangePassword 修改密码
// POST /api/v1/user/password
func (h *Handler) ChangePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.users.ChangePassword(c.Request.Context(), req.Phone, req.Password); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{"message": "密码已修改"})
}

// Team 团队成员与团队总人数
// GET /api/v1/user/team?user_id=xxx
func (h *Handler) Team(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		response.ParamError(c, "user_id 参数不能为空")
		return
	}

	members, err := h.users.GroupMembers(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	size, err := h.users.TeamSize(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}

	list := make([]gin.H, 0, len(members))
	for _, m := range members {
		list = append(list, gin.H{
			"user_id":       m.ID,
			"referral_code": m.ReferralCode,
			"role":          m.Role.String(),
			"alive":         m.Alive,
		})
	}
	response.Success(c, gin.H{"members": list, "team_size": size})
}

// ============================================================
// 金币与日志
// ============================================================

type TransferGoldRequest struct {
	FromCode string `json:"from_code" binding:"required"`
	ToCode   string `json:"to_code" binding:"required"`
	Amount   string `json:"amount" binding:"required"`
}

// TransferGold 金币划转
// POST /api/v1/user/gold/transfer
func (h *Handler) TransferGold(c *gin.Context) {
	var req TransferGoldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.ParamError(c, "amount 参数错误")
		return
	}

	result, err := h.ledger.TransferGoldByCode(c.Request.Context(), req.FromCode, req.ToCode, amount)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, result)
}

// ReleasedGold 当天积分释放的金币
// GET /api/v1/user/gold/released?user_id=xxx
func (h *Handler) ReleasedGold(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		response.ParamError(c, "user_id 参数不能为空")
		return
	}

	total, err := h.ledger.DailyReleasedGold(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{"user_id": userID, "released": total})
}

// Ledger 资金日志
// GET /api/v1/user/ledger?user_id=xxx&stream=t_log_point&type=a&type=b&start=unix&end=unix&page=1&page_size=10
func (h *Handler) Ledger(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		response.ParamError(c, "user_id 参数不能为空")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	q := service.HistoryQuery{
		UserID:   userID,
		Stream:   model.Stream(c.Query("stream")),
		Types:    c.QueryArray("type"),
		Page:     page,
		PageSize: pageSize,
	}
	var ok bool
	if q.Start, ok = unixParam(c, "start"); !ok {
		response.ParamError(c, "start 参数错误")
		return
	}
	if q.End, ok = unixParam(c, "end"); !ok {
		response.ParamError(c, "end 参数错误")
		return
	}

	result, err := h.ledger.History(c.Request.Context(), q)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, result)
}

func unixParam(c *gin.Context, key string) (time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, true
	}
	sec, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(sec, 0), true
}

// ============================================================
// 订单
// ============================================================

type ReceivedRequest struct {
	OrderID int64 `json:"order_id" binding:"required,gt=0"`
}

// Received 确认收货
// POST /api/v1/order/received
//
// 【注意】步骤失败不影响接口返回，记录中的步骤状态由补偿任务继续推进
func (h *Handler) Received(c *gin.Context) {
	var req ReceivedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	record, err := h.fulfillment.Received(c.Request.Context(), req.OrderID)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, gin.H{
		"order_id":        record.OrderID,
		"settlement_no":   record.SettlementNo,
		"settled":         record.Settled(),
		"points_step":     record.PointsStep,
		"spend_step":      record.SpendStep,
		"commission_step": record.CommissionStep,
		"attempts":        record.Attempts,
	})
}

// ============================================================
// 管理端
// ============================================================

type AssignRoleRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Role   string `json:"role" binding:"required"`
}

// AssignRole 设置用户角色
// POST /api/v1/admin/user/role
func (h *Handler) AssignRole(c *gin.Context) {
	var req AssignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	role, err := model.ParseRole(req.Role)
	if err != nil {
		response.ParamError(c, err.Error())
		return
	}

	user, err := h.users.AssignRole(c.Request.Context(), req.UserID, role)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{"user_id": user.ID, "role": user.Role.String()})
}

// Properties 当前运营参数
// GET /api/v1/admin/properties
func (h *Handler) Properties(c *gin.Context) {
	response.Success(c, h.props.Properties())
}

// ReloadProperties 重新加载运营参数
// POST /api/v1/admin/properties/reload
func (h *Handler) ReloadProperties(c *gin.Context) {
	props, err := h.props.Reload()
	if err != nil {
		h.log.WithError(err).Error("重新加载运营参数失败")
		response.BusinessError(c, response.CodeReloadFailed, err.Error())
		return
	}
	response.Success(c, props)
}
