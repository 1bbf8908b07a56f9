package service

import (
	"context"
	"errors"
	"fmt"

	"hgnc/internal/model"
	"hgnc/internal/referral"
	"hgnc/internal/repository"
	"hgnc/pkg/idgen"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// 邀请码冲突时重新生成一次
const referralCodeAttempts = 2

type UserService struct {
	tx      Transactor
	users   UserRepository
	ledger  LedgerRepository
	walker  *referral.Walker
	log     *logrus.Entry
	newCode func() (string, error)
}

func NewUserService(tx Transactor, users UserRepository, ledger LedgerRepository, walker *referral.Walker, log *logrus.Logger) *UserService {
	return &UserService{
		tx:      tx,
		users:   users,
		ledger:  ledger,
		walker:  walker,
		log:     log.WithFields(logrus.Fields{"component": "service", "module": "user"}),
		newCode: idgen.ReferralCode,
	}
}

type SignUpRequest struct {
	Phone      string
	Password   string
	InviteCode string
}

// ValidInviteCode 邀请码对应的用户存在且未注销
func (s *UserService) ValidInviteCode(ctx context.Context, code string) (bool, error) {
	if code == "" {
		return false, nil
	}
	inviter, err := s.users.FindByReferralCode(ctx, code)
	if err != nil {
		return false, err
	}
	return inviter != nil && inviter.Alive, nil
}

// SignUp 注册新用户，邀请码必填
func (s *UserService) SignUp(ctx context.Context, req SignUpRequest) (*model.User, error) {
	ok, err := s.ValidInviteCode(ctx, req.InviteCode)
	if err != nil {
		return nil, fmt.Errorf("校验邀请码失败: %w", err)
	}
	if !ok {
		return nil, ErrInviteCodeInvalid
	}

	if _, err := s.users.GetByPhone(ctx, req.Phone); err == nil {
		return nil, ErrPhoneRegistered
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fmt.Errorf("查询手机号失败: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("密码加密失败: %w", err)
	}

	id, err := uuid.NewUUID()
	if err != nil {
		return nil, fmt.Errorf("生成用户 id 失败: %w", err)
	}

	user := &model.User{
		ID:         id.String(),
		Phone:      req.Phone,
		Pwd:        string(hash),
		ParentCode: req.InviteCode,
		Role:       model.RoleCommon,
		Alive:      true,
	}

	for attempt := 1; attempt <= referralCodeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return nil, fmt.Errorf("生成邀请码失败: %w", err)
		}
		user.ReferralCode = code

		err = s.tx.Transaction(ctx, func(tx *gorm.DB) error {
			if err := s.users.Create(ctx, tx, user); err != nil {
				return err
			}
			return s.ledger.Append(ctx, tx, model.StreamGeneral, &model.LedgerEntry{
				Type:        model.LedgerTypeUserCreate,
				Executor:    model.ExecutorSystem,
				Influencer:  user.ID,
				Description: req.InviteCode,
			})
		})
		if err == nil {
			s.log.WithFields(logrus.Fields{"user_id": user.ID, "referral_code": code}).Info("用户注册成功")
			return user, nil
		}
		if !errors.Is(err, repository.ErrDuplicateReferralCode) {
			return nil, fmt.Errorf("创建用户失败: %w", err)
		}
		s.log.WithFields(logrus.Fields{"referral_code": code, "attempt": attempt}).Warn("邀请码冲突，重新生成")
	}

	return nil, fmt.Errorf("创建用户失败: %w", repository.ErrDuplicateReferralCode)
}

func (s *UserService) ChangePassword(ctx context.Context, phone, password string) error {
	user, err := s.users.GetByPhone(ctx, phone)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("密码加密失败: %w", err)
	}
	return s.users.UpdatePassword(ctx, nil, user.ID, string(hash))
}

// CheckPassword 校验登录密码
func (s *UserService) CheckPassword(ctx context.Context, phone, password string) (*model.User, bool, error) {
	user, err := s.users.GetByPhone(ctx, phone)
	if err != nil {
		return nil, false, err
	}
	return user, bcrypt.CompareHashAndPassword([]byte(user.Pwd), []byte(password)) == nil, nil
}

func (s *UserService) ChangePhone(ctx context.Context, userID, phone string) error {
	if _, err := s.users.GetByPhone(ctx, phone); err == nil {
		return ErrPhoneRegistered
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return err
	}
	return s.users.UpdatePhone(ctx, nil, userID, phone)
}

// SetAlive 注销或恢复用户，推荐链不受影响
func (s *UserService) SetAlive(ctx context.Context, userID string, alive bool) error {
	return s.users.SetAlive(ctx, nil, userID, alive)
}

// AssignRole 管理端调整角色，经理、总监、代理只能通过这里设置
// 角色未变化时不写日志
func (s *UserService) AssignRole(ctx context.Context, userID string, role model.Role) (*model.User, error) {
	if !role.Valid() {
		return nil, ErrRoleInvalid
	}

	var user *model.User
	var before model.Role
	err := s.tx.Transaction(ctx, func(tx *gorm.DB) error {
		u, err := s.users.GetByIDForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !u.Alive {
			return repository.ErrUserNotFound
		}
		before, user = u.Role, u
		if u.Role == role {
			return nil
		}

		if err := s.users.UpdateRole(ctx, tx, u.ID, role); err != nil {
			return fmt.Errorf("更新角色失败: %w", err)
		}
		u.Role = role
		return s.ledger.Append(ctx, tx, model.StreamGeneral, &model.LedgerEntry{
			Type:        model.LedgerTypeRoleAssign,
			Executor:    model.ExecutorAdmin,
			Influencer:  u.ID,
			Description: transition(before, role),
		})
	})
	if err != nil {
		return nil, err
	}

	if before != role {
		s.log.WithFields(logrus.Fields{"user_id": userID, "from": before.String(), "to": role.String()}).Info("角色已调整")
	}
	return user, nil
}

// GroupMembers 团队成员
// VIP、总监、代理看直属下级；经理看两层；普通会员没有团队
func (s *UserService) GroupMembers(ctx context.Context, userID string) ([]*model.User, error) {
	user, err := s.users.GetByID(ctx, nil, userID)
	if err != nil {
		return nil, err
	}

	if !user.Role.AtLeast(model.RoleVIP) {
		return nil, ErrRoleInvalid
	}
	depth := 1
	if user.Role == model.RoleManager {
		depth = 2
	}

	levels, err := s.walker.Levels(ctx, user.ReferralCode, depth)
	if err != nil {
		return nil, err
	}

	members := make([]*model.User, 0)
	for _, level := range levels {
		members = append(members, level...)
	}
	return members, nil
}

// TeamSize 所有层级下级人数
func (s *UserService) TeamSize(ctx context.Context, userID string) (int, error) {
	user, err := s.users.GetByID(ctx, nil, userID)
	if err != nil {
		return 0, err
	}
	ids, err := s.walker.Descendants(ctx, user.ReferralCode)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}
