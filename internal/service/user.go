package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/sugarsphere/backend/internal/models"
	"github.com/sugarsphere/backend/internal/util"
)

// UserService covers the admin-side account operations. Every mutation leaves
// an audit trail entry.
type UserService struct {
	DB *gorm.DB
}

func (s *UserService) List(ctx context.Context, role string, page, limit int) ([]models.User, util.Pagination, error) {
	offset, limit := util.Calculate(page, limit)

	tx := s.DB.WithContext(ctx).Model(&models.User{})
	if role != "" {
		tx = tx.Where("role = ?", role)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, util.Pagination{}, err
	}

	var users []models.User
	if err := tx.Order("created_at DESC").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return nil, util.Pagination{}, err
	}
	return users, util.Paginate(page, limit, total), nil
}

func (s *UserService) Get(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user not found", ErrNotFound)
		}
		return nil, err
	}
	return &user, nil
}

func (s *UserService) audit(ctx context.Context, actorID uint, action string, before, after *models.User) {
	beforeJSON, _ := json.Marshal(before)
	afterJSON, _ := json.Marshal(after)
	s.DB.WithContext(ctx).Create(&models.AuditLog{
		ActorUserID:  actorID,
		Action:       action,
		ResourceType: "user",
		ResourceID:   after.ID,
		Before:       string(beforeJSON),
		After:        string(afterJSON),
	})
}

type UpdateUserInput struct {
	Name       *string `json:"name"`
	Role       *string `json:"role"`
	IsVerified *bool   `json:"is_verified"`
}

func (s *UserService) Update(ctx context.Context, actorID, id uint, in UpdateUserInput) (*models.User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	before := *user

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if len(name) < 2 {
			return nil, fmt.Errorf("%w: name must be at least 2 characters", ErrValidation)
		}
		user.Name = name
	}
	if in.Role != nil {
		if *in.Role != models.RoleUser && *in.Role != models.RoleAdmin {
			return nil, fmt.Errorf("%w: invalid role", ErrValidation)
		}
		if id == actorID && *in.Role != user.Role {
			return nil, fmt.Errorf("%w: cannot change your own role", ErrValidation)
		}
		user.Role = *in.Role
	}
	if in.IsVerified != nil {
		user.IsVerified = *in.IsVerified
	}

	if err := s.DB.WithContext(ctx).Save(user).Error; err != nil {
		return nil, err
	}
	s.audit(ctx, actorID, "update", &before, user)
	return user, nil
}

func (s *UserService) SetRole(ctx context.Context, actorID, id uint, role string) (*models.User, error) {
	if role != models.RoleUser && role != models.RoleAdmin {
		return nil, fmt.Errorf("%w: invalid role", ErrValidation)
	}
	if id == actorID {
		return nil, fmt.Errorf("%w: cannot change your own role", ErrValidation)
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	before := *user

	user.Role = role
	if err := s.DB.WithContext(ctx).Save(user).Error; err != nil {
		return nil, err
	}
	s.audit(ctx, actorID, "update", &before, user)
	return user, nil
}

// SetActive blocks or unblocks an account. Blocking clears the refresh hash
// so outstanding sessions cannot be renewed.
func (s *UserService) SetActive(ctx context.Context, actorID, id uint, active bool) (*models.User, error) {
	if id == actorID {
		return nil, fmt.Errorf("%w: cannot block your own account", ErrValidation)
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	before := *user

	user.IsActive = active
	if !active {
		user.RefreshTokenHash = ""
	}
	if err := s.DB.WithContext(ctx).Save(user).Error; err != nil {
		return nil, err
	}

	action := "block"
	if active {
		action = "unblock"
	}
	s.audit(ctx, actorID, action, &before, user)
	return user, nil
}
