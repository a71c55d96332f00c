package models

import (
	"context"
	"time"

	"github.com/grupofarma/pharma_backend/config"
)

// Client is a canonical client record. The display name keeps its accents;
// matching uses a derived key that is never persisted (see legacysync).
// Uniqueness is (match key, branch).
type Client struct {
	ID           int        `gorm:"primary_key" json:"id"`
	Name         string     `gorm:"size:100;index;not null" json:"name" binding:"required"`
	Code         string     `gorm:"size:20;index" json:"code"`
	BranchId     int        `gorm:"index;not null" json:"branch_id"`
	Document     string     `gorm:"size:20" json:"document"`
	Phone        string     `gorm:"size:20" json:"phone"`
	Email        string     `gorm:"size:100" json:"email"`
	RegisteredAt *time.Time `json:"registered_at"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewClient struct {
	Name         string     `json:"name" binding:"required"`
	Code         string     `json:"code"`
	BranchId     int        `json:"branch_id"`
	Document     string     `json:"document"`
	Phone        string     `json:"phone"`
	Email        string     `json:"email"`
	RegisteredAt *time.Time `json:"registered_at"`
}

func CreateClient(ctx context.Context, input *NewClient) (*Client, error) {
	client := Client{
		Name:         input.Name,
		Code:         input.Code,
		BranchId:     input.BranchId,
		Document:     input.Document,
		Phone:        input.Phone,
		Email:        input.Email,
		RegisteredAt: input.RegisteredAt,
	}
	if err := config.GetDB().WithContext(ctx).Create(&client).Error; err != nil {
		return nil, err
	}
	return &client, nil
}

// UpdateClientContact refreshes the mutable contact fields from a newer
// agent record. The name used for matching is not touched here.
func UpdateClientContact(ctx context.Context, id int, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	return config.GetDB().WithContext(ctx).
		Model(&Client{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// GetClientsByBranch loads the branch's clients for in-app match-key
// comparison. The match key is derived, not stored, so equality cannot be
// pushed into SQL.
func GetClientsByBranch(ctx context.Context, branchId int) ([]Client, error) {
	var clients []Client
	err := config.GetDB().WithContext(ctx).
		Where("branch_id = ?", branchId).
		Find(&clients).Error
	if err != nil {
		return nil, err
	}
	return clients, nil
}
