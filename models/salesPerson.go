package models

import (
	"context"
	"time"

	"github.com/grupofarma/pharma_backend/config"
)

// SalesPerson is a canonical salesperson. Unique by (match key, branch),
// same matching rules as Client.
type SalesPerson struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;index;not null" json:"name" binding:"required"`
	Code      string    `gorm:"size:20;index" json:"code"`
	BranchId  int       `gorm:"index;not null" json:"branch_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewSalesPerson struct {
	Name     string `json:"name" binding:"required"`
	Code     string `json:"code"`
	BranchId int    `json:"branch_id"`
}

func CreateSalesPerson(ctx context.Context, input *NewSalesPerson) (*SalesPerson, error) {
	sp := SalesPerson{
		Name:     input.Name,
		Code:     input.Code,
		BranchId: input.BranchId,
	}
	if err := config.GetDB().WithContext(ctx).Create(&sp).Error; err != nil {
		return nil, err
	}
	return &sp, nil
}

func GetSalesPeopleByBranch(ctx context.Context, branchId int) ([]SalesPerson, error) {
	var people []SalesPerson
	err := config.GetDB().WithContext(ctx).
		Where("branch_id = ?", branchId).
		Find(&people).Error
	if err != nil {
		return nil, err
	}
	return people, nil
}
