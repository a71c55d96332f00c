package models

import (
	"context"
	"time"

	"github.com/grupofarma/pharma_backend/config"
)

// Prescriber is a canonical prescriber (doctor/dentist/vet). Unlike Client
// and SalesPerson it carries no branch scope: the match key alone is unique.
type Prescriber struct {
	ID            int       `gorm:"primary_key" json:"id"`
	Name          string    `gorm:"size:100;index;not null" json:"name" binding:"required"`
	Registry      string    `gorm:"size:20;index" json:"registry"`
	RegistryState string    `gorm:"size:2" json:"registry_state"`
	Phone         string    `gorm:"size:20" json:"phone"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPrescriber struct {
	Name          string `json:"name" binding:"required"`
	Registry      string `json:"registry"`
	RegistryState string `json:"registry_state"`
	Phone         string `json:"phone"`
}

func CreatePrescriber(ctx context.Context, input *NewPrescriber) (*Prescriber, error) {
	p := Prescriber{
		Name:          input.Name,
		Registry:      input.Registry,
		RegistryState: input.RegistryState,
		Phone:         input.Phone,
	}
	if err := config.GetDB().WithContext(ctx).Create(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func UpdatePrescriberContact(ctx context.Context, id int, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	return config.GetDB().WithContext(ctx).
		Model(&Prescriber{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func GetAllPrescribers(ctx context.Context) ([]Prescriber, error) {
	var prescribers []Prescriber
	if err := config.GetDB().WithContext(ctx).Find(&prescribers).Error; err != nil {
		return nil, err
	}
	return prescribers, nil
}
