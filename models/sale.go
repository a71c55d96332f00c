package models

import (
	"context"
	"time"

	"github.com/grupofarma/pharma_backend/config"
	"github.com/shopspring/decimal"
)

// Sale is a canonical sale imported before the relational model existed.
// It still carries the raw text captured at the POS (client, salesperson and
// prescriber names); the relink migration resolves those into foreign keys.
// This package only ever sets the three *Id columns, business fields are
// owned elsewhere.
type Sale struct {
	ID              int             `gorm:"primary_key" json:"id"`
	Code            string          `gorm:"size:30;uniqueIndex" json:"code"`
	BranchId        int             `gorm:"index;not null" json:"branch_id"`
	SaleDate        time.Time       `json:"sale_date"`
	Total           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total"`
	Discount        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"discount"`
	ClientName      string          `gorm:"size:100" json:"client_name"`
	SalesPersonName string          `gorm:"size:100" json:"sales_person_name"`
	PrescriberName  string          `gorm:"size:100" json:"prescriber_name"`
	ClientId        *int            `gorm:"index" json:"client_id"`
	SalesPersonId   *int            `gorm:"index" json:"sales_person_id"`
	PrescriberId    *int            `gorm:"index" json:"prescriber_id"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// GetUnlinkedSales loads every sale still missing at least one resolvable
// foreign key, in one pass.
func GetUnlinkedSales(ctx context.Context) ([]Sale, error) {
	var sales []Sale
	err := config.GetDB().WithContext(ctx).
		Where("client_id IS NULL OR sales_person_id IS NULL").
		Order("id").
		Find(&sales).Error
	if err != nil {
		return nil, err
	}
	return sales, nil
}

// SetSaleLinks writes resolved foreign keys directly, bypassing hooks and
// validation: linkage must not re-trigger sale business rules.
func SetSaleLinks(ctx context.Context, saleId int, clientId, salesPersonId, prescriberId *int) error {
	updates := map[string]interface{}{}
	if clientId != nil {
		updates["client_id"] = *clientId
	}
	if salesPersonId != nil {
		updates["sales_person_id"] = *salesPersonId
	}
	if prescriberId != nil {
		updates["prescriber_id"] = *prescriberId
	}
	if len(updates) == 0 {
		return nil
	}
	return config.GetDB().WithContext(ctx).
		Model(&Sale{}).
		Where("id = ?", saleId).
		UpdateColumns(updates).Error
}
