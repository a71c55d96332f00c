package legacysync

import (
	"context"
	"time"

	"github.com/grupofarma/pharma_backend/config"
	"github.com/grupofarma/pharma_backend/models"
)

// CanonicalStore is the read/write surface this package needs from the
// canonical database. Match-key lookups are implemented store-side so the
// fakes in tests and the gorm implementation share the same contract: the
// key is derived, never persisted, so equality lives in app code.
type CanonicalStore interface {
	FindClientByKey(ctx context.Context, matchKey string, branchId int) (*models.Client, error)
	CreateClient(ctx context.Context, input *models.NewClient) (*models.Client, error)
	UpdateClientContact(ctx context.Context, id int, updates map[string]interface{}) error

	FindSalesPersonByKey(ctx context.Context, matchKey string, branchId int) (*models.SalesPerson, error)
	CreateSalesPerson(ctx context.Context, input *models.NewSalesPerson) (*models.SalesPerson, error)

	FindPrescriberByKey(ctx context.Context, matchKey string) (*models.Prescriber, error)
	CreatePrescriber(ctx context.Context, input *models.NewPrescriber) (*models.Prescriber, error)
	UpdatePrescriberContact(ctx context.Context, id int, updates map[string]interface{}) error

	UnlinkedSales(ctx context.Context) ([]models.Sale, error)
	SetSaleLinks(ctx context.Context, saleId int, clientId, salesPersonId, prescriberId *int) error

	ActiveWatermarks(ctx context.Context) ([]models.SyncWatermark, error)
	AllWatermarks(ctx context.Context) ([]models.SyncWatermark, error)
	AdvanceWatermark(ctx context.Context, id int, seen time.Time, ranAt time.Time) error
	TouchWatermarkRun(ctx context.Context, id int, ranAt time.Time) error

	Exec(ctx context.Context, statement string, args ...interface{}) error
}

// GormStore backs CanonicalStore with the models package.
type GormStore struct{}

func NewGormStore() *GormStore {
	return &GormStore{}
}

func (s *GormStore) FindClientByKey(ctx context.Context, matchKey string, branchId int) (*models.Client, error) {
	clients, err := models.GetClientsByBranch(ctx, branchId)
	if err != nil {
		return nil, err
	}
	for i := range clients {
		if MatchKey(clients[i].Name) == matchKey {
			return &clients[i], nil
		}
	}
	return nil, nil
}

func (s *GormStore) CreateClient(ctx context.Context, input *models.NewClient) (*models.Client, error) {
	return models.CreateClient(ctx, input)
}

func (s *GormStore) UpdateClientContact(ctx context.Context, id int, updates map[string]interface{}) error {
	return models.UpdateClientContact(ctx, id, updates)
}

func (s *GormStore) FindSalesPersonByKey(ctx context.Context, matchKey string, branchId int) (*models.SalesPerson, error) {
	people, err := models.GetSalesPeopleByBranch(ctx, branchId)
	if err != nil {
		return nil, err
	}
	for i := range people {
		if MatchKey(people[i].Name) == matchKey {
			return &people[i], nil
		}
	}
	return nil, nil
}

func (s *GormStore) CreateSalesPerson(ctx context.Context, input *models.NewSalesPerson) (*models.SalesPerson, error) {
	return models.CreateSalesPerson(ctx, input)
}

func (s *GormStore) FindPrescriberByKey(ctx context.Context, matchKey string) (*models.Prescriber, error) {
	prescribers, err := models.GetAllPrescribers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range prescribers {
		if MatchKey(prescribers[i].Name) == matchKey {
			return &prescribers[i], nil
		}
	}
	return nil, nil
}

func (s *GormStore) CreatePrescriber(ctx context.Context, input *models.NewPrescriber) (*models.Prescriber, error) {
	return models.CreatePrescriber(ctx, input)
}

func (s *GormStore) UpdatePrescriberContact(ctx context.Context, id int, updates map[string]interface{}) error {
	return models.UpdatePrescriberContact(ctx, id, updates)
}

func (s *GormStore) UnlinkedSales(ctx context.Context) ([]models.Sale, error) {
	return models.GetUnlinkedSales(ctx)
}

func (s *GormStore) SetSaleLinks(ctx context.Context, saleId int, clientId, salesPersonId, prescriberId *int) error {
	return models.SetSaleLinks(ctx, saleId, clientId, salesPersonId, prescriberId)
}

func (s *GormStore) ActiveWatermarks(ctx context.Context) ([]models.SyncWatermark, error) {
	return models.GetActiveWatermarks(ctx)
}

func (s *GormStore) AllWatermarks(ctx context.Context) ([]models.SyncWatermark, error) {
	return models.GetAllWatermarks(ctx)
}

func (s *GormStore) AdvanceWatermark(ctx context.Context, id int, seen time.Time, ranAt time.Time) error {
	return models.AdvanceWatermark(ctx, id, seen, ranAt)
}

func (s *GormStore) TouchWatermarkRun(ctx context.Context, id int, ranAt time.Time) error {
	return models.TouchWatermarkRun(ctx, id, ranAt)
}

func (s *GormStore) Exec(ctx context.Context, statement string, args ...interface{}) error {
	return config.GetDB().WithContext(ctx).Exec(statement, args...).Error
}
