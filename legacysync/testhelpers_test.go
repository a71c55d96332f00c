package legacysync

import (
	"context"
	"time"

	"github.com/grupofarma/pharma_backend/config"
	"github.com/grupofarma/pharma_backend/models"
)

// In-memory fakes for the store and the legacy querier. They implement the
// same contracts as the real GORM/MySQL-backed implementations but run
// without any external service.

type fakeStore struct {
	clients     []models.Client
	salesPeople []models.SalesPerson
	prescribers []models.Prescriber
	sales       []models.Sale
	watermarks  []models.SyncWatermark

	clientUpdates     map[int]map[string]interface{}
	prescriberUpdates map[int]map[string]interface{}
	execs             []string

	nextID int

	findClientErr    error
	createClientErr  error
	unlinkedErr      error
	watermarksErr    error
	setSaleLinksErr  error
	setSaleLinksErrs map[int]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		clientUpdates:     map[int]map[string]interface{}{},
		prescriberUpdates: map[int]map[string]interface{}{},
		nextID:            1,
	}
}

func (s *fakeStore) id() int {
	id := s.nextID
	s.nextID++
	return id
}

func (s *fakeStore) FindClientByKey(ctx context.Context, matchKey string, branchId int) (*models.Client, error) {
	if s.findClientErr != nil {
		return nil, s.findClientErr
	}
	for i := range s.clients {
		if s.clients[i].BranchId == branchId && MatchKey(s.clients[i].Name) == matchKey {
			return &s.clients[i], nil
		}
	}
	return nil, nil
}

func (s *fakeStore) CreateClient(ctx context.Context, input *models.NewClient) (*models.Client, error) {
	if s.createClientErr != nil {
		return nil, s.createClientErr
	}
	client := models.Client{
		ID:           s.id(),
		Name:         input.Name,
		Code:         input.Code,
		BranchId:     input.BranchId,
		Document:     input.Document,
		Phone:        input.Phone,
		Email:        input.Email,
		RegisteredAt: input.RegisteredAt,
	}
	s.clients = append(s.clients, client)
	return &s.clients[len(s.clients)-1], nil
}

func (s *fakeStore) UpdateClientContact(ctx context.Context, id int, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	s.clientUpdates[id] = updates
	for i := range s.clients {
		if s.clients[i].ID == id {
			if v, ok := updates["phone"].(string); ok {
				s.clients[i].Phone = v
			}
			if v, ok := updates["email"].(string); ok {
				s.clients[i].Email = v
			}
			if v, ok := updates["document"].(string); ok {
				s.clients[i].Document = v
			}
		}
	}
	return nil
}

func (s *fakeStore) FindSalesPersonByKey(ctx context.Context, matchKey string, branchId int) (*models.SalesPerson, error) {
	for i := range s.salesPeople {
		if s.salesPeople[i].BranchId == branchId && MatchKey(s.salesPeople[i].Name) == matchKey {
			return &s.salesPeople[i], nil
		}
	}
	return nil, nil
}

func (s *fakeStore) CreateSalesPerson(ctx context.Context, input *models.NewSalesPerson) (*models.SalesPerson, error) {
	sp := models.SalesPerson{
		ID:       s.id(),
		Name:     input.Name,
		Code:     input.Code,
		BranchId: input.BranchId,
	}
	s.salesPeople = append(s.salesPeople, sp)
	return &s.salesPeople[len(s.salesPeople)-1], nil
}

func (s *fakeStore) FindPrescriberByKey(ctx context.Context, matchKey string) (*models.Prescriber, error) {
	for i := range s.prescribers {
		if MatchKey(s.prescribers[i].Name) == matchKey {
			return &s.prescribers[i], nil
		}
	}
	return nil, nil
}

func (s *fakeStore) CreatePrescriber(ctx context.Context, input *models.NewPrescriber) (*models.Prescriber, error) {
	p := models.Prescriber{
		ID:            s.id(),
		Name:          input.Name,
		Registry:      input.Registry,
		RegistryState: input.RegistryState,
		Phone:         input.Phone,
	}
	s.prescribers = append(s.prescribers, p)
	return &s.prescribers[len(s.prescribers)-1], nil
}

func (s *fakeStore) UpdatePrescriberContact(ctx context.Context, id int, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	s.prescriberUpdates[id] = updates
	return nil
}

func (s *fakeStore) UnlinkedSales(ctx context.Context) ([]models.Sale, error) {
	if s.unlinkedErr != nil {
		return nil, s.unlinkedErr
	}
	var out []models.Sale
	for _, sale := range s.sales {
		if sale.ClientId == nil || sale.SalesPersonId == nil {
			out = append(out, sale)
		}
	}
	return out, nil
}

func (s *fakeStore) SetSaleLinks(ctx context.Context, saleId int, clientId, salesPersonId, prescriberId *int) error {
	if s.setSaleLinksErr != nil {
		return s.setSaleLinksErr
	}
	if err, ok := s.setSaleLinksErrs[saleId]; ok {
		return err
	}
	for i := range s.sales {
		if s.sales[i].ID == saleId {
			if clientId != nil {
				s.sales[i].ClientId = clientId
			}
			if salesPersonId != nil {
				s.sales[i].SalesPersonId = salesPersonId
			}
			if prescriberId != nil {
				s.sales[i].PrescriberId = prescriberId
			}
		}
	}
	return nil
}

func (s *fakeStore) ActiveWatermarks(ctx context.Context) ([]models.SyncWatermark, error) {
	if s.watermarksErr != nil {
		return nil, s.watermarksErr
	}
	var out []models.SyncWatermark
	for _, wm := range s.watermarks {
		if wm.Active == nil || *wm.Active {
			out = append(out, wm)
		}
	}
	return out, nil
}

func (s *fakeStore) AllWatermarks(ctx context.Context) ([]models.SyncWatermark, error) {
	return append([]models.SyncWatermark(nil), s.watermarks...), nil
}

func (s *fakeStore) AdvanceWatermark(ctx context.Context, id int, seen time.Time, ranAt time.Time) error {
	for i := range s.watermarks {
		if s.watermarks[i].ID == id && s.watermarks[i].LastSeenDate.Before(seen) {
			s.watermarks[i].LastSeenDate = seen
			t := ranAt
			s.watermarks[i].LastRunAt = &t
		}
	}
	return nil
}

func (s *fakeStore) TouchWatermarkRun(ctx context.Context, id int, ranAt time.Time) error {
	for i := range s.watermarks {
		if s.watermarks[i].ID == id {
			t := ranAt
			s.watermarks[i].LastRunAt = &t
		}
	}
	return nil
}

func (s *fakeStore) Exec(ctx context.Context, statement string, args ...interface{}) error {
	s.execs = append(s.execs, statement)
	return nil
}

// fakeQuerier serves canned rows per (source, query).
type fakeQuerier struct {
	rows map[config.LegacySource]map[string][]map[string]interface{}
	errs map[config.LegacySource]error
}

func newFakeQuerier() *fakeQuerier {
	return &fakeQuerier{
		rows: map[config.LegacySource]map[string][]map[string]interface{}{},
		errs: map[config.LegacySource]error{},
	}
}

func (q *fakeQuerier) add(source config.LegacySource, query string, row map[string]interface{}) {
	if q.rows[source] == nil {
		q.rows[source] = map[string][]map[string]interface{}{}
	}
	q.rows[source][query] = append(q.rows[source][query], row)
}

func (q *fakeQuerier) Query(ctx context.Context, source config.LegacySource, query string, args ...interface{}) ([]map[string]interface{}, error) {
	if err := q.errs[source]; err != nil {
		return nil, err
	}
	return q.rows[source][query], nil
}

// fakeAgentCaller returns one canned batch (or error) per agent code.
type fakeAgentCaller struct {
	batches map[string]*AgentBatch
	errs    map[string]error
	calls   []string
}

func newFakeAgentCaller() *fakeAgentCaller {
	return &fakeAgentCaller{
		batches: map[string]*AgentBatch{},
		errs:    map[string]error{},
	}
}

func (a *fakeAgentCaller) FetchSince(ctx context.Context, agent config.Agent, clienteSince, prescritorSince time.Time) (*AgentBatch, error) {
	a.calls = append(a.calls, agent.Code)
	if err := a.errs[agent.Code]; err != nil {
		return nil, err
	}
	if batch := a.batches[agent.Code]; batch != nil {
		return batch, nil
	}
	return &AgentBatch{}, nil
}
