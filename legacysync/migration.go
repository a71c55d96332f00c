package legacysync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/grupofarma/pharma_backend/config"
	"github.com/grupofarma/pharma_backend/models"
)

var ErrMigrationRunning = errors.New("a migration is already running")

// Corrective statements for known bad legacy-derived values already sitting
// in canonical sales. Run once at the start of a relink; each failure is
// logged and skipped, the pass is best-effort.
var cleanupStatements = []string{
	"UPDATE sales SET client_name = REPLACE(client_name, 'Ã‡', 'Ç') WHERE client_name LIKE BINARY '%Ã‡%'",
	"UPDATE sales SET client_name = REPLACE(client_name, 'Ã§', 'ç') WHERE client_name LIKE BINARY '%Ã§%'",
	"UPDATE sales SET client_name = REPLACE(client_name, 'Ã£', 'ã') WHERE client_name LIKE BINARY '%Ã£%'",
	"UPDATE sales SET client_name = TRIM(client_name) WHERE client_name LIKE ' %' OR client_name LIKE '% '",
	"UPDATE sales SET prescriber_name = '' WHERE prescriber_name IN ('NAO INFORMADO', 'SEM RECEITA', '0', '.')",
}

// Migrator owns the bulk jobs: the relink migration over unlinked canonical
// sales and the full backfill over legacy rows. Single-flight: the two jobs
// share one running guard, a second start while either runs is rejected, not
// queued. Progress is owned here, no package-level state.
type Migrator struct {
	store    CanonicalStore
	resolver *Resolver
	legacy   LegacyQuerier

	mu       sync.Mutex
	running  bool
	progress *MigrationProgress
}

func NewMigrator(store CanonicalStore, resolver *Resolver, legacy LegacyQuerier) *Migrator {
	return &Migrator{store: store, resolver: resolver, legacy: legacy}
}

// StartRelink launches the relink migration in the background. It returns
// ErrMigrationRunning immediately when a run is in flight.
func (m *Migrator) StartRelink() error {
	if !m.begin() {
		return ErrMigrationRunning
	}
	go m.runRelink(context.Background())
	return nil
}

// StartBackfill launches the "all legacy records regardless of existing
// links" variant used for initial population.
func (m *Migrator) StartBackfill() error {
	if !m.begin() {
		return ErrMigrationRunning
	}
	go m.runBackfill(context.Background())
	return nil
}

// RunRelink is the synchronous form used by the CLI.
func (m *Migrator) RunRelink(ctx context.Context) error {
	if !m.begin() {
		return ErrMigrationRunning
	}
	m.runRelink(ctx)
	return nil
}

// RunBackfill is the synchronous form used by the CLI.
func (m *Migrator) RunBackfill(ctx context.Context) error {
	if !m.begin() {
		return ErrMigrationRunning
	}
	m.runBackfill(ctx)
	return nil
}

// Progress returns a copy of the current (or last finished) snapshot, or nil
// when no run has happened in this process.
func (m *Migrator) Progress() *MigrationProgress {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.progress == nil {
		return nil
	}
	snapshot := *m.progress
	snapshot.Errors = append([]ItemError(nil), m.progress.Errors...)
	return &snapshot
}

func (m *Migrator) begin() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return false
	}
	now := time.Now()
	m.running = true
	m.progress = &MigrationProgress{
		Status:    MigrationStatusRunning,
		StartedAt: &now,
	}
	return true
}

func (m *Migrator) update(fn func(p *MigrationProgress)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.progress)
}

func (m *Migrator) finish(status string, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.progress.Status = status
	m.progress.Message = message
	m.progress.FinishedAt = &now
	m.running = false
}

func (m *Migrator) runRelink(ctx context.Context) {
	logger := config.GetLogger()

	m.runCleanup(ctx)

	sales, err := m.store.UnlinkedSales(ctx)
	if err != nil {
		config.LogError(logger, "legacysync", "Migrator.runRelink", "load unlinked sales", nil, err)
		m.finish(MigrationStatusFailed, "could not load unlinked sales: "+err.Error())
		return
	}
	m.update(func(p *MigrationProgress) { p.Total = len(sales) })

	for i := range sales {
		sale := sales[i]
		if err := m.relinkSale(ctx, &sale); err != nil {
			m.update(func(p *MigrationProgress) {
				p.Processed++
				p.Errors = append(p.Errors, ItemError{Ref: sale.Code, Reason: err.Error()})
			})
			continue
		}
		m.update(func(p *MigrationProgress) {
			p.Processed++
			p.Linked++
		})
	}

	m.finish(MigrationStatusCompleted, "")
}

func (m *Migrator) relinkSale(ctx context.Context, sale *models.Sale) error {
	var clientId, salesPersonId, prescriberId *int

	if sale.ClientId == nil {
		client, created, err := m.resolver.ResolveClient(ctx, sale.ClientName, sale.BranchId)
		if err != nil {
			return fmt.Errorf("client %q: %w", sale.ClientName, err)
		}
		clientId = &client.ID
		if created {
			m.update(func(p *MigrationProgress) { p.ClientsCreated++ })
		}
	}

	if sale.SalesPersonId == nil {
		sp, created, err := m.resolver.ResolveSalesPerson(ctx, sale.SalesPersonName, sale.BranchId)
		if err != nil {
			return fmt.Errorf("salesperson %q: %w", sale.SalesPersonName, err)
		}
		salesPersonId = &sp.ID
		if created {
			m.update(func(p *MigrationProgress) { p.SalesPeopleCreated++ })
		}
	}

	if sale.PrescriberId == nil {
		prescriber, created, err := m.resolver.ResolvePrescriber(ctx, sale.PrescriberName, sale.BranchId)
		if err != nil {
			return fmt.Errorf("prescriber %q: %w", sale.PrescriberName, err)
		}
		if prescriber != nil {
			prescriberId = &prescriber.ID
			if created {
				m.update(func(p *MigrationProgress) { p.PrescribersCreated++ })
			}
		}
	}

	return m.store.SetSaleLinks(ctx, sale.ID, clientId, salesPersonId, prescriberId)
}

// runBackfill walks every legacy client, salesperson and prescriber row from
// both sources through the resolver, creating whatever is missing. Same
// per-record isolation and progress rules as the relink.
func (m *Migrator) runBackfill(ctx context.Context) {
	logger := config.GetLogger()

	type kind struct {
		query      string
		nameColumn string
		resolve    func(ctx context.Context, row map[string]interface{}, fallbackBranch int) error
	}
	kinds := []kind{
		{legacyClientQuery, "nomecli", func(ctx context.Context, row map[string]interface{}, fallbackBranch int) error {
			branch := rowInt(row, "cdfil")
			if branch == 0 {
				branch = fallbackBranch
			}
			_, created, err := m.resolver.ResolveClient(ctx, rowString(row, "nomecli"), branch)
			if created {
				m.update(func(p *MigrationProgress) { p.ClientsCreated++ })
			}
			return err
		}},
		{legacySalesPersonQuery, "nomeven", func(ctx context.Context, row map[string]interface{}, fallbackBranch int) error {
			branch := rowInt(row, "cdfil")
			if branch == 0 {
				branch = fallbackBranch
			}
			_, created, err := m.resolver.ResolveSalesPerson(ctx, rowString(row, "nomeven"), branch)
			if created {
				m.update(func(p *MigrationProgress) { p.SalesPeopleCreated++ })
			}
			return err
		}},
		{legacyPrescriberQuery, "nomemed", func(ctx context.Context, row map[string]interface{}, fallbackBranch int) error {
			_, created, err := m.resolver.ResolvePrescriber(ctx, rowString(row, "nomemed"), fallbackBranch)
			if created {
				m.update(func(p *MigrationProgress) { p.PrescribersCreated++ })
			}
			return err
		}},
	}

	sources := []struct {
		id     config.LegacySource
		branch int
	}{
		{config.LegacySourcePrimary, 0},
		{config.LegacySourceSecondary, config.GetLegacySecondaryBranch()},
	}

	fetched := 0
	for _, src := range sources {
		for _, k := range kinds {
			rows, err := m.legacy.Query(ctx, src.id, k.query)
			if err != nil {
				// A full-table fetch failing is a run-level error for this
				// source; the other source still gets its pass.
				config.LogError(logger, "legacysync", "Migrator.runBackfill", "load legacy rows", k.query, err)
				m.update(func(p *MigrationProgress) {
					p.Errors = append(p.Errors, ItemError{Ref: string(src.id) + "/" + k.nameColumn, Reason: err.Error()})
				})
				continue
			}
			fetched++
			m.update(func(p *MigrationProgress) { p.Total += len(rows) })
			for _, row := range rows {
				if err := k.resolve(ctx, row, src.branch); err != nil && !errors.Is(err, ErrEmptyName) {
					m.update(func(p *MigrationProgress) {
						p.Processed++
						p.Errors = append(p.Errors, ItemError{Ref: rowString(row, k.nameColumn), Reason: err.Error()})
					})
					continue
				}
				m.update(func(p *MigrationProgress) { p.Processed++ })
			}
		}
	}

	// Every fetch against every source failing means nothing was migrated at
	// all; that is a failed run, not a completed one.
	if fetched == 0 {
		m.finish(MigrationStatusFailed, "no legacy source reachable")
		return
	}
	m.finish(MigrationStatusCompleted, "")
}

func (m *Migrator) runCleanup(ctx context.Context) {
	logger := config.GetLogger()
	for _, statement := range cleanupStatements {
		if err := m.store.Exec(ctx, statement); err != nil {
			config.LogError(logger, "legacysync", "Migrator.runCleanup", "cleanup statement skipped", statement, err)
		}
	}
}
