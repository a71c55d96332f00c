package legacysync

import (
	"context"
	"errors"

	"github.com/grupofarma/pharma_backend/config"
	"github.com/grupofarma/pharma_backend/models"
)

// Legacy read queries. Matching cannot be pushed into SQL (the key is
// accent/case/whitespace-insensitive), so these select whole tables and the
// resolver compares derived keys in app code.
const (
	legacyClientQuery      = "SELECT codcli, nomecli, cdfil, cgccpf, fone, email, dtcadastro FROM clientes"
	legacySalesPersonQuery = "SELECT codven, nomeven, cdfil FROM vendedores"
	legacyPrescriberQuery  = "SELECT codmed, nomemed, crm, uf, fone FROM medicos"
)

var ErrEmptyName = errors.New("name is empty")

// Resolver implements find-or-create entity resolution. Callers are expected
// to run strictly sequentially; there is no per-key locking, the no-duplicate
// guarantee holds because processing is serialized.
type Resolver struct {
	store  CanonicalStore
	legacy LegacyQuerier
}

func NewResolver(store CanonicalStore, legacy LegacyQuerier) *Resolver {
	return &Resolver{store: store, legacy: legacy}
}

// ResolveClient returns the canonical client for a raw name, creating it if
// needed. The boolean reports creation. When the legacy source knows the
// client, its branch and registration data win over the caller's branch:
// legacy data is authoritative for scope.
func (r *Resolver) ResolveClient(ctx context.Context, name string, branchId int) (*models.Client, bool, error) {
	key := MatchKey(name)
	if key == "" {
		return nil, false, ErrEmptyName
	}

	existing, err := r.store.FindClientByKey(ctx, key, branchId)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	input := &models.NewClient{Name: displayName(name), BranchId: branchId}
	if row := r.lookupLegacy(ctx, branchId, legacyClientQuery, "nomecli", name); row != nil {
		input.Name = rowString(row, "nomecli")
		input.Code = rowString(row, "codcli")
		input.Document = rowString(row, "cgccpf")
		input.Phone = rowString(row, "fone")
		input.Email = rowString(row, "email")
		input.RegisteredAt = rowTime(row, "dtcadastro")
		if legacyBranch := rowInt(row, "cdfil"); legacyBranch != 0 {
			input.BranchId = legacyBranch
		}
	}

	// The legacy branch may differ from the caller's; re-check under the
	// final scope so repeated resolution never creates a second record.
	if input.BranchId != branchId {
		existing, err = r.store.FindClientByKey(ctx, key, input.BranchId)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
	}

	created, err := r.store.CreateClient(ctx, input)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// ResolveSalesPerson mirrors ResolveClient for salespeople.
func (r *Resolver) ResolveSalesPerson(ctx context.Context, name string, branchId int) (*models.SalesPerson, bool, error) {
	key := MatchKey(name)
	if key == "" {
		return nil, false, ErrEmptyName
	}

	existing, err := r.store.FindSalesPersonByKey(ctx, key, branchId)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	input := &models.NewSalesPerson{Name: displayName(name), BranchId: branchId}
	if row := r.lookupLegacy(ctx, branchId, legacySalesPersonQuery, "nomeven", name); row != nil {
		input.Name = rowString(row, "nomeven")
		input.Code = rowString(row, "codven")
		if legacyBranch := rowInt(row, "cdfil"); legacyBranch != 0 {
			input.BranchId = legacyBranch
		}
	}

	if input.BranchId != branchId {
		existing, err = r.store.FindSalesPersonByKey(ctx, key, input.BranchId)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
	}

	created, err := r.store.CreateSalesPerson(ctx, input)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// ResolvePrescriber tolerates an absent name: a sale may legitimately carry
// no prescriber, in which case (nil, false, nil) is returned. Prescribers
// are scope-less; branchId only picks which legacy source to consult.
func (r *Resolver) ResolvePrescriber(ctx context.Context, name string, branchId int) (*models.Prescriber, bool, error) {
	key := MatchKey(name)
	if key == "" {
		return nil, false, nil
	}

	existing, err := r.store.FindPrescriberByKey(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	input := &models.NewPrescriber{Name: displayName(name)}
	if row := r.lookupLegacy(ctx, branchId, legacyPrescriberQuery, "nomemed", name); row != nil {
		input.Name = rowString(row, "nomemed")
		input.Registry = rowString(row, "crm")
		input.RegistryState = rowString(row, "uf")
		input.Phone = rowString(row, "fone")
	}

	created, err := r.store.CreatePrescriber(ctx, input)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// lookupLegacy finds the first legacy row whose name resolves to the same
// match key as the one being resolved. Adapter failure here degrades to "no
// legacy match": resolution can still create the entity from the
// caller-supplied data.
func (r *Resolver) lookupLegacy(ctx context.Context, branchId int, query, nameColumn, name string) map[string]interface{} {
	source := SourceForBranch(branchId)
	rows, err := r.legacy.Query(ctx, source, query)
	if err != nil {
		config.LogError(config.GetLogger(), "legacysync", "Resolver.lookupLegacy",
			"legacy lookup failed, continuing without legacy data", string(source), err)
		return nil
	}
	for _, row := range rows {
		if SameName(rowString(row, nameColumn), name) {
			return row
		}
	}
	return nil
}

// displayName cleans a raw name for storage without losing accents: repair
// plus whitespace collapse, no case or diacritic changes.
func displayName(name string) string {
	return collapseSpaces(RepairMojibake(name))
}
