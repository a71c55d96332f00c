package legacysync

import (
	"strings"
	"time"

	"github.com/grupofarma/pharma_backend/models"
)

const (
	MigrationStatusIdle      = "idle"
	MigrationStatusRunning   = "running"
	MigrationStatusCompleted = "completed"
	MigrationStatusFailed    = "failed"
)

// ItemError is one skipped record: the external reference plus a
// human-readable reason. Partial success is the expected common case.
type ItemError struct {
	Ref    string `json:"ref"`
	Reason string `json:"reason"`
}

// MigrationProgress is the live snapshot of a bulk run. One instance exists
// per run, owned by the Migrator; it is updated after every record and frozen
// on completion.
type MigrationProgress struct {
	Status             string      `json:"status"`
	Total              int         `json:"total"`
	Processed          int         `json:"processed"`
	Linked             int         `json:"linked"`
	ClientsCreated     int         `json:"clients_created"`
	SalesPeopleCreated int         `json:"sales_people_created"`
	PrescribersCreated int         `json:"prescribers_created"`
	Errors             []ItemError `json:"errors"`
	Message            string      `json:"message,omitempty"`
	StartedAt          *time.Time  `json:"started_at"`
	FinishedAt         *time.Time  `json:"finished_at"`
}

// SyncResult describes one agent's outcome within a sync pass.
type SyncResult struct {
	AgentCode          string      `json:"agent_code"`
	ClientsSynced      int         `json:"clients_synced"`
	ClientsCreated     int         `json:"clients_created"`
	PrescribersSynced  int         `json:"prescribers_synced"`
	PrescribersCreated int         `json:"prescribers_created"`
	Errors             []ItemError `json:"errors"`
	Failed             string      `json:"failed,omitempty"`
	DurationMs         int64       `json:"duration_ms"`
}

// SyncStatus is the scheduler status exposed over HTTP.
type SyncStatus struct {
	Running     bool                   `json:"running"`
	LastRunAt   *time.Time             `json:"last_run_at"`
	LastResults []SyncResult           `json:"last_results"`
	Watermarks  []models.SyncWatermark `json:"watermarks"`
}

// Remote agent payloads. The agents are small site-local services in front
// of each legacy POS; field names follow their JSON contract.

type AgentClienteRecord struct {
	Nome       string `json:"nome"`
	CPF        string `json:"cpf"`
	Telefone   string `json:"telefone"`
	Email      string `json:"email"`
	DtCadastro string `json:"dtcadastro"`
}

type AgentPrescritorRecord struct {
	Nome       string `json:"nome"`
	CRM        string `json:"crm"`
	UF         string `json:"uf"`
	Telefone   string `json:"telefone"`
	DtCadastro string `json:"dtcadastro"`
}

type AgentBatch struct {
	Clientes     []AgentClienteRecord    `json:"clientes"`
	Prescritores []AgentPrescritorRecord `json:"prescritores"`
}

var legacyDateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02/01/2006",
}

// parseLegacyDate accepts the date shapes seen across the legacy systems and
// agents. Anything else is reported invalid, never zero-valued.
func parseLegacyDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range legacyDateLayouts {
		if t, err := time.Parse(layout, value); err == nil && !t.IsZero() {
			return t, true
		}
	}
	return time.Time{}, false
}
