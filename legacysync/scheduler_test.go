package legacysync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/grupofarma/pharma_backend/config"
	"github.com/grupofarma/pharma_backend/models"
	"github.com/grupofarma/pharma_backend/utils"
)

func setupAgentEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SYNC_AGENTS", "matriz,filial")
	t.Setenv("AGENT_MATRIZ_BASE_URL", "http://matriz.local:3333")
	t.Setenv("AGENT_MATRIZ_UNIT", "1")
	t.Setenv("AGENT_FILIAL_BASE_URL", "http://filial.local:3333")
	t.Setenv("AGENT_FILIAL_UNIT", "2")
}

func watermark(id int, agent, entity string, lastSeen time.Time) models.SyncWatermark {
	return models.SyncWatermark{
		ID:              id,
		AgentCode:       agent,
		EntityType:      entity,
		LastSeenDate:    lastSeen,
		IntervalMinutes: 60,
		Active:          utils.NewTrue(),
	}
}

func TestRunDueSyncs_AdvancesWatermarkToMaxValidDate(t *testing.T) {
	setupAgentEnv(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.watermarks = []models.SyncWatermark{
		watermark(1, "matriz", models.SyncEntityClient, base.Add(-24*time.Hour)),
		watermark(2, "matriz", models.SyncEntityPrescriber, base.Add(-24*time.Hour)),
	}
	agents := newFakeAgentCaller()
	agents.batches["matriz"] = &AgentBatch{
		Clientes: []AgentClienteRecord{
			{Nome: "Ana Souza", DtCadastro: "2026-03-01 09:00:00"},
			{Nome: "Beto Lima", DtCadastro: "2026-03-01 10:30:00"},
			{Nome: "Caio Dias", DtCadastro: "not-a-date"},
		},
		Prescritores: []AgentPrescritorRecord{
			{Nome: "Dr. Hugo", CRM: "99", UF: "SP", DtCadastro: "2026-03-01 08:00:00"},
		},
	}
	s := NewScheduler(store, NewResolver(store, newFakeQuerier()), agents)
	s.now = func() time.Time { return base }

	results, ran := s.RunDueSyncs(context.Background())
	if !ran {
		t.Fatal("pass should run")
	}
	if len(results) != 1 {
		t.Fatalf("results = %+v", results)
	}
	r := results[0]
	if r.Failed != "" {
		t.Fatalf("unexpected failure: %s", r.Failed)
	}
	if r.ClientsSynced != 3 || r.ClientsCreated != 3 {
		t.Fatalf("clients synced=%d created=%d", r.ClientsSynced, r.ClientsCreated)
	}
	if r.PrescribersSynced != 1 || r.PrescribersCreated != 1 {
		t.Fatalf("prescribers synced=%d created=%d", r.PrescribersSynced, r.PrescribersCreated)
	}

	// Client watermark moves to the max parseable date; the unparseable one
	// is ignored, not treated as zero.
	want := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	if !store.watermarks[0].LastSeenDate.Equal(want) {
		t.Fatalf("client watermark = %s, want %s", store.watermarks[0].LastSeenDate, want)
	}
	wantP := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	if !store.watermarks[1].LastSeenDate.Equal(wantP) {
		t.Fatalf("prescriber watermark = %s, want %s", store.watermarks[1].LastSeenDate, wantP)
	}
}

func TestRunDueSyncs_WatermarkNeverRegresses(t *testing.T) {
	setupAgentEnv(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seen := base.Add(-2 * time.Hour)
	store := newFakeStore()
	store.watermarks = []models.SyncWatermark{
		watermark(1, "matriz", models.SyncEntityClient, seen),
	}
	agents := newFakeAgentCaller()
	agents.batches["matriz"] = &AgentBatch{
		Clientes: []AgentClienteRecord{
			// Older than the stored watermark.
			{Nome: "Ana Souza", DtCadastro: "2026-02-01 09:00:00"},
		},
	}
	s := NewScheduler(store, NewResolver(store, newFakeQuerier()), agents)
	s.now = func() time.Time { return base }

	if _, ran := s.RunDueSyncs(context.Background()); !ran {
		t.Fatal("pass should run")
	}
	if !store.watermarks[0].LastSeenDate.Equal(seen) {
		t.Fatalf("watermark regressed to %s", store.watermarks[0].LastSeenDate)
	}
	if store.watermarks[0].LastRunAt == nil {
		t.Fatal("run should still be stamped")
	}
}

func TestRunDueSyncs_NotDueAgentIsSkipped(t *testing.T) {
	setupAgentEnv(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.watermarks = []models.SyncWatermark{
		// Interval 60m, last seen 10m ago: not due.
		watermark(1, "matriz", models.SyncEntityClient, base.Add(-10*time.Minute)),
	}
	agents := newFakeAgentCaller()
	s := NewScheduler(store, NewResolver(store, newFakeQuerier()), agents)
	s.now = func() time.Time { return base }

	results, ran := s.RunDueSyncs(context.Background())
	if !ran {
		t.Fatal("pass should run")
	}
	if len(results) != 0 || len(agents.calls) != 0 {
		t.Fatalf("not-due agent was fetched: results=%v calls=%v", results, agents.calls)
	}
}

func TestRunDueSyncs_InactiveWatermarkIgnored(t *testing.T) {
	setupAgentEnv(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	inactive := watermark(1, "matriz", models.SyncEntityClient, base.Add(-24*time.Hour))
	inactive.Active = utils.NewFalse()
	store.watermarks = []models.SyncWatermark{inactive}
	agents := newFakeAgentCaller()
	s := NewScheduler(store, NewResolver(store, newFakeQuerier()), agents)
	s.now = func() time.Time { return base }

	results, ran := s.RunDueSyncs(context.Background())
	if !ran {
		t.Fatal("pass should run")
	}
	if len(results) != 0 || len(agents.calls) != 0 {
		t.Fatalf("inactive watermark was synced: %v", results)
	}
}

func TestRunDueSyncs_AgentFailureIsolated(t *testing.T) {
	setupAgentEnv(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.watermarks = []models.SyncWatermark{
		watermark(1, "matriz", models.SyncEntityClient, base.Add(-24*time.Hour)),
		watermark(2, "filial", models.SyncEntityClient, base.Add(-24*time.Hour)),
	}
	agents := newFakeAgentCaller()
	agents.errs["matriz"] = errors.New("connection refused")
	agents.batches["filial"] = &AgentBatch{
		Clientes: []AgentClienteRecord{{Nome: "Ana Souza", DtCadastro: "2026-03-01 09:00:00"}},
	}
	s := NewScheduler(store, NewResolver(store, newFakeQuerier()), agents)
	s.now = func() time.Time { return base }

	results, _ := s.RunDueSyncs(context.Background())
	if len(results) != 2 {
		t.Fatalf("results = %+v", results)
	}
	if results[0].AgentCode != "matriz" || results[0].Failed == "" {
		t.Fatalf("matriz should have failed: %+v", results[0])
	}
	if results[1].AgentCode != "filial" || results[1].Failed != "" {
		t.Fatalf("filial should have succeeded: %+v", results[1])
	}
	if results[1].ClientsCreated != 1 {
		t.Fatalf("filial created = %d", results[1].ClientsCreated)
	}
}

func TestRunDueSyncs_RefreshesContactWithoutTouchingName(t *testing.T) {
	setupAgentEnv(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.clients = append(store.clients, models.Client{
		ID: 5, Name: "Ana Souza", BranchId: 1, Phone: "old-phone",
	})
	store.watermarks = []models.SyncWatermark{
		watermark(1, "matriz", models.SyncEntityClient, base.Add(-24*time.Hour)),
	}
	agents := newFakeAgentCaller()
	agents.batches["matriz"] = &AgentBatch{
		Clientes: []AgentClienteRecord{
			{Nome: "ANA  SOUZA", Telefone: "11 97777-0000", Email: "ana@example.com"},
		},
	}
	s := NewScheduler(store, NewResolver(store, newFakeQuerier()), agents)
	s.now = func() time.Time { return base }

	results, _ := s.RunDueSyncs(context.Background())
	if results[0].ClientsCreated != 0 || results[0].ClientsSynced != 1 {
		t.Fatalf("result = %+v", results[0])
	}
	updates := store.clientUpdates[5]
	if updates == nil {
		t.Fatal("contact refresh not applied")
	}
	if updates["phone"] != "11 97777-0000" || updates["email"] != "ana@example.com" {
		t.Fatalf("updates = %v", updates)
	}
	if _, ok := updates["name"]; ok {
		t.Fatal("refresh must never rewrite the name")
	}
	if store.clients[0].Name != "Ana Souza" {
		t.Fatalf("name changed to %q", store.clients[0].Name)
	}
}

func TestRunDueSyncs_BadRecordsIsolatedDroppedPrescriberSilent(t *testing.T) {
	setupAgentEnv(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.watermarks = []models.SyncWatermark{
		watermark(1, "matriz", models.SyncEntityClient, base.Add(-24*time.Hour)),
		watermark(2, "matriz", models.SyncEntityPrescriber, base.Add(-24*time.Hour)),
	}
	agents := newFakeAgentCaller()
	agents.batches["matriz"] = &AgentBatch{
		Clientes: []AgentClienteRecord{
			{Nome: "   ", DtCadastro: "2026-03-01 09:00:00"},
			{Nome: "Beto Lima", DtCadastro: "2026-03-01 10:00:00"},
		},
		Prescritores: []AgentPrescritorRecord{
			{Nome: "", DtCadastro: "2026-03-01 11:00:00"},
		},
	}
	s := NewScheduler(store, NewResolver(store, newFakeQuerier()), agents)
	s.now = func() time.Time { return base }

	results, _ := s.RunDueSyncs(context.Background())
	r := results[0]
	if len(r.Errors) != 1 {
		t.Fatalf("errors = %+v", r.Errors)
	}
	if r.ClientsSynced != 1 || r.ClientsCreated != 1 {
		t.Fatalf("clients synced=%d created=%d", r.ClientsSynced, r.ClientsCreated)
	}
	// A nameless prescriber is dropped without an error and without a count.
	if r.PrescribersSynced != 0 || r.PrescribersCreated != 0 {
		t.Fatalf("prescribers synced=%d created=%d", r.PrescribersSynced, r.PrescribersCreated)
	}
	// The skipped client's date must not advance the watermark past valid work.
	want := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if !store.watermarks[0].LastSeenDate.Equal(want) {
		t.Fatalf("client watermark = %s, want %s", store.watermarks[0].LastSeenDate, want)
	}
	// The dropped prescriber record is still a completed fetch; its date came
	// from the agent and advances the prescriber watermark.
	wantP := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	if !store.watermarks[1].LastSeenDate.Equal(wantP) {
		t.Fatalf("prescriber watermark = %s, want %s", store.watermarks[1].LastSeenDate, wantP)
	}
}

type blockingAgent struct {
	*fakeAgentCaller
	release chan struct{}
}

func (a *blockingAgent) FetchSince(ctx context.Context, agent config.Agent, clienteSince, prescritorSince time.Time) (*AgentBatch, error) {
	<-a.release
	return a.fakeAgentCaller.FetchSince(ctx, agent, clienteSince, prescritorSince)
}

func TestRunDueSyncs_SkipsWhileRunning(t *testing.T) {
	setupAgentEnv(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.watermarks = []models.SyncWatermark{
		watermark(1, "matriz", models.SyncEntityClient, base.Add(-24*time.Hour)),
	}
	agents := &blockingAgent{fakeAgentCaller: newFakeAgentCaller(), release: make(chan struct{})}
	s := NewScheduler(store, NewResolver(store, newFakeQuerier()), agents)
	s.now = func() time.Time { return base }

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.RunDueSyncs(context.Background())
	}()

	// Wait for the first pass to reach the blocked fetch, then tick again.
	deadline := time.After(5 * time.Second)
	for !s.Status(context.Background()).Running {
		select {
		case <-deadline:
			t.Fatal("first pass never started")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if _, ran := s.RunDueSyncs(context.Background()); ran {
		t.Fatal("overlapping pass must be skipped")
	}

	close(agents.release)
	<-done

	if _, ran := s.RunDueSyncs(context.Background()); !ran {
		t.Fatal("pass after completion should run")
	}
}

func TestSchedulerStatus(t *testing.T) {
	setupAgentEnv(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.watermarks = []models.SyncWatermark{
		watermark(1, "matriz", models.SyncEntityClient, base.Add(-24*time.Hour)),
	}
	agents := newFakeAgentCaller()
	agents.batches["matriz"] = &AgentBatch{
		Clientes: []AgentClienteRecord{{Nome: "Ana Souza", DtCadastro: "2026-03-01 09:00:00"}},
	}
	s := NewScheduler(store, NewResolver(store, newFakeQuerier()), agents)
	s.now = func() time.Time { return base }

	status := s.Status(context.Background())
	if status.Running || status.LastRunAt != nil {
		t.Fatalf("fresh status = %+v", status)
	}
	if len(status.Watermarks) != 1 {
		t.Fatalf("watermarks = %+v", status.Watermarks)
	}

	if _, ran := s.RunDueSyncs(context.Background()); !ran {
		t.Fatal("pass should run")
	}
	status = s.Status(context.Background())
	if status.LastRunAt == nil || len(status.LastResults) != 1 {
		t.Fatalf("status after run = %+v", status)
	}
	if status.LastResults[0].AgentCode != "matriz" {
		t.Fatalf("results = %+v", status.LastResults)
	}
}
