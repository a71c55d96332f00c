package legacysync

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/grupofarma/pharma_backend/config"
	"github.com/grupofarma/pharma_backend/models"
	"github.com/sirupsen/logrus"
)

// lastResultsKey caches the most recent pass results in redis so Status can
// report them even from an instance that has not run a pass itself.
const lastResultsKey = "legacysync:last_results"

// Scheduler drives the incremental agent syncs. A fixed cron tick calls
// RunDueSyncs; agents in a tick run strictly sequentially, and a tick that
// arrives while one is still running is skipped outright (running flag,
// plus a best-effort redis lock across instances).
type Scheduler struct {
	store    CanonicalStore
	resolver *Resolver
	agents   AgentCaller

	mu          sync.Mutex
	running     bool
	lastRunAt   *time.Time
	lastResults []SyncResult

	now func() time.Time
}

func NewScheduler(store CanonicalStore, resolver *Resolver, agents AgentCaller) *Scheduler {
	return &Scheduler{
		store:    store,
		resolver: resolver,
		agents:   agents,
		now:      time.Now,
	}
}

// RunDueSyncs performs one sync pass over every agent with a due watermark.
// The second return reports whether the pass ran at all (false = skipped
// because another pass is in progress).
func (s *Scheduler) RunDueSyncs(ctx context.Context) ([]SyncResult, bool) {
	if !s.begin() {
		return nil, false
	}
	defer s.end()

	logger := config.GetLogger()

	// Best-effort cross-instance guard; same obtain-else-skip semantics as
	// the in-process flag. Redis being down never blocks a sync.
	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, "lock:legacysync", 10*time.Minute, nil)
		if err == redislock.ErrNotObtained {
			logger.WithFields(logrus.Fields{"module": "legacysync"}).Warn("sync already running elsewhere; skipping tick")
			return nil, false
		}
		if err != nil {
			logger.WithFields(logrus.Fields{"module": "legacysync"}).Warn("error obtaining sync lock; proceeding without it: " + err.Error())
		} else {
			defer func() { _ = lock.Release(ctx) }()
		}
	}

	watermarks, err := s.store.ActiveWatermarks(ctx)
	if err != nil {
		config.LogError(logger, "legacysync", "Scheduler.RunDueSyncs", "load watermarks", nil, err)
		results := []SyncResult{{Failed: "could not load sync watermarks: " + err.Error()}}
		s.record(results)
		return results, true
	}

	byAgent := map[string]map[string]*models.SyncWatermark{}
	order := []string{}
	for i := range watermarks {
		wm := &watermarks[i]
		if byAgent[wm.AgentCode] == nil {
			byAgent[wm.AgentCode] = map[string]*models.SyncWatermark{}
			order = append(order, wm.AgentCode)
		}
		byAgent[wm.AgentCode][wm.EntityType] = wm
	}

	var results []SyncResult
	for _, code := range order {
		set := byAgent[code]
		if !s.anyDue(set) {
			continue
		}
		results = append(results, s.syncAgent(ctx, code, set[models.SyncEntityClient], set[models.SyncEntityPrescriber]))
	}

	s.record(results)
	return results, true
}

// Status reports the scheduler state plus the stored watermarks.
func (s *Scheduler) Status(ctx context.Context) SyncStatus {
	s.mu.Lock()
	status := SyncStatus{
		Running:     s.running,
		LastRunAt:   s.lastRunAt,
		LastResults: append([]SyncResult(nil), s.lastResults...),
	}
	s.mu.Unlock()

	// A freshly started instance has no in-memory results yet; fall back to
	// the snapshot the last run cached in redis.
	if status.LastResults == nil {
		var cached []SyncResult
		if found, err := config.GetRedisObject(lastResultsKey, &cached); err == nil && found {
			status.LastResults = cached
		}
	}

	if watermarks, err := s.store.AllWatermarks(ctx); err == nil {
		status.Watermarks = watermarks
	}
	return status
}

func (s *Scheduler) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

func (s *Scheduler) end() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

func (s *Scheduler) record(results []SyncResult) {
	now := s.now()
	s.mu.Lock()
	s.lastRunAt = &now
	s.lastResults = results
	s.mu.Unlock()
	_ = config.SetRedisObject(lastResultsKey, results, time.Hour)
}

func (s *Scheduler) anyDue(set map[string]*models.SyncWatermark) bool {
	now := s.now()
	for _, wm := range set {
		if now.Sub(wm.LastSeenDate) >= time.Duration(wm.IntervalMinutes)*time.Minute {
			return true
		}
	}
	return false
}

// syncAgent fetches one agent's batch and applies it. Any error here stays
// inside the returned result; other agents are unaffected.
func (s *Scheduler) syncAgent(ctx context.Context, code string, clientWM, prescriberWM *models.SyncWatermark) SyncResult {
	started := s.now()
	result := SyncResult{AgentCode: code}
	defer func() { result.DurationMs = s.now().Sub(started).Milliseconds() }()

	agent, err := config.GetSyncAgent(code)
	if err != nil {
		result.Failed = err.Error()
		return result
	}

	clienteSince := time.Time{}
	if clientWM != nil {
		clienteSince = clientWM.LastSeenDate
	}
	prescritorSince := time.Time{}
	if prescriberWM != nil {
		prescritorSince = prescriberWM.LastSeenDate
	}

	batch, err := s.agents.FetchSince(ctx, agent, clienteSince, prescritorSince)
	if err != nil {
		result.Failed = err.Error()
		return result
	}

	branch, _ := strconv.Atoi(agent.UnitCode)

	var maxClientDate, maxPrescriberDate time.Time
	for _, rec := range batch.Clientes {
		if err := s.applyCliente(ctx, rec, branch, &result); err != nil {
			result.Errors = append(result.Errors, ItemError{Ref: rec.Nome, Reason: err.Error()})
			continue
		}
		if d, ok := parseLegacyDate(rec.DtCadastro); ok && d.After(maxClientDate) {
			maxClientDate = d
		}
	}
	for _, rec := range batch.Prescritores {
		if err := s.applyPrescritor(ctx, rec, branch, &result); err != nil {
			result.Errors = append(result.Errors, ItemError{Ref: rec.Nome, Reason: err.Error()})
			continue
		}
		if d, ok := parseLegacyDate(rec.DtCadastro); ok && d.After(maxPrescriberDate) {
			maxPrescriberDate = d
		}
	}

	s.advance(ctx, clientWM, maxClientDate)
	s.advance(ctx, prescriberWM, maxPrescriberDate)
	return result
}

func (s *Scheduler) applyCliente(ctx context.Context, rec AgentClienteRecord, branch int, result *SyncResult) error {
	name := NormalizeLegacyText(rec.Nome, "")
	if MatchKey(name) == "" {
		return fmt.Errorf("cliente sem nome")
	}

	client, created, err := s.resolver.ResolveClient(ctx, name, branch)
	if err != nil {
		return err
	}
	result.ClientsSynced++
	if created {
		result.ClientsCreated++
		return nil
	}

	// Refresh path: mutable contact fields only, and only when changed. The
	// name feeding the match key is never rewritten here.
	updates := map[string]interface{}{}
	if v := NormalizeLegacyText(rec.Telefone, ""); v != "" && v != client.Phone {
		updates["phone"] = v
	}
	if v := NormalizeLegacyText(rec.Email, ""); v != "" && v != client.Email {
		updates["email"] = v
	}
	if v := NormalizeLegacyText(rec.CPF, ""); v != "" && v != client.Document {
		updates["document"] = v
	}
	return s.store.UpdateClientContact(ctx, client.ID, updates)
}

func (s *Scheduler) applyPrescritor(ctx context.Context, rec AgentPrescritorRecord, branch int, result *SyncResult) error {
	name := NormalizeLegacyText(rec.Nome, "")
	prescriber, created, err := s.resolver.ResolvePrescriber(ctx, name, branch)
	if err != nil {
		return err
	}
	if prescriber == nil {
		// Nameless prescriber records are dropped silently; the agents
		// forward whatever the POS has.
		return nil
	}
	result.PrescribersSynced++
	if created {
		result.PrescribersCreated++
		return nil
	}

	updates := map[string]interface{}{}
	if v := NormalizeLegacyText(rec.Telefone, ""); v != "" && v != prescriber.Phone {
		updates["phone"] = v
	}
	if v := NormalizeLegacyText(rec.CRM, ""); v != "" && v != prescriber.Registry {
		updates["registry"] = v
	}
	if v := NormalizeLegacyText(rec.UF, ""); v != "" && v != prescriber.RegistryState {
		updates["registry_state"] = v
	}
	return s.store.UpdatePrescriberContact(ctx, prescriber.ID, updates)
}

// advance moves a watermark to the max valid date seen, or just stamps the
// run when the batch carried no parseable date. It never regresses.
func (s *Scheduler) advance(ctx context.Context, wm *models.SyncWatermark, seen time.Time) {
	if wm == nil {
		return
	}
	now := s.now()
	var err error
	if !seen.IsZero() && seen.After(wm.LastSeenDate) {
		err = s.store.AdvanceWatermark(ctx, wm.ID, seen, now)
	} else {
		err = s.store.TouchWatermarkRun(ctx, wm.ID, now)
	}
	if err != nil {
		config.LogError(config.GetLogger(), "legacysync", "Scheduler.advance", "persist watermark", wm.AgentCode+"/"+wm.EntityType, err)
	}
}
