package models

import (
	"context"
	"time"

	"github.com/grupofarma/pharma_backend/config"
	"github.com/grupofarma/pharma_backend/utils"
)

const (
	SyncEntityClient     = "client"
	SyncEntityPrescriber = "prescriber"
)

// SyncWatermark is one (agent, entity type) cursor. LastSeenDate only ever
// moves forward, to the maximum valid registration date observed in a
// completed fetch; a batch with no parseable date leaves it untouched.
type SyncWatermark struct {
	ID              int        `gorm:"primary_key" json:"id"`
	AgentCode       string     `gorm:"size:50;uniqueIndex:idx_watermark,priority:1;not null" json:"agent_code"`
	EntityType      string     `gorm:"size:20;uniqueIndex:idx_watermark,priority:2;not null" json:"entity_type"`
	LastSeenDate    time.Time  `json:"last_seen_date"`
	IntervalMinutes int        `gorm:"default:60" json:"interval_minutes"`
	Active          *bool      `gorm:"not null;default:true" json:"active"`
	LastRunAt       *time.Time `json:"last_run_at"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// EnsureWatermark provisions the (agent, entity) cursor if it does not
// exist yet. Existing rows keep their date, interval and active flag.
func EnsureWatermark(ctx context.Context, agentCode, entityType string, intervalMinutes int) (*SyncWatermark, error) {
	wm := SyncWatermark{
		AgentCode:       agentCode,
		EntityType:      entityType,
		IntervalMinutes: intervalMinutes,
		Active:          utils.NewTrue(),
	}
	err := config.GetDB().WithContext(ctx).
		Where(SyncWatermark{AgentCode: agentCode, EntityType: entityType}).
		FirstOrCreate(&wm).Error
	if err != nil {
		return nil, err
	}
	return &wm, nil
}

func GetActiveWatermarks(ctx context.Context) ([]SyncWatermark, error) {
	var watermarks []SyncWatermark
	err := config.GetDB().WithContext(ctx).
		Where("active = ?", true).
		Order("agent_code, entity_type").
		Find(&watermarks).Error
	if err != nil {
		return nil, err
	}
	return watermarks, nil
}

func GetAllWatermarks(ctx context.Context) ([]SyncWatermark, error) {
	var watermarks []SyncWatermark
	err := config.GetDB().WithContext(ctx).
		Order("agent_code, entity_type").
		Find(&watermarks).Error
	if err != nil {
		return nil, err
	}
	return watermarks, nil
}

// AdvanceWatermark moves LastSeenDate forward and stamps the run time.
// The WHERE guard keeps the date monotonic even if two instances race.
func AdvanceWatermark(ctx context.Context, id int, seen time.Time, ranAt time.Time) error {
	return config.GetDB().WithContext(ctx).
		Model(&SyncWatermark{}).
		Where("id = ? AND last_seen_date < ?", id, seen).
		Updates(map[string]interface{}{
			"last_seen_date": seen,
			"last_run_at":    ranAt,
		}).Error
}

// TouchWatermarkRun records a run that produced no new watermark date.
func TouchWatermarkRun(ctx context.Context, id int, ranAt time.Time) error {
	return config.GetDB().WithContext(ctx).
		Model(&SyncWatermark{}).
		Where("id = ?", id).
		Update("last_run_at", ranAt).Error
}
