package legacysync

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HTTP handlers for the migration and sync endpoints. They are thin: all
// state lives in the Migrator and Scheduler they close over.

func RelinkHandler(m *Migrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := m.StartRelink(); err != nil {
			if errors.Is(err, ErrMigrationRunning) {
				c.JSON(http.StatusConflict, gin.H{"error": "a migration is already running"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"started": true})
	}
}

func BackfillHandler(m *Migrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := m.StartBackfill(); err != nil {
			if errors.Is(err, ErrMigrationRunning) {
				c.JSON(http.StatusConflict, gin.H{"error": "a migration is already running"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"started": true})
	}
}

func MigrationProgressHandler(m *Migrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		progress := m.Progress()
		if progress == nil {
			// No run has happened since startup; render an explicit null.
			c.JSON(http.StatusOK, nil)
			return
		}
		c.JSON(http.StatusOK, progress)
	}
}

func TriggerSyncHandler(s *Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		results, ran := s.RunDueSyncs(c.Request.Context())
		if !ran {
			c.JSON(http.StatusConflict, gin.H{"error": "a sync pass is already running"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"results": results})
	}
}

func SyncStatusHandler(s *Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, s.Status(c.Request.Context()))
	}
}
