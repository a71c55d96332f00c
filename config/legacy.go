package config

import (
	"errors"
	"os"
	"strings"
)

// LegacySource selects one of the two configured legacy POS databases.
type LegacySource string

const (
	LegacySourcePrimary   LegacySource = "primary"
	LegacySourceSecondary LegacySource = "secondary"
)

// GetLegacyDSN returns the go-sql-driver DSN for a legacy source. Connections
// are opened per query by the adapter, never pooled here.
func GetLegacyDSN(source LegacySource) (string, error) {
	var dsn string
	switch source {
	case LegacySourceSecondary:
		dsn = strings.TrimSpace(os.Getenv("LEGACY_DB_DSN_SECONDARY"))
	default:
		dsn = strings.TrimSpace(os.Getenv("LEGACY_DB_DSN_PRIMARY"))
	}
	if dsn == "" {
		return "", errors.New("legacy dsn not configured for source " + string(source))
	}
	return dsn, nil
}

// GetLegacySecondaryBranch returns the one branch whose data lives in the
// secondary legacy database. Every other branch routes to the primary.
func GetLegacySecondaryBranch() int {
	return intFromEnv("LEGACY_SECONDARY_BRANCH", 11)
}
