package legacysync

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/grupofarma/pharma_backend/config"
)

// LegacyQuerier is the read-only surface the resolver and the backfill use
// against the legacy POS databases.
type LegacyQuerier interface {
	Query(ctx context.Context, source config.LegacySource, query string, args ...interface{}) ([]map[string]interface{}, error)
}

// LegacyAdapter executes one parameterized query per call against one of the
// two legacy sources. A connection is opened for the call and closed in all
// cases; the legacy servers are old and fragile, holding pools against them
// has caused outages before.
type LegacyAdapter struct {
	charset string
}

func NewLegacyAdapter() *LegacyAdapter {
	return &LegacyAdapter{
		charset: strings.TrimSpace(os.Getenv("LEGACY_DB_CHARSET")),
	}
}

// SourceForBranch maps a branch to its legacy database: the one configured
// secondary branch lives in the second source, everything else in the first.
func SourceForBranch(branchId int) config.LegacySource {
	if branchId == config.GetLegacySecondaryBranch() {
		return config.LegacySourceSecondary
	}
	return config.LegacySourcePrimary
}

// Query runs one read query and returns fully normalized rows: every column
// name and every text value has been through the encoding pipeline.
func (a *LegacyAdapter) Query(ctx context.Context, source config.LegacySource, query string, args ...interface{}) ([]map[string]interface{}, error) {
	logger := config.GetLogger()

	dsn, err := config.GetLegacyDSN(source)
	if err != nil {
		config.LogError(logger, "legacysync", "LegacyAdapter.Query", "resolve dsn", string(source), err)
		return nil, err
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		config.LogError(logger, "legacysync", "LegacyAdapter.Query", "open connection", string(source), err)
		return nil, err
	}
	defer db.Close()
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Minute)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		config.LogError(logger, "legacysync", "LegacyAdapter.Query", "execute query", query, err)
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var result []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			config.LogError(logger, "legacysync", "LegacyAdapter.Query", "scan row", query, err)
			return nil, err
		}
		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		result = append(result, NormalizeRow(row, a.charset))
	}
	if err := rows.Err(); err != nil {
		config.LogError(logger, "legacysync", "LegacyAdapter.Query", "iterate rows", query, err)
		return nil, err
	}
	return result, nil
}

// Row accessors. Legacy columns come back as interface{} after
// normalization; these keep the call sites readable.

func rowString(row map[string]interface{}, key string) string {
	if row == nil {
		return ""
	}
	if s, ok := row[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func rowInt(row map[string]interface{}, key string) int {
	switch v := row[key].(type) {
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	case string:
		n := 0
		for _, r := range v {
			if r < '0' || r > '9' {
				return 0
			}
			n = n*10 + int(r-'0')
		}
		return n
	}
	return 0
}

func rowTime(row map[string]interface{}, key string) *time.Time {
	switch v := row[key].(type) {
	case time.Time:
		if v.IsZero() {
			return nil
		}
		return &v
	case string:
		if t, ok := parseLegacyDate(v); ok {
			return &t
		}
	}
	return nil
}
