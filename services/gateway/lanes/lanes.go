/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       internal-codegen-l3
Tier:        L3
Logic:       Warehouse-backed implementations of the three small
             read/write seams C8 and C9 depend on but don't own
             a SQL dialect for themselves: deploy's VersionStore
             (optimistic-concurrency bookkeeping for deployed
             DDL objects) and consistency's IngestionScanner /
             ProjectionReader (the raw ingestion lane and the
             processed-lane projection behind the Two-Object-
             Store Law). All three are thin parameterized-query
             wrappers over C1's adapter — no SQL string ever
             includes caller input directly.
Root Cause:  Sprint task G056 — warehouse adapters for deploy
             version tracking and lane reads, closing the gap
             between the deploy/consistency interfaces and a
             runnable entrypoint.
Context:     deploy.New and consistency.New both need a concrete
             implementation of their narrow interfaces; nothing
             else in the tree provided one.
Suitability: L3 — parameterized reads/writes, no novel logic.
──────────────────────────────────────────────────────────────
*/

// Package lanes adapts eventstore.Adapter's generic Query/Execute surface
// to the three warehouse-shaped seams the deploy and consistency packages
// depend on through narrow interfaces: deployed-object version tracking,
// and reads against the ingestion lane and processed-lane projection.
package lanes

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/latticegw/mcp-gateway/services/gateway/deploy"
	"github.com/latticegw/mcp-gateway/services/gateway/events"
)

// queryExecutor is the slice of eventstore.Adapter every reader/writer in
// this package needs.
type queryExecutor interface {
	Execute(ctx context.Context, sql string, binds []any) error
	Query(ctx context.Context, sql string, binds []any) (*sql.Rows, error)
}

// rowsToMaps drains rows into one map per row, keyed by column name. Used
// for every read in this package since none of them has a fixed, narrow
// result shape worth a dedicated struct scan.
func rowsToMaps(rows *sql.Rows) ([]map[string]any, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// VersionStore tracks deployed-object versions in a dedicated table, read
// and written synchronously — unlike the processed-lane projection, a
// deploy's optimistic-concurrency check can't tolerate the ~1 minute
// projection lag the rest of the system accepts (spec §4.9's fresh
// window doesn't apply here).
type VersionStore struct {
	db     queryExecutor
	logger zerolog.Logger
}

// NewVersionStore builds a VersionStore over the warehouse's
// ddl_object_versions table.
func NewVersionStore(db queryExecutor, logger zerolog.Logger) *VersionStore {
	return &VersionStore{db: db, logger: logger.With().Str("component", "lanes.versionstore").Logger()}
}

// CurrentVersion returns the latest recorded version for objectName, or
// found=false if it has never been deployed through this gateway.
func (v *VersionStore) CurrentVersion(ctx context.Context, objectName string) (*deploy.ObjectVersion, bool, error) {
	rows, err := v.db.Query(ctx,
		`SELECT version, ddl_hash, object_type FROM ddl_object_versions WHERE object_name = ? ORDER BY version DESC LIMIT 1`,
		[]any{objectName},
	)
	if err != nil {
		return nil, false, err
	}
	results, err := rowsToMaps(rows)
	if err != nil {
		return nil, false, err
	}
	if len(results) == 0 {
		return nil, false, nil
	}
	row := results[0]
	return &deploy.ObjectVersion{
		Version:    asString(row["VERSION"]),
		DDLHash:    asString(row["DDL_HASH"]),
		ObjectType: asString(row["OBJECT_TYPE"]),
	}, true, nil
}

// RecordVersion inserts the new version row after a successful deploy.
// Version is an RFC3339Nano timestamp string (deploy.Gateway.Deploy mints
// it), so lexical and chronological order agree and ORDER BY version DESC
// needs no numeric cast. The table is append-only (mirroring the
// ingestion-lane-never-mutates discipline the rest of the gateway
// follows) — CurrentVersion always reads the highest version, never a row
// that's updated in place.
func (v *VersionStore) RecordVersion(ctx context.Context, objectName string, ver deploy.ObjectVersion) error {
	return v.db.Execute(ctx,
		`INSERT INTO ddl_object_versions (object_name, version, ddl_hash, object_type, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		[]any{objectName, ver.Version, ver.DDLHash, ver.ObjectType, time.Now().UTC()},
	)
}

// List returns every object's current version whose name matches filter
// (a SQL LIKE pattern, spec §4.8's discover operation).
func (v *VersionStore) List(ctx context.Context, filter string) ([]deploy.ObjectVersion, error) {
	if filter == "" {
		filter = "%"
	}
	rows, err := v.db.Query(ctx,
		`SELECT object_name, version, ddl_hash, object_type FROM ddl_object_versions
		 WHERE object_name LIKE ?
		 QUALIFY ROW_NUMBER() OVER (PARTITION BY object_name ORDER BY version DESC) = 1`,
		[]any{filter},
	)
	if err != nil {
		return nil, err
	}
	results, err := rowsToMaps(rows)
	if err != nil {
		return nil, err
	}

	out := make([]deploy.ObjectVersion, 0, len(results))
	for _, row := range results {
		out = append(out, deploy.ObjectVersion{
			Version:    asString(row["VERSION"]),
			DDLHash:    asString(row["DDL_HASH"]),
			ObjectType: asString(row["OBJECT_TYPE"]),
		})
	}
	return out, nil
}

// LaneReader resolves consistency.Reader's two lane-facing seams against
// the real ingestion and processed-lane tables (events.SourceLane and its
// typed projection), scoping each read by kind the same way the
// processed-lane projection scopes rows by object_type.
type LaneReader struct {
	db     queryExecutor
	logger zerolog.Logger
}

// NewLaneReader builds a LaneReader bound to both the raw ingestion lane
// and the processed-lane projection.
func NewLaneReader(db queryExecutor, logger zerolog.Logger) *LaneReader {
	return &LaneReader{db: db, logger: logger.With().Str("component", "lanes.reader").Logger()}
}

// kindToObjectType maps consistency's small kind vocabulary onto the
// object_type column the processed-lane projection and ingestion lane
// both carry.
func kindToObjectType(kind string) (string, error) {
	switch kind {
	case "schema":
		return "ddl_object", nil
	case "namespace":
		return "dev_lease", nil
	case "activity":
		return "activity_event", nil
	case "status":
		return "deployment_status", nil
	case "schedule":
		return "dashboard_schedule", nil
	default:
		return "", fmt.Errorf("lanes: unknown kind %q", kind)
	}
}

// ScanIngestion scans the raw, append-only lane directly — used only
// inside the fresh window where the processed projection can't yet be
// trusted to reflect a just-made write.
func (l *LaneReader) ScanIngestion(ctx context.Context, kind string, params map[string]any) (any, error) {
	objectType, err := kindToObjectType(kind)
	if err != nil {
		return nil, err
	}

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}

	rows, err := l.db.Query(ctx,
		`SELECT payload, received_at FROM mcp_events
		 WHERE source_lane = ?
		   AND PARSE_JSON(payload):object_type::string = ?
		   AND PARSE_JSON(payload):attributes::variant @> PARSE_JSON(?)
		 ORDER BY received_at DESC
		 LIMIT 100`,
		[]any{events.SourceLane, objectType, string(paramsJSON)},
	)
	if err != nil {
		return nil, err
	}
	return rowsToMaps(rows)
}

// ReadProjection reads the refreshed processed-lane projection for kind —
// the normal, cheaper path once the fresh window has elapsed.
func (l *LaneReader) ReadProjection(ctx context.Context, kind string, params map[string]any) (any, error) {
	objectType, err := kindToObjectType(kind)
	if err != nil {
		return nil, err
	}

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}

	rows, err := l.db.Query(ctx,
		`SELECT event_id, occurred_at, action, actor_id, object_type, object_id, attributes FROM processed_events
		 WHERE object_type = ?
		   AND attributes @> PARSE_JSON(?)
		 ORDER BY occurred_at DESC
		 LIMIT 100`,
		[]any{objectType, string(paramsJSON)},
	)
	if err != nil {
		return nil, err
	}
	return rowsToMaps(rows)
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

