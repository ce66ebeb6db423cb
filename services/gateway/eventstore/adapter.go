/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       internal-codegen-l3
Tier:        L3
Logic:       Event store adapter (C1) — opens authenticated
             warehouse sessions, invokes stored procedures with
             structured JSON binds (never string-concatenated
             SQL), and executes strictly parameterized system
             statements. Retries transient classes with jittered
             exponential backoff. Centralizes connection handling
             the way the gateway's shared pool manager centralized
             per-provider HTTP transports.
Root Cause:  Sprint task G001 — warehouse session adapter.
Context:     Every other component calls through this adapter;
             it is the only place that holds a live *sql.DB.
Suitability: L3 for connection pool + retry design.
──────────────────────────────────────────────────────────────
*/

package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/snowflakedb/gosnowflake"

	"github.com/latticegw/mcp-gateway/services/gateway/config"
	"github.com/latticegw/mcp-gateway/services/gateway/gwerrors"
	"github.com/rs/zerolog"
)

// Credentials carries the identity an Adapter authenticates with — either
// username+password or username+key-pair, per spec §6.
type Credentials struct {
	Account        string
	Username       string
	Password       string
	PrivateKeyPath string
	PrivateKeyPass string
	Warehouse      string
	Database       string
	Schema         string
	Role           string
}

// QueryTag describes the session-wide tag attached to every statement so
// warehouse-side query history can be joined back to the request that
// issued it.
type QueryTag struct {
	Agent     string    `json:"agent"`
	Op        string    `json:"op"`
	Session   string    `json:"session"`
	User      string    `json:"user"`
	Timestamp time.Time `json:"timestamp"`
}

// Adapter owns the warehouse connection; every statement the gateway runs
// reaches the warehouse through it. Other packages may build statement
// text (the compiler's plan SQL, deploy's DDL) but never hold a *sql.DB.
type Adapter struct {
	db     *sql.DB
	cfg    *config.Config
	logger zerolog.Logger
	health *Health
	policy RetryPolicy

	mu          sync.Mutex
	pendingLogs func(ctx context.Context) error // set by the event logger; flushed on Close.
}

// Open establishes an authenticated warehouse session and sets
// session-wide parameters: auto-commit, cached results, statement timeout,
// default warehouse, and a query-tag JSON.
func Open(ctx context.Context, cfg *config.Config, creds Credentials, logger zerolog.Logger) (*Adapter, error) {
	dsn, err := buildDSN(creds)
	if err != nil {
		return nil, gwerrors.New(gwerrors.ClassConfig, "invalid_credentials", err.Error())
	}

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, gwerrors.New(gwerrors.ClassAuth, "session_open_failed", err.Error())
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, gwerrors.New(gwerrors.ClassAuth, "session_open_failed", err.Error())
	}

	a := &Adapter{
		db:     db,
		cfg:    cfg,
		logger: logger.With().Str("component", "eventstore").Logger(),
		health: NewHealth(),
		policy: DefaultRetryPolicy(),
	}

	init := []string{
		"ALTER SESSION SET AUTOCOMMIT = TRUE",
		"ALTER SESSION SET USE_CACHED_RESULT = TRUE",
		fmt.Sprintf("ALTER SESSION SET STATEMENT_TIMEOUT_IN_SECONDS = %d", int(cfg.StatementTimeout.Seconds())),
	}
	for _, stmt := range init {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, gwerrors.New(gwerrors.ClassAuth, "session_open_failed", err.Error())
		}
	}
	if err := a.SetTag(ctx, QueryTag{Agent: cfg.QueryTagApp, Op: "open_session", User: creds.Username, Timestamp: time.Now().UTC()}); err != nil {
		_ = db.Close()
		return nil, gwerrors.New(gwerrors.ClassAuth, "session_open_failed", err.Error())
	}

	return a, nil
}

func buildDSN(c Credentials) (string, error) {
	if c.Account == "" || c.Username == "" {
		return "", fmt.Errorf("account and username are required")
	}
	var authPart string
	switch {
	case c.Password != "":
		authPart = fmt.Sprintf(":%s", c.Password)
	case c.PrivateKeyPath != "":
		// gosnowflake accepts an "authenticator=SNOWFLAKE_JWT&privateKey=..."
		// DSN parameter; the real path is read and parsed by the driver.
		authPart = ""
	default:
		return "", fmt.Errorf("one of password or private key path is required")
	}
	dsn := fmt.Sprintf("%s%s@%s/%s/%s?warehouse=%s&role=%s",
		c.Username, authPart, c.Account, c.Database, c.Schema, c.Warehouse, c.Role)
	if c.PrivateKeyPath != "" {
		dsn += "&authenticator=SNOWFLAKE_JWT&privateKey=" + c.PrivateKeyPath
	}
	return dsn, nil
}

// SetTag applies the per-request query tag (§4.10: "set session query tag
// to {agent, tool, session, ts}"). This is a parameterized system
// statement, never an interpolated literal built from caller input beyond
// JSON-encoding.
func (a *Adapter) SetTag(ctx context.Context, tag QueryTag) error {
	b, err := json.Marshal(tag)
	if err != nil {
		return err
	}
	return a.Execute(ctx, "ALTER SESSION SET QUERY_TAG = ?", []any{string(b)})
}

// CallProcedure invokes a server-side stored procedure with positional
// parameters. Object-valued arguments are passed as a structured JSON
// bind, never string-concatenated into SQL. Returns the decoded single-
// column VARIANT response.
func (a *Adapter) CallProcedure(ctx context.Context, name string, args ...any) (json.RawMessage, error) {
	placeholders := strings.TrimRight(strings.Repeat("?,", len(args)), ",")
	stmt := fmt.Sprintf("CALL %s(%s)", name, placeholders)

	binds := make([]any, len(args))
	for i, arg := range args {
		switch v := arg.(type) {
		case string, int, int64, float64, bool, nil:
			binds[i] = v
		default:
			b, err := json.Marshal(v)
			if err != nil {
				return nil, gwerrors.New(gwerrors.ClassExecution, "other", "failed to encode bind: "+err.Error())
			}
			binds[i] = string(b)
		}
	}

	var raw json.RawMessage
	err := Do(ctx, a.policy, a.health, isTransient, func(ctx context.Context) error {
		row := a.db.QueryRowContext(ctx, stmt, binds...)
		var s string
		if err := row.Scan(&s); err != nil {
			return err
		}
		raw = json.RawMessage(s)
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return raw, nil
}

// Execute runs a parameterized statement — used for system actions (tag
// setting, version-record writes) and for the deployment gateway's
// allow-listed DDL. C4's compiler is the only place plan SQL is built.
func (a *Adapter) Execute(ctx context.Context, sql string, binds []any) error {
	return Do(ctx, a.policy, a.health, isTransient, func(ctx context.Context) error {
		_, err := a.db.ExecContext(ctx, sql, binds...)
		return err
	})
}

// Query runs a strictly parameterized read and returns raw rows for
// system metadata reads (e.g. schema discovery).
func (a *Adapter) Query(ctx context.Context, sql string, binds []any) (*sql.Rows, error) {
	var rows *sql.Rows
	err := Do(ctx, a.policy, a.health, isTransient, func(ctx context.Context) error {
		r, err := a.db.QueryContext(ctx, sql, binds...)
		if err != nil {
			return err
		}
		rows = r
		return nil
	})
	return rows, err
}

// OnClose registers a flush hook (the event logger's Flush) to run before
// the connection tears down.
func (a *Adapter) OnClose(flush func(ctx context.Context) error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pendingLogs = flush
}

// Close flushes any pending batched events then tears down the connection.
func (a *Adapter) Close(ctx context.Context) error {
	a.mu.Lock()
	flush := a.pendingLogs
	a.mu.Unlock()
	if flush != nil {
		if err := flush(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("flush on close failed")
		}
	}
	return a.db.Close()
}

// Health exposes the adapter's rolling health score (used by /health).
func (a *Adapter) Health() *Health { return a.health }

// IsTransient exposes the adapter's transient-error heuristic so other
// components retrying warehouse reads (C9) classify failures the same way
// C1 does instead of growing a second heuristic that can drift from this one.
func IsTransient(err error) bool { return isTransient(err) }

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"timeout", "deadline exceeded", "connection reset", "resume", "temporarily unavailable", "i/o timeout", "eof"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return gwerrors.New(gwerrors.ClassExecution, "timeout", "statement timed out")
	case strings.Contains(msg, "syntax error"):
		return gwerrors.New(gwerrors.ClassExecution, "syntax", err.Error())
	case strings.Contains(msg, "does not exist") || strings.Contains(msg, "not found"):
		return gwerrors.New(gwerrors.ClassExecution, "dependency", err.Error())
	case strings.Contains(msg, "insufficient privileges") || strings.Contains(msg, "not authorized"):
		return gwerrors.New(gwerrors.ClassExecution, "privilege", err.Error())
	default:
		return gwerrors.New(gwerrors.ClassExecution, "other", err.Error())
	}
}
