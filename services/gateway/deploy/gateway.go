/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       internal-codegen-l3
Tier:        L3
Logic:       Deployment gateway (C8) — the single dev(action,
             params) dispatch point through which the server-side
             procedures C6 depends on are claimed, validated,
             deployed, and discovered. Runs the full deploy
             algorithm from spec §4.8: stage MD5 check, single-
             statement assertion, allow/deny-list, version gating,
             lease verification, shadow compile against a
             <name>_CANDIDATE object, then the real execution.
Root Cause:  Sprint task G037 — deployment gateway.
Context:     C6's execute_query_plan and every other stored
             procedure this gateway manages are only ever modified
             through this path, never by a human running DDL by
             hand against production.
Suitability: L3 — security-critical dispatch with a closed
             algorithm; every step is independently testable.
──────────────────────────────────────────────────────────────
*/

package deploy

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/latticegw/mcp-gateway/services/gateway/events"
	"github.com/latticegw/mcp-gateway/services/gateway/gwerrors"
)

// maxStageBytes is the deploy step 1 size cap (spec §4.8): 10 MiB.
const maxStageBytes = 10 * 1024 * 1024

// StatementExecutor is the slice of eventstore.Adapter this package uses to
// run DDL. Plain Execute, not CallProcedure: the content being run is the
// allow-listed DDL itself, not caller-assembled SQL built around it.
type StatementExecutor interface {
	Execute(ctx context.Context, sql string, binds []any) error
}

// StageReader fetches stage file metadata/content for deploy requests that
// reference a staged file rather than inline DDL.
type StageReader interface {
	StatStage(ctx context.Context, url string) (md5Hex string, size int64, err error)
	ReadStage(ctx context.Context, url string) ([]byte, error)
}

// ObjectVersion is what the version registry reports for a qualified name.
type ObjectVersion struct {
	Version    string
	DDLHash    string
	ObjectType string
}

// VersionStore is the version record the gateway consults for
// expected_version gating and discover(). lanes.VersionStore keeps it in a
// dedicated ddl_object_versions table read synchronously, not through the
// processed lane; tests substitute an in-memory fake.
type VersionStore interface {
	CurrentVersion(ctx context.Context, objectName string) (*ObjectVersion, bool, error)
	RecordVersion(ctx context.Context, objectName string, v ObjectVersion) error
	List(ctx context.Context, filter string) ([]ObjectVersion, error)
}

// eventLogger is the slice of eventlog.Logger the gateway emits through.
type eventLogger interface {
	Log(ctx context.Context, ev events.Event) error
}

// Gateway is the deployment gateway (C8).
type Gateway struct {
	executor StatementExecutor
	stage    StageReader
	versions VersionStore
	events   eventLogger
	logger   zerolog.Logger

	leases *leaseRegistry
	locks  *keyedMutex
}

// New builds a Gateway. stage may be nil if no deploy request in this
// deployment ever references a stage file.
func New(executor StatementExecutor, stage StageReader, versions VersionStore, events eventLogger, logger zerolog.Logger) *Gateway {
	return &Gateway{
		executor: executor,
		stage:    stage,
		versions: versions,
		events:   events,
		logger:   logger.With().Str("component", "deploy").Logger(),
		leases:   newLeaseRegistry(),
		locks:    newKeyedMutex(),
	}
}

// Claim registers a namespace lease (spec §4.8) and emits dev.claim.
func (g *Gateway) Claim(ctx context.Context, appName, namespace, agentID, leaseID string, ttl time.Duration) error {
	g.leases.claim(Lease{
		LeaseID:   leaseID,
		AppName:   appName,
		Namespace: namespace,
		AgentID:   agentID,
		ExpiresAt: time.Now().Add(ttl),
	})
	g.emit(ctx, events.ActionDevClaim, agentID, "namespace", namespace, map[string]any{
		"app_name": appName, "lease_id": leaseID, "ttl_seconds": int(ttl.Seconds()),
	})
	return nil
}

// Release ends a lease early (spec §4.8) and emits dev.release.
func (g *Gateway) Release(ctx context.Context, leaseID, agentID string) error {
	g.leases.release(leaseID)
	g.emit(ctx, events.ActionDevRelease, agentID, "lease", leaseID, nil)
	return nil
}

// Validate shadow-compiles ddl without touching production (spec §4.8
// validate(ddl)) — the same compile path Deploy uses at step 6.
func (g *Gateway) Validate(ctx context.Context, ddl string) error {
	statement, err := assertSingleStatement(ddl)
	if err != nil {
		return gwerrors.New(gwerrors.ClassDeploy, "multiple_statements", err.Error())
	}
	ref, err := checkAllowed(statement)
	if err != nil {
		return err
	}
	return g.shadowCompile(ctx, statement, ref)
}

// DeployRequest is the deploy(...) params bundle (spec §4.8).
type DeployRequest struct {
	ObjectType      string
	Name            string
	DDL             string
	StageURL        string
	ExpectedMD5     string
	Provenance      string
	Reason          string
	ExpectedVersion string
	LeaseID         string
	ActorID         string
}

// DeployResult is the success shape of a deploy call.
type DeployResult struct {
	OK              bool
	Version         string
	PreviousVersion string
	Idempotent      bool
}

// Deploy runs the full deploy algorithm (spec §4.8 steps 1-8).
func (g *Gateway) Deploy(ctx context.Context, req DeployRequest) (*DeployResult, error) {
	ddl := req.DDL
	if req.StageURL != "" {
		staged, err := g.fetchStage(ctx, req.StageURL, req.ExpectedMD5)
		if err != nil {
			return nil, g.fail(ctx, req, err)
		}
		ddl = staged
	}

	statement, err := assertSingleStatement(ddl)
	if err != nil {
		return nil, g.fail(ctx, req, gwerrors.New(gwerrors.ClassDeploy, "multiple_statements", err.Error()))
	}

	ref, err := checkAllowed(statement)
	if err != nil {
		return nil, g.fail(ctx, req, err)
	}
	if req.Name != "" && !strings.EqualFold(ref.Name, req.Name) {
		return nil, g.fail(ctx, req, gwerrors.New(gwerrors.ClassDeploy, "name_mismatch", "DDL object name does not match the requested name"))
	}

	unlock := g.locks.lock(strings.ToUpper(ref.Name))
	defer unlock()

	current, exists, err := g.versions.CurrentVersion(ctx, ref.Name)
	if err != nil {
		return nil, g.fail(ctx, req, gwerrors.New(gwerrors.ClassDeploy, "other", err.Error()))
	}

	if req.ExpectedVersion != "" {
		currentVersion := ""
		if exists {
			currentVersion = current.Version
		}
		if currentVersion != req.ExpectedVersion {
			return nil, g.fail(ctx, req, gwerrors.New(gwerrors.ClassDeploy, "version_conflict", "object version has changed").
				WithDetails(map[string]any{"expected_version": req.ExpectedVersion, "current_version": currentVersion}))
		}
	}

	if req.LeaseID != "" && !g.leases.active(req.LeaseID, time.Now()) {
		return nil, g.fail(ctx, req, errLeaseNotActive)
	}

	ddlHash := hashDDL(statement)
	if exists && current.DDLHash == ddlHash {
		return &DeployResult{OK: true, Version: current.Version, PreviousVersion: current.Version, Idempotent: true}, nil
	}

	if err := g.shadowCompile(ctx, statement, ref); err != nil {
		return nil, g.fail(ctx, req, gwerrors.New(gwerrors.ClassDeploy, "compile_failed", err.Error()))
	}

	if err := g.executor.Execute(ctx, statement, nil); err != nil {
		return nil, g.fail(ctx, req, gwerrors.New(gwerrors.ClassDeploy, "other", err.Error()))
	}

	previousVersion := ""
	if exists {
		previousVersion = current.Version
	}
	newVersion := time.Now().UTC().Format(time.RFC3339Nano)
	if err := g.versions.RecordVersion(ctx, ref.Name, ObjectVersion{Version: newVersion, DDLHash: ddlHash, ObjectType: ref.ObjectType}); err != nil {
		g.logger.Warn().Err(err).Str("object", ref.Name).Msg("deploy succeeded but version record failed")
	}

	g.emit(ctx, events.ActionDDLObjectDeployed, req.ActorID, ref.ObjectType, ref.Name, map[string]any{
		"version":          newVersion,
		"previous_version": previousVersion,
		"provenance":       req.Provenance,
		"reason":           req.Reason,
		"lease_id":         req.LeaseID,
		"ddl_length":       len(statement),
	})

	return &DeployResult{OK: true, Version: newVersion, PreviousVersion: previousVersion}, nil
}

// Discover enumerates the current schema projection (spec §4.8).
func (g *Gateway) Discover(ctx context.Context, filter string) ([]ObjectVersion, error) {
	return g.versions.List(ctx, filter)
}

// shadowCompile runs the DDL against a <name>_CANDIDATE object then drops
// it — deploy step 6, also reused by Validate.
func (g *Gateway) shadowCompile(ctx context.Context, statement string, ref objectRef) error {
	candidateName := ref.Name + "_CANDIDATE"
	candidateStatement := strings.Replace(statement, ref.Name, candidateName, 1)

	if err := g.executor.Execute(ctx, candidateStatement, nil); err != nil {
		return err
	}

	dropStatement := fmt.Sprintf("DROP %s IF EXISTS %s", ref.ObjectType, candidateName)
	if err := g.executor.Execute(ctx, dropStatement, nil); err != nil {
		g.logger.Warn().Err(err).Str("candidate", candidateName).Msg("failed to drop shadow-compile candidate")
	}
	return nil
}

func (g *Gateway) fetchStage(ctx context.Context, url, expectedMD5 string) (string, error) {
	if g.stage == nil {
		return "", gwerrors.New(gwerrors.ClassDeploy, "file_not_found", "no stage reader configured")
	}
	actualMD5, size, err := g.stage.StatStage(ctx, url)
	if err != nil {
		return "", gwerrors.New(gwerrors.ClassDeploy, "file_not_found", err.Error())
	}
	if size > maxStageBytes {
		return "", gwerrors.New(gwerrors.ClassDeploy, "file_too_large", fmt.Sprintf("stage file is %d bytes, exceeds %d byte cap", size, maxStageBytes))
	}
	if !strings.EqualFold(actualMD5, expectedMD5) {
		return "", gwerrors.New(gwerrors.ClassDeploy, "checksum_mismatch", "stage file MD5 does not match expected_md5").
			WithDetails(map[string]any{"expected_md5": expectedMD5, "actual_md5": actualMD5})
	}
	content, err := g.stage.ReadStage(ctx, url)
	if err != nil {
		return "", gwerrors.New(gwerrors.ClassDeploy, "file_not_found", err.Error())
	}
	return string(content), nil
}

func hashDDL(statement string) string {
	sum := md5.Sum([]byte(statement))
	return hex.EncodeToString(sum[:])
}

func (g *Gateway) emit(ctx context.Context, action events.Action, actorID, objectType, objectID string, attrs map[string]any) {
	if g.events == nil {
		return
	}
	if err := g.events.Log(ctx, events.Event{
		Action:     action,
		ActorID:    actorID,
		ObjectType: objectType,
		ObjectID:   objectID,
		Attributes: attrs,
	}); err != nil {
		g.logger.Warn().Err(err).Str("action", string(action)).Msg("failed to log deploy event")
	}
}

func (g *Gateway) fail(ctx context.Context, req DeployRequest, err error) error {
	ge, ok := err.(*gwerrors.Error)
	if !ok {
		ge = gwerrors.New(gwerrors.ClassDeploy, "other", err.Error())
	}
	g.emit(ctx, events.ActionDDLDeployError, req.ActorID, req.ObjectType, req.Name, map[string]any{
		"error_class": string(ge.Class), "error": ge.Message,
	})
	return ge
}
