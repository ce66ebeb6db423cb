/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       internal-codegen-l3
Tier:        L3
Logic:       Schema contract loader — reads the JSON document
             describing allowed sources, columns, aggregations,
             operators and grains, hashes it for self-validation,
             and holds it as a read-only singleton the compiler
             and validator consult. Structurally the registry
             half of what used to be hand-written table DDL:
             instead of defining ClickHouse tables in Go source,
             the tables/views a plan may reference are declared
             once in JSON and loaded at startup.
Root Cause:  Sprint task G009 — schema contract.
Context:     /meta/schema and /meta/schema.hash both read this
             singleton; the compiler and validator import it
             directly rather than re-parsing the file per call.
Suitability: L3 — config/contract modeling.
──────────────────────────────────────────────────────────────
*/

package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
)

// Column describes one column available on a table or view.
type Column struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Relation is a table or view a plan's `source` field may name.
type Relation struct {
	Columns         []Column `json:"columns"`
	Description     string   `json:"description,omitempty"`
	RequiredColumns []string `json:"required_columns,omitempty"`
	IsView          bool     `json:"is_view"`
}

// SchemaGroup groups tables/views under one named warehouse schema.
type SchemaGroup struct {
	Tables map[string]Relation `json:"tables"`
	Views  map[string]Relation `json:"views"`
}

// ActivityNamespace describes the `prefix.standard_activity` event-naming
// convention the contract pins down for this deployment.
type ActivityNamespace struct {
	Prefix             string   `json:"prefix"`
	StandardActivities []string `json:"standard_activities"`
}

// Security carries the system-wide ceilings the compiler and executor
// enforce regardless of any individual token envelope.
type Security struct {
	MaxRowsPerQuery int `json:"max_rows_per_query"`
}

// Contract is the full schema contract document served at /meta/schema.
type Contract struct {
	Database           string                 `json:"database"`
	Schemas            map[string]SchemaGroup `json:"schemas"`
	AllowedAggregations []string              `json:"allowed_aggregations"`
	AllowedOperators    []string              `json:"allowed_operators"`
	AllowedGrains        []string             `json:"allowed_grains"`
	Security             Security             `json:"security"`
	ActivityNamespace     ActivityNamespace    `json:"activity_namespace"`
	ValidationRules       []string             `json:"validation_rules,omitempty"`
}

// Registry is the read-only singleton the compiler/validator consult: the
// parsed contract plus its content hash (first 16 hex chars of SHA-256
// over the canonical JSON bytes, per spec §6).
type Registry struct {
	contract Contract
	hash     string
	sources  map[string]Relation // flattened "schema.table" -> Relation, plus bare "table" when unambiguous
}

// Load reads and parses a schema contract file from disk.
func Load(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema contract: %w", err)
	}
	return loadBytes(raw)
}

// LoadBytes parses a schema contract already held in memory (e.g. fetched
// from the deployment gateway's own discover() output instead of a file).
func LoadBytes(raw []byte) (*Registry, error) {
	return loadBytes(raw)
}

func loadBytes(raw []byte) (*Registry, error) {
	var c Contract
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse schema contract: %w", err)
	}

	sum := sha256.Sum256(raw)
	hash := hex.EncodeToString(sum[:])[:16]

	sources := make(map[string]Relation)
	for schemaName, group := range c.Schemas {
		for name, rel := range group.Tables {
			sources[schemaName+"."+name] = rel
			if _, exists := sources[name]; !exists {
				sources[name] = rel
			}
		}
		for name, rel := range group.Views {
			rel.IsView = true
			sources[schemaName+"."+name] = rel
			if _, exists := sources[name]; !exists {
				sources[name] = rel
			}
		}
	}

	return &Registry{contract: c, hash: hash, sources: sources}, nil
}

// Hash returns the 16-hex-char content hash served at /meta/schema and
// /meta/schema.hash. Query tags do not carry it.
func (r *Registry) Hash() string { return r.hash }

// Contract returns the parsed document (for /meta/schema responses).
func (r *Registry) Contract() Contract { return r.contract }

// Source looks up a plan's `source` field. ok is false for unknown_source.
func (r *Registry) Source(name string) (Relation, bool) {
	rel, ok := r.sources[name]
	return rel, ok
}

// HasColumn reports whether column exists (case-sensitive, contract
// columns are expected upper-cased per spec §4.4) on the given relation.
func (rel Relation) HasColumn(column string) bool {
	for _, c := range rel.Columns {
		if c.Name == column {
			return true
		}
	}
	return false
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// AllowsAggregation checks the symbolic aggregation form (COUNT, not
// "COUNT(*)") against the contract's allow-list — spec §9 Open Question,
// pinned to the symbolic normal form.
func (r *Registry) AllowsAggregation(fn string) bool {
	return contains(r.contract.AllowedAggregations, fn)
}

func (r *Registry) AllowsOperator(op string) bool {
	return contains(r.contract.AllowedOperators, op)
}

func (r *Registry) AllowsGrain(grain string) bool {
	return contains(r.contract.AllowedGrains, grain)
}

func (r *Registry) MaxRowsPerQuery() int {
	if r.contract.Security.MaxRowsPerQuery <= 0 {
		return 10000
	}
	return r.contract.Security.MaxRowsPerQuery
}
