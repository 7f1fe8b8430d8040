package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Errors returned by the service layer.
var (
	// ErrNoneConfigured signals an empty bucket. Callers must be able to
	// tell "nothing configured" apart from "configured to be empty", so
	// this is an error, not an empty map.
	ErrNoneConfigured = errors.New("no access-control configuration")
	ErrInvalidScope   = errors.New("configuration must be scoped to a user, a role, or neither")
	ErrNotFound       = errors.New("access-control configuration not found")
)

// Configuration is one scoped access-control/UI settings record. Scope is
// exactly one of: UserID set (user-specific), RoleID set (role-specific), or
// neither (tenant-wide).
type Configuration struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	CompanyID uuid.UUID
	Type      string
	UserID    *uuid.UUID
	RoleID    *uuid.UUID
	Settings  map[string]any
	IsActive  bool
	UpdatedAt time.Time
}

// Scope specificity levels, least to most specific.
const (
	scopeTenant = iota
	scopeRole
	scopeUser
)

func (c Configuration) scope() int {
	switch {
	case c.UserID != nil:
		return scopeUser
	case c.RoleID != nil:
		return scopeRole
	default:
		return scopeTenant
	}
}

// Query identifies one resolution bucket plus the caller identity.
type Query struct {
	TenantID  uuid.UUID
	CompanyID uuid.UUID
	Type      string
	UserID    uuid.UUID
	RoleID    uuid.UUID
}

// Repository abstracts the control-plane store for configuration records.
type Repository interface {
	// FindBucket returns every active record in (tenantID, companyID, type),
	// in whatever order the store happens to produce.
	FindBucket(ctx context.Context, tenantID, companyID uuid.UUID, typ string) ([]Configuration, error)
	Save(ctx context.Context, c Configuration) (Configuration, error)
}

// Service resolves effective configurations and persists scoped records.
type Service struct {
	repo    Repository
	schemas map[string]*jsonschema.Schema
}

// New constructs a Service. settingsSchemas maps a configuration type to a
// JSON Schema document validated on Save; types without a schema accept any
// JSON object.
func New(repo Repository, settingsSchemas map[string]string) (*Service, error) {
	if repo == nil {
		panic("accesscontrol repo is required")
	}

	schemas := make(map[string]*jsonschema.Schema, len(settingsSchemas))
	for typ, raw := range settingsSchemas {
		compiler := jsonschema.NewCompiler()
		resource := typ + ".schema.json"
		if err := compiler.AddResource(resource, strings.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("add schema for type %s: %w", typ, err)
		}
		schema, err := compiler.Compile(resource)
		if err != nil {
			return nil, fmt.Errorf("compile schema for type %s: %w", typ, err)
		}
		schemas[typ] = schema
	}

	return &Service{repo: repo, schemas: schemas}, nil
}

// Resolve merges every applicable record in the query's bucket into one
// effective configuration.
//
// Candidates are the tenant-wide record(s) plus records matching the caller's
// role or user id. They merge least-specific first, so a user key overrides a
// role key overrides a tenant-wide key, while keys absent from a more
// specific record keep the less specific value. The sort is fully
// deterministic (scope, then UpdatedAt, then id), so storage return order
// never changes the result. Duplicate records within one scope are tolerated:
// the latest updated one wins.
func (s *Service) Resolve(ctx context.Context, q Query) (map[string]any, error) {
	records, err := s.repo.FindBucket(ctx, q.TenantID, q.CompanyID, q.Type)
	if err != nil {
		return nil, err
	}

	candidates := records[:0:0]
	for _, c := range records {
		if !c.IsActive {
			continue
		}
		switch c.scope() {
		case scopeTenant:
			candidates = append(candidates, c)
		case scopeRole:
			if q.RoleID != uuid.Nil && *c.RoleID == q.RoleID {
				candidates = append(candidates, c)
			}
		case scopeUser:
			if q.UserID != uuid.Nil && *c.UserID == q.UserID {
				candidates = append(candidates, c)
			}
		}
	}

	if len(candidates) == 0 {
		return nil, ErrNoneConfigured
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.scope() != b.scope() {
			return a.scope() < b.scope()
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
		return a.ID.String() < b.ID.String()
	})

	merged := make(map[string]any)
	for _, c := range candidates {
		for k, v := range c.Settings {
			merged[k] = v
		}
	}
	return merged, nil
}

// Save validates scope and settings, then persists the record.
func (s *Service) Save(ctx context.Context, c Configuration) (Configuration, error) {
	if c.UserID != nil && c.RoleID != nil {
		return Configuration{}, ErrInvalidScope
	}
	if c.Settings == nil {
		c.Settings = map[string]any{}
	}

	if schema, ok := s.schemas[c.Type]; ok {
		if err := validateSettings(schema, c.Settings); err != nil {
			return Configuration{}, fmt.Errorf("settings for type %s: %w", c.Type, err)
		}
	}

	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.UpdatedAt = time.Now().UTC()
	return s.repo.Save(ctx, c)
}

// validateSettings round-trips through encoding/json so the validator sees
// canonical JSON types regardless of how the map was built.
func validateSettings(schema *jsonschema.Schema, settings map[string]any) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return schema.Validate(doc)
}
