// Package catalog resolves policy documents to engine schema records.
package catalog

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/policy-interface/pkg/models"
	"github.com/ekaya-inc/policy-interface/pkg/sql"
)

// Store is a live catalog of engine schemas.
type Store interface {
	// FindByName returns the first record whose name equals name.
	// A missing record is reported with found=false and a nil error.
	FindByName(ctx context.Context, name string) (schema *models.EngineSchema, found bool, err error)
}

// Resolution is the outcome of a schema lookup. Managed and document-store
// policies resolve to one schema; custom SQL policies resolve to every
// schema whose table the query references.
type Resolution struct {
	Schema  *models.EngineSchema
	Schemas []*models.EngineSchema
}

// Found reports whether any schema was resolved.
func (r Resolution) Found() bool {
	return r.Schema != nil || len(r.Schemas) > 0
}

// IsList reports whether the resolution is a list of candidate schemas.
func (r Resolution) IsList() bool {
	return r.Schema == nil && len(r.Schemas) > 0
}

// Primary returns the single schema, or the first candidate of a list.
func (r Resolution) Primary() *models.EngineSchema {
	if r.Schema != nil {
		return r.Schema
	}
	if len(r.Schemas) > 0 {
		return r.Schemas[0]
	}
	return nil
}

// All returns every resolved schema.
func (r Resolution) All() []*models.EngineSchema {
	if r.Schema != nil {
		return []*models.EngineSchema{r.Schema}
	}
	return r.Schemas
}

// Resolver looks a policy up in the live store and falls back to the
// bundled catalog.
type Resolver struct {
	store  Store
	static *Static
	logger *zap.Logger
}

// NewResolver creates a resolver. A nil store skips the live lookup.
func NewResolver(store Store, static *Static, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if static == nil {
		static = NewStatic(nil, nil)
	}
	return &Resolver{store: store, static: static, logger: logger.Named("catalog")}
}

// Resolve determines the policy type and the matching engine schema(s).
// An unresolved policy returns an empty Resolution and a nil error; only
// store failures are errors.
func (r *Resolver) Resolve(ctx context.Context, policy *models.PolicyDocument) (models.PolicyType, Resolution, error) {
	policyType := policy.PolicyType()

	if r.store != nil {
		schema, found, err := r.store.FindByName(ctx, policy.RuleName)
		if err != nil {
			return policyType, Resolution{}, fmt.Errorf("catalog lookup for %q: %w", policy.RuleName, err)
		}
		if found {
			r.logger.Debug("Resolved schema from live catalog",
				zap.String("rule_name", policy.RuleName),
				zap.String("schema", schema.Name))
			if policyType == models.PolicyTypeCustom && policy.QuerySource == models.QuerySourceSQL {
				return policyType, Resolution{Schemas: []*models.EngineSchema{schema}}, nil
			}
			return policyType, Resolution{Schema: schema}, nil
		}
	}

	res := r.resolveStatic(policy)
	r.logger.Debug("Resolved schema from bundled catalog",
		zap.String("rule_name", policy.RuleName),
		zap.String("policy_type", string(policyType)),
		zap.Bool("found", res.Found()))
	return policyType, res, nil
}

func (r *Resolver) resolveStatic(policy *models.PolicyDocument) Resolution {
	switch {
	case policy.PolicyType() == models.PolicyTypeManaged:
		if schema, ok := r.static.FindManaged(policy.RuleName); ok {
			return Resolution{Schema: schema}
		}
	case policy.QuerySource == models.QuerySourceMongoDB:
		if schema, ok := r.static.FindCustomDocument(policy.QuerySource, policy.QuerySourceIdentifier); ok {
			return Resolution{Schema: schema}
		}
	default:
		return Resolution{Schemas: r.static.FindCustomSQL(sql.Tables(policy.Query))}
	}
	return Resolution{}
}
