package datasource

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/policy-interface/pkg/models"
)

// AdapterInfo describes a registered adapter.
type AdapterInfo struct {
	Type        string `json:"type"`         // "mssql", "sqlproxy", "mongodb"
	DisplayName string `json:"display_name"` // "Microsoft SQL Server"
	Description string `json:"description"`
}

// RelationalFactory opens a RelationalStore from connection arguments.
type RelationalFactory func(ctx context.Context, args models.ConnectionArgs, logger *zap.Logger) (RelationalStore, error)

// DocumentFactory opens a DocumentStore from connection arguments.
type DocumentFactory func(ctx context.Context, args models.ConnectionArgs, logger *zap.Logger) (DocumentStore, error)

// AdapterRegistration contains info plus the factory for one adapter.
// Exactly one of RelationalFactory and DocumentFactory is set.
type AdapterRegistration struct {
	Info              AdapterInfo
	RelationalFactory RelationalFactory
	DocumentFactory   DocumentFactory
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]AdapterRegistration)
)

// Register is called by each adapter's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg AdapterRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredAdapters returns info for all registered adapters sorted by type.
func RegisteredAdapters() []AdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]AdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

// GetRelationalFactory returns the relational factory for an adapter type.
// Returns nil if the type is not registered or is not relational.
func GetRelationalFactory(adapterType string) RelationalFactory {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if reg, ok := registry[adapterType]; ok {
		return reg.RelationalFactory
	}
	return nil
}

// GetDocumentFactory returns the document factory for an adapter type.
// Returns nil if the type is not registered or is not a document store.
func GetDocumentFactory(adapterType string) DocumentFactory {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if reg, ok := registry[adapterType]; ok {
		return reg.DocumentFactory
	}
	return nil
}

// IsRegistered checks if an adapter type is available.
func IsRegistered(adapterType string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[adapterType]
	return ok
}
