package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/policy-interface/pkg/adapters/datasource"
	"github.com/ekaya-inc/policy-interface/pkg/logging"
	"github.com/ekaya-inc/policy-interface/pkg/models"
	"github.com/ekaya-inc/policy-interface/pkg/sql"
)

// rewriteResourceNames replaces raw resource ids with their inventory names.
// Only the first record per ResourceId is kept and records without one are
// dropped. Records found in the inventory come first, in inventory row
// order, followed by the rest in their original order. A failed lookup
// leaves every record as it was.
func (d *Dispatcher) rewriteResourceNames(ctx context.Context, store datasource.RelationalStore, logger *zap.Logger, rows []models.ResourceRecord) []models.ResourceRecord {
	var ids []string
	byID := make(map[string]models.ResourceRecord)
	for _, row := range rows {
		id := models.RecordString(row, "ResourceId")
		if id == "" {
			continue
		}
		if _, seen := byID[id]; !seen {
			byID[id] = row
			ids = append(ids, id)
		}
	}
	out := make([]models.ResourceRecord, 0, len(ids))
	if len(ids) == 0 {
		return out
	}

	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = sql.QuoteString(id)
	}
	command := fmt.Sprintf("SELECT ResourceID, ResourceName, Name FROM %s WHERE ResourceID IN (%s);",
		d.cfg.InventoryTable, strings.Join(quoted, ", "))

	names, err := store.Execute(ctx, command)
	if err != nil {
		logger.Warn("Resource name lookup failed, returning raw ids",
			zap.Int("resources", len(ids)),
			zap.String("error", logging.SanitizeError(err)))
		names = nil
	}

	for _, name := range names {
		id := models.RecordString(name, "ResourceID")
		row, ok := byID[id]
		if !ok {
			continue
		}
		delete(byID, id)
		resourceName, _ := name.Get("ResourceName")
		row.Set("ResourceId", resourceName)
		if friendly, _ := name.Get("Name"); models.Truthy(friendly) {
			row.Set("ResourceName", friendly)
		}
		out = append(out, row)
	}
	for _, id := range ids {
		if row, ok := byID[id]; ok {
			out = append(out, row)
		}
	}
	logger.Debug("Rewrote resource names",
		zap.Int("resources", len(ids)),
		zap.Int("renamed", len(ids)-len(byID)))
	return out
}
