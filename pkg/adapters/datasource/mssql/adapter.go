package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	mssqldriver "github.com/microsoft/go-mssqldb"
	"go.uber.org/zap"

	"github.com/ekaya-inc/policy-interface/pkg/adapters/datasource"
	"github.com/ekaya-inc/policy-interface/pkg/logging"
	"github.com/ekaya-inc/policy-interface/pkg/models"
)

// Adapter executes report-store commands over a direct SQL Server connection.
type Adapter struct {
	config *Config
	db     *sql.DB
	logger *zap.Logger
}

// NewAdapter opens and pings a SQL Server connection.
func NewAdapter(ctx context.Context, cfg *Config, logger *zap.Logger) (*Adapter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	connStr := buildConnectionString(cfg)
	db, err := sql.Open("sqlserver", connStr)
	if err != nil {
		return nil, fmt.Errorf("open SQL auth connection: %s", logging.SanitizeError(err))
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connection test failed: %s", logging.SanitizeError(err))
	}

	logger.Debug("Opened report store connection",
		zap.String("server", cfg.Server),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Database))

	return &Adapter{config: cfg, db: db, logger: logger}, nil
}

func buildConnectionString(cfg *Config) string {
	query := url.Values{}
	query.Add("database", cfg.Database)
	if cfg.ConnectionTimeout > 0 {
		query.Add("connection timeout", fmt.Sprintf("%d", cfg.ConnectionTimeout))
	}

	return fmt.Sprintf("sqlserver://%s:%s@%s:%d?%s",
		url.QueryEscape(cfg.User),
		url.QueryEscape(cfg.Password),
		cfg.Server,
		cfg.Port,
		query.Encode(),
	)
}

// Execute runs command and returns the rows of all result sets in order.
func (a *Adapter) Execute(ctx context.Context, command string) ([]models.ResourceRecord, error) {
	rows, err := a.db.QueryContext(ctx, command)
	if err != nil {
		return nil, fmt.Errorf("failed to execute command: %w", err)
	}
	defer rows.Close()

	records := make([]models.ResourceRecord, 0)
	for {
		set, err := scanResultSet(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, set...)
		if !rows.NextResultSet() {
			break
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	a.logger.Debug("Executed report store command",
		zap.String("command", logging.SanitizeQuery(command)),
		zap.Int("rows", len(records)))
	return records, nil
}

func scanResultSet(rows *sql.Rows) ([]models.ResourceRecord, error) {
	columnNames, err := rows.Columns()
	if err != nil {
		// statements without a result set (SET NOCOUNT, inserts) have no columns
		return nil, nil
	}
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get column types: %w", err)
	}

	var records []models.ResourceRecord
	for rows.Next() {
		values := make([]any, len(columnNames))
		valuePtrs := make([]any, len(columnNames))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		record := models.NewResourceRecord()
		for i, col := range columnNames {
			record.Set(col, convertValue(values[i], columnTypes[i].DatabaseTypeName()))
		}
		records = append(records, record)
	}
	return records, nil
}

// convertValue maps driver values onto JSON-friendly Go values.
func convertValue(val any, dbType string) any {
	b, ok := val.([]byte)
	if !ok {
		return val
	}
	switch {
	case isStringType(dbType):
		return string(b)
	case isDecimalType(dbType):
		return parseDecimal(string(b))
	case isUniqueIdentifier(dbType):
		var id mssqldriver.UniqueIdentifier
		if err := id.Scan(b); err == nil {
			return id.String()
		}
	}
	return val
}

// Close releases the connection.
func (a *Adapter) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// Ensure Adapter implements RelationalStore at compile time.
var _ datasource.RelationalStore = (*Adapter)(nil)
