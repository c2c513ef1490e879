package services

import (
	"context"
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/ekaya-inc/policy-interface/pkg/adapters/datasource"
	"github.com/ekaya-inc/policy-interface/pkg/catalog"
	"github.com/ekaya-inc/policy-interface/pkg/models"
	"github.com/ekaya-inc/policy-interface/pkg/rules"
)

// fakeRelational answers report-store commands through respond and records
// every command it was given.
type fakeRelational struct {
	commands []string
	respond  func(command string) ([]models.ResourceRecord, error)
	closed   bool
}

func (f *fakeRelational) Execute(ctx context.Context, command string) ([]models.ResourceRecord, error) {
	f.commands = append(f.commands, command)
	if f.respond == nil {
		return nil, nil
	}
	return f.respond(command)
}

func (f *fakeRelational) Close() error {
	f.closed = true
	return nil
}

type fakeDocuments struct {
	database   string
	collection string
	pipeline   []bson.D
	rows       []models.ResourceRecord
	err        error
	closed     bool
}

func (f *fakeDocuments) Aggregate(ctx context.Context, database, collection string, pipeline []bson.D) ([]models.ResourceRecord, error) {
	f.database, f.collection, f.pipeline = database, collection, pipeline
	return f.rows, f.err
}

func (f *fakeDocuments) Close(ctx context.Context) error {
	f.closed = true
	return nil
}

type fakeStores struct {
	relational *fakeRelational
	documents  *fakeDocuments
	opened     int
}

func (f *fakeStores) NewRelationalStore(ctx context.Context, args models.ConnectionArgs) (datasource.RelationalStore, error) {
	f.opened++
	return f.relational, nil
}

func (f *fakeStores) NewDocumentStore(ctx context.Context, args models.ConnectionArgs) (datasource.DocumentStore, error) {
	f.opened++
	return f.documents, nil
}

func newFakeStores() *fakeStores {
	return &fakeStores{relational: &fakeRelational{}, documents: &fakeDocuments{}}
}

// accountRow answers the service account lookup with id, and everything else with rows.
func accountRow(id any, rows func(command string) ([]models.ResourceRecord, error)) func(string) ([]models.ResourceRecord, error) {
	return func(command string) ([]models.ResourceRecord, error) {
		if strings.HasPrefix(command, "SELECT ServiceAccountID FROM") {
			return []models.ResourceRecord{models.NewResourceRecord("ServiceAccountID", id)}, nil
		}
		if rows == nil {
			return nil, nil
		}
		return rows(command)
	}
}

func sqlConnArgs() models.ConnectionArgs {
	return models.ConnectionArgs{"server": "db", "user": "svc", "password": "pw", "database": "reports"}
}

func mongoConnArgs() models.ConnectionArgs {
	return models.ConnectionArgs{"host": "mongo", "port": 27017.0}
}

func testCatalog() *catalog.Static {
	managed := []models.EngineSchema{
		{
			Name:                  "r_proc",
			QuerySource:           models.QuerySourceSQL,
			QuerySourceIdentifier: "proc1",
			ServiceAccountRef:     models.ServiceAccountRef{Name: "Acct"},
		},
		{
			Name:                  "r_assess",
			QuerySource:           models.QuerySourceSQL,
			QuerySourceIdentifier: "report.usp_Check",
			ServiceAccountRef:     models.ServiceAccountRef{Name: "ServiceAccountID"},
			ResourceTypeRef:       "ResourceType",
			ResourceRef:           "Resource",
			AssessmentRef:         "IsAssessment",
			AttributesSupported:   true,
			InputParameters: map[string]models.ParamSpec{
				"tags":    {Optional: false},
				"regions": {Optional: true},
			},
		},
		{
			Name:                  "r_code",
			QuerySource:           models.QuerySourceMongoDB,
			QuerySourceIdentifier: "budget",
			CodeRef:               "budget_check",
			DatabaseRef:           "heatstack",
			ServiceAccountRef:     models.ServiceAccountRef{KeyName: "service_account_id", KeyType: "string"},
		},
		{
			Name:                  "r_code_unknown",
			QuerySource:           models.QuerySourceSQL,
			QuerySourceIdentifier: "report.usp_Unused",
			CodeRef:               "not_registered",
			ServiceAccountRef:     models.ServiceAccountRef{Name: "ServiceAccountID"},
		},
		{
			Name:                  "r_elastic_ips",
			QuerySource:           models.QuerySourceMongoDB,
			QuerySourceIdentifier: "aws_elastic_ip",
			DatabaseRef:           "inventory",
			ServiceAccountRef:     models.ServiceAccountRef{KeyName: "service_account_id", KeyType: "objectid"},
			DefaultQuery:          models.DefaultQuery{Match: models.NewResourceRecord("is_deleted", false)},
			Query:                 `[{"$project": {"_id": 0, "ResourceId": "$allocation_id"}}, {"$match": {"created": {"$gte": "{since}"}}}]`,
			InputParameters:       map[string]models.ParamSpec{"since": {Optional: false}},
		},
		{
			Name:                  "r_ref_required",
			QuerySource:           models.QuerySourceSQL,
			QuerySourceIdentifier: "report.usp_Ref",
			ServiceAccountRef:     models.ServiceAccountRef{Name: "ServiceAccountID"},
			RuleReferenceRequired: true,
		},
	}
	custom := []models.EngineSchema{
		{
			Name:                  "resources",
			QuerySource:           models.QuerySourceSQL,
			QuerySourceIdentifier: "report.Resources",
			ServiceAccountRef:     models.ServiceAccountRef{Name: "AccountRef"},
			DefaultQuery:          models.DefaultQuery{Terms: []string{"isDeleted=0"}},
			Columns:               []string{"ResourceId", "ResourceName", "Region", "isDeleted", "ServiceAccountID"},
		},
		{
			Name:                  "coll1",
			QuerySource:           models.QuerySourceMongoDB,
			QuerySourceIdentifier: "coll1",
			DatabaseRef:           "db1",
			ServiceAccountRef:     models.ServiceAccountRef{KeyName: "acct", KeyType: "string"},
		},
	}
	return catalog.NewStatic(managed, custom)
}

func newTestValidator() *PolicyValidator {
	return NewPolicyValidator(catalog.NewResolver(nil, testCatalog(), nil), nil)
}

// newTestInterface wires a policy interface over the test catalog and the
// given stores and routines.
func newTestInterface(t *testing.T, stores *fakeStores, registry *rules.Registry) *PolicyInterface {
	t.Helper()
	if registry == nil {
		registry = rules.NewRegistry()
	}
	dispatcher := NewDispatcher(DispatcherConfig{}, registry, stores, nil, nil)
	return NewPolicyInterface(newTestValidator(), dispatcher, nil, nil)
}

func mongoPolicy() *models.PolicyDocument {
	return &models.PolicyDocument{
		Version:               "1.0",
		RuleName:              "r1",
		QuerySource:           models.QuerySourceMongoDB,
		QuerySourceIdentifier: "coll1",
		Query:                 `[{"$match":{"x":"{p1}"}}]`,
		InputParameters:       map[string]models.ParamSpec{"p1": {Optional: false}},
	}
}

func customSQLPolicy() *models.PolicyDocument {
	return &models.PolicyDocument{
		Version:         "1.0",
		RuleName:        "untagged",
		QuerySource:     models.QuerySourceSQL,
		Query:           "SELECT ResourceId, Region FROM report.Resources WHERE isDeleted=0 AND ServiceAccountID={AccountRef} AND Region IN {regions}",
		InputParameters: map[string]models.ParamSpec{"regions": {Optional: false}},
	}
}
