package services

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ekaya-inc/policy-interface/pkg/models"
	"github.com/ekaya-inc/policy-interface/pkg/sql"
)

var isoDatePattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[012])-(0[1-9]|[12]\d|3[01])$`)

// substituteDocumentArgs fills {name} placeholders of a pipeline template.
// Values are JSON encoded; a quoted "{name}" is replaced as a whole so a
// string value is not quoted twice. String values of query_field
// parameters are inserted verbatim.
func substituteDocumentArgs(query string, args map[string]any, params map[string]models.ParamSpec) (string, error) {
	for _, name := range models.SortedArgKeys(args) {
		value := args[name]
		placeholder := "{" + name + "}"

		if s, ok := value.(string); ok && params[name].QueryField {
			query = strings.ReplaceAll(query, placeholder, s)
			continue
		}

		encoded, err := sql.Render(value, sql.StyleJSON)
		if err != nil {
			return "", fmt.Errorf("encode argument %s: %w", name, err)
		}
		query = strings.ReplaceAll(query, `"`+placeholder+`"`, encoded)
		query = strings.ReplaceAll(query, placeholder, encoded)
	}
	return query, nil
}

// parsePipeline decodes an extended JSON aggregation pipeline into ordered
// stages. Field values that look like YYYY-MM-DD are promoted to dates.
func parsePipeline(query string) ([]bson.D, error) {
	var wrapper struct {
		Pipeline []bson.D `bson:"pipeline"`
	}
	if err := bson.UnmarshalExtJSON([]byte(`{"pipeline": `+query+`}`), false, &wrapper); err != nil {
		return nil, fmt.Errorf("parse aggregation pipeline: %w", err)
	}
	for i := range wrapper.Pipeline {
		wrapper.Pipeline[i] = promoteDates(wrapper.Pipeline[i])
	}
	return wrapper.Pipeline, nil
}

func promoteDates(doc bson.D) bson.D {
	for i, elem := range doc {
		doc[i].Value = promoteValue(elem.Value)
	}
	return doc
}

func promoteValue(v any) any {
	switch t := v.(type) {
	case string:
		if isoDatePattern.MatchString(t) {
			if parsed, err := time.Parse(time.DateOnly, t); err == nil {
				return parsed
			}
		}
		return t
	case bson.D:
		return promoteDates(t)
	case bson.A:
		for i, item := range t {
			if doc, ok := item.(bson.D); ok {
				t[i] = promoteDates(doc)
			}
		}
		return t
	default:
		return v
	}
}

// accountScope builds the $match clause that restricts a pipeline to one
// account: the schema's default filter plus the account key.
func accountScope(schema *models.EngineSchema, accountID string) (bson.D, error) {
	scope := bson.D{}
	if match := schema.DefaultQuery.Match; match != nil {
		for pair := match.Oldest(); pair != nil; pair = pair.Next() {
			scope = append(scope, bson.E{Key: pair.Key, Value: pair.Value})
		}
	}

	ref := schema.ServiceAccountRef
	if ref.KeyName == "" {
		return nil, fmt.Errorf("schema %s has no service account key", schema.Name)
	}
	if ref.IsStringKey() {
		return setField(scope, ref.KeyName, accountID), nil
	}
	oid, err := primitive.ObjectIDFromHex(accountID)
	if err != nil {
		return nil, fmt.Errorf("service account id %q is not an object id: %w", accountID, err)
	}
	return setField(scope, ref.KeyName, oid), nil
}

// scopePipeline merges scope into a leading $match stage, or prepends one
// when the first stage is something else.
func scopePipeline(pipeline []bson.D, scope bson.D) []bson.D {
	if len(pipeline) > 0 && len(pipeline[0]) > 0 && pipeline[0][0].Key == "$match" {
		if match, ok := pipeline[0][0].Value.(bson.D); ok {
			for _, elem := range scope {
				match = setField(match, elem.Key, elem.Value)
			}
			pipeline[0][0].Value = match
			return pipeline
		}
	}
	return append([]bson.D{{{Key: "$match", Value: scope}}}, pipeline...)
}

func setField(doc bson.D, key string, value any) bson.D {
	for i := range doc {
		if doc[i].Key == key {
			doc[i].Value = value
			return doc
		}
	}
	return append(doc, bson.E{Key: key, Value: value})
}
