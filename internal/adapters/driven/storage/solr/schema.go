package solr

import (
	"context"
	"fmt"
	"net/url"

	"github.com/apache/stanbol-sub040/internal/logger"
)

// Field types the encoded field names rely on. Exact-match strings are one
// lower-cased token; text is split on whitespace and lower-cased. Every
// other prefix holds canonical forms compared as plain strings, so the
// fixed-width numeric and date encodings sort and range lexically.
const (
	exactType = "yard_exact"
	textType  = "yard_text"
	plainType = "string"
)

// fieldType is a Schema API field type definition.
type fieldType struct {
	Name     string    `json:"name"`
	Class    string    `json:"class"`
	Analyzer *analyzer `json:"analyzer,omitempty"`
}

type analyzer struct {
	Tokenizer factory   `json:"tokenizer"`
	Filters   []factory `json:"filters,omitempty"`
}

type factory struct {
	Class string `json:"class"`
}

// dynamicField is a Schema API dynamic field definition.
type dynamicField struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Indexed     bool   `json:"indexed"`
	Stored      bool   `json:"stored"`
	MultiValued bool   `json:"multiValued"`
}

// schemaFieldTypes are installed before the dynamic fields that use them.
// plainType ships with every Solr configset.
var schemaFieldTypes = []fieldType{
	{
		Name:  exactType,
		Class: "solr.TextField",
		Analyzer: &analyzer{
			Tokenizer: factory{Class: "solr.KeywordTokenizerFactory"},
			Filters:   []factory{{Class: "solr.LowerCaseFilterFactory"}},
		},
	},
	{
		Name:  textType,
		Class: "solr.TextField",
		Analyzer: &analyzer{
			Tokenizer: factory{Class: "solr.WhitespaceTokenizerFactory"},
			Filters:   []factory{{Class: "solr.LowerCaseFilterFactory"}},
		},
	},
}

// schemaDynamicFields maps every field name prefix written by the codec,
// plus the settings keys, to its type.
var schemaDynamicFields = []dynamicField{
	multi("str.*", exactType),
	multi("txt.*", textType),
	multi("ref.*", plainType),
	multi("int.*", plainType),
	multi("dbl.*", plainType),
	multi("dat.*", plainType),
	multi("bool.*", plainType),
	{Name: "yard.*", Type: plainType, Indexed: true, Stored: true},
}

func multi(name, typ string) dynamicField {
	return dynamicField{Name: name, Type: typ, Indexed: true, Stored: true, MultiValued: true}
}

// schemaCommands is one Schema API request. Solr applies the commands in
// document order, so field types precede the fields using them.
type schemaCommands struct {
	AddFieldType        []fieldType    `json:"add-field-type,omitempty"`
	ReplaceFieldType    []fieldType    `json:"replace-field-type,omitempty"`
	AddDynamicField     []dynamicField `json:"add-dynamic-field,omitempty"`
	ReplaceDynamicField []dynamicField `json:"replace-dynamic-field,omitempty"`
}

type fieldTypesResponse struct {
	FieldTypes []struct {
		Name string `json:"name"`
	} `json:"fieldTypes"`
}

type dynamicFieldsResponse struct {
	DynamicFields []struct {
		Name string `json:"name"`
	} `json:"dynamicFields"`
}

// EnsureSchema installs the field types and dynamic fields through the
// Schema API. Definitions already present are replaced, so a core created
// from the default configset (whose field guessing would type these fields
// differently) ends up with the same contract as a fresh one.
func (x *Index) EnsureSchema(ctx context.Context) error {
	x.schemaMu.Lock()
	defer x.schemaMu.Unlock()

	var types fieldTypesResponse
	if err := x.client.get(ctx, "/schema/fieldtypes", nil, &types); err != nil {
		return fmt.Errorf("reading field types: %w", err)
	}
	var fields dynamicFieldsResponse
	if err := x.client.get(ctx, "/schema/dynamicfields", nil, &fields); err != nil {
		return fmt.Errorf("reading dynamic fields: %w", err)
	}

	haveType := make(map[string]bool, len(types.FieldTypes))
	for _, t := range types.FieldTypes {
		haveType[t.Name] = true
	}
	haveField := make(map[string]bool, len(fields.DynamicFields))
	for _, f := range fields.DynamicFields {
		haveField[f.Name] = true
	}

	var commands schemaCommands
	for _, t := range schemaFieldTypes {
		if haveType[t.Name] {
			commands.ReplaceFieldType = append(commands.ReplaceFieldType, t)
		} else {
			commands.AddFieldType = append(commands.AddFieldType, t)
		}
	}
	for _, f := range schemaDynamicFields {
		if haveField[f.Name] {
			commands.ReplaceDynamicField = append(commands.ReplaceDynamicField, f)
		} else {
			commands.AddDynamicField = append(commands.AddDynamicField, f)
		}
	}

	if err := x.client.post(ctx, "/schema", url.Values{"updateTimeoutSecs": {"30"}}, commands, nil); err != nil {
		return fmt.Errorf("updating schema: %w", err)
	}
	x.schemaReady = true
	logger.Debug("solr: schema has %d field types and %d dynamic fields", len(schemaFieldTypes), len(schemaDynamicFields))
	return nil
}

// prepare runs EnsureSchema once per Index unless the schema is managed
// outside the Yard. A failed attempt is retried on the next call.
func (x *Index) prepare(ctx context.Context) error {
	if x.skipSchema {
		return nil
	}
	x.schemaMu.Lock()
	ready := x.schemaReady
	x.schemaMu.Unlock()
	if ready {
		return nil
	}
	return x.EnsureSchema(ctx)
}
