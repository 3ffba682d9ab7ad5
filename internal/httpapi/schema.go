package httpapi

import (
	"bytes"
	_ "embed"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed ingest.schema.json
var ingestSchemaJSON []byte

func loadIngestSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("ingest.schema.json", bytes.NewReader(ingestSchemaJSON)); err != nil {
		return nil, fmt.Errorf("add ingest schema: %w", err)
	}
	return compiler.Compile("ingest.schema.json")
}

// validateBody checks raw JSON against the schema before it is decoded into
// typed structs, so type mismatches surface as schema errors.
func validateBody(schema *jsonschema.Schema, body []byte) error {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return err
	}
	return schema.Validate(doc)
}
