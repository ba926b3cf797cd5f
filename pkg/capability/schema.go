package capability

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"
)

// CompileSchema compiles an input schema so it can validate argument mappings
func CompileSchema(schema map[string]interface{}) (*gojsonschema.Schema, error) {
	if schema == nil {
		return nil, fmt.Errorf("input schema is missing")
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("invalid input schema: %w", err)
	}
	return compiled, nil
}

// ValidateArgs checks args against a compiled schema and returns one message
// per violation
func ValidateArgs(schema *gojsonschema.Schema, args Args) ([]string, error) {
	if args == nil {
		args = Args{}
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(map[string]interface{}(args)))
	if err != nil {
		return nil, fmt.Errorf("argument validation error: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, verr := range result.Errors() {
		violations = append(violations, verr.String())
	}
	return violations, nil
}

// ReflectSchema derives an input schema from a Go argument struct. Fields
// without omitempty are required.
func ReflectSchema(v interface{}) map[string]interface{} {
	reflector := jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: true,
	}

	data, err := json.Marshal(reflector.Reflect(v))
	if err != nil {
		panic(fmt.Sprintf("reflect schema for %T: %v", v, err))
	}

	var schema map[string]interface{}
	if err := json.Unmarshal(data, &schema); err != nil {
		panic(fmt.Sprintf("decode schema for %T: %v", v, err))
	}
	delete(schema, "$schema")
	delete(schema, "$id")

	return schema
}
