package capability

// ManifestSchema is the JSON Schema every capability unit must satisfy
const ManifestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["kind"],
  "additionalProperties": false,
  "properties": {
    "kind": {
      "type": "string",
      "pattern": "^[a-z][a-z0-9_]*$",
      "description": "Built-in kind that implements the unit"
    },
    "description": {
      "type": "string",
      "description": "Human-readable description advertised to callers"
    },
    "schema": {
      "type": "object",
      "description": "JSON Schema for the argument mapping"
    },
    "version": {
      "type": "string",
      "description": "Semver version of the unit"
    },
    "command": {
      "type": "array",
      "minItems": 1,
      "items": { "type": "string", "minLength": 1 },
      "description": "Process argv for exec units"
    },
    "config": {
      "type": "object",
      "description": "Kind-specific settings"
    }
  }
}`
