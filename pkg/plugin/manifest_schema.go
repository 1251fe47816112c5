package plugin

// ManifestSchema is the JSON Schema runtime-written manifests are validated
// against before hitting disk.
const ManifestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["name", "version"],
  "properties": {
    "name": {
      "type": "string",
      "minLength": 1,
      "description": "Unique plugin name"
    },
    "display_name": {
      "type": "string",
      "description": "Human-readable plugin name"
    },
    "version": {
      "type": "string",
      "minLength": 1,
      "description": "Plugin version"
    },
    "type": {
      "type": "string",
      "description": "Plugin category"
    },
    "description": {
      "type": "string",
      "description": "Plugin description"
    },
    "tools": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": { "type": "string", "minLength": 1 },
          "module": { "type": "string" },
          "level": { "type": "string" },
          "auto_register": { "type": "boolean" },
          "requires_agent_id": { "type": "boolean" }
        }
      }
    },
    "enabled": {
      "type": "boolean",
      "description": "Whether the plugin participates in loading"
    },
    "config_schema": {
      "type": "object",
      "description": "Per-key schema with optional defaults"
    }
  }
}`
