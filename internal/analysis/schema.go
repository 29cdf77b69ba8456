package analysis

// JSON schemas enforced on model output. Kept as plain strings so the
// prompt hardening retry can restate them verbatim.

const contentSummarySchema = `{
  "type": "object",
  "required": ["purpose", "user_context", "business_logic", "navigation_role",
               "business_importance", "confidence", "workflows", "journey_stage", "keywords"],
  "properties": {
    "purpose":             {"type": "string", "minLength": 1},
    "user_context":        {"type": "string"},
    "business_logic":      {"type": "string"},
    "navigation_role":     {"type": "string"},
    "business_importance": {"type": "number"},
    "confidence":          {"type": "number"},
    "workflows":           {"type": "array", "items": {"type": "string"}},
    "journey_stage":       {"type": "string", "enum": ["entry", "middle", "conversion", "exit"]},
    "keywords":            {"type": "array", "items": {"type": "string"}}
  },
  "additionalProperties": true
}`

const featureAnalysisSchema = `{
  "type": "object",
  "required": ["interactive_elements", "functional_capabilities", "api_integrations",
               "business_rules", "rebuild_specs", "overall_confidence", "context_ref"],
  "properties": {
    "interactive_elements": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type", "selector", "purpose"],
        "properties": {
          "type":     {"type": "string"},
          "selector": {"type": "string"},
          "purpose":  {"type": "string"}
        }
      }
    },
    "functional_capabilities": {"type": "array", "items": {"type": "string"}},
    "api_integrations": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["method", "endpoint", "purpose", "auth"],
        "properties": {
          "method":   {"type": "string"},
          "endpoint": {"type": "string"},
          "purpose":  {"type": "string"},
          "auth":     {"type": "string", "enum": ["none", "optional", "required"]}
        }
      }
    },
    "business_rules": {"type": "array", "items": {"type": "string"}},
    "rebuild_specs": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["title", "description", "complexity", "interactive"],
        "properties": {
          "title":       {"type": "string"},
          "description": {"type": "string"},
          "complexity":  {"type": "integer", "minimum": 1, "maximum": 10},
          "interactive": {"type": "boolean"}
        }
      }
    },
    "overall_confidence": {"type": "number"},
    "context_ref":        {"type": "string"}
  },
  "additionalProperties": true
}`
