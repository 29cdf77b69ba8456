package tools

// Param schemas for the registered tools, declared at startup beside
// their handlers.

const analyzeSiteSchema = `{
  "type": "object",
  "required": ["url"],
  "properties": {
    "url":              {"type": "string"},
    "analysis_mode":    {"type": "string", "enum": ["quick", "recommended", "comprehensive", "targeted"]},
    "max_pages":        {"type": "integer", "minimum": 1},
    "include_step2":    {"type": "boolean"},
    "interactive_mode": {"type": "boolean"},
    "project_id":       {"type": "string"},
    "cost_priority":    {"type": "string", "enum": ["speed", "balanced", "cost_efficient"]},
    "focus_areas":      {"type": "array", "items": {"type": "string"}},
    "include_patterns": {"type": "array", "items": {"type": "string"}},
    "exclude_patterns": {"type": "array", "items": {"type": "string"}},
    "url_filter_mode":  {"type": "string", "enum": ["include", "exclude"]}
  }
}`

const discoverSchema = `{
  "type": "object",
  "required": ["url"],
  "properties": {
    "url":              {"type": "string"},
    "max_depth":        {"type": "integer", "minimum": 1, "maximum": 10},
    "max_pages":        {"type": "integer", "minimum": 1},
    "include_patterns": {"type": "array", "items": {"type": "string"}},
    "exclude_patterns": {"type": "array", "items": {"type": "string"}},
    "url_filter_mode":  {"type": "string", "enum": ["include", "exclude"]}
  }
}`

const pageListSchema = `{
  "type": "object",
  "required": ["urls"],
  "properties": {
    "urls":          {"type": "array", "items": {"type": "string"}, "minItems": 1},
    "project_id":    {"type": "string"},
    "include_step2": {"type": "boolean"}
  }
}`

const controlSchema = `{
  "type": "object",
  "required": ["workflow_id", "action"],
  "properties": {
    "workflow_id": {"type": "string"},
    "action":      {"type": "string", "enum": ["pause", "resume", "stop", "skip"]},
    "url":         {"type": "string"}
  }
}`

const resumeSchema = `{
  "type": "object",
  "required": ["checkpoint_path"],
  "properties": {
    "checkpoint_path": {"type": "string"},
    "include_step2":   {"type": "boolean"},
    "retry_failed":    {"type": "boolean"}
  }
}`

const statusSchema = `{
  "type": "object",
  "required": ["project_id"],
  "properties": {
    "project_id": {"type": "string"}
  }
}`
