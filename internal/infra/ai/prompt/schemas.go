package prompt

// JSON schemas the model output is validated against before decoding.

const issueSchema = `{
  "type": "object",
  "required": ["severity", "description"],
  "properties": {
    "severity": {"type": "string"},
    "category": {"type": "string"},
    "description": {"type": "string", "minLength": 1},
    "location": {"type": "string"},
    "suggestion": {"type": "string"},
    "example": {"type": "string"}
  }
}`

// AgentSchema validates one evaluation agent answer.
const AgentSchema = `{
  "type": "object",
  "required": ["score", "issues", "strengths", "feedback"],
  "properties": {
    "score": {"type": "number", "minimum": 0, "maximum": 100},
    "sub_scores": {"type": "object", "additionalProperties": {"type": "number"}},
    "issues": {"type": "array", "items": ` + issueSchema + `},
    "strengths": {"type": "array", "items": {"type": "string"}},
    "feedback": {"type": "string"}
  }
}`

// StructureSchema validates the structural assessment call.
const StructureSchema = `{
  "type": "object",
  "required": ["score", "sections_found", "missing_sections"],
  "properties": {
    "score": {"type": "number", "minimum": 0, "maximum": 100},
    "sections_found": {"type": "array", "items": {"type": "string"}},
    "missing_sections": {"type": "array", "items": {"type": "string"}},
    "issues": {"type": "array", "items": ` + issueSchema + `},
    "strengths": {"type": "array", "items": {"type": "string"}},
    "feedback": {"type": "string"}
  }
}`

// ReferencesSchema validates the reference-list extraction call.
const ReferencesSchema = `{
  "type": "object",
  "required": ["count", "style", "references"],
  "properties": {
    "count": {"type": "integer", "minimum": 0},
    "style": {"type": "string"},
    "recent_ratio": {"type": "number", "minimum": 0, "maximum": 1},
    "score": {"type": "number", "minimum": 0, "maximum": 100},
    "references": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["raw"],
        "properties": {
          "raw": {"type": "string"},
          "authors": {"type": "string"},
          "year": {"type": "integer"},
          "title": {"type": "string"}
        }
      }
    },
    "issues": {"type": "array", "items": ` + issueSchema + `},
    "strengths": {"type": "array", "items": {"type": "string"}},
    "feedback": {"type": "string"}
  }
}`

// CrossValidationSchema validates the calibration answer.
const CrossValidationSchema = `{
  "type": "object",
  "required": ["categories", "confidence", "summary"],
  "properties": {
    "categories": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["agent_id", "score", "agreement"],
        "properties": {
          "agent_id": {"type": "string"},
          "score": {"type": "number", "minimum": 0, "maximum": 100},
          "agreement": {"type": "string"},
          "adjusted_score": {"type": ["number", "null"], "minimum": 0, "maximum": 100},
          "comment": {"type": "string"}
        }
      }
    },
    "missed_issues": {"type": "array", "items": ` + issueSchema + `},
    "overstated_issues": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["description"],
        "properties": {
          "agent_id": {"type": "string"},
          "description": {"type": "string"},
          "reason": {"type": "string"}
        }
      }
    },
    "calibrated_overall_score": {"type": ["number", "null"], "minimum": 0, "maximum": 100},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "summary": {"type": "string"}
  }
}`
