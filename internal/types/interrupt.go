package types

// InterruptKindMissingData is raised by the grounding stage when the
// submission lacks fields research cannot proceed without.
const InterruptKindMissingData = "missing_data"

// Interrupt is the structured signal a stage sets to suspend the pipeline
// until a human supplies input. The JSON field names match what the UI
// approval form consumes.
type Interrupt struct {
	Kind    string         `json:"type"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}
