package types

// Chart is a JSON-safe chart representation. Sandbox executors build it
// from captured figure objects; the create_chart skill builds it
// directly from dataset columns.
type Chart struct {
	Kind   string        `json:"kind"`
	Title  string        `json:"title,omitempty"`
	XLabel string        `json:"x_label,omitempty"`
	YLabel string        `json:"y_label,omitempty"`
	Series []ChartSeries `json:"series"`
}

// ChartSeries is one named series of a chart. X may hold categories or
// numeric positions; Y is always numeric.
type ChartSeries struct {
	Label string    `json:"label,omitempty"`
	X     []any     `json:"x,omitempty"`
	Y     []float64 `json:"y"`
}

// Artifact describes a file produced during execution (report, image,
// exported table). The path points into session-scoped storage.
type Artifact struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Path string `json:"path"`
}

// SkillResult is the outcome of one skill invocation. Failures are
// results too: Success=false with a human-readable Message, never a
// panic escaping the registry.
type SkillResult struct {
	Success   bool           `json:"success"`
	Data      any            `json:"data,omitempty"`
	Message   string         `json:"message"`
	Chart     *Chart         `json:"chart,omitempty"`
	DataFrame *Dataset       `json:"dataframe,omitempty"`
	Artifacts []Artifact     `json:"artifacts,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// HasChart reports whether a chart payload is attached. The flag and
// the payload are one and the same; they cannot disagree.
func (r *SkillResult) HasChart() bool { return r != nil && r.Chart != nil }

// HasDataFrame reports whether a dataframe preview is attached.
func (r *SkillResult) HasDataFrame() bool { return r != nil && r.DataFrame != nil }

// WithMetadata sets a metadata key, allocating the map on first use.
func (r *SkillResult) WithMetadata(key string, value any) *SkillResult {
	if r.Metadata == nil {
		r.Metadata = make(map[string]any)
	}
	r.Metadata[key] = value
	return r
}

// FailedResult builds a failed SkillResult with the given message.
func FailedResult(message string) *SkillResult {
	return &SkillResult{Success: false, Message: message}
}
