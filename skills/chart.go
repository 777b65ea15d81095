package skills

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/datamind-ai/datamind/session"
	"github.com/datamind-ai/datamind/types"
)

var chartParamsSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "dataset": {"type": "string", "description": "Dataset to plot"},
    "kind": {"type": "string", "enum": ["line", "bar", "scatter", "histogram"], "description": "Chart kind"},
    "x": {"type": "string", "description": "Column for the x axis (categories or positions)"},
    "y": {"type": "string", "description": "Numeric column for the y axis"},
    "title": {"type": "string", "description": "Chart title"}
  },
  "required": ["dataset", "kind", "y"]
}`)

var chartKinds = map[string]bool{
	"line": true, "bar": true, "scatter": true, "histogram": true,
}

// NewCreateChart builds the create_chart skill: a JSON-safe chart from
// dataset columns, no plotting runtime required.
func NewCreateChart() Skill {
	return &funcSkill{
		name:        "create_chart",
		description: "Build a line, bar, scatter, or histogram chart from dataset columns.",
		parameters:  chartParamsSchema,
		category:    CategoryChart,
		idempotent:  true,
		exposed:     true,
		handler: func(ctx context.Context, sess *session.Session, params map[string]any) (*types.SkillResult, error) {
			name, err := stringParam(params, "dataset")
			if err != nil {
				return types.FailedResult(err.Error()), nil
			}
			ds, ok := sess.Dataset(name)
			if !ok {
				return types.FailedResult("dataset not found: " + name), nil
			}
			kind, err := stringParam(params, "kind")
			if err != nil {
				return types.FailedResult(err.Error()), nil
			}
			if !chartKinds[kind] {
				return types.FailedResult("unsupported chart kind: " + kind), nil
			}
			yCol, err := stringParam(params, "y")
			if err != nil {
				return types.FailedResult(err.Error()), nil
			}
			y, err := ds.Float64Column(yCol)
			if err != nil {
				return types.FailedResult(err.Error()), nil
			}

			series := types.ChartSeries{Label: yCol, Y: y}
			xCol := optionalStringParam(params, "x", "")
			if xCol != "" {
				x, err := ds.Column(xCol)
				if err != nil {
					return types.FailedResult(err.Error()), nil
				}
				series.X = x
			}

			chart := &types.Chart{
				Kind:   kind,
				Title:  optionalStringParam(params, "title", ""),
				XLabel: xCol,
				YLabel: yCol,
				Series: []types.ChartSeries{series},
			}
			return &types.SkillResult{
				Success: true,
				Message: fmt.Sprintf("%s chart of %s (%d points)", kind, yCol, len(y)),
				Chart:   chart,
			}, nil
		},
	}
}
