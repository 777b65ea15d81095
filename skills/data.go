package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/datamind-ai/datamind/session"
	"github.com/datamind-ai/datamind/types"
)

// NewListDatasets builds the list_datasets skill.
func NewListDatasets() Skill {
	return &funcSkill{
		name:        "list_datasets",
		description: "List the session's datasets with their shapes.",
		parameters:  json.RawMessage(`{"type": "object", "properties": {}}`),
		category:    CategoryData,
		idempotent:  true,
		exposed:     true,
		handler: func(ctx context.Context, sess *session.Session, params map[string]any) (*types.SkillResult, error) {
			names := sess.DatasetNames()
			sort.Strings(names)
			listing := make([]map[string]any, 0, len(names))
			for _, name := range names {
				ds, _ := sess.Dataset(name)
				listing = append(listing, map[string]any{
					"name":    name,
					"rows":    ds.NumRows(),
					"columns": ds.Columns,
				})
			}
			return &types.SkillResult{
				Success: true,
				Message: fmt.Sprintf("%d dataset(s) in session", len(names)),
				Data:    listing,
			}, nil
		},
	}
}

// NewPreviewDataset builds the preview_dataset skill.
func NewPreviewDataset() Skill {
	return &funcSkill{
		name:        "preview_dataset",
		description: "Return the first rows of a dataset.",
		parameters: json.RawMessage(`{
  "type": "object",
  "properties": {
    "dataset": {"type": "string", "description": "Dataset to preview"},
    "rows": {"type": "integer", "description": "Number of rows to return (default 10)"}
  },
  "required": ["dataset"]
}`),
		category:   CategoryData,
		idempotent: true,
		exposed:    true,
		handler: func(ctx context.Context, sess *session.Session, params map[string]any) (*types.SkillResult, error) {
			name, err := stringParam(params, "dataset")
			if err != nil {
				return types.FailedResult(err.Error()), nil
			}
			ds, ok := sess.Dataset(name)
			if !ok {
				return types.FailedResult("dataset not found: " + name), nil
			}
			n := intParam(params, "rows", 10)
			if n < 1 {
				n = 1
			}
			return &types.SkillResult{
				Success:   true,
				Message:   fmt.Sprintf("%s: %d of %d rows", name, min(n, ds.NumRows()), ds.NumRows()),
				DataFrame: ds.Head(n),
			}, nil
		},
	}
}
