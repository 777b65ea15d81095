package skills

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/datamind-ai/datamind/sandbox"
	"github.com/datamind-ai/datamind/session"
	"github.com/datamind-ai/datamind/types"
)

var codeParamsSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "code": {"type": "string", "description": "Source code to execute"},
    "dataset": {"type": "string", "description": "Dataset to bind to the df variable"},
    "persist": {"type": "boolean", "description": "Write the mutated df back to the session dataset"}
  },
  "required": ["code"]
}`)

// pythonRunner is the part of the Python sandbox the skill needs.
type pythonRunner interface {
	Execute(ctx context.Context, req sandbox.ExecRequest) *sandbox.SandboxOutcome
}

// NewRunCode builds the run_code skill: validated, resource-limited
// Python execution against the session's datasets.
func NewRunCode(executor pythonRunner) Skill {
	return &funcSkill{
		name:        "run_code",
		description: "Execute Python code against the session datasets. The bound dataset is available as `df`; set `result` or `output_df` to return values.",
		parameters:  codeParamsSchema,
		category:    CategoryCode,
		idempotent:  false,
		exposed:     true,
		handler: func(ctx context.Context, sess *session.Session, params map[string]any) (*types.SkillResult, error) {
			return runSandboxed(ctx, sess, params, executor.Execute)
		},
	}
}

// rRunner is the part of the hybrid R executor the skill needs.
type rRunner interface {
	Execute(ctx context.Context, req sandbox.ExecRequest) *sandbox.SandboxOutcome
}

// NewRunRCode builds the run_r_code skill: hybrid webR/native R
// execution with the same contract as run_code.
func NewRunRCode(executor rRunner) Skill {
	return &funcSkill{
		name:        "run_r_code",
		description: "Execute R code against the session datasets. The bound dataset is available as `df`; assign `result` or `output_df` to return values.",
		parameters:  codeParamsSchema,
		category:    CategoryCode,
		idempotent:  false,
		exposed:     true,
		handler: func(ctx context.Context, sess *session.Session, params map[string]any) (*types.SkillResult, error) {
			return runSandboxed(ctx, sess, params, executor.Execute)
		},
	}
}

// runSandboxed is the shared bridge from skill parameters to a sandbox
// call. Dataset mutations reported by the sandbox are applied to the
// session here — under the caller's lane lock — and only on success.
func runSandboxed(
	ctx context.Context,
	sess *session.Session,
	params map[string]any,
	execute func(ctx context.Context, req sandbox.ExecRequest) *sandbox.SandboxOutcome,
) (*types.SkillResult, error) {
	code, err := stringParam(params, "code")
	if err != nil {
		return types.FailedResult(err.Error()), nil
	}
	datasetName := optionalStringParam(params, "dataset", "")
	if datasetName != "" {
		if _, ok := sess.Dataset(datasetName); !ok {
			return types.FailedResult("dataset not found: " + datasetName), nil
		}
	}

	outcome := execute(ctx, sandbox.ExecRequest{
		Code:           code,
		SessionID:      sess.ID,
		Datasets:       sess.Datasets,
		DatasetName:    datasetName,
		PersistDataset: boolParam(params, "persist"),
	})

	if !outcome.Success {
		result := types.FailedResult(outcome.Error)
		result.Data = map[string]any{"stdout": outcome.Stdout, "stderr": outcome.Stderr}
		return result, nil
	}

	// Apply mutations only now, after the whole outcome is known good.
	for name, ds := range outcome.Datasets {
		sess.SetDataset(name, ds)
	}
	for _, artifact := range outcome.Artifacts {
		sess.AddArtifact(artifact)
	}

	result := &types.SkillResult{
		Success: true,
		Message: buildCodeMessage(outcome),
		Data: map[string]any{
			"stdout": outcome.Stdout,
			"stderr": outcome.Stderr,
			"result": outcome.Result,
		},
		Artifacts: outcome.Artifacts,
	}
	if len(outcome.Charts) > 0 {
		result.Chart = &outcome.Charts[0]
	}
	if datasetName != "" {
		if ds, ok := outcome.Datasets[datasetName]; ok {
			result.DataFrame = ds.Head(10)
		}
	}
	result.WithMetadata("backend", outcome.Backend)
	result.WithMetadata("duration_ms", outcome.Duration.Milliseconds())
	return result, nil
}

func buildCodeMessage(outcome *sandbox.SandboxOutcome) string {
	msg := "code executed successfully"
	if outcome.Result != nil {
		msg = fmt.Sprintf("code executed successfully, result: %v", outcome.Result)
	}
	if len(outcome.Datasets) > 0 {
		msg += fmt.Sprintf(" (%d dataset(s) updated)", len(outcome.Datasets))
	}
	return msg
}
