package skills

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/datamind-ai/datamind/session"
	"github.com/datamind-ai/datamind/stat"
	"github.com/datamind-ai/datamind/types"
)

// normalityAlpha is the significance level below which the normality
// check rejects and parametric skills defer to their fallback.
const normalityAlpha = 0.05

var twoColumnSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "dataset": {"type": "string", "description": "Dataset to read"},
    "column_a": {"type": "string", "description": "First numeric column"},
    "column_b": {"type": "string", "description": "Second numeric column"}
  },
  "required": ["dataset", "column_a", "column_b"]
}`)

var oneColumnSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "dataset": {"type": "string", "description": "Dataset to read"},
    "column": {"type": "string", "description": "Numeric column to analyze"}
  },
  "required": ["dataset", "column"]
}`)

func datasetColumn(sess *session.Session, params map[string]any, key string) ([]float64, error) {
	name, err := stringParam(params, "dataset")
	if err != nil {
		return nil, err
	}
	ds, ok := sess.Dataset(name)
	if !ok {
		return nil, fmt.Errorf("dataset not found: %s", name)
	}
	column, err := stringParam(params, key)
	if err != nil {
		return nil, err
	}
	return ds.Float64Column(column)
}

// NewDescriptiveStats builds the descriptive_stats skill.
func NewDescriptiveStats() Skill {
	return &funcSkill{
		name:        "descriptive_stats",
		description: "Compute count, mean, standard deviation, min, quartiles, and max for a numeric column.",
		parameters:  oneColumnSchema,
		category:    CategoryStats,
		idempotent:  true,
		exposed:     true,
		handler: func(ctx context.Context, sess *session.Session, params map[string]any) (*types.SkillResult, error) {
			xs, err := datasetColumn(sess, params, "column")
			if err != nil {
				return types.FailedResult(err.Error()), nil
			}
			summary, err := stat.Describe(xs)
			if err != nil {
				return types.FailedResult(err.Error()), nil
			}
			return &types.SkillResult{
				Success: true,
				Message: fmt.Sprintf("n=%d mean=%.4f sd=%.4f min=%.4f max=%.4f",
					summary.N, summary.Mean, summary.StdDev, summary.Min, summary.Max),
				Data: summary,
			}, nil
		},
	}
}

// NewNormalityTest builds the normality_test skill (Jarque-Bera).
func NewNormalityTest() Skill {
	return &funcSkill{
		name:        "normality_test",
		description: "Jarque-Bera normality test on a numeric column. Rejects normality when p < 0.05.",
		parameters:  oneColumnSchema,
		category:    CategoryStats,
		idempotent:  true,
		exposed:     true,
		handler: func(ctx context.Context, sess *session.Session, params map[string]any) (*types.SkillResult, error) {
			xs, err := datasetColumn(sess, params, "column")
			if err != nil {
				return types.FailedResult(err.Error()), nil
			}
			res, err := stat.JarqueBera(xs)
			if err != nil {
				return types.FailedResult(err.Error()), nil
			}
			verdict := "consistent with normality"
			if res.PValue < normalityAlpha {
				verdict = "normality rejected"
			}
			return &types.SkillResult{
				Success: true,
				Message: fmt.Sprintf("Jarque-Bera JB=%.4f p=%.4g: %s", res.Statistic, res.PValue, verdict),
				Data:    res,
			}, nil
		},
	}
}

// NewTTest builds the t_test skill. When either column fails the
// normality check the skill reports a PreconditionError so the registry
// can dispatch the registered nonparametric fallback.
func NewTTest() Skill {
	return &funcSkill{
		name:        "t_test",
		description: "Welch two-sample t-test comparing two numeric columns. Falls back to Mann-Whitney when normality is violated.",
		parameters:  twoColumnSchema,
		category:    CategoryStats,
		idempotent:  true,
		exposed:     true,
		handler: func(ctx context.Context, sess *session.Session, params map[string]any) (*types.SkillResult, error) {
			a, err := datasetColumn(sess, params, "column_a")
			if err != nil {
				return types.FailedResult(err.Error()), nil
			}
			b, err := datasetColumn(sess, params, "column_b")
			if err != nil {
				return types.FailedResult(err.Error()), nil
			}

			if reason := normalityViolation(a, b); reason != "" {
				return nil, &PreconditionError{Reason: reason}
			}

			res, err := stat.WelchT(a, b)
			if err != nil {
				return types.FailedResult(err.Error()), nil
			}
			return &types.SkillResult{
				Success: true,
				Message: fmt.Sprintf("Welch t-test t=%.4f df=%.2f p=%.4g", res.Statistic, res.DF, res.PValue),
				Data:    res,
			}, nil
		},
	}
}

// normalityViolation checks both samples with Jarque-Bera and returns a
// non-empty reason when either rejects. Samples too small for the test
// pass: with so little data there is no evidence against normality.
func normalityViolation(a, b []float64) string {
	for i, xs := range [][]float64{a, b} {
		res, err := stat.JarqueBera(xs)
		if err != nil {
			continue
		}
		if res.PValue < normalityAlpha {
			return fmt.Sprintf("sample %d fails normality (Jarque-Bera p=%.4g)", i+1, res.PValue)
		}
	}
	return ""
}

// NewMannWhitney builds the mann_whitney skill, the nonparametric
// fallback for t_test.
func NewMannWhitney() Skill {
	return &funcSkill{
		name:        "mann_whitney",
		description: "Mann-Whitney U test comparing two numeric columns without a normality assumption.",
		parameters:  twoColumnSchema,
		category:    CategoryStats,
		idempotent:  true,
		exposed:     true,
		handler: func(ctx context.Context, sess *session.Session, params map[string]any) (*types.SkillResult, error) {
			a, err := datasetColumn(sess, params, "column_a")
			if err != nil {
				return types.FailedResult(err.Error()), nil
			}
			b, err := datasetColumn(sess, params, "column_b")
			if err != nil {
				return types.FailedResult(err.Error()), nil
			}
			res, err := stat.MannWhitney(a, b)
			if err != nil {
				return types.FailedResult(err.Error()), nil
			}
			return &types.SkillResult{
				Success: true,
				Message: fmt.Sprintf("Mann-Whitney U=%.1f p=%.4g", res.Statistic, res.PValue),
				Data:    res,
			}, nil
		},
	}
}

// NewCorrelation builds the correlation skill. Pearson is the primary
// method; when either column fails normality the skill reports a
// precondition failure so the registry falls back to rank correlation.
func NewCorrelation() Skill {
	return &funcSkill{
		name:        "correlation",
		description: "Pearson correlation between two numeric columns. Falls back to Spearman rank correlation when normality is violated.",
		parameters:  twoColumnSchema,
		category:    CategoryStats,
		idempotent:  true,
		exposed:     true,
		handler: func(ctx context.Context, sess *session.Session, params map[string]any) (*types.SkillResult, error) {
			a, err := datasetColumn(sess, params, "column_a")
			if err != nil {
				return types.FailedResult(err.Error()), nil
			}
			b, err := datasetColumn(sess, params, "column_b")
			if err != nil {
				return types.FailedResult(err.Error()), nil
			}

			if reason := normalityViolation(a, b); reason != "" {
				return nil, &PreconditionError{Reason: reason}
			}

			res, err := stat.Pearson(a, b)
			if err != nil {
				return types.FailedResult(err.Error()), nil
			}
			return &types.SkillResult{
				Success: true,
				Message: fmt.Sprintf("Pearson r=%.4f p=%.4g", res.Statistic, res.PValue),
				Data:    res,
			}, nil
		},
	}
}

// NewSpearman builds the spearman_correlation skill, the rank-based
// fallback for correlation.
func NewSpearman() Skill {
	return &funcSkill{
		name:        "spearman_correlation",
		description: "Spearman rank correlation between two numeric columns.",
		parameters:  twoColumnSchema,
		category:    CategoryStats,
		idempotent:  true,
		exposed:     true,
		handler: func(ctx context.Context, sess *session.Session, params map[string]any) (*types.SkillResult, error) {
			a, err := datasetColumn(sess, params, "column_a")
			if err != nil {
				return types.FailedResult(err.Error()), nil
			}
			b, err := datasetColumn(sess, params, "column_b")
			if err != nil {
				return types.FailedResult(err.Error()), nil
			}
			res, err := stat.Spearman(a, b)
			if err != nil {
				return types.FailedResult(err.Error()), nil
			}
			return &types.SkillResult{
				Success: true,
				Message: fmt.Sprintf("Spearman rho=%.4f p=%.4g", res.Statistic, res.PValue),
				Data:    res,
			}, nil
		},
	}
}
