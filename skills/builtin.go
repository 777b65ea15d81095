package skills

// RegisterBuiltins wires the standard skill set into the registry,
// including the assumption-check fallback chains for the parametric
// statistical skills.
func RegisterBuiltins(r *Registry, python pythonRunner, rExec rRunner) {
	r.Register(NewRunCode(python))
	r.Register(NewRunRCode(rExec))
	r.Register(NewListDatasets())
	r.Register(NewPreviewDataset())
	r.Register(NewDescriptiveStats())
	r.Register(NewNormalityTest())
	r.Register(NewTTest())
	r.Register(NewMannWhitney())
	r.Register(NewCorrelation())
	r.Register(NewSpearman())
	r.Register(NewCreateChart())

	r.RegisterFallback("t_test", "mann_whitney")
	r.RegisterFallback("correlation", "spearman_correlation")
}
