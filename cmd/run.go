package main

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/spsa/internal/opt"
	"github.com/cwbudde/spsa/internal/problems"
	"github.com/cwbudde/spsa/internal/store"
)

var (
	function   string
	dim        int
	initParams string
	fromRun    string
	method     string

	alpha        float64
	batchSize    int
	gamma        float64
	stepSize     float64
	evalStepSize float64
	maxIters     int
	tolerance    float64
	stability    float64
	subBatch     int
	workers      int
	patience     int
	popSize      int
	seed         int64

	traceEnabled bool
	traceEvery   int
	traceParams  bool
	runDataDir   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Minimize a benchmark function",
	Long: `Runs a single optimization of a benchmark function and prints the final
value and parameters. With --data-dir the run is persisted and can seed later
runs through --from.`,
	RunE: runOptimization,
}

func init() {
	defaults := opt.DefaultConfig()

	runCmd.Flags().StringVar(&function, "function", "sphere", fmt.Sprintf("Objective function %v", problems.Names()))
	runCmd.Flags().IntVar(&dim, "dim", 2, "Problem dimension (ignored by fixed-size functions)")
	runCmd.Flags().StringVar(&initParams, "init", "", "Comma-separated initial point (default: the function's conventional start)")
	runCmd.Flags().StringVar(&fromRun, "from", "", "Start from the final parameters of a stored run")
	runCmd.Flags().StringVar(&method, "method", store.MethodSPSA, "Optimization method: spsa, mayfly")

	runCmd.Flags().Float64Var(&alpha, "alpha", defaults.StepSizeDecayExponent, "Step size decay exponent")
	runCmd.Flags().IntVar(&batchSize, "batch-size", defaults.BatchSize, "Perturbation samples averaged per iteration")
	runCmd.Flags().Float64Var(&gamma, "gamma", defaults.PerturbationDecayExponent, "Perturbation decay exponent")
	runCmd.Flags().Float64Var(&stepSize, "step-size", defaults.StepSize, "Initial step size")
	runCmd.Flags().Float64Var(&evalStepSize, "eval-step-size", defaults.EvaluationStepSize, "Initial perturbation magnitude")
	runCmd.Flags().IntVar(&maxIters, "max-iters", defaults.MaxIterations, "Max iterations (0 = no limit)")
	runCmd.Flags().Float64Var(&tolerance, "tolerance", defaults.Tolerance, "Stop when the value changes by less than this (0 = disabled)")
	runCmd.Flags().Float64Var(&stability, "stability", 0, "Stability constant added to the step size denominator")
	runCmd.Flags().IntVar(&subBatch, "sub-batch", 0, "Terms per gradient sample for decomposable functions (0 = all)")
	runCmd.Flags().IntVar(&workers, "workers", 1, "Goroutines evaluating perturbation samples")
	runCmd.Flags().IntVar(&patience, "patience", 1, "Consecutive small changes required for convergence")
	runCmd.Flags().IntVar(&popSize, "pop", 20, "Population size (mayfly)")
	runCmd.Flags().Int64Var(&seed, "seed", opt.DefaultSeed, "Random seed")

	runCmd.Flags().BoolVar(&traceEnabled, "trace", false, "Write a per-iteration trace (requires --data-dir)")
	runCmd.Flags().IntVar(&traceEvery, "trace-every", 1, "Trace every N-th iteration")
	runCmd.Flags().BoolVar(&traceParams, "trace-params", false, "Include parameters in trace entries")
	runCmd.Flags().StringVar(&runDataDir, "data-dir", "", "Directory for persisted runs (empty = do not persist)")

	runCmd.MarkFlagsMutuallyExclusive("init", "from")
	rootCmd.AddCommand(runCmd)
}

func runOptimization(cmd *cobra.Command, args []string) error {
	if method != store.MethodSPSA && method != store.MethodMayfly {
		return fmt.Errorf("unknown method: %s", method)
	}
	if method == store.MethodMayfly && maxIters <= 0 {
		return fmt.Errorf("mayfly needs a positive --max-iters")
	}
	if traceEnabled && runDataDir == "" {
		return fmt.Errorf("--trace requires --data-dir")
	}
	if traceEvery < 1 {
		return fmt.Errorf("--trace-every must be positive, got %d", traceEvery)
	}

	problem, err := problems.Lookup(function, dim)
	if err != nil {
		return err
	}

	config := runConfigFromFlags()

	var runStore *store.FSStore
	if runDataDir != "" {
		runStore, err = store.NewFSStore(runDataDir)
		if err != nil {
			return fmt.Errorf("failed to create run store: %w", err)
		}
	}

	initial, parent, err := initialPoint(problem, config, runStore)
	if err != nil {
		return err
	}

	record := store.NewRun(config, initial)
	record.Parent = parent
	record.InitialValue, err = problem.Function.Evaluate(initial)
	if err != nil {
		return fmt.Errorf("failed to evaluate initial point: %w", err)
	}
	if math.IsNaN(record.InitialValue) || math.IsInf(record.InitialValue, 0) {
		return fmt.Errorf("initial point has non-finite value %v", record.InitialValue)
	}

	slog.Info("Starting optimization",
		"run_id", record.ID,
		"function", function,
		"method", method,
		"dim", len(initial),
		"initial_value", record.InitialValue,
	)

	start := time.Now()
	switch method {
	case store.MethodSPSA:
		err = runSPSA(problem, record, runStore)
	case store.MethodMayfly:
		err = runMayfly(problem, record)
	}

	if runStore != nil {
		if saveErr := runStore.SaveRun(record); saveErr != nil {
			return fmt.Errorf("failed to save run: %w", saveErr)
		}
	}
	if err != nil {
		return err
	}

	slog.Info("Optimization complete",
		"run_id", record.ID,
		"elapsed", time.Since(start),
		"initial_value", record.InitialValue,
		"final_value", record.Value,
		"iterations", record.Iterations,
		"evaluations", record.Evaluations,
		"status", record.Status,
	)

	out := output(cmd)
	fmt.Fprintf(out, "%s on %s: %.6g -> %.6g (%s after %d iterations)\n",
		method, function, record.InitialValue, record.Value, record.Status, record.Iterations)
	fmt.Fprintf(out, "params: %s\n", formatParams(record.Params))
	if runStore != nil {
		fmt.Fprintf(out, "saved run %s\n", record.ID)
	}
	return nil
}

func runConfigFromFlags() store.RunConfig {
	config := store.RunConfig{
		Function: function,
		Dim:      dim,
		Method:   method,
		Seed:     seed,
		SPSA: opt.Config{
			StepSizeDecayExponent:     alpha,
			BatchSize:                 batchSize,
			PerturbationDecayExponent: gamma,
			StepSize:                  stepSize,
			EvaluationStepSize:        evalStepSize,
			MaxIterations:             maxIters,
			Tolerance:                 tolerance,
		},
	}
	switch method {
	case store.MethodSPSA:
		config.StabilityConstant = stability
		config.SubBatchSize = subBatch
		config.Workers = workers
		config.Patience = patience
	case store.MethodMayfly:
		config.PopSize = popSize
	}
	return config
}

// initialPoint resolves the starting parameters from --init, --from or the
// function's default. The second return value is the parent run ID.
func initialPoint(problem *problems.Problem, config store.RunConfig, runStore *store.FSStore) ([]float64, string, error) {
	switch {
	case initParams != "":
		x, err := parseParams(initParams)
		if err != nil {
			return nil, "", err
		}
		if len(x) != problem.Dim() {
			return nil, "", fmt.Errorf("--init has %d values, %s needs %d", len(x), problem.Name, problem.Dim())
		}
		return x, "", nil

	case fromRun != "":
		if runStore == nil {
			return nil, "", fmt.Errorf("--from requires --data-dir")
		}
		parent, err := runStore.LoadRun(fromRun)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load run %s: %w", fromRun, err)
		}
		if err := parent.IsCompatible(config); err != nil {
			return nil, "", fmt.Errorf("cannot continue from run %s: %w", fromRun, err)
		}
		slog.Info("Continuing from stored run", "parent", parent.ID, "value", parent.Value)
		return append([]float64(nil), parent.Params...), parent.ID, nil

	default:
		return problem.Function.InitialPoint(), "", nil
	}
}

func runSPSA(problem *problems.Problem, record *store.Run, runStore *store.FSStore) error {
	cfg := record.Config
	params := append([]float64(nil), record.InitialParams...)
	lastValue, lastIterations := record.InitialValue, 0

	var trace *store.TraceWriter
	if traceEnabled {
		var err error
		trace, err = store.NewTraceWriter(runStore.BaseDir(), record.ID, false)
		if err != nil {
			return fmt.Errorf("failed to create trace writer: %w", err)
		}
		defer func() {
			if err := trace.Close(); err != nil {
				slog.Warn("Failed to close trace", "run_id", record.ID, "error", err)
			}
		}()
	}

	progress := func(p opt.Progress) error {
		lastValue, lastIterations = p.Value, p.Iteration+1
		if trace == nil || p.Iteration%traceEvery != 0 {
			return nil
		}
		entry := store.TraceEntry{
			Iteration:        p.Iteration,
			Value:            p.Value,
			StepGain:         p.StepGain,
			PerturbationGain: p.PerturbationGain,
			Timestamp:        time.Now(),
		}
		if traceParams {
			entry.Params = append([]float64(nil), p.Params...)
		}
		return trace.Write(entry)
	}

	optimizer, err := opt.NewSPSAFromConfig(cfg.SPSA,
		opt.WithSeed(cfg.Seed),
		opt.WithStabilityConstant(cfg.StabilityConstant),
		opt.WithSubBatchSize(cfg.SubBatchSize),
		opt.WithConcurrency(cfg.Workers),
		opt.WithPatience(cfg.Patience),
		opt.WithLogger(logger),
		opt.WithProgress(progress),
	)
	if err != nil {
		return err
	}

	res, err := optimizer.Minimize(problem.Function, params)
	if err != nil {
		// params still holds the last accepted iterate
		record.Finish(params, lastValue, lastIterations, 0, "failed", err)
		return fmt.Errorf("optimization failed: %w", err)
	}

	record.Finish(params, res.Value, res.Iterations, res.Evaluations, res.Status.String(), nil)
	return nil
}

func runMayfly(problem *problems.Problem, record *store.Run) error {
	cfg := record.Config
	eval := func(x []float64) float64 {
		v, err := problem.Function.Evaluate(x)
		if err != nil || math.IsNaN(v) {
			return math.Inf(1)
		}
		return v
	}

	optimizer := opt.NewMayfly(cfg.SPSA.MaxIterations, cfg.PopSize, cfg.Seed)
	best, value, err := optimizer.Run(eval, problem.Lower, problem.Upper, problem.Dim())
	if err == nil && math.IsInf(value, 0) {
		err = fmt.Errorf("no finite objective value found")
	}
	if err != nil {
		record.Finish(record.InitialParams, record.InitialValue, 0, 0, "failed", err)
		return fmt.Errorf("optimization failed: %w", err)
	}

	record.Finish(best, value, cfg.SPSA.MaxIterations, 0, opt.IterationLimit.String(), nil)
	return nil
}

// parseParams parses a comma-separated list of finite numbers.
func parseParams(s string) ([]float64, error) {
	fields := strings.Split(s, ",")
	x := make([]float64, 0, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid parameter %d %q: %w", i, f, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("parameter %d is not finite", i)
		}
		x = append(x, v)
	}
	return x, nil
}

// formatParams is the inverse of parseParams.
func formatParams(x []float64) string {
	parts := make([]string, len(x))
	for i, v := range x {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}
