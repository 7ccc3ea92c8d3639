package opt

// Status records why a run terminated.
type Status int

const (
	// Running is the zero value; it is never reported by a finished run.
	Running Status = iota
	// IterationLimit means maxIterations was reached.
	IterationLimit
	// FunctionConvergence means successive objective values moved less than the tolerance.
	FunctionConvergence
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case IterationLimit:
		return "iteration-limit"
	case FunctionConvergence:
		return "function-convergence"
	default:
		return "unknown"
	}
}
