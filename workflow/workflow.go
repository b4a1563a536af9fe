package workflow

// Definition is a typed workflow definition with a handler function.
// T is the input type and R the output type; both must be JSON-serializable
// because they are stored on the Run.
type Definition[T, R any] struct {
	// Name is the unique identifier for this workflow type.
	Name string

	// Handler executes the workflow logic. It receives a *Workflow which
	// provides Step, Parallel, When and Sleep.
	Handler func(wf *Workflow, input T) (R, error)
}

// NewWorkflow creates a typed workflow definition.
func NewWorkflow[T, R any](name string, handler func(wf *Workflow, input T) (R, error)) *Definition[T, R] {
	return &Definition[T, R]{
		Name:    name,
		Handler: handler,
	}
}
