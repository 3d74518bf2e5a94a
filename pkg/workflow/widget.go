package workflow

const (
	// EnterEmailWidgetID is the implicit first widget capturing the contact email of a run.
	EnterEmailWidgetID = "enter_email"
	// EmailPipe is the pipe produced by the enter email widget and consumed by every other widget.
	EmailPipe = "email"
)

// Widget is one workflow step.
type Widget struct {
	ID     string
	Title  string
	Type   string
	Config map[string]interface{}
	// InputPipes reference outputs of earlier widgets, or the widget itself for user inputs.
	InputPipes []Pipe
	// OutputPipes always have the widget as source.
	OutputPipes []Pipe
}

// UserInputs returns the input pipes the user provides on the widget itself.
func (w Widget) UserInputs() []Pipe {
	var res []Pipe
	for _, pipe := range w.InputPipes {
		if pipe.SourceWidgetID == w.ID {
			res = append(res, pipe)
		}
	}

	return res
}

// HasInput reports whether pipe is declared as an input of w.
func (w Widget) HasInput(pipe Pipe) bool {
	for _, in := range w.InputPipes {
		if in == pipe {
			return true
		}
	}

	return false
}

// Run is one user session executing an app.
type Run struct {
	ID        string
	Email     string
	Status    Status
	Canceling bool
	// PipeDatasByWidget is owned by the run. It is replaced, never mutated, on every transition.
	PipeDatasByWidget PipeDatasByWidget
	// Steps holds the status of every widget that was submitted or reported by the session store.
	Steps map[string]Status
}

// Clone returns a copy of r that does not share the step map.
func (r Run) Clone() Run {
	steps := make(map[string]Status, len(r.Steps))
	for id, status := range r.Steps {
		steps[id] = status
	}
	r.Steps = steps

	return r
}

// StepStatuses returns the known step statuses in widget order.
func (r Run) StepStatuses(widgets []Widget) []Status {
	res := make([]Status, 0, len(r.Steps))
	for _, w := range widgets {
		if status, ok := r.Steps[w.ID]; ok {
			res = append(res, status)
		}
	}

	return res
}

// App is the aggregate root of a page load: an app definition with its widgets and the current run.
type App struct {
	ID            string
	Title         string
	SelectLigands bool
	Widgets       []Widget
	Run           Run
}
