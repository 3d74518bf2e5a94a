package workflow

// Status is the lifecycle status of a step or of a whole run.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCanceled  Status = "canceled"
	StatusError     Status = "error"
	StatusCompleted Status = "completed"
)

// ParseStatus returns the status named s.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusIdle, StatusRunning, StatusCanceled, StatusError, StatusCompleted:
		return st, true
	default:
		return "", false
	}
}

// Terminal reports whether no further transition is expected from s.
func (s Status) Terminal() bool {
	return s == StatusCanceled || s == StatusError || s == StatusCompleted
}

// GetWorkflowStatus folds step statuses into a run status. From highest precedence: any error, any
// canceled, all completed, all idle, otherwise running. An empty list is idle.
func GetWorkflowStatus(steps []Status) Status {
	if len(steps) == 0 {
		return StatusIdle
	}

	allCompleted, allIdle, canceled := true, true, false
	for _, s := range steps {
		switch s {
		case StatusError:
			return StatusError
		case StatusCanceled:
			canceled = true
		}
		if s != StatusCompleted {
			allCompleted = false
		}
		if s != StatusIdle {
			allIdle = false
		}
	}

	switch {
	case canceled:
		return StatusCanceled
	case allCompleted:
		return StatusCompleted
	case allIdle:
		return StatusIdle
	default:
		return StatusRunning
	}
}
