package workflow

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrConfig reports a malformed app definition or widget graph.
	ErrConfig = errors.New("invalid workflow configuration")
	// ErrValidation reports bad user input, such as an invalid email or file extension.
	ErrValidation = errors.New("invalid input")
	// ErrIncompleteInput reports a job submission attempted before its inputs were resolved.
	ErrIncompleteInput = errors.New("incomplete input")
)

// IncompleteInputError lists the declared input pipes of a widget that have no pipe data yet.
type IncompleteInputError struct {
	WidgetID string
	Missing  []Pipe
}

func (e *IncompleteInputError) Error() string {
	names := make([]string, 0, len(e.Missing))
	for _, pipe := range e.Missing {
		names = append(names, pipe.String())
	}

	return fmt.Sprintf("%s: widget %s is missing %s", ErrIncompleteInput, e.WidgetID, strings.Join(names, ", "))
}

// Is makes errors.Is(err, ErrIncompleteInput) match.
func (e *IncompleteInputError) Is(target error) bool {
	return target == ErrIncompleteInput
}

func configErrorf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrConfig, format, args...)
}
