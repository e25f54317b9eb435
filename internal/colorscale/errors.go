package colorscale

import (
	"errors"
	"fmt"
)

// ErrColorFormat matches any *ColorFormatError via errors.Is.
var ErrColorFormat = errors.New("malformed color")

// ErrEmptyScale is returned when a scale is built from no stops at all.
var ErrEmptyScale = errors.New("color scale has no stops")

// ColorFormatError reports a stop color that is not RGB hex or a sentinel spelling.
type ColorFormatError struct {
	Input string
	Err   error
}

func (e *ColorFormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed color %q: %v", e.Input, e.Err)
	}
	return fmt.Sprintf("malformed color %q", e.Input)
}

func (e *ColorFormatError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrColorFormat) match.
func (e *ColorFormatError) Is(target error) bool { return target == ErrColorFormat }
