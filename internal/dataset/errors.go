package dataset

import (
	"errors"
	"fmt"
)

var (
	// ErrLoad matches any *LoadError via errors.Is.
	ErrLoad = errors.New("dataset load failed")
	// ErrNoRecords is a source that parsed cleanly but held no usable rows.
	ErrNoRecords = errors.New("no records")
	// ErrMissingIDColumn is a tabular source without a cell identifier column.
	ErrMissingIDColumn = errors.New("no cell identifier column")
)

// LoadError reports a dataset source that could not be fetched or parsed.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrLoad) match.
func (e *LoadError) Is(target error) bool { return target == ErrLoad }

func loadErr(source string, err error) error {
	if err == nil {
		return nil
	}
	var le *LoadError
	if errors.As(err, &le) {
		return err
	}
	return &LoadError{Source: source, Err: err}
}
