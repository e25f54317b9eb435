package api

import "errors"

var (
	errFilterPair   = errors.New("min and max must be given together")
	errFilterNumber = errors.New("min and max must be finite numbers")
	errFilterOrder  = errors.New("min must not exceed max")
	errNotFinite    = errors.New("value is not finite")
)
