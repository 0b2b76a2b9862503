package domain

import "errors"

var (
	// ErrConfiguration reports a computation that needs a capability the
	// engine was not constructed with.
	ErrConfiguration = errors.New("configuration error")

	// ErrDomain reports a grid that does not cover the pressure bands or
	// hemispheres the boundary diagnostic needs.
	ErrDomain = errors.New("domain error")

	// ErrShape reports wind or coordinate arrays whose dimensions disagree.
	ErrShape = errors.New("shape mismatch")
)
