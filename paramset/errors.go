package paramset

import (
	"errors"
	"fmt"
)

var (
	// ErrVolumeMismatch indicates a refinement whose sub-rectangles do not
	// cover the refined rectangle exactly. It signals a bug.
	ErrVolumeMismatch = errors.New("paramset: refinement volume mismatch")

	// ErrTooManyCorners indicates a corner enumeration larger than the
	// caller's cap.
	ErrTooManyCorners = errors.New("paramset: too many corners")

	// ErrBadIndex indicates a point index outside the set.
	ErrBadIndex = errors.New("paramset: point index out of range")

	// ErrUnknownParam indicates a parameter name not in the set.
	ErrUnknownParam = errors.New("paramset: unknown parameter")

	// ErrInvalid indicates malformed construction arguments.
	ErrInvalid = errors.New("paramset: invalid parameter set")
)

// IndexError reports an out-of-range point index.
type IndexError struct {
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("%v: %d not in [0, %d)", ErrBadIndex, e.Index, e.Len)
}

func (e *IndexError) Unwrap() error { return ErrBadIndex }

// VolumeError reports the point whose refinement lost or gained volume.
type VolumeError struct {
	Point int
	Want  float64
	Got   float64
}

func (e *VolumeError) Error() string {
	return fmt.Sprintf("%v: point %d covers %g, sub-rectangles cover %g", ErrVolumeMismatch, e.Point, e.Want, e.Got)
}

func (e *VolumeError) Unwrap() error { return ErrVolumeMismatch }

// CornersError reports a corner count above the cap.
type CornersError struct {
	Count int
	Cap   int
}

func (e *CornersError) Error() string {
	return fmt.Sprintf("%v: %d corners exceed cap %d", ErrTooManyCorners, e.Count, e.Cap)
}

func (e *CornersError) Unwrap() error { return ErrTooManyCorners }
