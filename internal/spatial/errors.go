package spatial

import "errors"

var (
	ErrInvalidResolution = errors.New("invalid resolution")
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	ErrInvalidCellID     = errors.New("invalid cell id")
	ErrIncompatibleCells = errors.New("incompatible cells")
	ErrInvalidRingSize   = errors.New("invalid ring size")
	ErrInvalidDistance   = errors.New("invalid distance")
)

// IsValidation reports whether err is one of the local validation failures
// above, as opposed to an infrastructure error from a collaborator.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidResolution) ||
		errors.Is(err, ErrInvalidCoordinate) ||
		errors.Is(err, ErrInvalidCellID) ||
		errors.Is(err, ErrIncompatibleCells) ||
		errors.Is(err, ErrInvalidRingSize) ||
		errors.Is(err, ErrInvalidDistance)
}
