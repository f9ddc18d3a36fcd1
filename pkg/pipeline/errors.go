package pipeline

import "errors"

var (
	// ErrInvalidCalibration indicates a malformed normalized rectangle or
	// non-positive frame dimensions. Fatal; raised before analysis starts.
	ErrInvalidCalibration = errors.New("invalid calibration")

	// ErrDecodeFailure indicates the frame source could not produce the
	// next frame. Fatal; the pipeline flushes partial state then aborts.
	ErrDecodeFailure = errors.New("decode failure")
)
