package download

import "errors"

// Sentinel errors for the download package.
var (
	// ErrEmptyJobID is returned when a control call is made without a job id.
	ErrEmptyJobID = errors.New("job id is required")

	// ErrEmptyResponseID is returned when the service creates a job but reports no id.
	ErrEmptyResponseID = errors.New("service returned an empty job id")
)
