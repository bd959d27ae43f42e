package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Bridge errors
	ErrInvalidArgument      = fmt.Errorf("invalid argument")
	ErrUnsupportedOperation = fmt.Errorf("unsupported operation")
	ErrEngine               = fmt.Errorf("engine error")

	// Job lifecycle errors
	ErrLeaseUnavailable  = fmt.Errorf("wake lease unavailable")
	ErrForcedTermination = fmt.Errorf("forced termination")
	ErrCoordinatorClosed = fmt.Errorf("coordinator is not running")

	// Engine transport errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")

	// Persistence errors
	ErrSessionNotFound = fmt.Errorf("session not found")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)
