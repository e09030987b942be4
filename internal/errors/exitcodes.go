package errors

import stderrors "errors"

const (
	// ExitCodeSuccess indicates successful execution
	ExitCodeSuccess = 0

	// ExitCodeRuntime indicates a general runtime error
	ExitCodeRuntime = 1

	// ExitCodeValidation indicates a usage/validation error (follows bash convention)
	ExitCodeValidation = 2

	// ExitCodeUpstream indicates GitLab rejected a call
	ExitCodeUpstream = 4

	// ExitCodeNetwork indicates GitLab could not be reached in time
	ExitCodeNetwork = 5

	// ExitCodeConfig indicates a configuration error
	ExitCodeConfig = 6
)

// ExitCode returns the appropriate exit code for an error type
func ExitCode(t ErrorType) int {
	switch t {
	case ErrorTypeValidation:
		return ExitCodeValidation
	case ErrorTypeUpstream, ErrorTypeUnexpectedShape, ErrorTypePartialRename:
		return ExitCodeUpstream
	case ErrorTypeNetwork, ErrorTypeGatewayTimeout:
		return ExitCodeNetwork
	case ErrorTypeConfig:
		return ExitCodeConfig
	default:
		return ExitCodeRuntime
	}
}

// ExitCodeFromError extracts the exit code from an error
// Returns ExitCodeRuntime for untyped errors
func ExitCodeFromError(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}

	var e *Error
	if stderrors.As(err, &e) {
		return ExitCode(e.Type)
	}

	return ExitCodeRuntime
}
