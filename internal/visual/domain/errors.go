package domain

import (
	"errors"
	"fmt"
)

// UnreachableError indicates the target URL did not answer the
// connectivity probe, so the run was aborted before the executor.
type UnreachableError struct {
	URL   string
	Cause error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("target %s is not reachable: %v", e.URL, e.Cause)
}

func (e *UnreachableError) Unwrap() error { return e.Cause }

// NewUnreachableError creates a new UnreachableError.
func NewUnreachableError(url string, cause error) *UnreachableError {
	return &UnreachableError{URL: url, Cause: cause}
}

// IsUnreachable checks if an error is or wraps an UnreachableError.
func IsUnreachable(err error) bool {
	var unreachable *UnreachableError
	return errors.As(err, &unreachable)
}

// DeploymentFailedError indicates the hosting provider reported a
// terminal non-success state for the commit's deployment.
type DeploymentFailedError struct {
	Environment string
	State       string
}

func (e *DeploymentFailedError) Error() string {
	return fmt.Sprintf("deployment for environment %s reached state %s", e.Environment, e.State)
}

// NewDeploymentFailedError creates a new DeploymentFailedError.
func NewDeploymentFailedError(environment, state string) *DeploymentFailedError {
	return &DeploymentFailedError{Environment: environment, State: state}
}

// IsDeploymentFailed checks if an error is or wraps a DeploymentFailedError.
func IsDeploymentFailed(err error) bool {
	var failed *DeploymentFailedError
	return errors.As(err, &failed)
}
