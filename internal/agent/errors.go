package agent

import "fmt"

// InvocationError is a transport-level fault talking to an AI capability:
// timeouts, connection failures, non-2xx responses, unparseable output. It is
// the retryable class of agent failure; semantic rejections are verdicts, not
// errors.
type InvocationError struct {
	Provider string
	Err      error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("agent invocation failed (%s): %v", e.Provider, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

func invocationErr(provider string, format string, args ...any) *InvocationError {
	return &InvocationError{Provider: provider, Err: fmt.Errorf(format, args...)}
}
