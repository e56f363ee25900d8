package hosting

import "fmt"

// NotFoundError indicates the requested PR or repository does not exist.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.Resource)
}

// UpstreamAPIError is a transport, auth, or rate-limit failure talking to the
// hosting API. Terminal for the current attempt; callers may re-invoke the
// whole recreation.
type UpstreamAPIError struct {
	Op  string
	Err error
}

func (e *UpstreamAPIError) Error() string {
	return fmt.Sprintf("hosting API %s failed: %v", e.Op, e.Err)
}

func (e *UpstreamAPIError) Unwrap() error {
	return e.Err
}

// ForkProvisioningError indicates fork creation or permission configuration
// failed. Terminal; the caller aborts the whole recreation.
type ForkProvisioningError struct {
	Repo string
	Err  error
}

func (e *ForkProvisioningError) Error() string {
	return fmt.Sprintf("failed to provision fork of %s: %v", e.Repo, e.Err)
}

func (e *ForkProvisioningError) Unwrap() error {
	return e.Err
}
