package domain

import (
	"errors"
	"fmt"
)

// Domain errors. Callers match them with errors.Is.
var (
	// ErrConfiguration indicates a component is missing required configuration
	// (chunk parameters, generation service credentials). Not retried.
	ErrConfiguration = errors.New("configuration error")

	// ErrMalformedCompletion indicates the generation service returned output
	// that is not the expected JSON object. Recovered into a refusal.
	ErrMalformedCompletion = errors.New("malformed completion")

	// ErrInvalidInput indicates malformed or out-of-range caller input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound indicates a requested document does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnsupportedFormat indicates a file type the loader cannot parse.
	ErrUnsupportedFormat = errors.New("unsupported format")
)

// UpstreamError is a transport, auth or rate-limit failure from an external
// service (similarity index, embeddings, generation). It is propagated as-is.
type UpstreamError struct {
	Service string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Upstream wraps err as an UpstreamError for service. A nil err stays nil.
func Upstream(service string, err error) error {
	if err == nil {
		return nil
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return err
	}
	return &UpstreamError{Service: service, Err: err}
}
