package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrTemporary        = errors.New("temporary failure")
	ErrConfiguration    = errors.New("configuration error")
	ErrCorpusNotFound   = errors.New("corpus not found")
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrRetrievalInit marks a retriever tier that could not be built.
	ErrRetrievalInit = errors.New("retrieval initialization failed")
	// ErrRetrievalQuery marks a per-request retrieval failure; callers degrade to no chunks.
	ErrRetrievalQuery = errors.New("retrieval query failed")
	// ErrAuthorization is an upstream 401/403. The credential must be invalidated.
	ErrAuthorization = errors.New("upstream authorization failure")
	ErrGeneration    = errors.New("generation failed")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// CredentialRejectedError is an upstream authorization failure tagged with the
// credential generation the call was made with. Generation 0 means unknown.
type CredentialRejectedError struct {
	Generation uint64
	Err        error
}

func (e *CredentialRejectedError) Error() string { return e.Err.Error() }

func (e *CredentialRejectedError) Unwrap() error { return e.Err }

// RejectedGeneration returns the credential generation carried by err, or 0.
func RejectedGeneration(err error) uint64 {
	var rejected *CredentialRejectedError
	if errors.As(err, &rejected) {
		return rejected.Generation
	}
	return 0
}
