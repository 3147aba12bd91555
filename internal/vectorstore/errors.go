package vectorstore

import (
	"errors"
	"fmt"

	"github.com/Leozerbib/gile-back-sub001/internal/models"
)

// StorageError wraps a vector store failure with the operation that hit it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("vector store %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NotFoundError reports that no embedding document exists for a source
// triple. It is distinct from StorageError so callers can tell "nothing
// indexed yet" apart from infrastructure failure.
type NotFoundError struct {
	Ref models.EntityRef
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("embedding document %s not found", e.Ref.Key())
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
