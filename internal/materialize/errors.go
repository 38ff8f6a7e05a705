package materialize

import (
	"errors"
	"fmt"

	"github.com/roach88/chartgen/internal/ir"
)

// Fan-out operations that can fail.
const (
	OpCopy    = "copy"
	OpLink    = "link"
	OpReplace = "replace"
	OpRemove  = "remove"
)

// FanoutError is one failed filesystem operation during fan-out.
// Requester is zero for artifact cleanup failures.
type FanoutError struct {
	Op        string
	Kind      ir.Kind
	Digest    ir.Digest
	Requester ir.Requester
	Path      string
	Err       error
}

func (e *FanoutError) Error() string {
	if e.Requester.RecordID != "" {
		return fmt.Sprintf("%s %s for %s (%s/%s): %v", e.Op, e.Path, e.Requester, e.Kind, e.Digest.Short(), e.Err)
	}
	return fmt.Sprintf("%s %s (%s/%s): %v", e.Op, e.Path, e.Kind, e.Digest.Short(), e.Err)
}

func (e *FanoutError) Unwrap() error {
	return e.Err
}

// IsFanoutError reports whether err is or wraps a *FanoutError.
func IsFanoutError(err error) bool {
	var fe *FanoutError
	return errors.As(err, &fe)
}
