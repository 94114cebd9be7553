package reconcile

import (
	"errors"
	"fmt"

	"github.com/wondertwin-ai/apiai-git/internal/client"
	"github.com/wondertwin-ai/apiai-git/internal/resource"
)

// Op is a remote write issued during reconciliation.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Failure records one rejected or unreachable remote write.
type Failure struct {
	Op         Op
	ID         string
	Name       string
	StatusCode int // 0 when the request never got a response
	Err        error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s %s (%s): %v", f.Op, f.ID, f.Name, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// Summary reports what a reconciliation did to one kind.
type Summary struct {
	Kind     resource.Kind
	Plan     resource.Plan
	Created  []string // target ids that were recreated
	Updated  []string
	Deleted  []string
	Failures []Failure
}

// OK reports whether every planned call succeeded.
func (s Summary) OK() bool {
	return len(s.Failures) == 0
}

// Err joins all failures, or returns nil.
func (s Summary) Err() error {
	if s.OK() {
		return nil
	}
	errs := make([]error, len(s.Failures))
	for i, f := range s.Failures {
		errs[i] = f
	}
	return fmt.Errorf("%s: %d of %d calls failed: %w", s.Kind, len(s.Failures), s.Plan.Calls(), errors.Join(errs...))
}

// String summarizes the outcome on one line.
func (s Summary) String() string {
	return fmt.Sprintf("%s: %d created, %d updated, %d deleted, %d failed",
		s.Kind, len(s.Created), len(s.Updated), len(s.Deleted), len(s.Failures))
}

func (s *Summary) fail(op Op, r resource.Resource, err error) {
	s.Failures = append(s.Failures, Failure{
		Op:         op,
		ID:         r.ID,
		Name:       r.Name(),
		StatusCode: client.StatusCode(err),
		Err:        err,
	})
}
