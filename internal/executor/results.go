package executor

import (
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/restic/kvrecover/internal/errors"
)

// Results collects the outcome of all units of one run. Units record their
// result concurrently; the first failure is determined by unit order, not by
// completion order.
type Results struct {
	order []string
	errs  *xsync.MapOf[string, error]
}

func newResults(units []string) *Results {
	return &Results{
		order: units,
		errs:  xsync.NewMapOf[string, error](),
	}
}

func (r *Results) record(unit string, err error) {
	if err != nil {
		r.errs.Store(unit, err)
	}
}

// Units returns the IDs of all units in the order they were scheduled.
func (r *Results) Units() []string {
	return r.order
}

// Err returns the error of the unit, or nil if it succeeded.
func (r *Results) Err(unit string) error {
	err, _ := r.errs.Load(unit)
	return err
}

// Failed returns the IDs of all failed units in unit order.
func (r *Results) Failed() []string {
	var failed []string
	for _, unit := range r.order {
		if _, ok := r.errs.Load(unit); ok {
			failed = append(failed, unit)
		}
	}
	return failed
}

// First returns the error of the first failed unit in unit order.
func (r *Results) First() error {
	for _, unit := range r.order {
		if err, ok := r.errs.Load(unit); ok {
			return errors.Wrapf(err, "%v", unit)
		}
	}
	return nil
}
