package engine

import (
	"errors"
	"fmt"
	"sync"
)

// DefaultMaxSteps is the execution quota a cascade gets unless the host
// overrides it with WithMaxSteps.
const DefaultMaxSteps = 1000

// stepQuota counts executions spawned within one cascade and enforces a
// maximum. Mutually recursive feature sets (an observer storing into the
// repository it observes, handlers announcing each other's events) would
// otherwise spawn handlers forever; the quota guarantees the cascade
// terminates.
type stepQuota struct {
	mu    sync.Mutex
	limit int
	used  int
}

func newStepQuota(limit int) *stepQuota {
	return &stepQuota{limit: limit}
}

// take claims one execution slot. Once the quota is exhausted every further
// take fails, so a runaway cascade stops spawning and drains.
func (q *stepQuota) take() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.used++
	if q.used > q.limit {
		return &StepsExceededError{Steps: q.used, Limit: q.limit}
	}
	return nil
}

// StepsExceededError reports a cascade that hit its execution quota.
type StepsExceededError struct {
	Steps int
	Limit int
}

func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("cascade exceeded max steps quota: %d steps > %d limit", e.Steps, e.Limit)
}

// IsStepsExceeded reports whether err is a StepsExceededError, unwrapping
// as needed.
func IsStepsExceeded(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}
