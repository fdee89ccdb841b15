package trigger

import "errors"

var (
	// ErrThrottled is returned by Engine.Evaluate when called again before
	// the minimum interval has elapsed. No state changes.
	ErrThrottled = errors.New("trigger: evaluation throttled")

	ErrUnknownCondition = errors.New("trigger: unknown condition type")
)
