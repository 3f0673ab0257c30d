package workload

import (
	"errors"
	"fmt"
)

// ErrNoSlot is returned by Admit when every batch slot is taken.
var ErrNoSlot = errors.New("no free batch slot")

// outOfPagesError signals that the free list cannot cover a growth step.
// Unlike vmm errors it is recoverable: the caller can stop admitting work.
type outOfPagesError struct{ need, free int }

func (e outOfPagesError) Error() string {
	return fmt.Sprintf("out of pages: need %d, free %d", e.need, e.free)
}

// IsOutOfPages reports whether err indicates an exhausted free list.
func IsOutOfPages(err error) bool {
	var e outOfPagesError
	return errors.As(err, &e)
}

// contextTooLongError signals a sequence that does not fit its slot.
type contextTooLongError struct {
	slot   int
	tokens int
}

func (e contextTooLongError) Error() string {
	return fmt.Sprintf("slot %d: %d tokens exceed the slot's virtual range", e.slot, e.tokens)
}

// IsContextTooLong reports whether err indicates a sequence longer than its slot.
func IsContextTooLong(err error) bool {
	var e contextTooLongError
	return errors.As(err, &e)
}
