package carpool

import "errors"

var (
	ErrAlreadyInGroup  = errors.New("already a member of an active group")
	ErrGroupFull       = errors.New("group is full")
	ErrNotAMember      = errors.New("not a member of the group")
	ErrNotHost         = errors.New("only the host can complete the group")
	ErrHostCannotLeave = errors.New("the host cannot leave; complete the group instead")
	ErrGroupNotFound   = errors.New("group not found")
	ErrGroupCompleted  = errors.New("group is already completed")
	ErrNotSignedIn     = errors.New("not signed in")
	ErrBusy            = errors.New("another request for this group is in progress")
)

var preconditions = []error{
	ErrAlreadyInGroup, ErrGroupFull, ErrNotAMember, ErrNotHost,
	ErrHostCannotLeave, ErrGroupNotFound, ErrGroupCompleted, ErrBusy,
}

// IsPrecondition reports whether err is a refused operation rather than a
// backend failure. Callers surface these as a disabled action, not an alert.
func IsPrecondition(err error) bool {
	for _, p := range preconditions {
		if errors.Is(err, p) {
			return true
		}
	}
	return false
}
