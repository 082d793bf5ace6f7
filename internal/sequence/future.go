package sequence

// State is the settlement state of a Future.
type State int

const (
	Pending State = iota
	Resolved
	Rejected
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Resolved:
		return "resolved"
	case Rejected:
		return "rejected"
	}
	return "unknown"
}

// Future is a resolve-or-reject-once value with synchronous continuations.
// Handlers attached while pending run, in attach order, inside the Resolve or
// Reject call; handlers attached after settlement run immediately. There is
// no deferred queue and no locking: a Future belongs to the tick goroutine.
type Future struct {
	state      State
	reason     error
	onResolved []func()
	onRejected []func(error)
}

func NewFuture() *Future {
	return &Future{}
}

func (f *Future) State() State { return f.state }

// Reason returns the rejection reason, or nil unless the future is Rejected.
func (f *Future) Reason() error { return f.reason }

// Resolve settles the future successfully. It reports false and does
// nothing if the future was already settled.
func (f *Future) Resolve() bool {
	if f.state != Pending {
		return false
	}
	f.state = Resolved
	handlers := f.onResolved
	f.onResolved, f.onRejected = nil, nil
	for _, h := range handlers {
		h()
	}
	return true
}

// Reject settles the future with a reason. It reports false and does nothing
// if the future was already settled.
func (f *Future) Reject(reason error) bool {
	if f.state != Pending {
		return false
	}
	if reason == nil {
		reason = ErrCancelled
	}
	f.state = Rejected
	f.reason = reason
	handlers := f.onRejected
	f.onResolved, f.onRejected = nil, nil
	for _, h := range handlers {
		h(reason)
	}
	return true
}

// Then attaches continuations. Either handler may be nil.
func (f *Future) Then(onResolved func(), onRejected func(error)) *Future {
	switch f.state {
	case Resolved:
		if onResolved != nil {
			onResolved()
		}
	case Rejected:
		if onRejected != nil {
			onRejected(f.reason)
		}
	default:
		if onResolved != nil {
			f.onResolved = append(f.onResolved, onResolved)
		}
		if onRejected != nil {
			f.onRejected = append(f.onRejected, onRejected)
		}
	}
	return f
}

// AndThen runs fn once the future resolves.
func (f *Future) AndThen(fn func()) *Future {
	return f.Then(fn, nil)
}

// OrElse runs fn once the future rejects.
func (f *Future) OrElse(fn func(error)) *Future {
	return f.Then(nil, fn)
}
