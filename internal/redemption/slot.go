package redemption

// Slot holds the single redemption of an in-progress checkout. The zero value is empty.
type Slot struct {
	Current *Request `json:"current,omitempty"`
}

// Stage records a freshly previewed request. Any request already staged or active is
// implicitly cancelled and replaced.
func (s *Slot) Stage(req Request) error {
	if req.State != StatePreviewed {
		return ErrInvalidTransition
	}
	s.Cancel()
	r := req
	s.Current = &r
	return nil
}

// Activate attaches the staged request as the checkout's redemption candidate.
func (s *Slot) Activate() (Request, error) {
	if s.Current == nil {
		return Request{}, ErrInvalidTransition
	}
	switch s.Current.State {
	case StateActive:
		return *s.Current, nil
	case StatePreviewed:
		s.Current.State = StateActive
		return *s.Current, nil
	default:
		return Request{}, ErrInvalidTransition
	}
}

// Cancel drops a staged or active request. It is a no-op otherwise.
func (s *Slot) Cancel() {
	if s.Current == nil {
		return
	}
	if s.Current.State == StatePreviewed || s.Current.State == StateActive {
		s.Current.State = StateCancelled
	}
	s.Current = nil
}

// Active returns the active request, if any.
func (s *Slot) Active() (Request, bool) {
	if s.Current == nil || s.Current.State != StateActive {
		return Request{}, false
	}
	return *s.Current, true
}

// Consume marks the active request as spent. Only a successful commit calls this.
func (s *Slot) Consume() (Request, error) {
	if s.Current == nil || s.Current.State != StateActive {
		return Request{}, ErrInvalidTransition
	}
	s.Current.State = StateConsumed
	consumed := *s.Current
	s.Current = nil
	return consumed, nil
}
