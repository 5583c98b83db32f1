package pc

// slot holds the callbacks of the single in-flight operation of one kind.
// All access is serialized by PeerConnection.mu.
type slot[S any] struct {
	gen     uint64
	armed   bool
	success S
	failure func(error)
}

// arm replaces whatever the slot held without invoking it and returns the
// generation the engine call must report back with.
func (s *slot[S]) arm(success S, failure func(error)) uint64 {
	s.gen++
	s.armed = true
	s.success = success
	s.failure = failure
	return s.gen
}

// take empties the slot and returns its callbacks if gen is still current.
func (s *slot[S]) take(gen uint64) (success S, failure func(error), ok bool) {
	if !s.armed || s.gen != gen {
		return success, nil, false
	}
	success, failure = s.success, s.failure
	s.clear()
	return success, failure, true
}

func (s *slot[S]) clear() {
	var zero S
	s.armed = false
	s.success = zero
	s.failure = nil
}
