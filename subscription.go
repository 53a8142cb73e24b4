package goAuthClient

// Subscription delivers session snapshots in transition order. When the
// buffer is full the oldest pending snapshot is dropped, so the latest
// state is always delivered.
type Subscription struct {
	// C receives snapshots. It is closed by Close or Manager.Close.
	C <-chan Snapshot

	ch chan Snapshot
	m  *Manager
}

// Subscribe registers a subscription with the given buffer size (minimum
// 1). The current snapshot is delivered immediately.
func (m *Manager) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Snapshot, buffer)
	sub := &Subscription{C: ch, ch: ch, m: m}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		close(ch)
		return sub
	}
	m.subs[sub] = struct{}{}
	offer(ch, m.snapshotLocked())
	return sub
}

// Close stops delivery and closes C. It is safe to call more than once.
func (s *Subscription) Close() {
	if s == nil || s.m == nil {
		return
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.subs[s]; !ok {
		return
	}
	delete(s.m.subs, s)
	close(s.ch)
}

func (m *Manager) publishLocked() {
	if len(m.subs) == 0 {
		return
	}
	snap := m.snapshotLocked()
	for sub := range m.subs {
		offer(sub.ch, snap)
	}
}

// offer never blocks. Only the manager sends, under its mutex, so after
// dropping one pending snapshot the send succeeds.
func offer(ch chan Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}
