package status

import "time"

// Event describes one committed transition.
type Event struct {
	Unit   string    `json:"unit"`
	From   State     `json:"from"`
	To     State     `json:"to"`
	At     time.Time `json:"time"`
	Reason string    `json:"reason,omitempty"`
	Error  string    `json:"error,omitempty"`
	RunID  string    `json:"run_id,omitempty"`
}

// Subscribe returns a channel receiving every committed transition and a
// function ending the subscription. Delivery never blocks the writer: when
// the buffer is full the event is dropped for that subscriber.
func (s *Store) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	cancel := func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if c, ok := s.subs[id]; ok {
			close(c)
			delete(s.subs, id)
		}
	}
	return ch, cancel
}

func (s *Store) publish(ev Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			s.logger.Debug("subscriber buffer full, dropping event", "subscriber", id, "unit", ev.Unit)
		}
	}
}
