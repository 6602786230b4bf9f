package net

// Every (channel, mode) pair is an independent stream with its own message
// id sequence.
type streamKey struct {
	channel uint8
	mode    TransmissionMode
}

type reassemblyKey struct {
	streamKey
	id uint32
}

type admission int

const (
	admitAccept admission = iota
	// admitDuplicate datagrams were already delivered or are superseded;
	// reliable ones are acknowledged again.
	admitDuplicate
	// admitDrop datagrams are discarded without acknowledgement.
	admitDrop
)

// receiveStream decides which messages of a stream are delivered, and in
// what order.
type receiveStream struct {
	mode TransmissionMode
	seen dedupWindow

	// Sequenced.
	delivered bool
	newest    uint32

	// Ordered.
	next uint32
	held map[uint32]*Message
}

func newReceiveStream(mode TransmissionMode) *receiveStream {
	s := &receiveStream{mode: mode}
	if mode.IsOrdered() {
		s.held = make(map[uint32]*Message)
	}
	return s
}

// Admit classifies a datagram of message id before it is reassembled.
func (s *receiveStream) Admit(id uint32) admission {
	if s.seen.Seen(id) {
		return admitDuplicate
	}
	switch {
	case s.mode.IsOrdered():
		if !seqNewer(id, s.next) && id != s.next {
			return admitDuplicate
		}
		if id-s.next >= dedupSize {
			return admitDrop
		}
	case s.mode.IsSequenced():
		if s.delivered && !seqNewer(id, s.newest) {
			// Stale. A reliable sender still needs the ack.
			if s.mode.IsReliable() {
				return admitDuplicate
			}
			return admitDrop
		}
	}
	return admitAccept
}

// Complete records a fully reassembled message and returns the messages
// now ready for delivery, in delivery order.
func (s *receiveStream) Complete(id uint32, m *Message) []*Message {
	if s.seen.Seen(id) {
		m.Close()
		return nil
	}
	s.seen.Mark(id)

	switch {
	case s.mode.IsOrdered():
		if id != s.next {
			s.held[id] = m
			return nil
		}
		ready := []*Message{m}
		s.next++
		for {
			h, ok := s.held[s.next]
			if !ok {
				break
			}
			delete(s.held, s.next)
			ready = append(ready, h)
			s.next++
		}
		return ready
	case s.mode.IsSequenced():
		if !s.delivered || seqNewer(id, s.newest) {
			s.delivered = true
			s.newest = id
			return []*Message{m}
		}
		m.Close()
		return nil
	default:
		return []*Message{m}
	}
}

// Held is the number of ordered messages waiting for an earlier id.
func (s *receiveStream) Held() int { return len(s.held) }

// Close releases held messages.
func (s *receiveStream) Close() {
	for id, m := range s.held {
		m.Close()
		delete(s.held, id)
	}
}
