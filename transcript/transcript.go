package transcript

import "slices"

// Transcript is an ordered list of messages. Every method returns a new
// slice and leaves the receiver and its messages untouched.
type Transcript []Message

// Append returns t with msgs added at the end.
func (t Transcript) Append(msgs ...Message) Transcript {
	out := make(Transcript, 0, len(t)+len(msgs))
	out = append(out, t...)
	for _, m := range msgs {
		out = append(out, m.Clone())
	}
	return out
}

// IndexOf returns the index of the message with the given id, or -1.
func (t Transcript) IndexOf(id string) int {
	return slices.IndexFunc(t, func(m Message) bool { return m.ID == id })
}

// Replace returns t with the message at i swapped for a copy of m.
func (t Transcript) Replace(i int, m Message) Transcript {
	out := slices.Clone(t)
	out[i] = m.Clone()
	return out
}

// Remove returns t without the message at i.
func (t Transcript) Remove(i int) Transcript {
	out := make(Transcript, 0, len(t)-1)
	out = append(out, t[:i]...)
	return append(out, t[i+1:]...)
}

// Update applies fn to a copy of the message with the given id and installs
// the copy at the same position. Unknown ids return t unchanged.
func (t Transcript) Update(id string, fn func(m *Message)) Transcript {
	i := t.IndexOf(id)
	if i < 0 {
		return t
	}
	m := t[i].Clone()
	fn(&m)
	return t.Replace(i, m)
}

// Streaming returns the in-flight answer, if any.
func (t Transcript) Streaming() (Message, bool) {
	for _, m := range t {
		if m.IsStreaming {
			return m, true
		}
	}
	return Message{}, false
}

// LastAnswer returns the most recent finished answer.
func (t Transcript) LastAnswer() (Message, bool) {
	for i := len(t) - 1; i >= 0; i-- {
		if t[i].IsAnswer && !t[i].IsStreaming {
			return t[i], true
		}
	}
	return Message{}, false
}
