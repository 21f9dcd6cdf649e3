package supervisor

import "github.com/loykin/pmdeck/internal/history"

// Subscribe returns a channel receiving every engine event. Events are
// dropped for a subscriber whose buffer is full. cancel closes the channel.
func (e *Engine) Subscribe(buf int) (<-chan history.Event, func()) {
	if buf <= 0 {
		buf = 64
	}
	ch := make(chan history.Event, buf)
	e.subMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	e.subMu.Unlock()

	cancel := func() {
		e.subMu.Lock()
		if c, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(c)
		}
		e.subMu.Unlock()
	}
	return ch, cancel
}

func (e *Engine) emit(ev history.Event) {
	e.subMu.Lock()
	for _, ch := range e.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	e.subMu.Unlock()
	if e.hist != nil {
		e.hist.Export(ev)
	}
}
