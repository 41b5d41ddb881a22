package ble

import "sync"

// disconnectListeners holds OnDisconnect callbacks for one connection and
// fires each of them at most once.
type disconnectListeners struct {
	mu    sync.Mutex
	next  int
	cbs   map[int]func()
	fired bool
}

func (l *disconnectListeners) add(cb func()) (cancel func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cbs == nil {
		l.cbs = make(map[int]func())
	}
	id := l.next
	l.next++
	l.cbs[id] = cb
	return func() {
		l.mu.Lock()
		delete(l.cbs, id)
		l.mu.Unlock()
	}
}

func (l *disconnectListeners) fire() {
	l.mu.Lock()
	if l.fired {
		l.mu.Unlock()
		return
	}
	l.fired = true
	cbs := make([]func(), 0, len(l.cbs))
	for _, cb := range l.cbs {
		cbs = append(cbs, cb)
	}
	l.cbs = nil
	l.mu.Unlock()

	for _, cb := range cbs {
		cb()
	}
}

// silence drops every callback without firing it, used on explicit
// disconnect.
func (l *disconnectListeners) silence() {
	l.mu.Lock()
	l.fired = true
	l.cbs = nil
	l.mu.Unlock()
}
