package conversation

import (
	"context"
	"sync"
)

// lanes serializes work per key. Entries are reference counted and removed
// once no caller holds or waits on them.
type lanes struct {
	mu    sync.Mutex
	lanes map[string]*lane
}

type lane struct {
	slot chan struct{}
	refs int
}

func newLanes() *lanes {
	return &lanes{lanes: make(map[string]*lane)}
}

// acquire blocks until key is free or ctx is done. The returned func
// releases the lane.
func (l *lanes) acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	ln, ok := l.lanes[key]
	if !ok {
		ln = &lane{slot: make(chan struct{}, 1)}
		l.lanes[key] = ln
	}
	ln.refs++
	l.mu.Unlock()

	select {
	case ln.slot <- struct{}{}:
		return func() {
			<-ln.slot
			l.unref(key, ln)
		}, nil
	case <-ctx.Done():
		l.unref(key, ln)
		return nil, ctx.Err()
	}
}

func (l *lanes) unref(key string, ln *lane) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ln.refs--
	if ln.refs == 0 {
		delete(l.lanes, key)
	}
}

func (l *lanes) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lanes)
}
