package crawler

import "sync"

// frontier is the crawl's work queue. It remembers every URL ever admitted so
// a duplicate is rejected no matter when it arrives, and it counts outstanding
// work so the engine can tell when the crawl has drained: a URL is outstanding
// from the moment it is admitted until the worker that popped it calls Done.
type frontier struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	drained  *sync.Cond

	items   []string
	seen    map[string]struct{}
	pending int
	closed  bool
}

func newFrontier() *frontier {
	f := &frontier{seen: make(map[string]struct{})}
	f.notEmpty = sync.NewCond(&f.mu)
	f.drained = sync.NewCond(&f.mu)
	return f
}

// PushIfNew admits url unless it is empty, already seen, or the frontier is
// closed. The seen set is never pruned, so a URL is admitted at most once over
// the frontier's lifetime even after it has been popped and processed.
func (f *frontier) PushIfNew(url string) bool {
	if url == "" {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	if _, dup := f.seen[url]; dup {
		return false
	}
	f.seen[url] = struct{}{}
	f.items = append(f.items, url)
	f.pending++
	f.notEmpty.Signal()
	return true
}

// Pop blocks until a URL is queued or the frontier is closed. Once closed it
// reports false immediately, even if queued items remain.
func (f *frontier) Pop() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.items) == 0 && !f.closed {
		f.notEmpty.Wait()
	}
	if f.closed {
		return "", false
	}
	url := f.items[0]
	f.items = f.items[1:]
	return url, true
}

// Done marks one popped URL as fully processed.
func (f *frontier) Done() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending > 0 {
		f.pending--
	}
	if f.pending == 0 {
		f.drained.Broadcast()
	}
}

// Flush discards every queued URL and reports how many were dropped. URLs
// already popped stay outstanding until their workers call Done.
func (f *frontier) Flush() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.items)
	if n == 0 {
		return 0
	}
	f.items = nil
	f.pending -= n
	if f.pending <= 0 {
		f.pending = 0
		f.drained.Broadcast()
	}
	return n
}

// Wait blocks until no URL is queued or in flight, or the frontier is closed.
func (f *frontier) Wait() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.pending > 0 && !f.closed {
		f.drained.Wait()
	}
}

// Close rejects all future pushes and wakes every blocked Pop and Wait.
func (f *frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.notEmpty.Broadcast()
	f.drained.Broadcast()
}

// Len reports how many URLs are queued but not yet popped.
func (f *frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}
