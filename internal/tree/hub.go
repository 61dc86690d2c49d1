package tree

// hub routes changed paths to the watchers whose paths overlap them.
// run owns the watcher set; everything else talks to it through channels.
type hub struct {
	watchers map[*watcher]bool

	register   chan *watcher
	unregister chan *watcher
	broadcast  chan string
	done       chan struct{}
}

func newHub() *hub {
	return &hub{
		watchers:   make(map[*watcher]bool),
		register:   make(chan *watcher),
		unregister: make(chan *watcher),
		broadcast:  make(chan string),
		done:       make(chan struct{}),
	}
}

func (h *hub) run() {
	for {
		select {
		case w := <-h.register:
			h.watchers[w] = true

		case w := <-h.unregister:
			delete(h.watchers, w)

		case path := <-h.broadcast:
			for w := range h.watchers {
				if overlaps(w.path, path) {
					w.poke()
				}
			}

		case <-h.done:
			return
		}
	}
}

// forward feeds changes from a backend into the hub until the stream ends.
func (h *hub) forward(changes <-chan string) {
	for {
		select {
		case path, ok := <-changes:
			if !ok {
				return
			}
			select {
			case h.broadcast <- path:
			case <-h.done:
				return
			}
		case <-h.done:
			return
		}
	}
}

func (h *hub) add(w *watcher) bool {
	select {
	case h.register <- w:
		return true
	case <-h.done:
		return false
	}
}

func (h *hub) remove(w *watcher) {
	select {
	case h.unregister <- w:
	case <-h.done:
	}
}

func (h *hub) stop() {
	close(h.done)
}

type watcher struct {
	path   string
	dirty  chan struct{}
	events chan Event
}

func newWatcher(path string) *watcher {
	return &watcher{
		path:   path,
		dirty:  make(chan struct{}, 1),
		events: make(chan Event, 1),
	}
}

// poke marks the watcher for a re-read. Pokes coalesce.
func (w *watcher) poke() {
	select {
	case w.dirty <- struct{}{}:
	default:
	}
}

// deliver replaces any undelivered event with ev. Only the watch loop calls it.
func (w *watcher) deliver(ev Event) {
	select {
	case <-w.events:
	default:
	}
	w.events <- ev
}
