package memory

import (
	"context"
	"time"

	"samplecore/pkg/domain"
)

// watcher is one live-view subscriber. Delivery is coalescing: the channel
// holds at most one pending snapshot and a newer one replaces it, so a slow
// reader never blocks a writer and always wakes to the latest committed
// state.
type watcher struct {
	labs   map[string]struct{} // nil means all offices
	ch     chan domain.SampleSetSnapshot
	closed bool
}

// Subscribe registers a live-view reader over the given lab set. The first
// snapshot is delivered immediately; afterwards one arrives after every
// commit that touches the set. The channel closes when cancel is called or
// the context ends.
func (s *Store) Subscribe(ctx context.Context, labIDs []string) (<-chan domain.SampleSetSnapshot, domain.CancelFunc) {
	w := &watcher{ch: make(chan domain.SampleSetSnapshot, 1)}
	if len(labIDs) > 0 {
		w.labs = make(map[string]struct{}, len(labIDs))
		for _, id := range labIDs {
			w.labs[id] = struct{}{}
		}
	}

	s.watchMu.Lock()
	s.watcherSeq++
	id := s.watcherSeq
	s.watchers[id] = w
	w.push(s.snapshotFor(w))
	s.watchMu.Unlock()

	var cancel domain.CancelFunc = func() { s.detach(id) }
	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}
	return w.ch, cancel
}

func (s *Store) detach(id int) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	w, ok := s.watchers[id]
	if !ok {
		return
	}
	delete(s.watchers, id)
	w.closed = true
	close(w.ch)
}

// notify fans the committed state out to every watcher whose lab set
// intersects the labs touched by the transaction.
func (s *Store) notify(labs map[string]struct{}) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for _, w := range s.watchers {
		if !w.wants(labs) {
			continue
		}
		w.push(s.snapshotFor(w))
	}
}

func (w *watcher) wants(labs map[string]struct{}) bool {
	if w.labs == nil {
		return true
	}
	for lab := range labs {
		if _, ok := w.labs[lab]; ok {
			return true
		}
	}
	return false
}

// push delivers a snapshot, replacing any undelivered predecessor.
func (w *watcher) push(snap domain.SampleSetSnapshot) {
	if w.closed {
		return
	}
	for {
		select {
		case w.ch <- snap:
			return
		default:
			select {
			case <-w.ch:
			default:
			}
		}
	}
}

// snapshotFor builds the committed, status-grouped view for one watcher.
// Samples are only ever read from committed state, so a subscriber can never
// observe a history entry without its status update.
func (s *Store) snapshotFor(w *watcher) domain.SampleSetSnapshot {
	var labIDs []string
	for lab := range w.labs {
		labIDs = append(labIDs, lab)
	}
	samples := s.ListSamplesByLabs(labIDs)
	byStatus := make(map[domain.SampleStatus][]Sample)
	for _, sample := range samples {
		byStatus[sample.Status] = append(byStatus[sample.Status], sample)
	}
	return domain.SampleSetSnapshot{ByStatus: byStatus, At: time.Now().UTC()}
}
