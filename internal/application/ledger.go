package application

import (
	"sync"

	"github.com/bnema/tasktracker-cli/internal/domain"
)

const DefaultLedgerCapacity = 50

// Ledger is the in-memory, session-scoped notification view: newest first,
// deduplicated by notification id, with an unread counter that tracks arrivals
// independently of how many items are retained.
//
// The dedupe window is the whole session: every delivered id is remembered
// until Reset, including ids already evicted from items by the capacity cap.
// The seen set therefore grows with the number of distinct notifications a
// session receives.
type Ledger struct {
	mu       sync.Mutex
	capacity int
	items    []domain.Notification
	seen     map[domain.NotificationID]struct{}
	unread   int
}

func NewLedger(capacity int) *Ledger {
	if capacity <= 0 {
		capacity = DefaultLedgerCapacity
	}

	return &Ledger{
		capacity: capacity,
		seen:     map[domain.NotificationID]struct{}{},
	}
}

// Ingest prepends n unless its id was already delivered. It reports whether
// the notification was added.
func (l *Ledger) Ingest(n domain.Notification) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.markSeen(n.ID) {
		return false
	}
	l.prepend([]domain.Notification{n})
	l.unread++

	return true
}

// IngestBatch applies the dedupe rule to every item, prepends the new ones as
// a block in batch order, then takes reportedCount as the unread count. A
// replay reporting zero missed notifications is ignored whole, even when it
// carries items: nothing is prepended or marked seen and unread is kept.
func (l *Ledger) IngestBatch(items []domain.Notification, reportedCount int) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if reportedCount <= 0 {
		return 0
	}

	fresh := make([]domain.Notification, 0, len(items))
	for _, n := range items {
		if !l.markSeen(n.ID) {
			continue
		}
		fresh = append(fresh, n)
	}
	l.prepend(fresh)
	l.unread = reportedCount

	return len(fresh)
}

// Apply routes a channel event into the ledger.
func (l *Ledger) Apply(ev domain.Event) {
	switch ev.Kind {
	case domain.EventHistoryReplay:
		if ev.Replay != nil {
			l.IngestBatch(ev.Replay.Notifications, ev.Replay.Count)
		}
	case domain.EventTaskCreated, domain.EventTaskUpdated, domain.EventCommentCreated:
		if ev.Notification != nil {
			l.Ingest(*ev.Notification)
		}
	}
}

// Clear empties the view and zeroes the counter. Ids already delivered stay
// remembered, so a later replay cannot resurrect them.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.items = nil
	l.unread = 0
}

// Reset forgets everything, including delivered ids. Used on logout.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.items = nil
	l.unread = 0
	l.seen = map[domain.NotificationID]struct{}{}
}

func (l *Ledger) Notifications() []domain.Notification {
	return l.Recent(0)
}

// Recent returns up to n newest notifications; n <= 0 returns all retained.
func (l *Ledger) Recent(n int) []domain.Notification {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || n > len(l.items) {
		n = len(l.items)
	}
	out := make([]domain.Notification, n)
	copy(out, l.items[:n])

	return out
}

func (l *Ledger) UnreadCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.unread
}

func (l *Ledger) markSeen(id domain.NotificationID) bool {
	if id == "" {
		return false
	}
	if _, ok := l.seen[id]; ok {
		return false
	}
	l.seen[id] = struct{}{}

	return true
}

func (l *Ledger) prepend(fresh []domain.Notification) {
	if len(fresh) == 0 {
		return
	}
	merged := make([]domain.Notification, 0, len(fresh)+len(l.items))
	merged = append(merged, fresh...)
	merged = append(merged, l.items...)
	if len(merged) > l.capacity {
		merged = merged[:l.capacity]
	}
	l.items = merged
}
