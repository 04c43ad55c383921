package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Notification type tags
const (
	NotifyProgress = "progress"
	NotifyIssue    = "issue"
	NotifyDelivery = "delivery"
	NotifySystem   = "system"
)

// MaxNotifications bounds the feed; the oldest entry is evicted on overflow.
const MaxNotifications = 50

// NotificationDedupWindow suppresses notifications added with the same
// dedup key within this span.
const NotificationDedupWindow = 5 * time.Second

// Notification is one entry of the user-facing activity feed
type Notification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	ItemName  string    `json:"item_name,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
}

// NotificationInput is the caller-supplied content of a new notification
type NotificationInput struct {
	Type     string
	Title    string
	Message  string
	ItemName string
}

// NotificationStore holds a bounded, newest-first log of notifications with
// read state and its own dedup guard, independent of the entity store.
type NotificationStore struct {
	now func() time.Time

	mu     sync.RWMutex
	log    []Notification
	unread int
	guard  *Guard
}

// NewNotificationStore creates an empty notification store
func NewNotificationStore() *NotificationStore {
	return NewNotificationStoreWithClock(time.Now)
}

// NewNotificationStoreWithClock creates a store with an injectable clock
func NewNotificationStoreWithClock(now func() time.Time) *NotificationStore {
	return &NotificationStore{
		now:   now,
		guard: NewGuardWithClock(NotificationDedupWindow, now),
	}
}

// Add prepends a fresh unread notification. If dedupKey is non-empty and an
// identical key was seen within the dedup window the call is a no-op.
// Returns whether a notification was actually added.
func (n *NotificationStore) Add(input NotificationInput, dedupKey string) bool {
	if dedupKey != "" && !n.guard.MarkProcessed(dedupKey) {
		return false
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	entry := Notification{
		ID:        uuid.New().String(),
		Type:      input.Type,
		Title:     input.Title,
		Message:   input.Message,
		ItemName:  input.ItemName,
		Timestamp: n.now(),
	}

	n.log = append([]Notification{entry}, n.log...)
	n.unread++

	for len(n.log) > MaxNotifications {
		evicted := n.log[len(n.log)-1]
		if !evicted.Read {
			n.unread--
		}
		n.log = n.log[:len(n.log)-1]
	}

	return true
}

// MarkRead flips one notification to read. Idempotent: marking an already
// read entry changes nothing.
func (n *NotificationStore) MarkRead(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for i := range n.log {
		if n.log[i].ID == id {
			if !n.log[i].Read {
				n.log[i].Read = true
				n.unread--
			}
			return
		}
	}
}

// MarkAllRead flips every notification to read
func (n *NotificationStore) MarkAllRead() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for i := range n.log {
		n.log[i].Read = true
	}
	n.unread = 0
}

// Clear empties the feed
func (n *NotificationStore) Clear() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.log = nil
	n.unread = 0
}

// List returns a copy of the feed, newest first.
func (n *NotificationStore) List() []Notification {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]Notification, len(n.log))
	copy(out, n.log)
	return out
}

// UnreadCount returns the number of unread notifications.
func (n *NotificationStore) UnreadCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.unread
}
