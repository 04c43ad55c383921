package realtime

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func countUnread(list []Notification) int {
	n := 0
	for _, entry := range list {
		if !entry.Read {
			n++
		}
	}
	return n
}

func TestAddPrependsUnread(t *testing.T) {
	store := NewNotificationStore()

	require.True(t, store.Add(NotificationInput{Type: NotifyProgress, Title: "first"}, ""))
	require.True(t, store.Add(NotificationInput{Type: NotifyIssue, Title: "second"}, ""))

	list := store.List()
	require.Len(t, list, 2)
	require.Equal(t, "second", list[0].Title)
	require.Equal(t, "first", list[1].Title)
	require.Equal(t, 2, store.UnreadCount())
}

func TestDedupKeySuppressesWithinWindow(t *testing.T) {
	clock := newFakeClock()
	store := NewNotificationStoreWithClock(clock.Now)

	require.True(t, store.Add(NotificationInput{Title: "progress"}, "track:item1:80"))
	require.False(t, store.Add(NotificationInput{Title: "progress"}, "track:item1:80"))
	require.Len(t, store.List(), 1)

	clock.Advance(6 * time.Second)
	require.True(t, store.Add(NotificationInput{Title: "progress"}, "track:item1:80"))
	require.Len(t, store.List(), 2)
}

func TestBoundedLogKeepsNewestFifty(t *testing.T) {
	store := NewNotificationStore()

	for i := 0; i < 60; i++ {
		store.Add(NotificationInput{Title: fmt.Sprintf("n%d", i)}, fmt.Sprintf("key-%d", i))
	}

	list := store.List()
	require.Len(t, list, MaxNotifications)
	// Newest first: n59 down to n10
	require.Equal(t, "n59", list[0].Title)
	require.Equal(t, "n10", list[len(list)-1].Title)
	require.Equal(t, MaxNotifications, store.UnreadCount())
}

func TestMarkReadIsIdempotent(t *testing.T) {
	store := NewNotificationStore()
	store.Add(NotificationInput{Title: "a"}, "")
	store.Add(NotificationInput{Title: "b"}, "")

	id := store.List()[0].ID
	store.MarkRead(id)
	require.Equal(t, 1, store.UnreadCount())
	store.MarkRead(id)
	require.Equal(t, 1, store.UnreadCount())
	store.MarkRead("no-such-id")
	require.Equal(t, 1, store.UnreadCount())
}

func TestUnreadCountInvariantUnderInterleaving(t *testing.T) {
	clock := newFakeClock()
	store := NewNotificationStoreWithClock(clock.Now)

	check := func() {
		require.Equal(t, countUnread(store.List()), store.UnreadCount())
	}

	for i := 0; i < 70; i++ {
		store.Add(NotificationInput{Title: fmt.Sprintf("n%d", i)}, fmt.Sprintf("k%d", i%40))
		check()
		if i%3 == 0 && len(store.List()) > 0 {
			store.MarkRead(store.List()[0].ID)
			check()
		}
		if i%25 == 0 {
			store.MarkAllRead()
			check()
		}
		clock.Advance(300 * time.Millisecond)
	}

	store.MarkAllRead()
	require.Equal(t, 0, store.UnreadCount())
	check()

	store.Clear()
	require.Empty(t, store.List())
	require.Equal(t, 0, store.UnreadCount())
}
