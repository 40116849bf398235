package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/parentrak/parentrak-backend/internal/domain"
)

func TestMarkNotificationRead_OnlyThatRow_UnreadDropsByOne(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	child := seedChild(t, db, "p1")

	ns := []domain.Notification{
		{UserID: "u1", ChildID: child, Kind: domain.NotificationNewLog, Title: "a"},
		{UserID: "u1", ChildID: child, Kind: domain.NotificationNewLog, Title: "b"},
		{UserID: "u1", ChildID: child, Kind: domain.NotificationNewMessage, Title: "c"},
		{UserID: "u2", ChildID: child, Kind: domain.NotificationNewLog, Title: "d"},
	}
	if err := CreateNotifications(ctx, db, ns); err != nil {
		t.Fatalf("CreateNotifications: %v", err)
	}
	before, _ := CountUnread(ctx, db, "u1")
	if before != 3 {
		t.Fatalf("expected 3 unread, got %d", before)
	}

	changed, err := MarkNotificationRead(ctx, db, ns[1].ID, "u1")
	if err != nil || !changed {
		t.Fatalf("MarkNotificationRead: changed=%v err=%v", changed, err)
	}
	after, _ := CountUnread(ctx, db, "u1")
	if after != before-1 {
		t.Fatalf("unread should drop by exactly one: %d -> %d", before, after)
	}
	for i, n := range ns {
		got, err := GetNotification(ctx, db, n.ID, n.UserID)
		if err != nil {
			t.Fatalf("GetNotification: %v", err)
		}
		if got.Read != (i == 1) {
			t.Fatalf("notification %d read=%v", i, got.Read)
		}
	}

	// Already read: no change, no error.
	changed, err = MarkNotificationRead(ctx, db, ns[1].ID, "u1")
	if err != nil || changed {
		t.Fatalf("second mark: changed=%v err=%v", changed, err)
	}
	// Not the recipient: no change.
	changed, _ = MarkNotificationRead(ctx, db, ns[3].ID, "u1")
	if changed {
		t.Fatalf("non-recipient must not mark read")
	}
	if _, err := GetNotification(ctx, db, ns[3].ID, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for other user's notification, got %v", err)
	}
}

func TestListNotifications_FilterAndMarkAll(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	c1 := seedChild(t, db, "p1")
	c2 := seedChild(t, db, "p1")

	ns := []domain.Notification{
		{UserID: "u1", ChildID: c1, Kind: domain.NotificationNewLog, Title: "a"},
		{UserID: "u1", ChildID: c2, Kind: domain.NotificationNewLog, Title: "b"},
	}
	if err := CreateNotifications(ctx, db, ns); err != nil {
		t.Fatalf("CreateNotifications: %v", err)
	}
	if err := CreateNotifications(ctx, db, nil); err != nil {
		t.Fatalf("empty batch should be a no-op: %v", err)
	}

	all, err := ListNotificationsPage(ctx, db, "u1", "", 0, 10)
	if err != nil || len(all) != 2 {
		t.Fatalf("list all: err=%v n=%d", err, len(all))
	}
	only, err := ListNotificationsPage(ctx, db, "u1", c2, 0, 10)
	if err != nil || len(only) != 1 || only[0].ChildID != c2 {
		t.Fatalf("list child: err=%v got=%+v", err, only)
	}
	total, _ := CountNotifications(ctx, db, "u1", c1)
	if total != 1 {
		t.Fatalf("CountNotifications: %d", total)
	}

	n, err := MarkAllNotificationsRead(ctx, db, "u1")
	if err != nil || n != 2 {
		t.Fatalf("MarkAllNotificationsRead: n=%d err=%v", n, err)
	}
	if unread, _ := CountUnread(ctx, db, "u1"); unread != 0 {
		t.Fatalf("expected 0 unread, got %d", unread)
	}
}
