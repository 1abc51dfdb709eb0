package repositories

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/anonto42/campus-notify/backend/internal/dbtest"
	"github.com/anonto42/campus-notify/backend/internal/models"
	"gorm.io/gorm"
)

// newNotification builds a notification row with a fixed creation time offset.
func newNotification(id string, offset time.Duration) *models.Notification {
	return &models.Notification{
		ID:          id,
		Title:       "Title " + id,
		Message:     "Message " + id,
		Priority:    models.PriorityNormal,
		SenderID:    "teacher-1",
		SenderName:  "Teacher One",
		SenderRole:  models.RoleTeacher,
		TargetType:  "all_students",
		TargetValue: "all",
		CreatedAt:   time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC).Add(offset),
	}
}

func countRows(t *testing.T, db *gorm.DB, model any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Where(where, args...).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestNotificationRepositoryCreate(t *testing.T) {
	t.Parallel()

	t.Run("writes one delivery per distinct recipient", func(t *testing.T) {
		t.Parallel()
		db := dbtest.Open(t)
		repo := NewPostgresNotificationRepository(db)

		n := newNotification("n-1", 0)
		err := repo.Create(t.Context(), n, []string{"s-1", "s-2", "s-1", "s-3"}, map[string]bool{"s-2": true})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if n.TotalRecipients != 3 {
			t.Errorf("TotalRecipients = %d, want 3", n.TotalRecipients)
		}

		stored, err := repo.GetByID(t.Context(), "n-1")
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if stored.TotalRecipients != 3 {
			t.Errorf("stored TotalRecipients = %d, want 3", stored.TotalRecipients)
		}

		deliveries, err := repo.Deliveries(t.Context(), "n-1")
		if err != nil {
			t.Fatalf("Deliveries: %v", err)
		}
		if len(deliveries) != 3 {
			t.Fatalf("deliveries = %d, want 3", len(deliveries))
		}
		for _, d := range deliveries {
			wantDelivered := d.UserID != "s-2"
			if d.IsDelivered != wantDelivered {
				t.Errorf("%s delivered = %v, want %v", d.UserID, d.IsDelivered, wantDelivered)
			}
			if d.IsRead || d.IsClicked || d.ReadAt != nil {
				t.Errorf("%s starts read/clicked", d.UserID)
			}
		}
	})

	t.Run("zero recipients still creates the notification", func(t *testing.T) {
		t.Parallel()
		db := dbtest.Open(t)
		repo := NewPostgresNotificationRepository(db)

		if err := repo.Create(t.Context(), newNotification("empty", 0), nil, nil); err != nil {
			t.Fatalf("Create: %v", err)
		}
		stored, err := repo.GetByID(t.Context(), "empty")
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if stored.TotalRecipients != 0 {
			t.Errorf("TotalRecipients = %d, want 0", stored.TotalRecipients)
		}
	})

	t.Run("failure while writing deliveries leaves nothing behind", func(t *testing.T) {
		t.Parallel()
		db := dbtest.Open(t)
		repo := NewPostgresNotificationRepository(db)

		injected := errors.New("disk full")
		err := db.Callback().Create().Before("gorm:create").Register("test:fail_deliveries", func(tx *gorm.DB) {
			if tx.Statement.Table == "recipient_deliveries" {
				tx.AddError(injected)
			}
		})
		if err != nil {
			t.Fatalf("register callback: %v", err)
		}

		err = repo.Create(t.Context(), newNotification("n-fail", 0), []string{"s-1", "s-2"}, nil)
		if !errors.Is(err, injected) {
			t.Fatalf("Create error = %v, want injected failure", err)
		}
		if got := countRows(t, db, &models.Notification{}, "id = ?", "n-fail"); got != 0 {
			t.Errorf("notifications = %d, want 0", got)
		}
		if got := countRows(t, db, &models.RecipientDelivery{}, "notification_id = ?", "n-fail"); got != 0 {
			t.Errorf("deliveries = %d, want 0", got)
		}
	})

	t.Run("concurrent creates stay separate", func(t *testing.T) {
		t.Parallel()
		db := dbtest.Open(t)
		repo := NewPostgresNotificationRepository(db)

		recipients := make([]string, 40)
		for i := range recipients {
			recipients[i] = fmt.Sprintf("s-%02d", i)
		}

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := range 2 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = repo.Create(context.Background(), newNotification(fmt.Sprintf("dup-%d", i), 0), recipients, nil)
			}()
		}
		wg.Wait()

		for i, err := range errs {
			if err != nil {
				t.Fatalf("Create %d: %v", i, err)
			}
			if got := countRows(t, db, &models.RecipientDelivery{}, "notification_id = ?", fmt.Sprintf("dup-%d", i)); got != 40 {
				t.Errorf("dup-%d deliveries = %d, want 40", i, got)
			}
		}
	})
}

func TestNotificationRepositoryReads(t *testing.T) {
	t.Parallel()

	db := dbtest.Open(t)
	repo := NewPostgresNotificationRepository(db)
	ctx := t.Context()

	for i, id := range []string{"old", "mid", "new"} {
		if err := repo.Create(ctx, newNotification(id, time.Duration(i)*time.Minute), []string{"s-1", "s-2"}, nil); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}
	other := newNotification("other-sender", 10*time.Minute)
	other.SenderID = "teacher-2"
	if err := repo.Create(ctx, other, []string{"s-2"}, nil); err != nil {
		t.Fatalf("Create other: %v", err)
	}
	if _, err := repo.MarkRead(ctx, "mid", "s-1"); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}

	t.Run("received newest first with read state", func(t *testing.T) {
		received, err := repo.GetReceived(ctx, "s-1", Pagination{Page: 1, Limit: 10})
		if err != nil {
			t.Fatalf("GetReceived: %v", err)
		}
		if len(received) != 3 {
			t.Fatalf("received = %d, want 3", len(received))
		}
		wantIDs := []string{"new", "mid", "old"}
		for i, r := range received {
			if r.ID != wantIDs[i] {
				t.Errorf("received[%d] = %s, want %s", i, r.ID, wantIDs[i])
			}
			if r.IsRead != (r.ID == "mid") {
				t.Errorf("%s isRead = %v", r.ID, r.IsRead)
			}
			if r.TotalRecipients != 2 {
				t.Errorf("%s totalRecipients = %d, want 2", r.ID, r.TotalRecipients)
			}
		}
	})

	t.Run("received is paginated", func(t *testing.T) {
		received, err := repo.GetReceived(ctx, "s-2", Pagination{Page: 2, Limit: 3})
		if err != nil {
			t.Fatalf("GetReceived: %v", err)
		}
		if len(received) != 1 || received[0].ID != "old" {
			t.Errorf("page 2 = %+v, want [old]", received)
		}
	})

	t.Run("sent only lists the sender's notifications", func(t *testing.T) {
		sent, err := repo.GetSent(ctx, "teacher-1", Pagination{})
		if err != nil {
			t.Fatalf("GetSent: %v", err)
		}
		if len(sent) != 3 || sent[0].ID != "new" {
			t.Errorf("sent = %+v, want 3 newest first", sent)
		}
	})

	t.Run("unread count", func(t *testing.T) {
		count, err := repo.UnreadCount(ctx, "s-1")
		if err != nil {
			t.Fatalf("UnreadCount: %v", err)
		}
		if count != 2 {
			t.Errorf("UnreadCount = %d, want 2", count)
		}
	})

	t.Run("missing notification", func(t *testing.T) {
		if _, err := repo.GetByID(ctx, "nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetByID = %v, want ErrNotFound", err)
		}
	})
}

func TestNotificationRepositoryMarkRead(t *testing.T) {
	t.Parallel()

	db := dbtest.Open(t)
	repo := NewPostgresNotificationRepository(db).(*postgresNotificationRepository)
	ctx := t.Context()

	if err := repo.Create(ctx, newNotification("n-1", 0), []string{"s-1"}, nil); err != nil {
		t.Fatalf("Create: %v", err)
	}

	first := time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return first }
	changed, err := repo.MarkRead(ctx, "n-1", "s-1")
	if err != nil || !changed {
		t.Fatalf("first MarkRead = %v, %v; want true, nil", changed, err)
	}

	repo.now = func() time.Time { return first.Add(time.Hour) }
	changed, err = repo.MarkRead(ctx, "n-1", "s-1")
	if err != nil || changed {
		t.Fatalf("second MarkRead = %v, %v; want false, nil", changed, err)
	}

	deliveries, err := repo.Deliveries(ctx, "n-1")
	if err != nil {
		t.Fatalf("Deliveries: %v", err)
	}
	if deliveries[0].ReadAt == nil || !deliveries[0].ReadAt.Equal(first) {
		t.Errorf("ReadAt = %v, want %v", deliveries[0].ReadAt, first)
	}

	if _, err := repo.MarkRead(ctx, "n-1", "stranger"); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkRead for non-recipient = %v, want ErrNotFound", err)
	}
}

func TestNotificationRepositoryMarkAllReadUsesSnapshot(t *testing.T) {
	t.Parallel()

	db := dbtest.Open(t)
	repo := NewPostgresNotificationRepository(db)
	ctx := t.Context()

	for i, id := range []string{"a", "b"} {
		if err := repo.Create(ctx, newNotification(id, time.Duration(i)*time.Minute), []string{"s-1"}, nil); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}

	// A send lands for the same user after the unread snapshot is taken but
	// before the update runs.
	var once sync.Once
	var lateErr error
	err := db.Callback().Update().Before("gorm:begin_transaction").Register("test:concurrent_send", func(tx *gorm.DB) {
		if tx.Statement.Table != "recipient_deliveries" {
			return
		}
		once.Do(func() {
			lateErr = repo.Create(context.Background(), newNotification("late", time.Hour), []string{"s-1"}, nil)
		})
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	marked, err := repo.MarkAllRead(ctx, "s-1")
	if err != nil {
		t.Fatalf("MarkAllRead: %v", err)
	}
	if lateErr != nil {
		t.Fatalf("late create: %v", lateErr)
	}
	if marked != 2 {
		t.Errorf("marked = %d, want 2", marked)
	}

	received, err := repo.GetReceived(ctx, "s-1", Pagination{})
	if err != nil {
		t.Fatalf("GetReceived: %v", err)
	}
	if len(received) != 3 {
		t.Fatalf("received = %d, want 3", len(received))
	}
	for _, r := range received {
		if wantRead := r.ID != "late"; r.IsRead != wantRead {
			t.Errorf("%s isRead = %v, want %v", r.ID, r.IsRead, wantRead)
		}
	}
}

func TestNotificationRepositoryMarkAllReadSpansChunks(t *testing.T) {
	t.Parallel()

	db := dbtest.Open(t)
	repo := NewPostgresNotificationRepository(db)
	ctx := t.Context()

	const inbox = 2*readAllChunk + 500
	rows := make([]models.RecipientDelivery, 0, inbox)
	for i := range inbox {
		rows = append(rows, models.RecipientDelivery{
			NotificationID: fmt.Sprintf("n-%04d", i),
			UserID:         "s-1",
			CreatedAt:      time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		})
	}
	rows = append(rows, models.RecipientDelivery{NotificationID: "n-0000", UserID: "s-2"})
	if err := db.CreateInBatches(rows, 200).Error; err != nil {
		t.Fatalf("seed deliveries: %v", err)
	}

	marked, err := repo.MarkAllRead(ctx, "s-1")
	if err != nil {
		t.Fatalf("MarkAllRead: %v", err)
	}
	if marked != inbox {
		t.Errorf("marked = %d, want %d", marked, inbox)
	}
	if n, err := repo.UnreadCount(ctx, "s-1"); err != nil || n != 0 {
		t.Errorf("UnreadCount(s-1) = %d, %v, want 0", n, err)
	}
	if n, err := repo.UnreadCount(ctx, "s-2"); err != nil || n != 1 {
		t.Errorf("UnreadCount(s-2) = %d, %v, want 1", n, err)
	}
	if got := countRows(t, db, &models.RecipientDelivery{}, "user_id = ? AND read_at IS NULL", "s-1"); got != 0 {
		t.Errorf("rows without read_at = %d, want 0", got)
	}

	if marked, err := repo.MarkAllRead(ctx, "s-1"); err != nil || marked != 0 {
		t.Errorf("second MarkAllRead = %d, %v, want 0", marked, err)
	}
}

func TestNotificationRepositoryCounters(t *testing.T) {
	t.Parallel()

	db := dbtest.Open(t)
	repo := NewPostgresNotificationRepository(db)
	ctx := t.Context()

	if err := repo.Create(ctx, newNotification("n-1", 0), []string{"s-1", "s-2"}, map[string]bool{"s-1": true, "s-2": true}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if changed, err := repo.MarkDelivered(ctx, "n-1", "s-1"); err != nil || !changed {
		t.Fatalf("MarkDelivered = %v, %v", changed, err)
	}
	if changed, err := repo.MarkDelivered(ctx, "n-1", "s-1"); err != nil || changed {
		t.Fatalf("repeat MarkDelivered = %v, %v", changed, err)
	}
	if err := repo.IncrementPushCounters(ctx, "n-1", 2, 1); err != nil {
		t.Fatalf("IncrementPushCounters: %v", err)
	}
	if err := repo.IncrementPushCounters(ctx, "n-1", 1, 0); err != nil {
		t.Fatalf("IncrementPushCounters: %v", err)
	}
	for range 2 {
		if err := repo.IncrementClicks(ctx, "n-1"); err != nil {
			t.Fatalf("IncrementClicks: %v", err)
		}
	}
	if changed, err := repo.MarkClicked(ctx, "n-1", "s-2"); err != nil || !changed {
		t.Fatalf("MarkClicked = %v, %v", changed, err)
	}
	if err := repo.IncrementClicks(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("IncrementClicks(missing) = %v, want ErrNotFound", err)
	}

	n, err := repo.GetByID(ctx, "n-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	meta := n.Metadata()
	if meta.PushNotifications.SuccessCount != 3 || meta.PushNotifications.FailureCount != 1 {
		t.Errorf("push counters = %+v, want 3/1", meta.PushNotifications)
	}
	if n.Clicks != 2 {
		t.Errorf("clicks = %d, want 2", n.Clicks)
	}

	stats, err := repo.DeliveryStats(ctx, "n-1")
	if err != nil {
		t.Fatalf("DeliveryStats: %v", err)
	}
	want := models.DeliveryStats{Recipients: 2, Delivered: 1, Read: 0, Clicked: 1}
	if *stats != want {
		t.Errorf("stats = %+v, want %+v", *stats, want)
	}
}
