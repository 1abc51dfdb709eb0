package analytics

import (
	"context"
	"errors"
	"testing"

	"github.com/anonto42/campus-notify/backend/internal/dbtest"
	"github.com/anonto42/campus-notify/backend/internal/models"
	"github.com/anonto42/campus-notify/backend/internal/repositories"
	"go.uber.org/zap"
)

type recordingActivity struct {
	repositories.NopActivityLog
	clicks []models.ClickEvent
}

func (r *recordingActivity) RecordClick(_ context.Context, e *models.ClickEvent) error {
	r.clicks = append(r.clicks, *e)
	return nil
}

func setup(t *testing.T, awaitingPush map[string]bool) (*Aggregator, repositories.NotificationRepository, *recordingActivity) {
	t.Helper()
	db := dbtest.Open(t)
	store := repositories.NewPostgresNotificationRepository(db)
	n := &models.Notification{
		ID:          "n-1",
		Title:       "Lab cancelled",
		Message:     "No lab on Friday",
		Priority:    models.PriorityNormal,
		SenderID:    "t-1",
		TargetType:  "all_students",
		TargetValue: "all",
		PushEnabled: len(awaitingPush) > 0,
	}
	if err := store.Create(t.Context(), n, []string{"s-1", "s-2", "s-3", "s-4"}, awaitingPush); err != nil {
		t.Fatalf("Create: %v", err)
	}
	activity := &recordingActivity{}
	return NewAggregator(store, activity, zap.NewNop()), store, activity
}

func TestTrackClick(t *testing.T) {
	t.Parallel()

	t.Run("repeat clicks count raw events but flag the recipient once", func(t *testing.T) {
		t.Parallel()
		agg, store, activity := setup(t, nil)

		for range 2 {
			if err := agg.TrackClick(t.Context(), "n-1", "s-1"); err != nil {
				t.Fatalf("TrackClick: %v", err)
			}
		}

		n, err := store.GetByID(t.Context(), "n-1")
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if n.Clicks != 2 {
			t.Errorf("clicks = %d, want 2", n.Clicks)
		}
		stats, err := store.DeliveryStats(t.Context(), "n-1")
		if err != nil {
			t.Fatalf("DeliveryStats: %v", err)
		}
		if stats.Clicked != 1 {
			t.Errorf("clicked recipients = %d, want 1", stats.Clicked)
		}
		if len(activity.clicks) != 2 {
			t.Errorf("click events = %d, want 2", len(activity.clicks))
		}
	})

	t.Run("anonymous and non-recipient clicks only move the counter", func(t *testing.T) {
		t.Parallel()
		agg, store, _ := setup(t, nil)

		if err := agg.TrackClick(t.Context(), "n-1", ""); err != nil {
			t.Fatalf("anonymous TrackClick: %v", err)
		}
		if err := agg.TrackClick(t.Context(), "n-1", "outsider"); err != nil {
			t.Fatalf("outsider TrackClick: %v", err)
		}

		n, _ := store.GetByID(t.Context(), "n-1")
		if n.Clicks != 2 {
			t.Errorf("clicks = %d, want 2", n.Clicks)
		}
		stats, _ := store.DeliveryStats(t.Context(), "n-1")
		if stats.Clicked != 0 {
			t.Errorf("clicked recipients = %d, want 0", stats.Clicked)
		}
	})

	t.Run("unknown notification", func(t *testing.T) {
		t.Parallel()
		agg, _, _ := setup(t, nil)
		if err := agg.TrackClick(t.Context(), "missing", "s-1"); !errors.Is(err, repositories.ErrNotFound) {
			t.Errorf("TrackClick = %v, want ErrNotFound", err)
		}
	})
}

func TestRecordPushOutcome(t *testing.T) {
	t.Parallel()

	agg, store, _ := setup(t, map[string]bool{"s-1": true, "s-2": true})
	ctx := t.Context()

	// s-1 has two devices, both delivered; s-2's only device fails
	for _, delivered := range []bool{true, true} {
		if err := agg.RecordPushOutcome(ctx, "n-1", "s-1", delivered); err != nil {
			t.Fatalf("RecordPushOutcome: %v", err)
		}
	}
	if err := agg.RecordPushOutcome(ctx, "n-1", "s-2", false); err != nil {
		t.Fatalf("RecordPushOutcome: %v", err)
	}

	summary, err := agg.Summary(ctx, "n-1", "t-1")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.PushNotifications.SuccessCount != 2 || summary.PushNotifications.FailureCount != 1 {
		t.Errorf("push = %+v, want 2 success / 1 failure", summary.PushNotifications)
	}
	if !summary.PushNotifications.Enabled {
		t.Error("push should be reported enabled")
	}
	// s-3 and s-4 were delivered in-app at creation, s-1 by push
	if summary.Delivered != 3 {
		t.Errorf("delivered = %d, want 3", summary.Delivered)
	}

	deliveries, err := store.Deliveries(ctx, "n-1")
	if err != nil {
		t.Fatalf("Deliveries: %v", err)
	}
	for _, d := range deliveries {
		if d.UserID == "s-2" && d.IsDelivered {
			t.Error("failed push must not mark s-2 delivered")
		}
	}
}

func TestSummary(t *testing.T) {
	t.Parallel()

	agg, store, _ := setup(t, nil)
	ctx := t.Context()

	if _, err := store.MarkRead(ctx, "n-1", "s-1"); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if err := agg.TrackClick(ctx, "n-1", "s-1"); err != nil {
		t.Fatalf("TrackClick: %v", err)
	}

	summary, err := agg.Summary(ctx, "n-1", "t-1")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.TotalRecipients != 4 || summary.Read != 1 || summary.ClickedRecipients != 1 || summary.Clicks != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if summary.ReadRate != 0.25 {
		t.Errorf("read rate = %v, want 0.25", summary.ReadRate)
	}

	if _, err := agg.Summary(ctx, "n-1", "s-1"); !errors.Is(err, ErrNotSender) {
		t.Errorf("Summary by recipient = %v, want ErrNotSender", err)
	}
	if _, err := agg.Summary(ctx, "missing", "t-1"); !errors.Is(err, repositories.ErrNotFound) {
		t.Errorf("Summary(missing) = %v, want ErrNotFound", err)
	}
}
