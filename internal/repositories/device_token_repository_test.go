package repositories

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/anonto42/campus-notify/backend/internal/dbtest"
	"github.com/anonto42/campus-notify/backend/internal/models"
)

func TestDeviceTokenRepositoryRegister(t *testing.T) {
	t.Parallel()

	t.Run("upsert refreshes platform and last seen", func(t *testing.T) {
		t.Parallel()
		db := dbtest.Open(t)
		repo := NewPostgresDeviceTokenRepository(db).(*postgresDeviceTokenRepository)
		ctx := t.Context()

		first := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
		repo.now = func() time.Time { return first }
		created, err := repo.Register(ctx, "s-1", "tok-a", models.PlatformAndroid)
		if err != nil {
			t.Fatalf("Register: %v", err)
		}
		if !created.Valid {
			t.Fatal("new token should be valid")
		}

		repo.now = func() time.Time { return first.Add(time.Hour) }
		again, err := repo.Register(ctx, "s-1", "tok-a", models.PlatformIOS)
		if err != nil {
			t.Fatalf("re-Register: %v", err)
		}
		if again.ID != created.ID {
			t.Errorf("re-register created a new row: %d != %d", again.ID, created.ID)
		}
		if again.Platform != models.PlatformIOS {
			t.Errorf("platform = %s, want ios", again.Platform)
		}
		if !again.LastSeenAt.Equal(first.Add(time.Hour)) {
			t.Errorf("LastSeenAt = %v", again.LastSeenAt)
		}
		if !again.RegisteredAt.Equal(first) {
			t.Errorf("RegisteredAt changed to %v", again.RegisteredAt)
		}
		if got := countRows(t, db, &models.DeviceToken{}, "user_id = ?", "s-1"); got != 1 {
			t.Errorf("rows = %d, want 1", got)
		}
	})

	t.Run("invalidated token stays invalid", func(t *testing.T) {
		t.Parallel()
		db := dbtest.Open(t)
		repo := NewPostgresDeviceTokenRepository(db)
		ctx := t.Context()

		if _, err := repo.Register(ctx, "s-1", "tok-dead", models.PlatformAndroid); err != nil {
			t.Fatalf("Register: %v", err)
		}
		if err := repo.Invalidate(ctx, "tok-dead"); err != nil {
			t.Fatalf("Invalidate: %v", err)
		}

		row, err := repo.Register(ctx, "s-1", "tok-dead", models.PlatformAndroid)
		if !errors.Is(err, ErrTokenRevoked) {
			t.Fatalf("Register revoked = %v, want ErrTokenRevoked", err)
		}
		if row == nil || row.Valid || row.InvalidAt == nil {
			t.Errorf("row = %+v, want invalid with InvalidAt", row)
		}

		// the same value registered by another account is dead too
		if _, err := repo.Register(ctx, "s-2", "tok-dead", models.PlatformAndroid); !errors.Is(err, ErrTokenRevoked) {
			t.Errorf("Register by other user = %v, want ErrTokenRevoked", err)
		}
		valid, err := repo.IsValid(ctx, "tok-dead")
		if err != nil {
			t.Fatalf("IsValid: %v", err)
		}
		if valid {
			t.Error("IsValid = true after invalidation")
		}
	})
}

func TestDeviceTokenRepositoryActiveTokens(t *testing.T) {
	t.Parallel()

	db := dbtest.Open(t)
	repo := NewPostgresDeviceTokenRepository(db)
	ctx := t.Context()

	register := func(user, token string) {
		t.Helper()
		if _, err := repo.Register(ctx, user, token, models.PlatformAndroid); err != nil {
			t.Fatalf("Register %s/%s: %v", user, token, err)
		}
	}
	register("s-1", "phone")
	register("s-1", "tablet")
	register("s-2", "old-phone")
	if err := repo.Invalidate(ctx, "old-phone"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}

	own, err := repo.ActiveTokensFor(ctx, "s-1")
	if err != nil {
		t.Fatalf("ActiveTokensFor: %v", err)
	}
	if len(own) != 2 {
		t.Errorf("s-1 tokens = %d, want 2", len(own))
	}

	ids := []string{"s-1", "s-2", "s-3"}
	for i := range 1500 {
		ids = append(ids, fmt.Sprintf("bulk-%d", i))
	}
	byUser, err := repo.ActiveTokensForUsers(ctx, ids)
	if err != nil {
		t.Fatalf("ActiveTokensForUsers: %v", err)
	}
	if len(byUser) != 1 {
		t.Errorf("users with tokens = %d, want 1", len(byUser))
	}
	if len(byUser["s-1"]) != 2 {
		t.Errorf("s-1 tokens = %d, want 2", len(byUser["s-1"]))
	}
	if _, ok := byUser["s-2"]; ok {
		t.Error("s-2 has only an invalid token and should be absent")
	}

	empty, err := repo.ActiveTokensForUsers(ctx, nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("ActiveTokensForUsers(nil) = %v, %v", empty, err)
	}
}
