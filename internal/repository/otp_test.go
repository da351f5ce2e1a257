package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/musicshare/api/internal/model"
)

func TestCreateWithRotation(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	users := NewUserRepository(db)
	user, err := users.GetOrCreateByPhone(ctx, "+15551234567")
	if err != nil {
		t.Fatalf("seeding user: %v", err)
	}

	otps := NewOtpRepository(db)
	expiresAt := time.Now().Add(10 * time.Minute)

	first, err := otps.CreateWithRotation(ctx, user.ID, "111111", expiresAt)
	if err != nil {
		t.Fatalf("first CreateWithRotation returned error: %v", err)
	}
	second, err := otps.CreateWithRotation(ctx, user.ID, "222222", expiresAt)
	if err != nil {
		t.Fatalf("second CreateWithRotation returned error: %v", err)
	}

	count, err := otps.CountPending(ctx, user.ID)
	if err != nil {
		t.Fatalf("CountPending returned error: %v", err)
	}
	if count != 1 {
		t.Fatalf("pending count = %d, want 1", count)
	}

	pending, err := otps.GetPending(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetPending returned error: %v", err)
	}
	if pending.ID != second.ID {
		t.Errorf("pending row = %s, want the latest %s", pending.ID, second.ID)
	}

	// The superseded row stays as history.
	var superseded model.OtpRequest
	if err := db.First(&superseded, "id = ?", first.ID).Error; err != nil {
		t.Fatalf("superseded row missing: %v", err)
	}
	if superseded.Status != model.OtpStatusExpired {
		t.Errorf("superseded status = %q, want %q", superseded.Status, model.OtpStatusExpired)
	}
}

func TestMarkExpiredIdempotentGuard(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	users := NewUserRepository(db)
	user, err := users.GetOrCreateByPhone(ctx, "+15551234567")
	if err != nil {
		t.Fatalf("seeding user: %v", err)
	}

	otps := NewOtpRepository(db)
	request, err := otps.CreateWithRotation(ctx, user.ID, "111111", time.Now().Add(10*time.Minute))
	if err != nil {
		t.Fatalf("CreateWithRotation returned error: %v", err)
	}

	if err := otps.MarkExpired(ctx, request.ID); err != nil {
		t.Fatalf("MarkExpired returned error: %v", err)
	}

	// A second transition of the same row reports no match.
	err = otps.MarkExpired(ctx, request.ID)
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("second MarkExpired error = %v, want ErrRecordNotFound", err)
	}
}

func TestGetPendingNone(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	users := NewUserRepository(db)
	user, err := users.GetOrCreateByPhone(ctx, "+15551234567")
	if err != nil {
		t.Fatalf("seeding user: %v", err)
	}

	otps := NewOtpRepository(db)
	_, err = otps.GetPending(ctx, user.ID)
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("GetPending with no rows = %v, want ErrRecordNotFound", err)
	}
}
