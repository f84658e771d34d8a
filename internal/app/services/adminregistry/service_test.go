package adminregistry

import (
	"context"
	"errors"
	"testing"

	"github.com/custodia-network/treasury/internal/app/storage/memory"
)

func newService(t *testing.T) *Service {
	t.Helper()
	svc := New(memory.New(), nil, nil)
	if err := svc.Init(context.Background(), "owner"); err != nil {
		t.Fatalf("init: %v", err)
	}
	return svc
}

func TestInitOnce(t *testing.T) {
	svc := New(memory.New(), nil, nil)
	ctx := context.Background()

	if err := svc.Init(ctx, "owner"); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := svc.Init(ctx, "other"); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}

	isAdmin, err := svc.IsAdmin(ctx, "owner")
	if err != nil || !isAdmin {
		t.Fatalf("expected owner to be admin, got %v %v", isAdmin, err)
	}
	isReviewer, err := svc.IsReviewer(ctx, "owner")
	if err != nil || !isReviewer {
		t.Fatalf("expected owner to be reviewer, got %v %v", isReviewer, err)
	}
}

func TestAdminSuccession(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	if err := svc.SetPendingAdmin(ctx, "intruder", "candidate"); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}
	if err := svc.SetPendingAdmin(ctx, "owner", "candidate"); err != nil {
		t.Fatalf("set pending admin: %v", err)
	}

	if err := svc.AcceptAdmin(ctx, "other"); !errors.Is(err, ErrNotPendingAdmin) {
		t.Fatalf("expected ErrNotPendingAdmin, got %v", err)
	}
	isAdmin, _ := svc.IsAdmin(ctx, "owner")
	if !isAdmin {
		t.Fatal("failed accept must leave admin unchanged")
	}

	if err := svc.AcceptAdmin(ctx, "candidate"); err != nil {
		t.Fatalf("accept admin: %v", err)
	}
	isAdmin, _ = svc.IsAdmin(ctx, "candidate")
	if !isAdmin {
		t.Fatal("expected candidate to be admin after accept")
	}

	// pending slot was consumed by the first accept
	if err := svc.AcceptAdmin(ctx, "candidate"); !errors.Is(err, ErrNotPendingAdmin) {
		t.Fatalf("expected second accept to fail, got %v", err)
	}
}

func TestPendingOverwrite(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	if err := svc.SetPendingAdmin(ctx, "owner", "first"); err != nil {
		t.Fatalf("set pending admin: %v", err)
	}
	if err := svc.SetPendingAdmin(ctx, "owner", "second"); err != nil {
		t.Fatalf("overwrite pending admin: %v", err)
	}

	if err := svc.AcceptAdmin(ctx, "first"); !errors.Is(err, ErrNotPendingAdmin) {
		t.Fatalf("expected overwritten candidate to fail, got %v", err)
	}
	if err := svc.AcceptAdmin(ctx, "second"); err != nil {
		t.Fatalf("accept admin: %v", err)
	}
}

func TestReviewerSuccessionIndependent(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	if err := svc.SetPendingAdmin(ctx, "owner", "next-admin"); err != nil {
		t.Fatalf("set pending admin: %v", err)
	}
	if err := svc.SetPendingReviewer(ctx, "owner", "next-reviewer"); err != nil {
		t.Fatalf("set pending reviewer: %v", err)
	}

	if err := svc.AcceptReviewer(ctx, "next-reviewer"); err != nil {
		t.Fatalf("accept reviewer: %v", err)
	}

	// admin succession still pending and unaffected
	isPending, _ := svc.IsPendingAdmin(ctx, "next-admin")
	if !isPending {
		t.Fatal("expected admin succession to remain pending")
	}
	isReviewer, _ := svc.IsReviewer(ctx, "next-reviewer")
	if !isReviewer {
		t.Fatal("expected reviewer succession to complete")
	}
}

func TestRequireCosign(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	if err := svc.RequireCosign(ctx, "owner", "owner"); err != nil {
		t.Fatalf("cosign: %v", err)
	}
	if err := svc.RequireCosign(ctx, "intruder", "owner"); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}
	if err := svc.RequireCosign(ctx, "owner", "intruder"); !errors.Is(err, ErrNotReviewer) {
		t.Fatalf("expected ErrNotReviewer, got %v", err)
	}
}

func TestUninitialized(t *testing.T) {
	svc := New(memory.New(), nil, nil)
	ctx := context.Background()

	if _, err := svc.IsAdmin(ctx, "anyone"); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if err := svc.SetPendingAdmin(ctx, "anyone", "candidate"); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}
