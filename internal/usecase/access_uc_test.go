//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"

	"telegram-access-subscription/internal/domain/model"
)

func TestAccessUseCase_EnsureGranted(t *testing.T) {
	ctx := context.Background()

	t.Run("granting twice calls each system once", func(t *testing.T) {
		h := newHarness()
		h.seedUser("u1", 101)
		h.seedSub("s1", "u1", model.SubscriptionStatusActive, timePtr(testNow.AddDate(0, 1, 0)), model.AccessFlags{})

		first := h.access.EnsureGranted(ctx, h.mustSub("s1"))
		second := h.access.EnsureGranted(ctx, h.mustSub("s1"))

		if !first.OK() || len(first.Changed) != 3 {
			t.Fatalf("expected three systems granted, got %+v", first)
		}
		if len(second.Changed) != 0 || len(second.Skipped) != 3 {
			t.Errorf("expected second grant to skip every system, got %+v", second)
		}
		for _, p := range []*fakeProvider{h.chat, h.kb, h.files} {
			if g, _ := p.calls(); g != 1 {
				t.Errorf("%s: expected 1 grant call, got %d", p.sys, g)
			}
		}
		if got := h.mustSub("s1").Access; got != allGranted {
			t.Errorf("expected all flags set, got %+v", got)
		}
	})

	t.Run("one failing system does not block the others", func(t *testing.T) {
		h := newHarness()
		h.seedUser("u1", 101)
		h.seedSub("s1", "u1", model.SubscriptionStatusActive, timePtr(testNow.AddDate(0, 1, 0)), model.AccessFlags{})
		h.kb.GrantErr = errors.New("kb down")

		report := h.access.EnsureGranted(ctx, h.mustSub("s1"))

		if _, failed := report.Failures[model.AccessKnowledgeBase]; !failed || len(report.Failures) != 1 {
			t.Fatalf("expected only knowledge_base to fail, got %+v", report.Failures)
		}
		got := h.mustSub("s1").Access
		if !got.CommunityChat || got.KnowledgeBase || !got.FileStorage {
			t.Errorf("unexpected flags after partial failure: %+v", got)
		}
	})

	t.Run("missing identity is reported and leaves the flag", func(t *testing.T) {
		h := newHarness()
		u := h.seedUser("u1", 101)
		u.StorageAccount = ""
		_ = h.users.Save(ctx, nil, u)
		h.seedSub("s1", "u1", model.SubscriptionStatusActive, timePtr(testNow.AddDate(0, 1, 0)), model.AccessFlags{})

		report := h.access.EnsureGranted(ctx, h.mustSub("s1"))

		if _, failed := report.Failures[model.AccessFileStorage]; !failed {
			t.Fatal("expected file_storage failure for unlinked identity")
		}
		if g, _ := h.files.calls(); g != 0 {
			t.Errorf("provider must not be called without an identity, got %d calls", g)
		}
	})

	t.Run("flag persistence failure is reported", func(t *testing.T) {
		h := newHarness()
		h.seedUser("u1", 101)
		h.seedSub("s1", "u1", model.SubscriptionStatusActive, timePtr(testNow.AddDate(0, 1, 0)), model.AccessFlags{})
		h.subs.SetAccessFlagFunc = func(id string, sys model.AccessSystem, granted bool) error {
			if sys == model.AccessCommunityChat {
				return errors.New("db gone")
			}
			return nil
		}

		report := h.access.EnsureGranted(ctx, h.mustSub("s1"))

		if _, failed := report.Failures[model.AccessCommunityChat]; !failed {
			t.Error("expected community_chat failure when the flag cannot be stored")
		}
		if h.mustSub("s1").Access.CommunityChat {
			t.Error("flag must stay false when it could not be persisted")
		}
	})
}

func TestAccessUseCase_EnsureRevoked(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	h.seedUser("u1", 101)
	h.seedSub("s1", "u1", model.SubscriptionStatusExpired, timePtr(testNow.AddDate(0, 0, -1)), model.AccessFlags{CommunityChat: true, FileStorage: true})

	first := h.access.EnsureRevoked(ctx, h.mustSub("s1"))
	second := h.access.EnsureRevoked(ctx, h.mustSub("s1"))

	if len(first.Changed) != 2 {
		t.Fatalf("expected two systems revoked, got %+v", first)
	}
	if len(second.Changed) != 0 {
		t.Errorf("expected nothing left to revoke, got %+v", second)
	}
	if _, r := h.kb.calls(); r != 0 {
		t.Errorf("knowledge_base was never granted; expected no revoke call, got %d", r)
	}
	for _, p := range []*fakeProvider{h.chat, h.files} {
		if _, r := p.calls(); r != 1 {
			t.Errorf("%s: expected 1 revoke call, got %d", p.sys, r)
		}
	}
	if h.mustSub("s1").Access.Any() {
		t.Error("expected every flag cleared")
	}
}
