package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/domain"
)

func completeAttempt(t *testing.T, h *harness, memberID string) string {
	t.Helper()
	ctx := context.Background()
	res, err := h.service.StartAttempt(ctx, "quiz-1", memberID)
	if err != nil {
		t.Fatalf("start %s: %v", memberID, err)
	}
	if _, err := h.service.SubmitAttempt(ctx, "quiz-1", memberID, nil, false); err != nil {
		t.Fatalf("submit %s: %v", memberID, err)
	}
	return res.Attempt.ID
}

func TestIndividualRetakeIsSingleUse(t *testing.T) {
	h := newHarness(t, sampleQuiz())
	ctx := context.Background()
	firstID := completeAttempt(t, h, "m1")

	grant, err := h.service.GrantRetake(ctx, "quiz-1", app.GrantRequest{
		Type:      domain.GrantIndividual,
		MemberID:  "m1",
		ExpiresAt: t0.Add(30 * time.Minute),
		Reason:    "network outage",
		GrantedBy: "teacher-1",
	})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}

	res, err := h.service.StartAttempt(ctx, "quiz-1", "m1")
	if err != nil {
		t.Fatalf("retake start: %v", err)
	}
	if res.Attempt.ID == firstID {
		t.Fatalf("retake must create a new attempt row")
	}
	if res.Attempt.RetakeGrantID != grant.ID {
		t.Fatalf("expected attempt to reference grant %s, got %q", grant.ID, res.Attempt.RetakeGrantID)
	}

	grants, _ := h.service.ListRetakes(ctx, "quiz-1")
	if len(grants) != 1 || !grants[0].Used || grants[0].UsedAt == nil || grants[0].UsedBy != "m1" {
		t.Fatalf("expected grant marked used, got %+v", grants)
	}

	if _, err := h.service.SubmitAttempt(ctx, "quiz-1", "m1", nil, false); err != nil {
		t.Fatalf("submit retake: %v", err)
	}
	_, err = h.service.StartAttempt(ctx, "quiz-1", "m1")
	expectDeclined(t, err, domain.ReasonAlreadyCompleted)
}

func TestIndividualRetakeOnlyForNamedMember(t *testing.T) {
	h := newHarness(t, sampleQuiz())
	ctx := context.Background()
	completeAttempt(t, h, "m1")
	completeAttempt(t, h, "m2")

	if _, err := h.service.GrantRetake(ctx, "quiz-1", app.GrantRequest{Type: domain.GrantIndividual, MemberID: "m1", ExpiresAt: t0.Add(time.Hour)}); err != nil {
		t.Fatalf("grant: %v", err)
	}
	_, err := h.service.StartAttempt(ctx, "quiz-1", "m2")
	expectDeclined(t, err, domain.ReasonAlreadyCompleted)
}

func TestClassWideRetakeConsumedByFirstMember(t *testing.T) {
	h := newHarness(t, sampleQuiz())
	ctx := context.Background()
	completeAttempt(t, h, "m1")
	completeAttempt(t, h, "m2")

	if _, err := h.service.GrantRetake(ctx, "quiz-1", app.GrantRequest{Type: domain.GrantClassWide, ExpiresAt: t0.Add(time.Hour)}); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, err := h.service.StartAttempt(ctx, "quiz-1", "m2"); err != nil {
		t.Fatalf("m2 retake: %v", err)
	}
	_, err := h.service.StartAttempt(ctx, "quiz-1", "m1")
	expectDeclined(t, err, domain.ReasonAlreadyCompleted)
}

func TestConcurrentRetakesConsumeGrantOnce(t *testing.T) {
	h := newHarness(t, sampleQuiz())
	ctx := context.Background()
	members := []string{"m1", "m2", "m3", "m4", "m5"}
	for _, m := range members {
		completeAttempt(t, h, m)
	}
	if _, err := h.service.GrantRetake(ctx, "quiz-1", app.GrantRequest{Type: domain.GrantClassWide, ExpiresAt: t0.Add(time.Hour)}); err != nil {
		t.Fatalf("grant: %v", err)
	}

	var mu sync.Mutex
	started := 0
	var wg sync.WaitGroup
	for _, m := range members {
		wg.Add(1)
		go func(m string) {
			defer wg.Done()
			_, err := h.service.StartAttempt(ctx, "quiz-1", m)
			if err == nil {
				mu.Lock()
				started++
				mu.Unlock()
				return
			}
			if reason, ok := domain.DeclineReason(err); !ok || reason != domain.ReasonAlreadyCompleted {
				t.Errorf("unexpected error for %s: %v", m, err)
			}
		}(m)
	}
	wg.Wait()
	if started != 1 {
		t.Fatalf("expected exactly one retake to start, got %d", started)
	}
}

func TestExpiredGrantDoesNotReopen(t *testing.T) {
	h := newHarness(t, sampleQuiz())
	ctx := context.Background()
	completeAttempt(t, h, "m1")

	if _, err := h.service.GrantRetake(ctx, "quiz-1", app.GrantRequest{Type: domain.GrantIndividual, MemberID: "m1", ExpiresAt: t0.Add(10 * time.Minute)}); err != nil {
		t.Fatalf("grant: %v", err)
	}
	h.clock.Set(t0.Add(10 * time.Minute))
	_, err := h.service.StartAttempt(ctx, "quiz-1", "m1")
	expectDeclined(t, err, domain.ReasonAlreadyCompleted)

	grants, _ := h.service.ListRetakes(ctx, "quiz-1")
	if len(grants) != 1 || grants[0].Used {
		t.Fatalf("expired grant should stay unused in the ledger, got %+v", grants)
	}
}

func TestDeclinedRetakeStartKeepsGrant(t *testing.T) {
	h := newHarness(t, sampleQuiz())
	ctx := context.Background()
	completeAttempt(t, h, "m1")
	if _, err := h.service.GrantRetake(ctx, "quiz-1", app.GrantRequest{Type: domain.GrantIndividual, MemberID: "m1", ExpiresAt: t0.Add(2 * time.Hour)}); err != nil {
		t.Fatalf("grant: %v", err)
	}

	h.clock.Set(t0.Add(59*time.Minute + 30*time.Second))
	_, err := h.service.StartAttempt(ctx, "quiz-1", "m1")
	expectDeclined(t, err, domain.ReasonInsufficientTime)

	grants, _ := h.service.ListRetakes(ctx, "quiz-1")
	if grants[0].Used {
		t.Fatalf("grant must not be consumed by a declined start")
	}
}

func TestGrantValidation(t *testing.T) {
	h := newHarness(t, sampleQuiz())
	ctx := context.Background()
	tests := []struct {
		name string
		req  app.GrantRequest
	}{
		{name: "individual without member", req: app.GrantRequest{Type: domain.GrantIndividual, ExpiresAt: t0.Add(time.Hour)}},
		{name: "class wide with member", req: app.GrantRequest{Type: domain.GrantClassWide, MemberID: "m1", ExpiresAt: t0.Add(time.Hour)}},
		{name: "unknown type", req: app.GrantRequest{Type: "everyone", ExpiresAt: t0.Add(time.Hour)}},
		{name: "expiry in the past", req: app.GrantRequest{Type: domain.GrantClassWide, ExpiresAt: t0}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.service.GrantRetake(ctx, "quiz-1", tc.req)
			expectDeclined(t, err, domain.ReasonInvalidGrant)
		})
	}
}

func TestClassWideCap(t *testing.T) {
	quiz := sampleQuiz()
	quiz.MaxClassWideRetakes = 2
	h := newHarness(t, quiz)
	ctx := context.Background()

	var last domain.RetakeGrant
	for i := 0; i < 2; i++ {
		g, err := h.service.GrantRetake(ctx, "quiz-1", app.GrantRequest{Type: domain.GrantClassWide, ExpiresAt: t0.Add(time.Hour)})
		if err != nil {
			t.Fatalf("grant %d: %v", i, err)
		}
		last = g
	}
	_, err := h.service.GrantRetake(ctx, "quiz-1", app.GrantRequest{Type: domain.GrantClassWide, ExpiresAt: t0.Add(time.Hour)})
	expectDeclined(t, err, domain.ReasonRetakeCapExceeded)

	// Revoked grants still count as issued.
	if err := h.service.RevokeRetake(ctx, last.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	_, err = h.service.GrantRetake(ctx, "quiz-1", app.GrantRequest{Type: domain.GrantClassWide, ExpiresAt: t0.Add(time.Hour)})
	expectDeclined(t, err, domain.ReasonRetakeCapExceeded)

	// Individual grants are not capped.
	if _, err := h.service.GrantRetake(ctx, "quiz-1", app.GrantRequest{Type: domain.GrantIndividual, MemberID: "m9", ExpiresAt: t0.Add(time.Hour)}); err != nil {
		t.Fatalf("individual grant: %v", err)
	}
}

func TestRevokeRetake(t *testing.T) {
	h := newHarness(t, sampleQuiz())
	ctx := context.Background()
	completeAttempt(t, h, "m1")

	unused, err := h.service.GrantRetake(ctx, "quiz-1", app.GrantRequest{Type: domain.GrantIndividual, MemberID: "m1", ExpiresAt: t0.Add(time.Hour)})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := h.service.RevokeRetake(ctx, unused.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := h.service.RevokeRetake(ctx, unused.ID); err != nil {
		t.Fatalf("second revoke should be acknowledged: %v", err)
	}
	_, err = h.service.StartAttempt(ctx, "quiz-1", "m1")
	expectDeclined(t, err, domain.ReasonAlreadyCompleted)

	used, err := h.service.GrantRetake(ctx, "quiz-1", app.GrantRequest{Type: domain.GrantIndividual, MemberID: "m1", ExpiresAt: t0.Add(time.Hour)})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if _, err := h.service.StartAttempt(ctx, "quiz-1", "m1"); err != nil {
		t.Fatalf("retake: %v", err)
	}
	expectDeclined(t, h.service.RevokeRetake(ctx, used.ID), domain.ReasonGrantUsed)
	expectDeclined(t, h.service.RevokeRetake(ctx, "no-such-grant"), domain.ReasonGrantNotFound)
}
