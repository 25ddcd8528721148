package review_test

import (
	"errors"
	"testing"
	"time"

	"github.com/tailored-agentic-units/coursegraph/engine/review"
)

func TestParseAction(t *testing.T) {
	tests := []struct {
		input   string
		want    review.Action
		wantErr bool
	}{
		{"approve", review.ActionApprove, false},
		{"reject", review.ActionReject, false},
		{"continue", review.ActionContinue, false},
		{"", "", true},
		{"Approve", "", true},
		{"skip", "", true},
	}

	for _, tt := range tests {
		got, err := review.ParseAction(tt.input)
		if tt.wantErr {
			if !errors.Is(err, review.ErrInvalidAction) {
				t.Errorf("ParseAction(%q): expected ErrInvalidAction, got %v", tt.input, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseAction(%q): unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseAction(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestController_PauseDecideConsume(t *testing.T) {
	ctrl := review.NewController()

	req, err := ctrl.Pause("run-1", "structure", "payload", time.Time{})
	if err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if req.RunID != "run-1" || req.Subject != "structure" {
		t.Errorf("unexpected request: %+v", req)
	}
	if req.Status != review.StatusPending {
		t.Errorf("expected pending status, got %s", req.Status)
	}

	decision := review.Decision{
		Subject:  "structure",
		Action:   review.ActionReject,
		Feedback: "broaden the scope",
	}
	if err := ctrl.Decide(req.ID, decision); err != nil {
		t.Fatalf("decide failed: %v", err)
	}

	gotReq, gotDecision, err := ctrl.Consume("run-1")
	if err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	if gotReq.ID != req.ID {
		t.Errorf("consumed wrong request: %s", gotReq.ID)
	}
	if gotDecision.Action != review.ActionReject || gotDecision.Feedback != "broaden the scope" {
		t.Errorf("unexpected decision: %+v", gotDecision)
	}

	// The pause instance is gone after consume.
	if _, _, err := ctrl.Consume("run-1"); !errors.Is(err, review.ErrNoPending) {
		t.Errorf("expected ErrNoPending after consume, got %v", err)
	}
}

func TestController_OnePauserPerRun(t *testing.T) {
	ctrl := review.NewController()

	if _, err := ctrl.Pause("run-1", "structure", nil, time.Time{}); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if _, err := ctrl.Pause("run-1", "content", nil, time.Time{}); !errors.Is(err, review.ErrAlreadyPending) {
		t.Errorf("expected ErrAlreadyPending, got %v", err)
	}

	// Other runs are unaffected.
	if _, err := ctrl.Pause("run-2", "structure", nil, time.Time{}); err != nil {
		t.Errorf("independent run could not pause: %v", err)
	}
}

func TestController_ExactlyOneDecision(t *testing.T) {
	ctrl := review.NewController()

	req, err := ctrl.Pause("run-1", "structure", nil, time.Time{})
	if err != nil {
		t.Fatalf("pause failed: %v", err)
	}

	first := review.Decision{Subject: "structure", Action: review.ActionApprove}
	if err := ctrl.Decide(req.ID, first); err != nil {
		t.Fatalf("first decision failed: %v", err)
	}

	second := review.Decision{Subject: "structure", Action: review.ActionReject}
	if err := ctrl.Decide(req.ID, second); !errors.Is(err, review.ErrAlreadyResolved) {
		t.Errorf("expected ErrAlreadyResolved for duplicate decision, got %v", err)
	}

	// The first decision wins.
	_, decision, err := ctrl.Consume("run-1")
	if err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	if decision.Action != review.ActionApprove {
		t.Errorf("expected first decision to win, got %s", decision.Action)
	}
}

func TestController_DecideValidation(t *testing.T) {
	ctrl := review.NewController()

	if err := ctrl.Decide("rev_unknown", review.Decision{Action: review.ActionApprove}); !errors.Is(err, review.ErrNoPending) {
		t.Errorf("expected ErrNoPending for unknown request, got %v", err)
	}

	req, err := ctrl.Pause("run-1", "structure", nil, time.Time{})
	if err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if err := ctrl.Decide(req.ID, review.Decision{Action: "maybe"}); !errors.Is(err, review.ErrInvalidAction) {
		t.Errorf("expected ErrInvalidAction, got %v", err)
	}
}

func TestController_ConsumeBeforeDecision(t *testing.T) {
	ctrl := review.NewController()

	if _, err := ctrl.Pause("run-1", "structure", nil, time.Time{}); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	if _, _, err := ctrl.Consume("run-1"); !errors.Is(err, review.ErrNoDecision) {
		t.Errorf("expected ErrNoDecision, got %v", err)
	}
}

func TestController_Expiry(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: now}
	ctrl := review.NewControllerWithClock(clock.Now)

	deadline := now.Add(10 * time.Minute)
	_, err := ctrl.Pause("run-1", "content", nil, deadline)
	if err != nil {
		t.Fatalf("pause failed: %v", err)
	}

	// Before the deadline nothing expires.
	if ctrl.PollTimeout("run-1") {
		t.Error("PollTimeout reported expiry before deadline")
	}
	if _, err := ctrl.Expire("run-1", review.ActionContinue); !errors.Is(err, review.ErrNoDecision) {
		t.Errorf("expected ErrNoDecision before deadline, got %v", err)
	}

	clock.now = deadline.Add(time.Second)

	if !ctrl.PollTimeout("run-1") {
		t.Fatal("PollTimeout did not report expiry after deadline")
	}

	decision, err := ctrl.Expire("run-1", review.ActionContinue)
	if err != nil {
		t.Fatalf("expire failed: %v", err)
	}
	if decision.Action != review.ActionContinue || !decision.Synthesized {
		t.Errorf("unexpected synthesized decision: %+v", decision)
	}

	gotReq, gotDecision, err := ctrl.Consume("run-1")
	if err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	if gotReq.Status != review.StatusExpired {
		t.Errorf("expected expired request status, got %s", gotReq.Status)
	}
	if !gotDecision.Synthesized {
		t.Error("expected synthesized decision from consume")
	}
}

func TestController_ExpireLosesRaceToDecision(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: now}
	ctrl := review.NewControllerWithClock(clock.Now)

	req, err := ctrl.Pause("run-1", "quiz", nil, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("pause failed: %v", err)
	}

	clock.now = now.Add(2 * time.Minute)

	// A decision posted after the deadline but before Expire still wins.
	if err := ctrl.Decide(req.ID, review.Decision{Action: review.ActionApprove}); err != nil {
		t.Fatalf("decide failed: %v", err)
	}
	if _, err := ctrl.Expire("run-1", review.ActionContinue); !errors.Is(err, review.ErrAlreadyResolved) {
		t.Errorf("expected ErrAlreadyResolved, got %v", err)
	}

	_, decision, err := ctrl.Consume("run-1")
	if err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	if decision.Synthesized || decision.Action != review.ActionApprove {
		t.Errorf("posted decision should win the race: %+v", decision)
	}
}

func TestController_NoDeadlineNeverExpires(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: now}
	ctrl := review.NewControllerWithClock(clock.Now)

	if _, err := ctrl.Pause("run-1", "structure", nil, time.Time{}); err != nil {
		t.Fatalf("pause failed: %v", err)
	}

	clock.now = now.AddDate(1, 0, 0)
	if ctrl.PollTimeout("run-1") {
		t.Error("request without deadline reported expiry")
	}
}

func TestController_Rehydrate(t *testing.T) {
	ctrl := review.NewController()

	recovered := &review.Request{
		ID:      "rev_recovered",
		RunID:   "run-1",
		Subject: "structure",
		Status:  review.StatusPending,
	}
	ctrl.Rehydrate(recovered)

	got, exists := ctrl.Get("run-1")
	if !exists || got.ID != "rev_recovered" {
		t.Fatalf("rehydrated request not found: %+v", got)
	}

	// Rehydrating again, or with a resolved request, is a no-op.
	ctrl.Rehydrate(&review.Request{ID: "rev_other", RunID: "run-1", Status: review.StatusPending})
	got, _ = ctrl.Get("run-1")
	if got.ID != "rev_recovered" {
		t.Errorf("rehydrate overwrote tracked request: %s", got.ID)
	}

	ctrl.Rehydrate(&review.Request{ID: "rev_done", RunID: "run-2", Status: review.StatusResolved})
	if _, exists := ctrl.Get("run-2"); exists {
		t.Error("resolved request should not be rehydrated")
	}
}

func TestController_Discard(t *testing.T) {
	ctrl := review.NewController()

	if _, err := ctrl.Pause("run-1", "structure", nil, time.Time{}); err != nil {
		t.Fatalf("pause failed: %v", err)
	}
	ctrl.Discard("run-1")

	if _, exists := ctrl.Get("run-1"); exists {
		t.Error("discarded request still tracked")
	}
	if _, err := ctrl.Pause("run-1", "structure", nil, time.Time{}); err != nil {
		t.Errorf("pause after discard failed: %v", err)
	}
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}
