package domain

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestTriggerEventNormalize(t *testing.T) {
	t.Parallel()

	event := TriggerEvent{
		ID:         "  weekly-1 ",
		Categories: []string{" tech", "", "ai", "tech", "  "},
		Recipient:  " reader@example.com ",
	}.Normalize()

	if event.ID != "weekly-1" {
		t.Fatalf("unexpected id: %q", event.ID)
	}
	if want := []string{"tech", "ai"}; !reflect.DeepEqual(event.Categories, want) {
		t.Fatalf("expected %v, got %v", want, event.Categories)
	}
	if event.Recipient != "reader@example.com" {
		t.Fatalf("unexpected recipient: %q", event.Recipient)
	}
	if event.Label() != "tech, ai" {
		t.Fatalf("unexpected label: %q", event.Label())
	}
}

func TestTriggerEventValidate(t *testing.T) {
	t.Parallel()

	cases := map[string]TriggerEvent{
		"no categories": {Recipient: "reader@example.com"},
		"no recipient":  {Categories: []string{"tech"}},
		"bad recipient": {Categories: []string{"tech"}, Recipient: "not-an-address"},
	}
	for name, event := range cases {
		if err := event.Validate(); !errors.Is(err, ErrInvalidTrigger) {
			t.Fatalf("%s: expected ErrInvalidTrigger, got %v", name, err)
		}
	}

	ok := TriggerEvent{Categories: []string{"tech"}, Recipient: "reader@example.com"}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid event rejected: %v", err)
	}
}

func TestTriggerEventRunIDIsStablePerKey(t *testing.T) {
	t.Parallel()

	a := TriggerEvent{ID: "weekly:2026-10-19"}
	b := TriggerEvent{ID: "weekly:2026-10-19"}
	c := TriggerEvent{ID: "weekly:2026-10-26"}

	if a.RunID() != b.RunID() {
		t.Fatalf("same key produced different ids: %s vs %s", a.RunID(), b.RunID())
	}
	if a.RunID() == c.RunID() {
		t.Fatalf("different keys produced the same id %s", a.RunID())
	}
	if (TriggerEvent{}).RunID() == (TriggerEvent{}).RunID() {
		t.Fatalf("keyless events must get distinct ids")
	}
}

func TestRunTransitions(t *testing.T) {
	t.Parallel()

	run := NewRun("run-1", TriggerEvent{Categories: []string{"tech"}, Recipient: "a@b.c"}, testTime)
	if err := run.Transition(RunCompleted, testTime); err == nil {
		t.Fatalf("pending -> completed must be rejected")
	}
	for _, next := range []RunStatus{RunRunning, RunFailed, RunRunning, RunCompleted} {
		if err := run.Transition(next, testTime); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}
	if err := run.Transition(RunRunning, testTime); err == nil {
		t.Fatalf("completed run must not be resumed")
	}
}

func TestStepErrorUnwrapsKindAndCause(t *testing.T) {
	t.Parallel()

	err := Fatal(ErrDelivery, ErrRecipientRejected)
	if !errors.Is(err, ErrDelivery) || !errors.Is(err, ErrRecipientRejected) {
		t.Fatalf("expected both kind and cause to match: %v", err)
	}
	class, ok := ClassOf(err)
	if !ok || class != ClassFatal {
		t.Fatalf("expected fatal class, got %v (%v)", class, ok)
	}
	if _, ok := ClassOf(errors.New("plain")); ok {
		t.Fatalf("plain errors carry no class")
	}
}

var testTime = time.Date(2026, time.October, 19, 6, 0, 0, 0, time.UTC)
