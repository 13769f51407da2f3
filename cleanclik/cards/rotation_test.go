package cards

import (
	"context"
	"errors"
	"testing"
)

type fakeRotationStore struct {
	counters map[string]int
	err      error
	calls    int
}

func (f *fakeRotationStore) Peek(ctx context.Context, userID string, cycle int) (int, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.counters[userID] % cycle, nil
}

func (f *fakeRotationStore) Advance(ctx context.Context, userID string, cycle int) (int, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	if f.counters == nil {
		f.counters = make(map[string]int)
	}
	index := f.counters[userID] % cycle
	f.counters[userID] = (index + 1) % cycle
	return index, nil
}

func TestRotator_FullCycle(t *testing.T) {
	store := &fakeRotationStore{}
	rotator := NewRotator(store)

	want := []TemplateKind{
		TemplateAchievement, TemplateImpact, TemplateProgress,
		TemplateAchievement, TemplateImpact, TemplateProgress,
	}

	for i, kind := range want {
		got := rotator.Next(context.Background(), "u1")
		if got != kind {
			t.Errorf("Next() call %d = %q, want %q", i, got, kind)
		}
		rotator.Commit(context.Background(), "u1")
	}
}

func TestRotator_Next_RepeatsUntilCommit(t *testing.T) {
	store := &fakeRotationStore{}
	rotator := NewRotator(store)

	first := rotator.Next(context.Background(), "u1")
	second := rotator.Next(context.Background(), "u1")
	if first != second {
		t.Fatalf("Next() moved without Commit: %q then %q", first, second)
	}

	rotator.Commit(context.Background(), "u1")
	if got := rotator.Next(context.Background(), "u1"); got != TemplateImpact {
		t.Errorf("Next() after Commit = %q, want %q", got, TemplateImpact)
	}
}

func TestRotator_PerUserCounters(t *testing.T) {
	store := &fakeRotationStore{}
	rotator := NewRotator(store)

	rotator.Commit(context.Background(), "u1")
	rotator.Commit(context.Background(), "u1")

	// A fresh user starts at the beginning of the cycle
	if got := rotator.Next(context.Background(), "u2"); got != TemplateAchievement {
		t.Errorf("Next() for fresh user = %q, want %q", got, TemplateAchievement)
	}
	// u1 keeps its own position
	if got := rotator.Next(context.Background(), "u1"); got != TemplateProgress {
		t.Errorf("Next() for u1 = %q, want %q", got, TemplateProgress)
	}
}

func TestRotator_Next_StoreErrorFallsBack(t *testing.T) {
	store := &fakeRotationStore{err: errors.New("connection refused")}
	rotator := NewRotator(store)

	if got := rotator.Next(context.Background(), "u1"); got != TemplateAchievement {
		t.Errorf("Next() = %q, want cycle start %q", got, TemplateAchievement)
	}
}

func TestKindAt_WrapsCycle(t *testing.T) {
	if got := KindAt(0); got != TemplateAchievement {
		t.Errorf("KindAt(0) = %q, want %q", got, TemplateAchievement)
	}
	if got := KindAt(4); got != TemplateImpact {
		t.Errorf("KindAt(4) = %q, want %q", got, TemplateImpact)
	}
}
