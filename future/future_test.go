package future

import (
	"errors"
	"testing"
)

func TestFutureSuccessIdempotent(t *testing.T) {
	f := New()
	f.Success()
	f.Success()
	if err := f.Err(); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !f.IsDone() {
		t.Fatalf("expected IsDone true")
	}
}

func TestFutureFailFirstWriterWins(t *testing.T) {
	f := New()
	first := errors.New("first")
	f.Fail(first)
	f.Fail(errors.New("second"))
	if err := f.Err(); err != first {
		t.Fatalf("expected first error to win, got %v", err)
	}
}

func TestMergingSucceedsWhenAllChildrenSucceed(t *testing.T) {
	a, b := New(), New()
	m := NewMerging(a, b)
	a.Success()
	b.Success()
	if err := m.Err(); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestMergingFailsOnFirstChildFailure(t *testing.T) {
	a, b := New(), New()
	m := NewMerging(a, b)
	cause := errors.New("boom")
	a.Fail(cause)
	b.Success()
	if err := m.Err(); err != cause {
		t.Fatalf("expected cause %v, got %v", cause, err)
	}
}

func TestMergingWithNoChildrenSucceedsImmediately(t *testing.T) {
	m := NewMerging()
	if !m.IsDone() {
		t.Fatalf("expected zero-children merge to complete immediately")
	}
}
