package db

import (
	"context"
	"errors"
	"testing"
)

func TestTxFromContext(t *testing.T) {
	if TxFromContext(context.Background()) != nil {
		t.Error("expected nil tx from empty context")
	}
	ctx := context.WithValue(context.Background(), DBTxKey, "not-a-tx")
	if TxFromContext(ctx) != nil {
		t.Error("expected nil when context value is wrong type")
	}
}

func TestWithTx_NoConnection(t *testing.T) {
	_, _, err := WithTx(context.Background())
	if err == nil {
		t.Fatal("expected error when no connection in context")
	}
	if err.Error() != "no database connection in context" {
		t.Errorf("unexpected error message: %s", err.Error())
	}
}

func TestRunInTx_WithoutConnectionRunsDirectly(t *testing.T) {
	ran := false
	err := RunInTx(context.Background(), func(ctx context.Context) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Error("expected fn to run")
	}

	want := errors.New("rule violated")
	if got := RunInTx(context.Background(), func(context.Context) error { return want }); !errors.Is(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestAfterCommit_OutsideTxRunsNow(t *testing.T) {
	ran := false
	AfterCommit(context.Background(), func(context.Context) { ran = true })
	if !ran {
		t.Error("expected hook to run immediately")
	}
}

func TestAfterCommit_DeferredToOutermostTx(t *testing.T) {
	var events []string
	err := RunInTx(context.Background(), func(ctx context.Context) error {
		AfterCommit(ctx, func(context.Context) { events = append(events, "outer hook") })
		err := RunInTx(ctx, func(ctx context.Context) error {
			AfterCommit(ctx, func(context.Context) { events = append(events, "inner hook") })
			return nil
		})
		events = append(events, "inner done")
		return err
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"inner done", "outer hook", "inner hook"}
	if len(events) != len(want) {
		t.Fatalf("expected %v, got %v", want, events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d: expected %q, got %q", i, want[i], events[i])
		}
	}
}

func TestAfterCommit_DroppedOnError(t *testing.T) {
	ran := false
	_ = RunInTx(context.Background(), func(ctx context.Context) error {
		AfterCommit(ctx, func(context.Context) { ran = true })
		return errors.New("rule violated")
	})
	if ran {
		t.Error("expected hook to be dropped when fn fails")
	}
}
