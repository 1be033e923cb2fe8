package db

import (
	"context"
	"errors"
	"testing"
)

func TestNoTx_RunsFn(t *testing.T) {
	called := false
	err := NoTx{}.WithTx(context.Background(), func(ctx context.Context) error {
		called = true
		if TxFromContext(ctx) != nil {
			t.Error("expected no transaction in context")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected fn to be called")
	}

	want := errors.New("fail")
	if got := (NoTx{}).WithTx(context.Background(), func(context.Context) error { return want }); got != want {
		t.Errorf("expected fn error to propagate, got %v", got)
	}
}

func TestConnFromContext_Fallback(t *testing.T) {
	var fallback Querier
	if got := ConnFromContext(context.Background(), fallback); got != nil {
		t.Errorf("expected nil fallback, got %v", got)
	}
}
