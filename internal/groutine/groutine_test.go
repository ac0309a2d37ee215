package groutine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGoPropagatesName(t *testing.T) {
	names := make(chan string, 1)

	Go(context.Background(), "die-loop", func(ctx context.Context) {
		names <- GetName(ctx)
	})

	select {
	case name := <-names:
		assert.Equal(t, "die-loop", name)
	case <-time.After(time.Second):
		t.Fatal("goroutine did not run")
	}
}

func TestGoDoneClosesAfterReturn(t *testing.T) {
	//nolint:staticcheck // nil parent is part of the contract
	done := GoDone(nil, "timeout-guard", func(ctx context.Context) {})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("done channel not closed")
	}
}

func TestGetNameWithoutName(t *testing.T) {
	assert.Equal(t, "", GetName(context.Background()))
	//nolint:staticcheck // nil context is handled explicitly
	assert.Equal(t, "", GetName(nil))
}
