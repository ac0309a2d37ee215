package main

import (
	"bytes"
	"context"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterruptContextCancelsOnSignal(t *testing.T) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	ctx, stop := interruptContext(context.Background(), cmd)
	defer stop()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("a termination signal MUST cancel the context")
	}
	assert.Contains(t, out.String(), "cancelling...")
}

func TestInterruptContextStop(t *testing.T) {
	ctx, stop := interruptContext(context.Background(), &cobra.Command{})
	stop()

	assert.ErrorIs(t, ctx.Err(), context.Canceled, "stop MUST cancel the context")
}
