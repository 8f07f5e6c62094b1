package pipeline

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInvokeGeneratorSuccess(t *testing.T) {
	dir := t.TempDir()
	_, err := invokeGenerator(context.Background(), "sh", []string{"-c", "echo hi > output.md"}, dir, 5*time.Second)
	require.NoError(t, err)

	data, err := os.ReadFile(dir + "/output.md")
	require.NoError(t, err)
	require.Equal(t, "hi\n", string(data))
}

func TestInvokeGeneratorTimeout(t *testing.T) {
	dir := t.TempDir()
	_, err := invokeGenerator(context.Background(), "sh", []string{"-c", "sleep 5"}, dir, 50*time.Millisecond)
	require.Error(t, err)
	require.Contains(t, err.Error(), "timed out")
}

func TestInvokeGeneratorNonZeroExitStillReturnsLogAndNoError(t *testing.T) {
	dir := t.TempDir()
	log, err := invokeGenerator(context.Background(), "sh", []string{"-c", "echo partial > output.md && echo boom 1>&2 && exit 1"}, dir, 5*time.Second)
	require.NoError(t, err)
	require.Contains(t, log, "boom")

	data, err := os.ReadFile(dir + "/output.md")
	require.NoError(t, err)
	require.Equal(t, "partial\n", string(data))
}
