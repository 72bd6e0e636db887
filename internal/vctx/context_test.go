package vctx

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrycli/quarry/internal/errs"
)

func TestBuild_ResolvesAndAllocatesScratch(t *testing.T) {
	dir := t.TempDir()

	ctx, cleanup, err := Build(Options{Workspace: dir, Runtime: RuntimeGo, TaskID: "t1"})
	require.NoError(t, err)

	assert.Equal(t, dir, ctx.Workspace)
	assert.NotEmpty(t, ctx.AttemptID)
	assert.DirExists(t, ctx.ScratchDir)

	cleanup()
	_, statErr := os.Stat(ctx.ScratchDir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestBuild_MissingWorkspace(t *testing.T) {
	_, _, err := Build(Options{Workspace: "/does/not/exist"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.WorkspaceMissing)
}

func TestExpired(t *testing.T) {
	dir := t.TempDir()

	ctx, cleanup, err := Build(Options{Workspace: dir, GlobalTimeout: time.Nanosecond})
	require.NoError(t, err)
	defer cleanup()

	time.Sleep(time.Millisecond)
	assert.True(t, ctx.Expired())
}

func TestProgress_NilCallbackIsNoop(t *testing.T) {
	dir := t.TempDir()

	ctx, cleanup, err := Build(Options{Workspace: dir})
	require.NoError(t, err)
	defer cleanup()

	assert.NotPanics(t, func() { ctx.Progress("still working") })

	var got string
	ctx2, cleanup2, err := Build(Options{Workspace: dir, ProgressFn: func(m string) { got = m }})
	require.NoError(t, err)
	defer cleanup2()
	ctx2.Progress("pulling image")
	assert.Equal(t, "pulling image", got)
}
