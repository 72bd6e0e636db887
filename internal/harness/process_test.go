//go:build unix

package harness

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrycli/quarry/internal/errs"
)

// writeScript drops an executable shell script into dir and returns its path.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestSpawn_PortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	dir := t.TempDir()
	bin := writeScript(t, dir, "noop.sh", "sleep 10")

	_, err = Spawn(context.Background(), SpawnOptions{
		Workspace: dir,
		Binary:    bin,
		Port:      port,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.PortInUse)
}

func TestSpawn_ReadinessTimeoutKillsChild(t *testing.T) {
	dir := t.TempDir()
	bin := writeScript(t, dir, "never-binds.sh", "sleep 60")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	start := time.Now()
	_, err = Spawn(context.Background(), SpawnOptions{
		Workspace:        dir,
		Binary:           bin,
		Port:             port,
		ReadinessTimeout: 300 * time.Millisecond,
		GracefulTimeout:  200 * time.Millisecond,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ReadinessTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSpawn_CapturesOutputAndTearsDown(t *testing.T) {
	dir := t.TempDir()
	bin := writeScript(t, dir, "chatty.sh", "echo out-line\necho err-line >&2\nsleep 10")

	child, err := Spawn(context.Background(), SpawnOptions{
		Workspace:       dir,
		Binary:          bin,
		GracefulTimeout: 300 * time.Millisecond,
	})
	require.NoError(t, err)

	time.Sleep(150 * time.Millisecond)
	assert.Contains(t, child.Stdout(), "out-line")
	assert.Contains(t, child.Stderr(), "err-line")

	require.NoError(t, child.Teardown())

	// A second teardown is harmless, and the process is really gone.
	require.NoError(t, child.Teardown())
	exited, _, err := child.Wait(time.Second)
	require.NoError(t, err)
	assert.True(t, exited)
}

func TestWait_ReportsExitCode(t *testing.T) {
	dir := t.TempDir()
	bin := writeScript(t, dir, "fail.sh", "exit 3")

	child, err := Spawn(context.Background(), SpawnOptions{Workspace: dir, Binary: bin})
	require.NoError(t, err)
	defer child.Teardown()

	exited, code, err := child.Wait(2 * time.Second)
	require.NoError(t, err)
	assert.True(t, exited)
	assert.Equal(t, 3, code)
}

func TestSignal_DeliversSIGTERM(t *testing.T) {
	dir := t.TempDir()
	bin := writeScript(t, dir, "trap.sh", "trap 'exit 0' TERM\nwhile true; do sleep 0.1; done")

	child, err := Spawn(context.Background(), SpawnOptions{Workspace: dir, Binary: bin})
	require.NoError(t, err)
	defer child.Teardown()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, child.Signal(syscall.SIGTERM))

	exited, code, err := child.Wait(2 * time.Second)
	require.NoError(t, err)
	assert.True(t, exited)
	assert.Equal(t, 0, code)
}

func TestRingBuffer_KeepsTail(t *testing.T) {
	rb := newRingBuffer(16)
	for i := 0; i < 10; i++ {
		_, err := fmt.Fprintf(rb, "%04d", i)
		require.NoError(t, err)
	}
	s := rb.String()
	assert.Len(t, s, 16)
	assert.True(t, strings.HasSuffix(s, "0009"))
	assert.False(t, strings.Contains(s, "0000"))
}
