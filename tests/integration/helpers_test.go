//go:build integration

package integration

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// uniqueMountDir creates a fresh directory in the VM for a test to mount
// over and registers teardown for both the mount and the directory.
func uniqueMountDir(t *testing.T) string {
	t.Helper()
	// Keep names free of characters systemd escapes in unit names.
	dir := fmt.Sprintf("/mnt/test%s%d", sanitize(t.Name()), time.Now().UnixNano()%10000)

	_, err := testVM.Run(fmt.Sprintf("sudo mkdir -p %s", dir))
	require.NoError(t, err, "create mount dir %s", dir)

	t.Cleanup(func() {
		_, _ = testVM.Run(fmt.Sprintf("sudo umount %s 2>/dev/null || true", dir))
		_, _ = testVM.Run(fmt.Sprintf("sudo rmdir %s 2>/dev/null || true", dir))
	})
	return dir
}

func sanitize(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' {
			out = append(out, c)
		}
	}
	return string(out)
}

// mountTmpfs mounts a small tmpfs at dir in the VM
func mountTmpfs(t *testing.T, dir string) {
	t.Helper()
	output, err := testVM.Run(fmt.Sprintf("sudo mount -t tmpfs -o size=1m tmpfs %s", dir))
	require.NoError(t, err, "mount tmpfs at %s: %s", dir, output)
}

// bindMount bind-mounts src onto dst in the VM
func bindMount(t *testing.T, src, dst string) {
	t.Helper()
	output, err := testVM.Run(fmt.Sprintf("sudo mount --bind %s %s", src, dst))
	require.NoError(t, err, "bind mount %s onto %s: %s", src, dst, output)
}

// runTool runs mountns in the VM and fails the test on a non-zero exit
func runTool(t *testing.T, args ...string) string {
	t.Helper()
	output, err := testTool.Run(args...)
	require.NoError(t, err, "mountns %v: %s", args, output)
	return output
}
