//go:build integration

package integration

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/confinement-tools/mountns/internal/mountinfo"
)

func TestListShowsLiveMounts(t *testing.T) {
	dir := uniqueMountDir(t)
	mountTmpfs(t, dir)

	output := runTool(t, "list")
	require.Contains(t, output, dir, "new tmpfs mount should be listed")

	var line string
	for _, l := range strings.Split(output, "\n") {
		if strings.Contains(l, dir) {
			line = l
			break
		}
	}
	assert.Contains(t, line, "tmpfs")
}

func TestListAgreesWithKernelTable(t *testing.T) {
	raw, err := testTool.ReadFile("/proc/self/mountinfo")
	require.NoError(t, err)

	table, err := mountinfo.Parse(strings.NewReader(raw))
	require.NoError(t, err, "live kernel table must parse cleanly")
	require.Greater(t, table.Len(), 0)

	var rootSeen bool
	for e := table.First(); e != nil; e = e.Next() {
		if e.MountDir == "/" {
			rootSeen = true
		}
	}
	assert.True(t, rootSeen, "table must contain the root mount")
}

func TestListShowsBindMountPropagation(t *testing.T) {
	src := uniqueMountDir(t)
	mountTmpfs(t, src)
	dst := uniqueMountDir(t)
	bindMount(t, src, dst)

	raw, err := testTool.ReadFile("/proc/self/mountinfo")
	require.NoError(t, err)
	table, err := mountinfo.Parse(strings.NewReader(raw))
	require.NoError(t, err)

	var srcEntry, dstEntry *mountinfo.Entry
	for e := table.First(); e != nil; e = e.Next() {
		switch e.MountDir {
		case src:
			srcEntry = e
		case dst:
			dstEntry = e
		}
	}
	require.NotNil(t, srcEntry)
	require.NotNil(t, dstEntry, "bind mount must appear as its own entry")
	assert.Equal(t, srcEntry.DevMajor, dstEntry.DevMajor)
	assert.Equal(t, srcEntry.DevMinor, dstEntry.DevMinor)
	assert.Equal(t, srcEntry.Root, dstEntry.Root)
}
