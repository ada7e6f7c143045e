package inspect

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/confinement-tools/mountns/internal/log"
	"github.com/confinement-tools/mountns/internal/mountinfo"
)

// ErrNoEntry is returned when no mount in the table covers a path
var ErrNoEntry = fmt.Errorf("path not covered by any mount")

// EntryForPath returns the mount entry whose mount point covers path. When
// mounts stack or nest, the entry latest in table order wins, which matches
// what the kernel resolves for that path. Returns nil when nothing covers
// path, which only happens on tables without a root mount.
func EntryForPath(t *mountinfo.Table, path string) *mountinfo.Entry {
	path = filepath.Clean(path)

	var best *mountinfo.Entry
	for e := t.First(); e != nil; e = e.Next() {
		if !covers(e.MountDir, path) {
			continue
		}
		if best == nil || len(e.MountDir) >= len(best.MountDir) {
			best = e
		}
	}
	return best
}

// covers reports whether a mount at dir contains path. Matching is on path
// component boundaries, so /mnt does not cover /mnt2.
func covers(dir, path string) bool {
	if dir == "/" {
		return true
	}
	return path == dir || strings.HasPrefix(path, dir+"/")
}

// BindMounts groups entries that expose the same filesystem subtree (same
// device numbers and same root within the filesystem) at more than one
// mount point. Groups and their members keep table order.
func BindMounts(t *mountinfo.Table) [][]*mountinfo.Entry {
	type subtree struct {
		major, minor uint
		root         string
	}

	seen := make(map[subtree]int)
	var groups [][]*mountinfo.Entry
	for e := t.First(); e != nil; e = e.Next() {
		key := subtree{e.DevMajor, e.DevMinor, e.Root}
		if i, ok := seen[key]; ok {
			groups[i] = append(groups[i], e)
			continue
		}
		seen[key] = len(groups)
		groups = append(groups, []*mountinfo.Entry{e})
	}

	var bound [][]*mountinfo.Entry
	for _, g := range groups {
		if len(g) > 1 {
			bound = append(bound, g)
		}
	}
	return bound
}

// Checker screens prospective sandbox paths against filesystem types that
// must not back a confined execution environment.
type Checker struct {
	unsafe map[string]bool
}

// defaultUnsafeFsTypes are filesystems a sandbox must not be built on:
// network filesystems do not honor local-only propagation assumptions and
// autofs mount points change underneath the sandbox.
var defaultUnsafeFsTypes = []string{"nfs", "nfs4", "cifs", "smb3", "autofs"}

// NewChecker creates a Checker with the default unsafe filesystem types
// plus any extra ones.
func NewChecker(extra ...string) *Checker {
	unsafe := make(map[string]bool, len(defaultUnsafeFsTypes)+len(extra))
	for _, fs := range defaultUnsafeFsTypes {
		unsafe[fs] = true
	}
	for _, fs := range extra {
		unsafe[fs] = true
	}
	return &Checker{unsafe: unsafe}
}

// Check verifies that path can host a sandbox given the current mount
// table: it must be covered by a mount and that mount's filesystem type
// must not be in the unsafe set. The subtype of "type.subtype" filesystems
// is ignored for screening.
func (c *Checker) Check(t *mountinfo.Table, path string) error {
	entry := EntryForPath(t, path)
	if entry == nil {
		return fmt.Errorf("%w: %s", ErrNoEntry, path)
	}

	fsType, _, _ := strings.Cut(entry.FsType, ".")
	if c.unsafe[fsType] {
		return fmt.Errorf("path %s is on unsafe filesystem %s (mounted at %s)",
			path, entry.FsType, entry.MountDir)
	}

	log.Debug("path accepted for sandbox use",
		"path", path, "mount", entry.MountDir, "fstype", entry.FsType)
	return nil
}
