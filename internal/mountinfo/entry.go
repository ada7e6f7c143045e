package mountinfo

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Entry is a single record from /proc/<pid>/mountinfo. The format is
// described in the kernel documentation
// (Documentation/filesystems/proc.txt), for example:
//
//	36 35 98:0 /mnt1 /mnt2 rw,noatime master:1 - ext3 /dev/root rw,errors=continue
//
// String fields are never a missing-value marker: a field that was empty in
// the source is an empty string, including OptionalFields when no optional
// field preceded the "-" separator.
type Entry struct {
	// MountID identifies the mount; IDs are reused after unmount, so they
	// are not stable keys across successive parses
	MountID int
	// ParentID is the mount ID of the parent, or of the entry itself at
	// the top of the mount tree
	ParentID int
	// DevMajor and DevMinor are the st_dev numbers for files on the
	// filesystem
	DevMajor uint
	DevMinor uint
	// Root is the root of the mount within its filesystem
	Root string
	// MountDir is the mount point relative to the process's root
	MountDir string
	// MountOpts are the per-mount options
	MountOpts string
	// OptionalFields are zero or more "tag[:value]" fields, space joined
	OptionalFields string
	// FsType is the filesystem type in the form "type[.subtype]"
	FsType string
	// MountSource is filesystem-specific information or "none"
	MountSource string
	// SuperOpts are the per-superblock options
	SuperOpts string

	next *Entry
}

// Next returns the entry that follows e in its table, or nil for the last
// entry. Iteration order is source line order.
func (e *Entry) Next() *Entry {
	return e.next
}

// ErrMalformed is wrapped by every grammar error reported by ParseEntry.
// It lets callers tell malformed input apart from I/O failures.
var ErrMalformed = errors.New("malformed mountinfo entry")

// lineScanner walks a mountinfo line left to right. String fields are
// returned as substrings of the input, so a parsed entry shares storage
// with its own line and nothing else.
type lineScanner struct {
	line string
	pos  int
}

func (s *lineScanner) skipSpaces() {
	for s.pos < len(s.line) && s.line[s.pos] == ' ' {
		s.pos++
	}
}

// nextField consumes one space-delimited field along with its trailing
// delimiter. A field that starts at a delimiter is present but empty and is
// returned as "", never as an error.
func (s *lineScanner) nextField() (string, error) {
	if s.pos >= len(s.line) {
		return "", fmt.Errorf("%w: truncated line", ErrMalformed)
	}
	if s.line[s.pos] == ' ' {
		s.pos++
		return "", nil
	}
	start := s.pos
	for s.pos < len(s.line) && s.line[s.pos] != ' ' {
		s.pos++
	}
	field := s.line[start:s.pos]
	if s.pos < len(s.line) {
		s.pos++
	}
	return field, nil
}

// nextInt consumes a decimal integer, skipping leading spaces.
func (s *lineScanner) nextInt(name string) (int, error) {
	s.skipSpaces()
	start := s.pos
	if s.pos < len(s.line) && (s.line[s.pos] == '-' || s.line[s.pos] == '+') {
		s.pos++
	}
	for s.pos < len(s.line) && s.line[s.pos] >= '0' && s.line[s.pos] <= '9' {
		s.pos++
	}
	n, err := strconv.Atoi(s.line[start:s.pos])
	if err != nil {
		return 0, fmt.Errorf("%w: bad %s", ErrMalformed, name)
	}
	return n, nil
}

// nextUint consumes an unsigned decimal integer, skipping leading spaces.
func (s *lineScanner) nextUint(name string) (uint, error) {
	s.skipSpaces()
	start := s.pos
	for s.pos < len(s.line) && s.line[s.pos] >= '0' && s.line[s.pos] <= '9' {
		s.pos++
	}
	n, err := strconv.ParseUint(s.line[start:s.pos], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: bad %s", ErrMalformed, name)
	}
	return uint(n), nil
}

func (s *lineScanner) expect(c byte, name string) error {
	if s.pos >= len(s.line) || s.line[s.pos] != c {
		return fmt.Errorf("%w: bad %s", ErrMalformed, name)
	}
	s.pos++
	return nil
}

// ParseEntry parses one mountinfo line into an Entry. The trailing newline
// may be present or already stripped. On any grammar violation no entry is
// returned; a partially populated entry is never observable.
func ParseEntry(line string) (*Entry, error) {
	line = strings.TrimSuffix(line, "\n")

	s := &lineScanner{line: line}
	e := &Entry{}

	var err error
	if e.MountID, err = s.nextInt("mount ID"); err != nil {
		return nil, err
	}
	if e.ParentID, err = s.nextInt("parent ID"); err != nil {
		return nil, err
	}
	if e.DevMajor, err = s.nextUint("device major"); err != nil {
		return nil, err
	}
	if err = s.expect(':', "device number separator"); err != nil {
		return nil, err
	}
	if e.DevMinor, err = s.nextUint("device minor"); err != nil {
		return nil, err
	}
	s.skipSpaces()

	if e.Root, err = s.nextField(); err != nil {
		return nil, err
	}
	if e.MountDir, err = s.nextField(); err != nil {
		return nil, err
	}
	if e.MountOpts, err = s.nextField(); err != nil {
		return nil, err
	}

	// Zero or more optional fields, terminated by a mandatory "-" token.
	// The terminator is consumed and discarded; the fields before it are
	// re-joined with single spaces. Empty fields stay empty in the join,
	// matching the source byte for byte when spaces were doubled.
	var optional []string
	for {
		field, err := s.nextField()
		if err != nil {
			return nil, fmt.Errorf("%w: missing optional field terminator", ErrMalformed)
		}
		if field == "-" {
			break
		}
		optional = append(optional, field)
	}
	e.OptionalFields = strings.Join(optional, " ")

	if e.FsType, err = s.nextField(); err != nil {
		return nil, err
	}
	if e.MountSource, err = s.nextField(); err != nil {
		return nil, err
	}
	if e.SuperOpts, err = s.nextField(); err != nil {
		return nil, err
	}

	return e, nil
}
