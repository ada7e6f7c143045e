package mountinfo

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// DefaultPath is the mountinfo table of the calling process.
const DefaultPath = "/proc/self/mountinfo"

// Table is an insertion-ordered collection of mount entries. It is built in
// one pass and never mutated afterwards, so concurrent readers need no
// locking. Iteration is forward-only, from First through Entry.Next.
type Table struct {
	first *Entry
	last  *Entry
	count int
}

// First returns the first entry of the table, or nil for an empty table.
func (t *Table) First() *Entry {
	return t.first
}

// Len returns the number of entries in the table.
func (t *Table) Len() int {
	return t.count
}

func (t *Table) append(e *Entry) {
	if t.last != nil {
		t.last.next = e
	} else {
		t.first = e
	}
	t.last = e
	t.count++
}

// Parse reads mountinfo lines from r and builds a table. One malformed line
// or read error fails the whole table; there is no partial result. A source
// with zero lines yields an empty table.
func Parse(r io.Reader) (*Table, error) {
	table := &Table{}
	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		entry, err := ParseEntry(scanner.Text())
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineno, err)
		}
		table.append(entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return table, nil
}

// Load parses the mountinfo table at path. An empty path means DefaultPath.
func Load(path string) (*Table, error) {
	if path == "" {
		path = DefaultPath
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	table, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return table, nil
}
