// Package config loads the flat key/value configuration file used by lsshkeys.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// DefaultPath is used when no configuration file is given on the command line.
const DefaultPath = "/etc/lsshkeys.conf"

// maxLineLength bounds a single configuration line.
const maxLineLength = 1024 * 1024

// Entry is a single key/value pair as read from the configuration file.
type Entry struct {
	Key   string
	Value string
}

// Map is an immutable, insertion-ordered view of a parsed configuration file.
// Keys are case-sensitive. When a key is defined more than once the last
// definition wins and the key is recorded in Overridden.
type Map struct {
	values     map[string]string
	order      []string
	overridden []string
}

// Parse reads configuration lines from r.
//
// A line whose first non-blank character is '#' is a comment. Otherwise the
// first whitespace-delimited token is the key and the rest of the line, with
// surrounding whitespace removed, is the value. Keys without a value are
// dropped.
func Parse(r io.Reader) (*Map, error) {
	m := &Map{values: make(map[string]string)}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineLength)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		key, value, ok := parseLine(scanner.Text())
		if !ok {
			continue
		}
		m.set(key, value)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read configuration after line %d: %w", lineNo, err)
	}

	return m, nil
}

// Load opens and parses the configuration file at path.
func Load(path string) (*Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open configuration file: %w", err)
	}
	defer f.Close()

	m, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func parseLine(line string) (key, value string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}

	idx := strings.IndexAny(line, " \t")
	if idx < 0 {
		// key with no value
		return "", "", false
	}

	key = line[:idx]
	value = strings.TrimSpace(line[idx+1:])
	if value == "" {
		return "", "", false
	}
	return key, value, true
}

func (m *Map) set(key, value string) {
	if _, seen := m.values[key]; seen {
		m.overridden = append(m.overridden, key)
	} else {
		m.order = append(m.order, key)
	}
	m.values[key] = value
}

// Exists reports whether key was defined with a non-empty value.
func (m *Map) Exists(key string) bool {
	if m == nil {
		return false
	}
	_, ok := m.values[key]
	return ok
}

// Get returns the value for key, or the empty string when it is absent.
func (m *Map) Get(key string) string {
	if m == nil {
		return ""
	}
	return m.values[key]
}

// Size returns the number of distinct keys.
func (m *Map) Size() int {
	if m == nil {
		return 0
	}
	return len(m.values)
}

// Entries returns every key/value pair in first-definition order.
func (m *Map) Entries() []Entry {
	if m == nil {
		return nil
	}
	entries := make([]Entry, 0, len(m.order))
	for _, key := range m.order {
		entries = append(entries, Entry{Key: key, Value: m.values[key]})
	}
	return entries
}

// Overridden lists keys whose earlier definitions were replaced by a later
// line, once per replaced definition.
func (m *Map) Overridden() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.overridden...)
}
