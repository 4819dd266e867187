package ldap

import (
	"bufio"
	"fmt"
	"io"

	"github.com/go-ldap/ldap/v3"
)

// CountEntries returns the number of entries in result.
func CountEntries(result *ldap.SearchResult) int {
	if result == nil {
		return 0
	}
	return len(result.Entries)
}

// SingleEntry returns the only entry of result. It returns nil without an
// error when there are no entries and ErrAmbiguousResult when there is more
// than one.
func SingleEntry(result *ldap.SearchResult, username string) (*ldap.Entry, error) {
	switch n := CountEntries(result); n {
	case 0:
		return nil, nil
	case 1:
		return result.Entries[0], nil
	default:
		return nil, fmt.Errorf("%w for user '%s' (%d entries)", ErrAmbiguousResult, username, n)
	}
}

// ExtractAttributeValues returns every value of the attributes named name,
// compared case-sensitively, in the order the server sent them.
func ExtractAttributeValues(entry *ldap.Entry, name string) []string {
	if entry == nil {
		return nil
	}

	var values []string
	for _, attr := range entry.Attributes {
		if attr.Name != name {
			continue
		}
		values = append(values, attr.Values...)
	}
	return values
}

// WriteValues writes each value on its own line.
func WriteValues(w io.Writer, values []string) error {
	bw := bufio.NewWriter(w)
	for _, v := range values {
		if _, err := bw.WriteString(v); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}
