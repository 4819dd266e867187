/*
Package ldap drives a single LDAP lookup for lsshkeys.

A Session owns one directory connection and moves through a fixed
lifecycle:

	Unopened → Initialized → VersionSet → [TLS] → Bound → Searched → Closed

Close is valid from every state. The connection is dialed lazily by the
first operation that needs the network (STARTTLS or Bind), so every tuning
option is applied before any traffic is sent.

# Options

Optional settings are described by a single table (see options.go). Each
entry parses its value, checks referenced files with access(2) and applies
the result to the session. A failure is logged as a warning and only that
entry is skipped.

# Searching

SearchRequestBuilder validates the username and resolves base, scope,
filter and attribute from the configuration. Searches are bounded to two
entries: one is the answer, two means the filter is ambiguous.
*/
package ldap
