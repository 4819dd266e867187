package ldap

import (
	"crypto/tls"
	"strings"
	"sync"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/mock"
)

type logRecord struct {
	level  string
	msg    string
	fields map[string]any
}

// recordingLogger captures log records for assertions.
type recordingLogger struct {
	mu      sync.Mutex
	records []logRecord
}

func (l *recordingLogger) add(level, msg string, fields map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, logRecord{level: level, msg: msg, fields: fields})
}

func (l *recordingLogger) Debug(msg string, fields map[string]any)  { l.add("debug", msg, fields) }
func (l *recordingLogger) Info(msg string, fields map[string]any)   { l.add("info", msg, fields) }
func (l *recordingLogger) Notice(msg string, fields map[string]any) { l.add("notice", msg, fields) }
func (l *recordingLogger) Warn(msg string, fields map[string]any)   { l.add("warn", msg, fields) }
func (l *recordingLogger) Error(msg string, fields map[string]any)  { l.add("error", msg, fields) }

func (l *recordingLogger) byLevel(level string) []logRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []logRecord
	for _, r := range l.records {
		if r.level == level {
			out = append(out, r)
		}
	}
	return out
}

// warnedKeys lists the "key" field of every warning.
func (l *recordingLogger) warnedKeys() []string {
	var keys []string
	for _, r := range l.byLevel("warn") {
		if k, ok := r.fields["key"].(string); ok {
			keys = append(keys, k)
		}
	}
	return keys
}

func (l *recordingLogger) hasMessage(level, substr string) bool {
	for _, r := range l.byLevel(level) {
		if strings.Contains(r.msg, substr) {
			return true
		}
	}
	return false
}

// settingsMap is a minimal Settings implementation.
type settingsMap map[string]string

func (m settingsMap) Exists(key string) bool {
	_, ok := m[key]
	return ok
}

func (m settingsMap) Get(key string) string {
	return m[key]
}

// MockConn implements Conn for testing Session.
type MockConn struct {
	mock.Mock
}

func (m *MockConn) StartTLS(config *tls.Config) error {
	args := m.Called(config)
	return args.Error(0)
}

func (m *MockConn) SetTimeout(timeout time.Duration) {
	m.Called(timeout)
}

func (m *MockConn) Bind(username, password string) error {
	args := m.Called(username, password)
	return args.Error(0)
}

func (m *MockConn) UnauthenticatedBind(username string) error {
	args := m.Called(username)
	return args.Error(0)
}

func (m *MockConn) ExternalBind() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockConn) GSSAPIBind(client ldap.GSSAPIClient, servicePrincipal, authzid string) error {
	args := m.Called(client, servicePrincipal, authzid)
	return args.Error(0)
}

func (m *MockConn) Search(searchRequest *ldap.SearchRequest) (*ldap.SearchResult, error) {
	args := m.Called(searchRequest)
	result, _ := args.Get(0).(*ldap.SearchResult)
	return result, args.Error(1)
}

// fakeDialer hands out conn and records what was dialed.
type fakeDialer struct {
	conn    Conn
	err     error
	addrs   []string
	options int
	closed  int
}

func (d *fakeDialer) dial(addr string, opts ...ldap.DialOpt) (Conn, func(), error) {
	d.addrs = append(d.addrs, addr)
	d.options = len(opts)
	if d.err != nil {
		return nil, nil, d.err
	}
	return d.conn, func() { d.closed++ }, nil
}

func newEntry(dn string, attrs map[string][]string) *ldap.Entry {
	return ldap.NewEntry(dn, attrs)
}
