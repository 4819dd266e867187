package logging

import (
	"fmt"
	"io"
	"log/syslog"
	"strings"
)

// PreLogCritical reports a fatal condition that happened before a Logger
// could be configured. The message goes to syslog (facility AUTH, when the
// daemon is reachable) and to w. The caller is responsible for exiting.
func PreLogCritical(w io.Writer, tag, msg string) {
	text := strings.TrimRight(msg, ". ") + ". Aborting."

	if sw, err := syslog.New(syslog.LOG_AUTH|syslog.LOG_CRIT, tag); err == nil {
		_ = sw.Crit(text)
		_ = sw.Close()
	}

	fmt.Fprintf(w, "%s%s\n", LevelCritical.Label(), text)
}
