// Package cli is the command-line front door of lsshkeys. It is meant to be
// run by sshd as an AuthorizedKeysCommand.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/creasty/defaults"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/isometry/lsshkeys/internal/config"
	"github.com/isometry/lsshkeys/internal/ldap"
	"github.com/isometry/lsshkeys/internal/logging"
	"github.com/isometry/lsshkeys/internal/lookup"
)

const programName = "lsshkeys"

// Version is set at build time.
var Version = "dev"

// errLogged marks a failure that has already been reported through the
// configured logger.
var errLogged = errors.New("failure already logged")

// logSettings are the logging keys of the configuration file.
type logSettings struct {
	Level  string `default:"warning"`
	Target string `default:"syslog"`
}

type app struct {
	stdout io.Writer
	stderr io.Writer
	exit   func(code int)
	dial   ldap.DialFunc
	preLog func(w io.Writer, tag, msg string)
	// openSyslog replaces the syslog connection, for tests.
	openSyslog logging.SyslogOpener
}

func newApp() *app {
	return &app{
		stdout: os.Stdout,
		stderr: os.Stderr,
		exit:   os.Exit,
		preLog: logging.PreLogCritical,
	}
}

// Execute runs lsshkeys with the process arguments and exits.
func Execute() {
	a := newApp()
	a.exit(a.execute(context.Background(), os.Args[1:]))
}

func (a *app) execute(ctx context.Context, args []string) int {
	cmd := a.newRootCommand()
	cmd.SetArgs(normalizeArgs(args))

	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errLogged) {
			a.preLog(a.stderr, programName, err.Error())
		}
		return 1
	}
	return 0
}

func (a *app) newRootCommand() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   programName + " [OPTION]... <username>",
		Short: "Print the SSH public keys of a user stored in an LDAP directory",
		Long: `lsshkeys looks up a single user in an LDAP directory and prints the values
of the user's public key attribute, one per line. It is intended to be used
as the AuthorizedKeysCommand of sshd.`,
		Version:       Version,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), configPath, debug, args[0])
		},
	}

	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)

	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", config.DefaultPath, "configuration file")
	flags.BoolVarP(&debug, "debug", "d", false, "log everything to standard error, ignoring loglevel and log")
	flags.SetNormalizeFunc(normalizeFlagName)

	return cmd
}

func (a *app) run(ctx context.Context, configPath string, debug bool, username string) error {
	settings, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("unable to read configuration file: %w", err)
	}

	if err := ldap.ValidateUsername(username); err != nil {
		return err
	}

	logger, err := a.openLogger(settings, debug)
	if err != nil {
		return err
	}
	defer logger.Close()

	logger.Debug("Starting lookup", map[string]any{
		"config":   configPath,
		"user":     username,
		"version":  Version,
		"loglevel": logger.Level().String(),
		"log":      logger.Method().String(),
	})

	err = lookup.Run(ctx, lookup.Options{
		Settings: settings,
		Username: username,
		Logger:   logger,
		Output:   a.stdout,
		Dial:     a.dial,
	})
	if err != nil {
		logger.Critical(ldap.RedactMessage(err.Error()), nil)
		return errLogged
	}
	return nil
}

// openLogger resolves loglevel and log, with --debug taking precedence.
func (a *app) openLogger(settings *config.Map, debug bool) (*logging.Logger, error) {
	var ls logSettings
	if err := defaults.Set(&ls); err != nil {
		return nil, fmt.Errorf("failed to set default values: %w", err)
	}
	if settings.Exists("loglevel") {
		ls.Level = settings.Get("loglevel")
	}
	if settings.Exists("log") {
		ls.Target = settings.Get("log")
	}
	if debug {
		ls.Level = logging.LevelDebug.String()
		ls.Target = logging.MethodStdio.String()
		fmt.Fprintf(a.stderr, "%sStarting in debug mode.\n", logging.LevelInformation.Label())
	}

	level, err := logging.ParseLevel(ls.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid loglevel: %w", err)
	}

	method, path := logging.ParseTarget(ls.Target)
	if method == logging.MethodFile {
		if err := logging.CheckFileTarget(path); err != nil {
			return nil, fmt.Errorf("invalid log: %w", err)
		}
	}

	logger, err := logging.New(logging.Options{
		Method:     method,
		Level:      level,
		Path:       path,
		Tag:        programName,
		RequestID:  uuid.NewString(),
		Stderr:     a.stderr,
		Exit:       a.exit,
		OpenSyslog: a.openSyslog,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to open log %s: %w", ls.Target, err)
	}
	return logger, nil
}

func normalizeFlagName(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	name = strings.ToLower(name)
	switch name {
	case "conf":
		name = "config"
	case "dbg":
		name = "debug"
	}
	return pflag.NormalizedName(name)
}

// normalizeArgs rewrites the spellings pflag does not parse itself: "-?" and
// a long configuration option glued to its value, as in --conf/etc/x.conf.
func normalizeArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for i, arg := range args {
		if arg == "--" {
			return append(out, args[i:]...)
		}
		if arg == "-?" {
			out = append(out, "--help")
			continue
		}
		out = append(out, gluedConfigArg(arg))
	}
	return out
}

func gluedConfigArg(arg string) string {
	lower := strings.ToLower(arg)
	for _, name := range []string{"--config", "--conf"} {
		if !strings.HasPrefix(lower, name) {
			continue
		}
		rest := arg[len(name):]
		if rest == "" || strings.HasPrefix(rest, "=") {
			return arg
		}
		return "--config=" + rest
	}
	return arg
}
