// Command sessionctl drives a freight admin session from the terminal: log in once, then make
// authenticated requests that refresh the token as needed.
//
//	sessionctl [-store memory|file|sqlite|postgres] [-dsn ...] login <user> <password>
//	sessionctl whoami
//	sessionctl get <path>
//	sessionctl logout
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/jrsteele09/freight-session/gate"
	"github.com/jrsteele09/freight-session/internal/config"
	apperrors "github.com/jrsteele09/freight-session/internal/errors"
	"github.com/jrsteele09/freight-session/internal/logging"
	"github.com/jrsteele09/freight-session/metrics"
	"github.com/jrsteele09/freight-session/session"
	"github.com/prometheus/client_golang/prometheus"
)

const usage = `usage: sessionctl [flags] <command>

commands:
  login <user> <password>   authenticate and persist the session
  whoami                    show the persisted session
  get <path>                GET an API path with the session token
  logout                    end the session and revoke the refresh token

flags:
`

func main() {
	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	configFile  string
	store       string
	dsn         string
	verbose     bool
	showMetrics bool
}

func parseFlags(args []string, stderr io.Writer) (*options, []string, error) {
	opts := &options{}
	fs := flag.NewFlagSet("sessionctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	fs.StringVar(&opts.configFile, "config", os.Getenv("CONFIG_FILE"), "TOML config file")
	fs.StringVar(&opts.store, "store", "", "session store: memory, file, sqlite or postgres (default from config)")
	fs.StringVar(&opts.dsn, "dsn", "", "store location: file path or postgres connection string")
	fs.BoolVar(&opts.verbose, "v", false, "debug logging")
	fs.BoolVar(&opts.showMetrics, "metrics", false, "print session counters after the command")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return opts, fs.Args(), nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, rest, err := parseFlags(args, stderr)
	if err != nil {
		return 2
	}
	if len(rest) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	c, err := config.Load(opts.configFile)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	level := config.GetEnv("LOG_LEVEL", "warn")
	if opts.verbose {
		level = "debug"
	}
	logger := logging.New(stderr, c.GetEnv(), level)

	store, closeStore, err := openStore(ctx, c, logger, opts.store, opts.dsn)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer closeStore()

	backend, err := newBackend(ctx, c, logger)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	reg := prometheus.NewRegistry()
	recorder, err := metrics.NewPrometheus(reg)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	manager, err := session.NewManager(backend, store,
		session.WithLogger(logger),
		session.WithRecorder(recorder),
		session.WithRefreshMargin(c.GetRefreshMargin()),
		session.WithRevokeTimeout(c.GetRevokeTimeout()),
		session.WithStoragePrefix(c.GetStoragePrefix()),
		session.WithSink(session.SinkFunc(func(reason session.EndReason) {
			fmt.Fprintf(stderr, "session ended: %s\n", reason)
		})),
	)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer manager.Close()
	manager.Initialize(ctx)

	g := gate.New(manager,
		gate.NewHTTPTransport(c.GetAPIBaseURL(), gate.WithHTTPClient(&http.Client{Timeout: c.GetRequestTimeout()})),
		gate.WithLogger(logger),
		gate.WithRecorder(recorder),
	)

	code := dispatch(ctx, manager, g, rest, stdout, stderr)
	if opts.showMetrics {
		printMetrics(reg, stderr)
	}
	return code
}

func dispatch(ctx context.Context, manager *session.Manager, g *gate.Gate, args []string, stdout, stderr io.Writer) int {
	switch cmd := args[0]; cmd {
	case "login":
		if len(args) != 3 {
			fmt.Fprintln(stderr, "usage: sessionctl login <user> <password>")
			return 2
		}
		user, err := manager.Login(ctx, args[1], args[2])
		if err != nil {
			fmt.Fprintln(stderr, describe(err))
			return 1
		}
		fmt.Fprintf(stdout, "logged in as %s (%s)\n", user.Username, strings.Join(user.Roles, ", "))
		return 0

	case "whoami":
		snap := manager.Snapshot()
		if !snap.Authenticated() {
			fmt.Fprintln(stderr, "not logged in")
			return 1
		}
		fmt.Fprintf(stdout, "user:        %s\n", snap.User.Username)
		if snap.User.Name != "" {
			fmt.Fprintf(stdout, "name:        %s\n", snap.User.Name)
		}
		fmt.Fprintf(stdout, "roles:       %s\n", strings.Join(snap.User.Roles, ", "))
		fmt.Fprintf(stdout, "permissions: %s\n", strings.Join(snap.User.Permissions, ", "))
		fmt.Fprintf(stdout, "expires:     %s\n", snap.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
		return 0

	case "get":
		if len(args) != 2 {
			fmt.Fprintln(stderr, "usage: sessionctl get <path>")
			return 2
		}
		resp, err := g.Do(ctx, &gate.Request{Method: http.MethodGet, URL: args[1], Header: http.Header{"Accept": {"application/json"}}})
		if resp != nil {
			_, _ = stdout.Write(resp.Body)
			if len(resp.Body) > 0 && resp.Body[len(resp.Body)-1] != '\n' {
				fmt.Fprintln(stdout)
			}
		}
		if err != nil {
			fmt.Fprintln(stderr, describe(err))
			return 1
		}
		if resp.Class != gate.ClassSuccess {
			fmt.Fprintf(stderr, "request failed with status %d\n", resp.StatusCode)
			return 1
		}
		return 0

	case "logout":
		manager.Logout(ctx)
		fmt.Fprintln(stdout, "logged out")
		return 0

	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		fmt.Fprint(stderr, usage)
		return 2
	}
}

// describe turns the session error kinds into a one-line hint for the terminal
func describe(err error) string {
	var denied *apperrors.PermissionDenied
	switch {
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		return "login failed: wrong username or password"
	case errors.Is(err, apperrors.ErrUserBlocked):
		return "login failed: account is blocked"
	case errors.Is(err, apperrors.ErrRateLimited):
		return "login failed: too many attempts, try again later"
	case errors.Is(err, apperrors.ErrSessionExpired):
		return "session expired, log in again"
	case errors.As(err, &denied):
		return "permission denied: " + denied.Resource
	case errors.Is(err, apperrors.ErrTransientNetwork):
		return "network error: " + err.Error()
	default:
		return err.Error()
	}
}

func printMetrics(reg *prometheus.Registry, w io.Writer) {
	families, err := reg.Gather()
	if err != nil {
		fmt.Fprintln(w, err)
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, l := range m.GetLabel() {
				labels = append(labels, l.GetName()+"="+l.GetValue())
			}
			fmt.Fprintf(w, "%s{%s} %g\n", mf.GetName(), strings.Join(labels, ","), m.GetCounter().GetValue())
		}
	}
}
