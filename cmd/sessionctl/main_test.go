package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/freight-session/auth"
	"github.com/jrsteele09/freight-session/internal/config"
	"github.com/jrsteele09/freight-session/server"
	"github.com/jrsteele09/freight-session/token"
	"github.com/jrsteele09/freight-session/token/refresh"
	refreshrepofake "github.com/jrsteele09/freight-session/token/refresh/repofake"
	"github.com/jrsteele09/freight-session/users"
	fakeuserrepo "github.com/jrsteele09/freight-session/users/repofake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func startGateway(t *testing.T) {
	t.Helper()
	repo := fakeuserrepo.NewFakeUserRepo()
	_, err := server.SeedUsers(repo, []server.Seed{
		{Username: "alice", Password: "Passw0rd!", Name: "Alice Carter", Roles: []string{users.RoleDispatcher}},
		{Username: "bob", Password: "Passw0rd!", Roles: []string{users.RoleViewer}},
	})
	require.NoError(t, err)

	cfg := config.New()
	tokens := token.New(refresh.NewManager(refreshrepofake.NewFakeRefreshTokenRepo(), cfg), repo, token.NewHMACSigner("cli-test"))
	authService, err := auth.NewAuthorizationService(auth.Repos{Users: repo}, tokens)
	require.NoError(t, err)
	srv := httptest.NewServer(server.New(cfg, authService, server.WithGatherer(prometheus.NewRegistry())))
	t.Cleanup(srv.Close)

	t.Setenv("AUTH_BASE_URL", srv.URL)
	t.Setenv("API_BASE_URL", srv.URL)
	t.Setenv("OIDC_ISSUER", "")
	t.Setenv("ENV", "TEST")
}

type result struct {
	code   int
	stdout string
	stderr string
}

func runCLI(args ...string) result {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func TestLoginPersistsAcrossInvocations(t *testing.T) {
	for _, driver := range []string{"file", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			startGateway(t)
			dsn := filepath.Join(t.TempDir(), "session."+driver)
			flags := []string{"-store", driver, "-dsn", dsn}

			res := runCLI(append(flags, "login", "alice", "Passw0rd!")...)
			require.Equal(t, 0, res.code, res.stderr)
			require.Contains(t, res.stdout, "logged in as alice (dispatcher)")

			res = runCLI(append(flags, "whoami")...)
			require.Equal(t, 0, res.code, res.stderr)
			require.Contains(t, res.stdout, "Alice Carter")
			require.Contains(t, res.stdout, users.PermFeeRead)

			res = runCLI(append(flags, "get", server.RouteAPIBaseFees)...)
			require.Equal(t, 0, res.code, res.stderr)
			require.Contains(t, res.stdout, "LINEHAUL")

			res = runCLI(append(flags, "logout")...)
			require.Equal(t, 0, res.code, res.stderr)
			require.Contains(t, res.stderr, "session ended: logout")

			res = runCLI(append(flags, "whoami")...)
			require.Equal(t, 1, res.code)
			require.Contains(t, res.stderr, "not logged in")
		})
	}
}

func TestLoginFailure(t *testing.T) {
	startGateway(t)
	res := runCLI("-store", "memory", "login", "alice", "wrong")
	require.Equal(t, 1, res.code)
	require.Contains(t, res.stderr, "wrong username or password")
}

func TestGetPermissionDenied(t *testing.T) {
	startGateway(t)
	dsn := filepath.Join(t.TempDir(), "session.json")

	require.Equal(t, 0, runCLI("-store", "file", "-dsn", dsn, "login", "bob", "Passw0rd!").code)
	res := runCLI("-store", "file", "-dsn", dsn, "-metrics", "get", server.RouteAPIBaseFees)
	require.Equal(t, 1, res.code)
	require.Contains(t, res.stderr, "permission denied")
	require.Contains(t, res.stderr, `freight_gate_requests_total{result=`)
}

func TestUsageErrors(t *testing.T) {
	startGateway(t)
	tests := []struct {
		name string
		args []string
	}{
		{name: "no command", args: []string{"-store", "memory"}},
		{name: "unknown command", args: []string{"-store", "memory", "frobnicate"}},
		{name: "login without password", args: []string{"-store", "memory", "login", "alice"}},
		{name: "bad flag", args: []string{"-nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, 2, runCLI(tt.args...).code)
		})
	}

	res := runCLI("-store", "floppy", "whoami")
	require.Equal(t, 1, res.code)
	require.Contains(t, res.stderr, "unknown store")
}
