package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/jrsteele09/freight-session/auth"
	"github.com/jrsteele09/freight-session/internal/config"
	"github.com/jrsteele09/freight-session/internal/logging"
	"github.com/jrsteele09/freight-session/server"
	"github.com/jrsteele09/freight-session/token"
	"github.com/jrsteele09/freight-session/token/refresh"
	refreshrepofake "github.com/jrsteele09/freight-session/token/refresh/repofake"
	fakeuserrepo "github.com/jrsteele09/freight-session/users/repofake"
	"github.com/rs/zerolog/log"
)

func main() {
	_ = godotenv.Load()
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return err
	}
	logger := logging.New(os.Stderr, c.GetEnv(), os.Getenv("LOG_LEVEL"))
	displayAppname(c.GetAppName())

	userRepo := fakeuserrepo.NewFakeUserRepo()
	generated, err := server.SeedUsers(userRepo, server.DefaultSeeds())
	if err != nil {
		return err
	}
	for username, password := range generated {
		// Printed once so the operator can sign in; never logged
		fmt.Printf("Generated password for %s: %s\n", username, password)
	}

	tokens := token.New(
		refresh.NewManager(refreshrepofake.NewFakeRefreshTokenRepo(), c),
		userRepo,
		token.NewHMACSigner(c.GetSigningSecret()),
		token.WithIssuer(c.GetIssuer()),
		token.WithAccessTokenExpiry(c.GetDefaultAccessTokenExpiry()),
	)

	authService, err := auth.NewAuthorizationService(auth.Repos{Users: userRepo}, tokens)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go cleanupRevoked(ctx, authService, time.Minute)

	httpServer := &http.Server{
		Addr:              c.GetPort(),
		Handler:           server.New(c, authService, server.WithLogger(logger)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- listenAndServe(httpServer)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	return shutdown(httpServer)
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func cleanupRevoked(ctx context.Context, authService *auth.AuthorizationService, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := authService.CleanupRevokedTokens(); n > 0 {
				log.Debug().Int("count", n).Msg("expired revocations dropped")
			}
		}
	}
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
