package server

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/freight-session/internal/errors"
	"github.com/jrsteele09/freight-session/users"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultAdminUsername is created on first start when the user store is empty
	DefaultAdminUsername = "admin"
)

// Seed describes a user created at startup
type Seed struct {
	Username string
	Password string // Empty generates a random one
	Name     string
	Roles    []string
}

// SeedUsers creates every seed whose username is not taken yet and returns the generated
// passwords keyed by username.
func SeedUsers(repo users.UserRepo, seeds []Seed) (map[string]string, error) {
	generated := make(map[string]string)
	for _, seed := range seeds {
		if _, err := repo.GetByUsername(seed.Username); err == nil {
			log.Info().Str("user", seed.Username).Msg("user already exists")
			continue
		} else if !errors.Is(err, apperrors.ErrUserNotFound) {
			return nil, fmt.Errorf("[server SeedUsers] failed to look up %s: %w", seed.Username, err)
		}

		password := seed.Password
		if password == "" {
			p, err := generatePassword()
			if err != nil {
				return nil, err
			}
			password = p
			generated[seed.Username] = p
		}

		passwordHash, err := users.HashPassword(password)
		if err != nil {
			return nil, fmt.Errorf("[server SeedUsers] failed to hash password: %w", err)
		}
		if err := repo.Upsert(&users.User{
			Username:     seed.Username,
			Name:         seed.Name,
			PasswordHash: passwordHash,
			Roles:        seed.Roles,
			DateJoined:   time.Now(),
		}); err != nil {
			return nil, fmt.Errorf("[server SeedUsers] failed to create %s: %w", seed.Username, err)
		}
		log.Info().Str("user", seed.Username).Strs("roles", seed.Roles).Msg("created user")
	}
	return generated, nil
}

// DefaultSeeds is an administrator with a generated password
func DefaultSeeds() []Seed {
	return []Seed{{
		Username: DefaultAdminUsername,
		Name:     "System Administrator",
		Roles:    []string{users.RoleAdmin},
	}}
}

func generatePassword() (string, error) {
	passwordBytes := make([]byte, 16)
	if _, err := rand.Read(passwordBytes); err != nil {
		return "", fmt.Errorf("[server generatePassword] failed to generate password: %w", err)
	}
	return base64.URLEncoding.EncodeToString(passwordBytes), nil
}
