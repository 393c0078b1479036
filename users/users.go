package users

import (
	"fmt"
	"slices"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// Roles of the freight admin console
const (
	RoleAdmin      = "admin"      // Manages users and every tariff
	RoleDispatcher = "dispatcher" // Books orders and reads fee tables
	RoleViewer     = "viewer"     // Read-only access to orders
)

// Permission codes checked by the gateway and by the client through HasPermission
const (
	PermFeeRead    = "fee:read"
	PermFeeWrite   = "fee:write"
	PermOrderRead  = "order:read"
	PermOrderWrite = "order:write"
	PermUserAdmin  = "user:admin"
)

// RolePermissions is the permission set granted by each role
var RolePermissions = map[string][]string{
	RoleAdmin:      {PermFeeRead, PermFeeWrite, PermOrderRead, PermOrderWrite, PermUserAdmin},
	RoleDispatcher: {PermFeeRead, PermOrderRead, PermOrderWrite},
	RoleViewer:     {PermOrderRead},
}

type User struct {
	ID           string    `json:"id,omitempty"`          // Unique identifier for the user
	Username     string    `json:"username,omitempty"`    // Unique login name
	Name         string    `json:"name,omitempty"`        // Display name
	PasswordHash string    `json:"-"`                     // Hashed version of the user's password - never serialize
	DateJoined   time.Time `json:"date_joined,omitempty"` // Date and time when the user was created
	LastLogin    time.Time `json:"last_login,omitempty"`  // Last time the user logged in

	Roles []string `json:"roles,omitempty"`
	// Permissions granted on top of those implied by Roles
	Permissions []string `json:"permissions,omitempty"`

	Blocked bool `json:"blocked,omitempty"` // Blocked, has the user been blocked from logging in
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var hasUpper, hasLower, hasNumber bool
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsDigit(char):
			hasNumber = true
		}
	}

	switch {
	case !hasUpper:
		return fmt.Errorf("password must contain at least one uppercase letter")
	case !hasLower:
		return fmt.Errorf("password must contain at least one lowercase letter")
	case !hasNumber:
		return fmt.Errorf("password must contain at least one number")
	}
	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// CheckPassword checks a password against the user's stored hash
func (u *User) CheckPassword(password string) bool {
	return CheckPasswordHash(password, u.PasswordHash)
}

func (u *User) HasRole(role string) bool {
	return slices.Contains(u.Roles, role)
}

// EffectivePermissions is the sorted union of the role permissions and the direct grants
func (u *User) EffectivePermissions() []string {
	perms := slices.Clone(u.Permissions)
	for _, role := range u.Roles {
		perms = append(perms, RolePermissions[role]...)
	}
	slices.Sort(perms)
	return slices.Compact(perms)
}

func (u *User) HasPermission(code string) bool {
	return slices.Contains(u.EffectivePermissions(), code)
}
