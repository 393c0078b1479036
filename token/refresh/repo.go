package refresh

import "time"

// StoredRefreshToken is what the gateway keeps about an issued refresh token. The console
// only ever sees Token.
type StoredRefreshToken struct {
	Token    string    // Opaque random value handed to the client
	UserID   string    // Owner
	ClientID string    // Audience the pair was issued for
	Iat      time.Time // Issued at, the start of the refresh lifetime
}

// Repo stores refresh tokens keyed by their value, with at most one live token per user.
// Lookups of unknown tokens return apperrors.ErrNotFound.
type Repo interface {
	Upsert(refreshToken *StoredRefreshToken) error
	Delete(token string) error
	Get(token string) (*StoredRefreshToken, error)
	GetByUserID(userID string) (*StoredRefreshToken, error)
}
