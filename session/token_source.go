package session

import (
	"context"

	"golang.org/x/oauth2"
)

type managerTokenSource struct {
	ctx     context.Context
	manager *Manager
}

// TokenSource adapts the Manager to oauth2.TokenSource so an oauth2.Transport can attach the
// session token to outgoing requests. Refreshing stays with the Manager.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &managerTokenSource{ctx: ctx, manager: m}
}

func (s *managerTokenSource) Token() (*oauth2.Token, error) {
	result, err := s.manager.ensureValid(s.ctx)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: result.token,
		TokenType:   "Bearer",
		Expiry:      result.expiresAt,
	}, nil
}
