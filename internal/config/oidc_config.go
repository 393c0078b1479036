package config

type OIDCConfig interface {
	GetOIDCIssuer() string
	GetOIDCClientID() string
	GetOIDCClientSecret() string
}

type OIDC struct {
	src *source
}

var _ OIDCConfig = OIDC{}

// GetOIDCIssuer is empty unless the session should authenticate against an OpenID provider
func (o OIDC) GetOIDCIssuer() string {
	return o.src.get("OIDC_ISSUER", "")
}

func (o OIDC) GetOIDCClientID() string {
	return o.src.get("OIDC_CLIENT_ID", "freight-admin")
}

func (o OIDC) GetOIDCClientSecret() string {
	return o.src.get("OIDC_CLIENT_SECRET", "")
}
