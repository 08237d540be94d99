package toml

import "fmt"

const currentSchemaVersion = 1

type fileSchema struct {
	Version int            `toml:"version"`
	Session *sessionSchema `toml:"session,omitempty"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported session schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

// sessionSchema holds identity only; tokens live in the secret store under
// SecretRef.
type sessionSchema struct {
	UserID          string `toml:"user_id"`
	Username        string `toml:"username,omitempty"`
	Email           string `toml:"email,omitempty"`
	IsAuthenticated bool   `toml:"is_authenticated"`
	SecretRef       string `toml:"secret_ref"`
	SavedAt         string `toml:"saved_at,omitempty"`
}

type tokenSecret struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}
