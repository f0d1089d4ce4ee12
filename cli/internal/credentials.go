package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gosimple/slug"
	"golang.org/x/oauth2"

	"github.com/devilmonastery/jobboard/internal/client"
	"github.com/devilmonastery/jobboard/internal/pkg/logger"
)

// Credentials is the on-disk form of a token pair
type Credentials struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	SavedAt      time.Time `json:"saved_at"`
}

// IsExpired checks if the access token is expired. Unknown expiry counts as valid.
func (c *Credentials) IsExpired() bool {
	return !c.ExpiresAt.IsZero() && time.Now().After(c.ExpiresAt)
}

// FileCredentials implements client.TokenStore on a per-context JSON file
type FileCredentials struct {
	path string
	mu   sync.Mutex
}

// NewFileCredentials creates a file-backed token store for a context
func NewFileCredentials(contextName string) (*FileCredentials, error) {
	path, err := credentialsPath(contextName)
	if err != nil {
		return nil, err
	}
	return &FileCredentials{path: path}, nil
}

// Path returns the credentials file location
func (f *FileCredentials) Path() string {
	return f.path
}

// Token returns the stored pair
func (f *FileCredentials) Token() (*oauth2.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	creds, err := f.load()
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    creds.TokenType,
		Expiry:       creds.ExpiresAt,
	}, nil
}

// SaveToken replaces the stored pair. The file is written to a temp file and
// renamed so readers never see a partial write.
func (f *FileCredentials) SaveToken(tok *oauth2.Token) error {
	if tok == nil {
		return f.ClearToken()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	slog.Debug("saving credentials",
		slog.String("component", "cli-token"),
		slog.String("token_prefix", logger.TokenPreview(tok.AccessToken)),
		slog.String("path", f.path))

	creds := &Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresAt:    tok.Expiry,
		SavedAt:      time.Now().UTC(),
	}
	if creds.ExpiresAt.IsZero() {
		creds.ExpiresAt = client.TokenExpiry(tok.AccessToken)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".credentials-*")
	if err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return nil
}

// ClearToken removes the credentials file
func (f *FileCredentials) ClearToken() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove credentials: %w", err)
	}
	return nil
}

// Load returns the raw stored credentials
func (f *FileCredentials) Load() (*Credentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load()
}

func (f *FileCredentials) load() (*Credentials, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, client.ErrNotLoggedIn
		}
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	if creds.AccessToken == "" && creds.RefreshToken == "" {
		return nil, client.ErrNotLoggedIn
	}
	return &creds, nil
}

// credentialsPath returns ~/.config/jobboard/credentials-<slug>.json
func credentialsPath(contextName string) (string, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	name := slug.Make(contextName)
	if name == "" {
		name = "default"
	}
	return filepath.Join(configDir, "jobboard", fmt.Sprintf("credentials-%s.json", name)), nil
}
