// Package session caches Instagram authentication state in a single local
// file so that repeated logins can reuse cookies instead of sending
// credentials every time.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	instagram "github.com/RavensCloud/reels-gofun"
)

// ErrCorruptSession is returned when the session file exists but cannot be
// decoded or applied.
var ErrCorruptSession = errors.New("session: corrupt session file")

// Authenticator is the part of the Instagram client the manager drives.
type Authenticator interface {
	Settings() instagram.Settings
	ApplySettings(instagram.Settings) error
	Login(ctx context.Context, username, password, verificationCode string) error
}

// Credentials is the account the manager logs in as.
type Credentials struct {
	Username string
	Password string
}

// File is the on-disk layout of the session cache.
type File struct {
	Settings         instagram.Settings `json:"settings"`
	VerificationCode string             `json:"verification_code,omitempty"`
}

// Manager owns the session file. EnsureAuthenticated calls are serialised so
// concurrent requests never interleave a login with a file write.
type Manager struct {
	path   string
	creds  Credentials
	logger *slog.Logger
	mu     sync.Mutex
}

// NewManager returns a Manager for the session file at path.
func NewManager(path string, creds Credentials, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		path:   path,
		creds:  creds,
		logger: logger.With("component", "session"),
	}
}

// Path returns the session file location.
func (m *Manager) Path() string {
	return m.path
}

// EnsureAuthenticated leaves client logged in or returns an error. With a
// session file on disk its settings are applied before Login is called, so
// the client can reuse the cached cookies. Without one a credential login
// runs and its settings are written out for the next call.
func (m *Manager) EnsureAuthenticated(ctx context.Context, client Authenticator) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cached, err := m.read()
	switch {
	case err == nil:
		if err := client.ApplySettings(cached.Settings); err != nil {
			return fmt.Errorf("%w: apply settings: %v", ErrCorruptSession, err)
		}
		if err := client.Login(ctx, m.creds.Username, m.creds.Password, cached.VerificationCode); err != nil {
			return fmt.Errorf("login with cached session: %w", err)
		}
		m.logger.Debug("session reused", "path", m.path)
		// Login may have refreshed cookies; keep the file current.
		return m.write(File{Settings: client.Settings(), VerificationCode: cached.VerificationCode})

	case errors.Is(err, fs.ErrNotExist):
		if err := client.Login(ctx, m.creds.Username, m.creds.Password, ""); err != nil {
			return fmt.Errorf("login: %w", err)
		}
		m.logger.Info("logged in, session cached", "path", m.path, "username", m.creds.Username)
		return m.write(File{Settings: client.Settings()})

	default:
		return err
	}
}

// Exists reports whether a session file is present.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// Clear removes the session file. A missing file is not an error.
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.Remove(m.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	m.logger.Info("session cleared", "path", m.path)
	return nil
}

func (m *Manager) read() (File, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return File{}, err
		}
		return File{}, fmt.Errorf("read session file: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("%w: %v", ErrCorruptSession, err)
	}
	return f, nil
}

// write replaces the session file atomically so a crash mid-write never
// leaves a truncated file behind.
func (m *Manager) write(f File) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	dir := filepath.Dir(m.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(m.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write session file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close session file: %w", err)
	}
	if err := os.Rename(tmpName, m.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}
