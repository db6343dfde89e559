// Package file implements filesystem-backed stores (standalone mode).
package file

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/nextlevelbuilder/numcheck/internal/config"
	"github.com/nextlevelbuilder/numcheck/internal/session"
	"github.com/nextlevelbuilder/numcheck/internal/store"
)

const ownerFile = "owner.json"

// owner records which user a credential directory belongs to, since the
// directory name is a sanitized form of the id.
type owner struct {
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// CredentialStore keeps one directory per user under root. The protocol
// adapter stores its device database inside that directory.
type CredentialStore struct {
	root string
	mu   sync.Mutex
}

// NewCredentialStore creates a store rooted at dir.
func NewCredentialStore(root string) *CredentialStore {
	return &CredentialStore{root: root}
}

var _ session.CredentialStore = (*CredentialStore)(nil)

// Root returns the root directory.
func (s *CredentialStore) Root() string { return s.root }

// Handle returns the credential directory for userID, creating it if needed.
func (s *CredentialStore) Handle(userID string) (session.CredentialHandle, error) {
	if err := store.ValidateUserID(userID); err != nil {
		return session.CredentialHandle{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.dirFor(userID)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return session.CredentialHandle{}, fmt.Errorf("create credential dir: %w", err)
	}

	ownerPath := filepath.Join(dir, ownerFile)
	if _, err := os.Stat(ownerPath); errors.Is(err, os.ErrNotExist) {
		data, _ := json.Marshal(owner{UserID: userID, CreatedAt: time.Now().UTC()})
		if err := os.WriteFile(ownerPath, data, 0600); err != nil {
			return session.CredentialHandle{}, fmt.Errorf("write owner file: %w", err)
		}
	}

	return session.CredentialHandle{UserID: userID, Dir: dir}, nil
}

// Erase removes the user's credential directory. Missing directories are not an error.
func (s *CredentialStore) Erase(userID string) error {
	if err := store.ValidateUserID(userID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.dirFor(userID)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("erase credentials: %w", err)
	}
	slog.Debug("credentials.erased", "user", userID, "dir", dir)
	return nil
}

// Exists reports whether userID has stored credentials.
func (s *CredentialStore) Exists(userID string) bool {
	if store.ValidateUserID(userID) != nil {
		return false
	}
	_, err := os.Stat(s.dirFor(userID))
	return err == nil
}

// List returns the user ids that have credential directories, sorted.
func (s *CredentialStore) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var users []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.root, e.Name(), ownerFile))
		if err != nil {
			slog.Warn("credentials.owner_missing", "dir", e.Name(), "error", err)
			continue
		}
		var o owner
		if err := json.Unmarshal(data, &o); err != nil || o.UserID == "" {
			slog.Warn("credentials.owner_invalid", "dir", e.Name())
			continue
		}
		users = append(users, o.UserID)
	}
	sort.Strings(users)
	return users, nil
}

// dirFor maps a user id to its directory. Ids that change under
// normalization get a hash suffix so distinct ids never share a directory.
func (s *CredentialStore) dirFor(userID string) string {
	name := config.NormalizeUserID(userID)
	if name != userID {
		sum := sha256.Sum256([]byte(userID))
		name = name + "-" + hex.EncodeToString(sum[:4])
	}
	return filepath.Join(s.root, name)
}
