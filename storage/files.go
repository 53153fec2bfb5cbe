package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gosimple/slug"
)

// DefaultDir is used when NewSpool is given an empty directory.
const DefaultDir = "./data/spool"

const maxSlugLength = 48

// Spool writes rendered messages to dated directories as .eml files.
type Spool struct {
	dir string
	now func() time.Time
}

// NewSpool returns a spool rooted at dir.
func NewSpool(dir string) *Spool {
	if strings.TrimSpace(dir) == "" {
		dir = DefaultDir
	}
	return &Spool{dir: dir, now: time.Now}
}

// Dir returns the spool root.
func (s *Spool) Dir() string { return s.dir }

// Save stores one rendered message and returns its path. The recipient is
// hashed so addresses never appear in file names.
func (s *Spool) Save(id, recipient, subject string, data []byte) (string, error) {
	safeID, err := sanitizeComponent(id)
	if err != nil {
		return "", err
	}

	dir := filepath.Join(s.dir, s.now().UTC().Format("2006-01-02"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("spool: create dir: %w", err)
	}
	name := fmt.Sprintf("%s_%s_%s.eml", safeID, subjectSlug(subject), hashRecipient(recipient))
	filename := filepath.Join(dir, name)
	if err := os.WriteFile(filename, data, 0o600); err != nil {
		return "", fmt.Errorf("spool: write: %w", err)
	}
	return filename, nil
}

func subjectSlug(subject string) string {
	s := slug.Make(subject)
	if len(s) > maxSlugLength {
		s = strings.TrimRight(s[:maxSlugLength], "-")
	}
	if s == "" {
		return "no-subject"
	}
	return s
}

func sanitizeComponent(v string) (string, error) {
	if strings.ContainsAny(v, "/\\") || strings.Contains(v, "..") {
		return "", errors.New("invalid identifier")
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", errors.New("empty identifier")
	}
	return v, nil
}

func hashRecipient(addr string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(addr))))
	return hex.EncodeToString(sum[:8])
}
