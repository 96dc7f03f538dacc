// Package store keeps cloud-drop sessions: a share code, the uploaded file
// records, an expiry and a download counter.
package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

const (
	DefaultTTL          = 24 * time.Hour
	DefaultMaxDownloads = 10

	shareCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	shareCodeLength   = 8
)

var (
	ErrNotFound      = errors.New("session not found")
	ErrLimitExceeded = errors.New("download limit exceeded")
	ErrExists        = errors.New("session already exists")
)

type Session struct {
	Code          string       `gorm:"primaryKey;size:9"`
	SenderName    string       `gorm:"size:50"`
	Files         []FileRecord `gorm:"foreignKey:SessionCode;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time
	ExpiresAt     time.Time `gorm:"index"`
	DownloadCount int
	MaxDownloads  int
}

type FileRecord struct {
	ID          string `gorm:"primaryKey"`
	SessionCode string `gorm:"index;not null"`
	Name        string
	Size        int64
	MimeType    string
	// BlobKey locates the file contents in the blob store.
	BlobKey string
}

func (s *Session) TotalSize() int64 {
	var total int64
	for _, f := range s.Files {
		total += f.Size
	}
	return total
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Exhausted reports whether no downloads remain.
func (s *Session) Exhausted() bool {
	return s.DownloadCount >= s.MaxDownloads
}

type Registry interface {
	Create(ctx context.Context, code, senderName string, files []FileRecord) (*Session, error)
	// Get returns ErrNotFound for missing and expired sessions.
	Get(ctx context.Context, code string) (*Session, error)
	// IncrementDownloadCount returns ErrLimitExceeded once MaxDownloads is reached.
	IncrementDownloadCount(ctx context.Context, code string) (*Session, error)
	Delete(ctx context.Context, code string) error
	CleanupExpired(ctx context.Context) (int, error)
}

// Limits bounds every session a registry creates.
type Limits struct {
	TTL          time.Duration
	MaxDownloads int
}

func (l Limits) withDefaults() Limits {
	if l.TTL <= 0 {
		l.TTL = DefaultTTL
	}
	if l.MaxDownloads <= 0 {
		l.MaxDownloads = DefaultMaxDownloads
	}
	return l
}

// GenerateShareCode returns eight random characters from A-Z0-9 formatted XXXX-XXXX.
func GenerateShareCode() (string, error) {
	var b strings.Builder
	alphabetSize := big.NewInt(int64(len(shareCodeAlphabet)))
	for i := 0; i < shareCodeLength; i++ {
		if i == shareCodeLength/2 {
			b.WriteByte('-')
		}
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("failed to generate share code: %w", err)
		}
		b.WriteByte(shareCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeShareCode upper-cases code and reports whether it has the XXXX-XXXX shape.
func NormalizeShareCode(code string) (string, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != shareCodeLength+1 || code[shareCodeLength/2] != '-' {
		return code, false
	}
	for i := 0; i < len(code); i++ {
		if i == shareCodeLength/2 {
			continue
		}
		if !strings.ContainsRune(shareCodeAlphabet, rune(code[i])) {
			return code, false
		}
	}
	return code, true
}

// NewFileID returns 16 random bytes as hex.
func NewFileID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate file id: %w", err)
	}
	return hex.EncodeToString(b), nil
}
