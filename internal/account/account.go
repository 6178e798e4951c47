// Package account tracks marketplace users and their payout keys.
//
// Registration and authentication live outside this core; accounts arrive
// already created and are only read and updated here. The PIX key type is
// chosen when the key is registered and stored alongside it, so downstream
// payout code never has to guess.
package account

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrInvalidPixKey   = errors.New("invalid pix key")
)

// PixKeyType identifies how the instant-payment gateway routes a key.
type PixKeyType string

const (
	PixKeyEmail    PixKeyType = "email"
	PixKeyDocument PixKeyType = "document"
	PixKeyPhone    PixKeyType = "phoneNumber"
	PixKeyRandom   PixKeyType = "randomKey"
)

// Account represents a marketplace user.
type Account struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	PixKey     string     `json:"pixKey,omitempty"`
	PixKeyType PixKeyType `json:"pixKeyType,omitempty"`
	AvatarURL  string     `json:"avatarUrl,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// Store persists accounts.
type Store interface {
	Create(ctx context.Context, acct *Account) error
	Get(ctx context.Context, id string) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	Update(ctx context.Context, acct *Account) error
}

// ClassifyPixKey infers a key's type from its shape. Best-effort only: it is
// used to default the stored type when the owner does not state one, never to
// override a stored type at payout time.
func ClassifyPixKey(key string) PixKeyType {
	key = strings.TrimSpace(key)
	switch {
	case strings.Contains(key, "@"):
		return PixKeyEmail
	case isDigits(key) && (len(key) == 11 || len(key) == 14):
		return PixKeyDocument
	case len(key) > 20:
		return PixKeyRandom
	default:
		return PixKeyPhone
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Service implements account business logic.
type Service struct {
	store Store
}

// NewService creates a new account service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Get returns an account by ID.
func (s *Service) Get(ctx context.Context, id string) (*Account, error) {
	return s.store.Get(ctx, id)
}

// UpdateProfile updates mutable profile fields. An empty pixKeyType is
// defaulted via ClassifyPixKey at registration time and then frozen.
func (s *Service) UpdateProfile(ctx context.Context, id, name, pixKey string, keyType PixKeyType) (*Account, error) {
	acct, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if name != "" {
		acct.Name = name
	}
	if pixKey != "" {
		pixKey = strings.TrimSpace(pixKey)
		if len(pixKey) < 3 {
			return nil, ErrInvalidPixKey
		}
		if keyType == "" {
			keyType = ClassifyPixKey(pixKey)
		}
		switch keyType {
		case PixKeyEmail, PixKeyDocument, PixKeyPhone, PixKeyRandom:
		default:
			return nil, ErrInvalidPixKey
		}
		acct.PixKey = pixKey
		acct.PixKeyType = keyType
	}
	acct.UpdatedAt = time.Now()

	if err := s.store.Update(ctx, acct); err != nil {
		return nil, err
	}
	return acct, nil
}

// PayoutKey returns the stored key and type for payout routing.
// Falls back to classification for keys registered before types were stored.
func (s *Service) PayoutKey(ctx context.Context, id string) (string, PixKeyType, error) {
	acct, err := s.store.Get(ctx, id)
	if err != nil {
		return "", "", err
	}
	if acct.PixKey == "" {
		return "", "", nil
	}
	keyType := acct.PixKeyType
	if keyType == "" {
		keyType = ClassifyPixKey(acct.PixKey)
	}
	return acct.PixKey, keyType, nil
}
