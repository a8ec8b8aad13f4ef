package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
)

// User represents a user account
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Never expose password hash
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// UserStore manages user accounts
type UserStore interface {
	GetUser(username string) (*User, error)
	CreateUser(username, password, role string) (*User, error)
	UpdatePassword(username, newPassword string) error
	ValidateCredentials(username, password string) (*User, error)
	ListUsers() ([]*User, error)
	DeleteUser(username string) error
}

// InMemoryUserStore is a simple in-memory user store (for development)
type InMemoryUserStore struct {
	users map[string]*User
	mu    sync.RWMutex
}

// NewInMemoryUserStore creates a new in-memory user store
func NewInMemoryUserStore() *InMemoryUserStore {
	return &InMemoryUserStore{
		users: make(map[string]*User),
	}
}

// GetUser retrieves a user by username
func (s *InMemoryUserStore) GetUser(username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[username]
	if !exists {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// CreateUser creates a new user with hashed password
func (s *InMemoryUserStore) CreateUser(username, password, role string) (*User, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return s.createUserWithHash(username, string(hashedPassword), role)
}

// CreateUserWithHash creates a new user from a password hash that has
// already been computed, for loading operator-supplied bcrypt hashes
// (ARECIBO_ADMIN_USERS) without ever holding the plaintext in this process.
func (s *InMemoryUserStore) CreateUserWithHash(username, passwordHash, role string) (*User, error) {
	return s.createUserWithHash(username, passwordHash, role)
}

func (s *InMemoryUserStore) createUserWithHash(username, passwordHash, role string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[username]; exists {
		return nil, ErrUserExists
	}

	user := &User{
		ID:           generateUserID(),
		Username:     username,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	s.users[username] = user
	return user, nil
}

// UpdatePassword updates a user's password
func (s *InMemoryUserStore) UpdatePassword(username, newPassword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[username]
	if !exists {
		return ErrUserNotFound
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	user.PasswordHash = string(hashedPassword)
	user.UpdatedAt = time.Now()
	return nil
}

// ValidateCredentials checks if username and password are valid
func (s *InMemoryUserStore) ValidateCredentials(username, password string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[username]
	if !exists {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

// ListUsers returns all users (excluding password hashes)
func (s *InMemoryUserStore) ListUsers() ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]*User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	return users, nil
}

// DeleteUser removes a user
func (s *InMemoryUserStore) DeleteUser(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[username]; !exists {
		return ErrUserNotFound
	}

	delete(s.users, username)
	return nil
}

// InitializeAdminUsers loads admin dashboard accounts from raw, meaning
// already-hashed credentials. raw is a comma-separated list of
// "username:bcryptHash" pairs (ARECIBO_ADMIN_USERS); every account is
// given the "admin" role, matching the single-tier access model the
// dashboard exposes. No plaintext password is ever read from the
// environment or held in this process.
func InitializeAdminUsers(store *InMemoryUserStore, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		idx := strings.Index(pair, ":")
		if idx <= 0 || idx == len(pair)-1 {
			return fmt.Errorf("auth: malformed ARECIBO_ADMIN_USERS entry %q", pair)
		}
		username, hash := pair[:idx], pair[idx+1:]
		if _, err := store.GetUser(username); err == nil {
			continue
		}
		if _, err := store.CreateUserWithHash(username, hash, "admin"); err != nil {
			return fmt.Errorf("auth: loading admin user %q: %w", username, err)
		}
	}
	return nil
}

// generateUserID creates a random user ID
func generateUserID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}
