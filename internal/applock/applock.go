// Package applock stores the optional UI lock PIN. The PIN gates the local
// rendering surface only; it is not an engine credential.
package applock

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const pinKey = "app_lock_pin"

// ErrInvalidPIN is returned when a PIN does not meet the format rule.
var ErrInvalidPIN = errors.New("applock: PIN must be 4 to 8 digits")

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// SetPIN hashes and stores the PIN, replacing any existing one.
func (s *Store) SetPIN(pin string) error {
	if !validPIN(pin) {
		return ErrInvalidPIN
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash PIN: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO shell_settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		pinKey, string(hash), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("store PIN: %w", err)
	}
	return nil
}

// VerifyPIN reports whether pin matches the stored hash. A missing PIN never
// matches.
func (s *Store) VerifyPIN(pin string) (bool, error) {
	var hash string
	err := s.db.QueryRow(`SELECT value FROM shell_settings WHERE key = ?`, pinKey).Scan(&hash)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load PIN: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) != nil {
		return false, nil
	}
	return true, nil
}

// Enabled reports whether a PIN is set.
func (s *Store) Enabled() (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM shell_settings WHERE key = ?`, pinKey).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check PIN: %w", err)
	}
	return true, nil
}

// ClearPIN removes the lock.
func (s *Store) ClearPIN() error {
	if _, err := s.db.Exec(`DELETE FROM shell_settings WHERE key = ?`, pinKey); err != nil {
		return fmt.Errorf("clear PIN: %w", err)
	}
	return nil
}

func validPIN(pin string) bool {
	if len(pin) < 4 || len(pin) > 8 {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
