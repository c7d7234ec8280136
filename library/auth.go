package library

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// SetPasscode stores a bcrypt hash of passcode for the member with the given ID.
// An empty passcode clears it.
func (c *Catalog) SetPasscode(memberID, passcode string) error {
	hash, err := hashPasscode(passcode)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.memberLocked(memberID)
	if m == nil {
		return fmt.Errorf("%w: %s", ErrMemberNotFound, memberID)
	}
	m.passcodeHash = hash
	return nil
}

// Authenticate checks passcode against the member's stored hash.
// Members without a passcode are always accepted.
func (c *Catalog) Authenticate(memberID, passcode string) error {
	c.mu.RLock()
	m := c.memberLocked(memberID)
	var hash []byte
	if m != nil {
		hash = m.passcodeHash
	}
	c.mu.RUnlock()

	if m == nil {
		return fmt.Errorf("%w: %s", ErrMemberNotFound, memberID)
	}
	if len(hash) == 0 {
		return nil
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(passcode)); err != nil {
		return ErrAuthFailed
	}
	return nil
}

func hashPasscode(passcode string) ([]byte, error) {
	if strings.TrimSpace(passcode) == "" {
		return nil, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(passcode), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash passcode: %w", err)
	}
	return hash, nil
}

// HasPasscode reports whether a passcode guards this member's loans.
func (m *Member) HasPasscode() bool { return len(m.passcodeHash) > 0 }
