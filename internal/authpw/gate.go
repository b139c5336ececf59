// Package authpw implements the shared-password gate in front of the viewer.
// There are two passwords, one per role, stored only as bcrypt hashes.
package authpw

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"deepdive/api/internal/rbac"
)

var ErrInvalidPassword = errors.New("invalid password")

type Gate struct {
	viewerHash []byte
	adminHash  []byte
}

// NewGate validates the configured hashes. An empty admin hash disables
// admin sign-in.
func NewGate(viewerHash, adminHash string) (*Gate, error) {
	if viewerHash == "" {
		return nil, errors.New("viewer password hash is required")
	}
	for name, hash := range map[string]string{"viewer": viewerHash, "admin": adminHash} {
		if hash == "" {
			continue
		}
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("%s password hash: %w", name, err)
		}
	}
	g := &Gate{viewerHash: []byte(viewerHash)}
	if adminHash != "" {
		g.adminHash = []byte(adminHash)
	}
	return g, nil
}

// Check returns the role unlocked by password. The admin password is tried first.
func (g *Gate) Check(password string) (rbac.Role, error) {
	if password == "" {
		return "", ErrInvalidPassword
	}
	if g.adminHash != nil && bcrypt.CompareHashAndPassword(g.adminHash, []byte(password)) == nil {
		return rbac.RoleAdmin, nil
	}
	if bcrypt.CompareHashAndPassword(g.viewerHash, []byte(password)) == nil {
		return rbac.RoleViewer, nil
	}
	return "", ErrInvalidPassword
}

// HashPassword produces a hash suitable for the gate configuration.
func HashPassword(password string) (string, error) {
	if len(password) < 4 {
		return "", errors.New("password must be at least 4 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
