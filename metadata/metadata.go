// Package metadata serves token metadata URIs: a single base URI with
// the decimal token ID appended, following the multi-token metadata
// convention the marketplaces expect.
package metadata

import (
	"context"
	"fmt"
	"sync"

	"github.com/bridgemint/bridgemint-go/identity"
	"github.com/bridgemint/bridgemint-go/roles"
	"github.com/bridgemint/bridgemint-go/storage"
	"github.com/bridgemint/bridgemint-go/types"
)

var baseURIKey = []byte("m:baseuri")

type (
	// AccessGate authorizes the base URI update.
	AccessGate interface {
		RequireRole(role types.RoleID, principal types.Principal) error
	}

	// ExistenceView reports whether a token ID was issued.
	ExistenceView interface {
		Exists(id types.TokenID) bool
	}

	// Store formats token URIs over a persisted base URI.
	Store struct {
		mu     sync.RWMutex
		gate   AccessGate
		ident  identity.Resolver
		tokens ExistenceView
		store  *storage.Store
		base   string
	}
)

// NewStore builds a metadata store. defaultBase is used until the
// first SetBaseURI call; a previously persisted base URI wins over it.
func NewStore(store *storage.Store, gate AccessGate, ident identity.Resolver, tokens ExistenceView, defaultBase string) (*Store, error) {
	s := &Store{
		gate:   gate,
		ident:  ident,
		tokens: tokens,
		store:  store,
		base:   defaultBase,
	}
	value, err := store.Get(baseURIKey)
	if err != nil {
		return nil, fmt.Errorf("reading base URI: %w", err)
	}
	if value != nil {
		s.base = string(value)
	}
	return s, nil
}

// URI returns the metadata URI of token id. Querying a token the
// registry never issued is an UnknownTokenError.
func (s *Store) URI(id types.TokenID) (string, error) {
	if !s.tokens.Exists(id) {
		return "", &types.UnknownTokenError{Token: id}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base + id.String(), nil
}

// BaseURI returns the current base URI.
func (s *Store) BaseURI() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base
}

// SetBaseURI replaces the base URI. Admin only.
func (s *Store) SetBaseURI(ctx context.Context, base string) error {
	caller, err := s.ident.Caller(ctx)
	if err != nil {
		return err
	}
	if err := s.gate.RequireRole(roles.Admin, caller); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Set(baseURIKey, []byte(base)); err != nil {
		return fmt.Errorf("persisting base URI: %w", err)
	}
	s.base = base
	return nil
}
