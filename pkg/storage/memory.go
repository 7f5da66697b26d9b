package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/deskmesh/deskmesh/pkg/domain"
)

// MemoryStore is an in-memory implementation of Store. It is safe for
// concurrent use and intended for tests and single-process deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	users    []User
	issues   []KnownIssue
	feedback []Feedback
	nextID   int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

// AddUser stores a user, assigning an ID when none is set.
func (s *MemoryStore) AddUser(u User) User {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == 0 {
		u.ID = s.nextID
	}
	if u.ID >= s.nextID {
		s.nextID = u.ID + 1
	}
	s.users = append(s.users, u)
	return u
}

// AddKnownIssue stores a knowledge-base entry.
func (s *MemoryStore) AddKnownIssue(issue KnownIssue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issues = append(s.issues, issue)
}

// ResolveUser implements UserDirectory. The reference matches either the
// email address or the display name, case-insensitively.
func (s *MemoryStore) ResolveUser(_ context.Context, ref string) (User, error) {
	needle := strings.ToLower(strings.TrimSpace(ref))
	if needle == "" {
		return User{}, fmt.Errorf("resolve user %q: %w", ref, domain.ErrUserNotFound)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.ToLower(u.Email) == needle || strings.ToLower(u.Name) == needle {
			return u, nil
		}
	}
	return User{}, fmt.Errorf("resolve user %q: %w", ref, domain.ErrUserNotFound)
}

// FindMatch implements KnowledgeBase. Symptom triggers in the ticket text
// take precedence; otherwise the first issue whose category contains the
// intent wins.
func (s *MemoryStore) FindMatch(_ context.Context, intent, text string) (KnownIssue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if key := triggeredIssueKey(text); key != "" {
		for _, issue := range s.issues {
			if issue.Key == key {
				return issue, nil
			}
		}
	}

	needle := strings.ToLower(intent)
	if needle != "" {
		for _, issue := range s.issues {
			if strings.Contains(strings.ToLower(issue.Category), needle) {
				return issue, nil
			}
		}
	}
	return KnownIssue{}, domain.ErrNoKnownIssue
}

// SaveFeedback implements FeedbackStore.
func (s *MemoryStore) SaveFeedback(_ context.Context, fb Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedback = append(s.feedback, fb)
	return nil
}

// Feedback returns a copy of all stored feedback entries.
func (s *MemoryStore) Feedback() []Feedback {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Feedback, len(s.feedback))
	copy(out, s.feedback)
	return out
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}
