package session

import "sync"

// Registry indexes authenticated sessions by account so a push from one
// device can be fanned out to the account's other devices.
type Registry struct {
	mu        sync.RWMutex
	byAccount map[string]map[*Session]struct{}
}

func NewRegistry() *Registry {
	return &Registry{byAccount: map[string]map[*Session]struct{}{}}
}

// Add registers an authenticated session under its account.
func (r *Registry) Add(s *Session) {
	accountID := s.AccountID()
	if accountID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.byAccount[accountID]
	if !ok {
		set = map[*Session]struct{}{}
		r.byAccount[accountID] = set
	}
	set[s] = struct{}{}
}

// Remove drops the session from the given account's set. A session being
// removed twice, or never added, is a no-op.
func (r *Registry) Remove(accountID string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.byAccount[accountID]
	if !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(r.byAccount, accountID)
	}
}

// Siblings returns a snapshot of the account's sessions excluding origin.
// The snapshot is taken under the lock; sends to it happen outside, so a
// slow receiver never blocks the registry.
func (r *Registry) Siblings(accountID string, origin *Session) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byAccount[accountID]
	if len(set) == 0 {
		return nil
	}
	out := make([]*Session, 0, len(set))
	for s := range set {
		if s != origin {
			out = append(out, s)
		}
	}
	return out
}

// Count returns the number of sessions registered for the account.
func (r *Registry) Count(accountID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byAccount[accountID])
}
