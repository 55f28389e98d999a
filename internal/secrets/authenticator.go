package secrets

import (
	"context"
	"sync"
)

// Credential is a resolved secret. The value never appears in logs or in
// normalized records; String redacts it.
type Credential struct {
	Name  string
	value string
}

// Value returns the resolved secret value.
func (c Credential) Value() string { return c.value }

// String redacts the secret so credentials are safe to log by accident.
func (c Credential) String() string { return c.Name + ":[redacted]" }

// Authenticator caches resolved credentials for the process lifetime.
// Reads are the common path and take the read lock only; the store is
// consulted on first use and after Invalidate.
type Authenticator struct {
	store Store

	mu    sync.RWMutex
	cache map[string]Credential
}

// NewAuthenticator creates an Authenticator backed by the given store.
func NewAuthenticator(store Store) *Authenticator {
	return &Authenticator{
		store: store,
		cache: make(map[string]Credential),
	}
}

// GetCredential returns the cached credential for name, resolving it from
// the secret store on a cache miss.
func (a *Authenticator) GetCredential(ctx context.Context, name string) (Credential, error) {
	a.mu.RLock()
	cred, ok := a.cache[name]
	a.mu.RUnlock()
	if ok {
		return cred, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Another caller may have refreshed while we waited for the write lock.
	if cred, ok := a.cache[name]; ok {
		return cred, nil
	}

	val, err := a.store.GetSecret(ctx, name)
	if err != nil {
		return Credential{}, err
	}

	cred = Credential{Name: name, value: val}
	a.cache[name] = cred
	return cred, nil
}

// Invalidate drops the cached credential so the next GetCredential resolves
// a fresh value from the store. Called on auth rejection signals.
func (a *Authenticator) Invalidate(name string) {
	a.mu.Lock()
	delete(a.cache, name)
	a.mu.Unlock()
}
