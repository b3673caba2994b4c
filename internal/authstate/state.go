// Package authstate tracks whether the client holds a session token and
// broadcasts changes to subscribers. The flag is advisory: it decides what
// to show, never what to allow.
package authstate

import (
	"fmt"
	"sync"
)

// Listener receives the logged-in flag after every change.
type Listener func(loggedIn bool)

type State struct {
	store TokenStore

	mu        sync.Mutex
	loggedIn  bool
	next      int
	listeners map[int]Listener
}

// New derives the initial flag from the store.
func New(store TokenStore) (*State, error) {
	if store == nil {
		store = &MemoryTokenStore{}
	}
	s := &State{store: store, listeners: map[int]Listener{}}
	tok, err := store.Load()
	if err != nil {
		return nil, err
	}
	s.loggedIn = tok != ""
	return s, nil
}

func (s *State) LoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedIn
}

// Token returns the stored token, empty when signed out.
func (s *State) Token() (string, error) {
	return s.store.Load()
}

// Subscribe registers l and returns a func that removes it.
func (s *State) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.next
	s.next++
	s.listeners[id] = l
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// Notify recomputes the flag from storage and delivers it to every
// subscriber. Listeners run synchronously outside the lock.
func (s *State) Notify() error {
	tok, err := s.store.Load()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.loggedIn = tok != ""
	flag := s.loggedIn
	ls := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		ls = append(ls, l)
	}
	s.mu.Unlock()

	for _, l := range ls {
		l(flag)
	}
	return nil
}

// SignIn stores the token and broadcasts.
func (s *State) SignIn(token string) error {
	if token == "" {
		return fmt.Errorf("authstate: empty token")
	}
	if err := s.store.Save(token); err != nil {
		return err
	}
	return s.Notify()
}

// SignOut clears the token and broadcasts.
func (s *State) SignOut() error {
	if err := s.store.Clear(); err != nil {
		return err
	}
	return s.Notify()
}
