// Package store holds the reactive aggregate of all conversation threads.
//
// Every mutation builds a new State value: thread records, the thread map and
// the token map are never modified after they have been published, so
// subscribers can compare pointers to detect changes. The persisted subset
// (threads, token totals, preferences) is written to a kv.KV after each
// mutation once the store has been hydrated.
package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-go-golems/ai-threads/pkg/conversation"
	"github.com/go-go-golems/ai-threads/pkg/models"
	"github.com/go-go-golems/ai-threads/pkg/store/kv"
	"github.com/google/uuid"
	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const DefaultKey = "bedrock-threads"

const DefaultNamingTimeout = 30 * time.Second

// Namer produces a short title for a thread from its seed message.
type Namer interface {
	Name(ctx context.Context, seed conversation.Message) (string, error)
}

type Listener func(old, new State)

type Store struct {
	mu        sync.Mutex
	state     State
	listeners map[int]Listener
	nextID    int
	version   uint64

	kv  kv.KV
	key string

	persistMu        sync.Mutex
	persistedVersion uint64

	namer         Namer
	namingTimeout time.Duration
	naming        sync.WaitGroup
}

type Option func(*Store)

// WithKV enables persistence under key.
func WithKV(store kv.KV, key string) Option {
	return func(s *Store) {
		s.kv = store
		if key != "" {
			s.key = key
		}
	}
}

func WithNamer(n Namer) Option {
	return func(s *Store) {
		s.namer = n
	}
}

func WithNamingTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.namingTimeout = d
	}
}

func New(options ...Option) *Store {
	ret := &Store{
		state: State{
			Threads: map[string]*conversation.Thread{},
			Tokens:  map[models.ModelID]models.TokenCount{},
		},
		listeners:     map[int]Listener{},
		key:           DefaultKey,
		namingTimeout: DefaultNamingTimeout,
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

// SetNamer installs the naming sub-flow after construction. The engine that
// implements naming usually needs the store itself.
func (s *Store) SetNamer(n Namer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.namer = n
}

// Subscribe registers fn to be called after every mutation. The returned
// function removes the subscription.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Store) GetState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Store) HasHydrated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.HasHydrated
}

// Thread returns the published record for id. The record must not be
// modified. Deleted and unknown threads report false.
func (s *Store) Thread(id string) (*conversation.Thread, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.state.Threads[id]
	return t, t != nil
}

// Snapshot returns a deep copy of the thread that the caller owns.
func (s *Store) Snapshot(id string) (*conversation.Thread, bool) {
	t, ok := s.Thread(id)
	if !ok {
		return nil, false
	}
	return clone.Clone(t).(*conversation.Thread), true
}

// Threads lists live threads in creation order. Before Hydrate only threads
// created in this process are listed; Hydrate puts the persisted threads in
// front of them and keeps the in-memory record on id collisions.
func (s *Store) Threads() []*conversation.Thread {
	st := s.GetState()
	ret := make([]*conversation.Thread, 0, len(st.Order))
	for _, id := range st.Order {
		if t := st.Threads[id]; t != nil {
			ret = append(ret, t)
		}
	}
	return ret
}

// update applies fn to a copy of the current state. fn reports whether it
// changed anything; unchanged states are neither published nor persisted.
func (s *Store) update(op string, fn func(st *State) bool) bool {
	s.mu.Lock()
	old := s.state
	next := old
	if !fn(&next) {
		s.mu.Unlock()
		log.Trace().Str("op", op).Msg("Store mutation was a no-op")
		return false
	}
	s.state = next
	s.version++
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	log.Trace().Str("op", op).Msg("Store mutated")
	s.persist(context.Background())
	for _, l := range listeners {
		l(old, next)
	}
	return true
}

// CreateThread publishes a new thread seeded with message and starts naming
// it in the background.
func (s *Store) CreateThread(message conversation.Message, model models.ModelID) string {
	id := uuid.NewString()
	s.update("createThread", func(st *State) bool {
		if model == "" {
			model = st.Preferences.DefaultModel
		}
		if model == "" {
			model = models.DefaultModel
		}
		threads := st.copyThreads()
		threads[id] = &conversation.Thread{
			ID:       id,
			Name:     conversation.DefaultThreadName,
			Model:    model,
			Messages: []conversation.Message{message},
			Tokens:   map[models.ModelID]models.TokenCount{},
		}
		st.Threads = threads
		order := make([]string, len(st.Order), len(st.Order)+1)
		copy(order, st.Order)
		st.Order = append(order, id)
		return true
	})
	log.Debug().Str("thread_id", id).Str("model", string(model)).Msg("Created thread")

	s.mu.Lock()
	namer := s.namer
	s.mu.Unlock()
	if namer != nil {
		s.naming.Add(1)
		go func() {
			defer s.naming.Done()
			s.nameThread(namer, id, message)
		}()
	}
	return id
}

func (s *Store) nameThread(namer Namer, id string, seed conversation.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), s.namingTimeout)
	defer cancel()

	name, err := namer.Name(ctx, seed)
	if err != nil {
		log.Warn().Err(err).Str("thread_id", id).Msg("Could not name thread")
		return
	}
	if name == "" || name == conversation.DefaultThreadName {
		return
	}
	if !s.RenameThread(id, name) {
		log.Debug().Str("thread_id", id).Msg("Thread went away before it was named")
	}
}

// Wait blocks until all pending naming requests have finished.
func (s *Store) Wait() {
	s.naming.Wait()
}

// patchThread replaces thread id with the result of fn. Missing and deleted
// threads are left alone.
func (s *Store) patchThread(op string, id string, fn func(t *conversation.Thread) bool) bool {
	return s.update(op, func(st *State) bool {
		t := st.Threads[id]
		if t == nil {
			return false
		}
		next := t.Copy()
		if !fn(next) {
			return false
		}
		threads := st.copyThreads()
		threads[id] = next
		st.Threads = threads
		return true
	})
}

// AddMessage appends message to the thread. tokenInfo, when given, is added
// to the thread's own token totals.
func (s *Store) AddMessage(threadID string, message conversation.Message, tokenInfo *TokenInfo) bool {
	return s.patchThread("addMessage", threadID, func(t *conversation.Thread) bool {
		t.Messages = append(t.Messages, message)
		if tokenInfo != nil {
			t.Tokens[tokenInfo.Model] = t.Tokens[tokenInfo.Model].Add(tokenInfo.Input, tokenInfo.Output)
		}
		return true
	})
}

// RemoveMessage drops a message from the thread. Any message may be removed,
// including the seed message. Unknown ids leave the store untouched and
// nothing is published.
func (s *Store) RemoveMessage(threadID string, messageID string) bool {
	return s.patchThread("removeMessage", threadID, func(t *conversation.Thread) bool {
		for i, m := range t.Messages {
			if m.ID == messageID {
				t.Messages = append(t.Messages[:i:i], t.Messages[i+1:]...)
				return true
			}
		}
		return false
	})
}

func (s *Store) RenameThread(id string, name string) bool {
	return s.patchThread("renameThread", id, func(t *conversation.Thread) bool {
		if t.Name == name {
			return false
		}
		t.Name = name
		return true
	})
}

func (s *Store) SetThreadModel(id string, model models.ModelID) bool {
	return s.patchThread("setThreadModel", id, func(t *conversation.Thread) bool {
		if t.Model == model {
			return false
		}
		t.Model = model
		return true
	})
}

// DeleteThread clears the slot of the thread and keeps its key.
func (s *Store) DeleteThread(id string) bool {
	return s.update("deleteThread", func(st *State) bool {
		if st.Threads[id] == nil {
			return false
		}
		threads := st.copyThreads()
		threads[id] = nil
		st.Threads = threads
		return true
	})
}

// AddTokens adds to the process-wide per-model totals.
func (s *Store) AddTokens(model models.ModelID, input, output int) {
	s.update("addTokens", func(st *State) bool {
		tokens := st.copyTokens()
		tokens[model] = tokens[model].Add(input, output)
		st.Tokens = tokens
		return true
	})
}

func (s *Store) UpdatePreferences(fn func(p *Preferences)) {
	s.update("updatePreferences", func(st *State) bool {
		prefs := st.Preferences
		fn(&prefs)
		if prefs == st.Preferences {
			return false
		}
		st.Preferences = prefs
		return true
	})
}

// Hydrate loads the persisted state and merges it under what is already in
// memory: threads created before hydration win over persisted ones with the
// same id, token totals are summed and persisted preferences replace the
// defaults.
func (s *Store) Hydrate(ctx context.Context) error {
	var loaded *persistedState
	if s.kv != nil {
		v, ok, err := s.kv.Get(ctx, s.key)
		if err != nil {
			return errors.Wrap(err, "could not read persisted store")
		}
		if ok && v != "" {
			loaded = &persistedState{}
			if err := json.Unmarshal([]byte(v), loaded); err != nil {
				return errors.Wrap(err, "could not decode persisted store")
			}
		}
	}

	s.update("hydrate", func(st *State) bool {
		st.HasHydrated = true
		if loaded == nil {
			return true
		}
		p := loaded.State

		threads := make(map[string]*conversation.Thread, len(p.Threads)+len(st.Threads))
		order := make([]string, 0, len(p.Threads)+len(st.Order))
		seen := map[string]bool{}
		for _, id := range p.Order {
			if _, ok := p.Threads[id]; ok && !seen[id] {
				order = append(order, id)
				seen[id] = true
			}
		}
		for id := range p.Threads {
			if !seen[id] {
				order = append(order, id)
				seen[id] = true
			}
		}
		for id, t := range p.Threads {
			if t != nil && t.Tokens == nil {
				t.Tokens = map[models.ModelID]models.TokenCount{}
			}
			threads[id] = t
		}
		for _, id := range st.Order {
			threads[id] = st.Threads[id]
			if !seen[id] {
				order = append(order, id)
				seen[id] = true
			}
		}
		st.Threads = threads
		st.Order = order

		tokens := st.copyTokens()
		for m, c := range p.Tokens {
			tokens[m] = tokens[m].Add(c.Input, c.Output)
		}
		st.Tokens = tokens
		st.Preferences = p.Preferences
		return true
	})

	log.Debug().Int("threads", len(s.Threads())).Msg("Store hydrated")
	return nil
}

func (s *Store) persist(ctx context.Context) {
	if s.kv == nil {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	st := s.state
	version := s.version
	s.mu.Unlock()

	// never overwrite the persisted snapshot with a store that has not loaded it
	if !st.HasHydrated || version <= s.persistedVersion {
		return
	}

	var p persistedState
	p.Version = persistVersion
	p.State.Threads = st.Threads
	p.State.Order = st.Order
	p.State.Tokens = st.Tokens
	p.State.Preferences = st.Preferences

	b, err := json.Marshal(p)
	if err != nil {
		log.Error().Err(err).Msg("Could not encode store")
		return
	}
	if err := s.kv.Set(ctx, s.key, string(b)); err != nil {
		log.Error().Err(err).Str("key", s.key).Msg("Could not persist store")
		return
	}
	s.persistedVersion = version
}
