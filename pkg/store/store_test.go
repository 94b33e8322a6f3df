package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-go-golems/ai-threads/pkg/conversation"
	"github.com/go-go-golems/ai-threads/pkg/models"
	"github.com/go-go-golems/ai-threads/pkg/store/kv"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNamer struct {
	name    string
	err     error
	release chan struct{}
	seeds   chan conversation.Message
}

func (f *fakeNamer) Name(ctx context.Context, seed conversation.Message) (string, error) {
	if f.seeds != nil {
		f.seeds <- seed
	}
	if f.release != nil {
		<-f.release
	}
	return f.name, f.err
}

func newHydrated(t *testing.T, options ...Option) *Store {
	s := New(options...)
	require.NoError(t, s.Hydrate(context.Background()))
	return s
}

func TestStore_CreateThread(t *testing.T) {
	s := newHydrated(t)
	msg := conversation.NewUserMessage("hello")
	id := s.CreateThread(msg, models.GPT4o)

	th, ok := s.Thread(id)
	require.True(t, ok)
	assert.Equal(t, conversation.DefaultThreadName, th.Name)
	assert.Equal(t, models.GPT4o, th.Model)
	require.Len(t, th.Messages, 1)
	assert.Equal(t, msg.ID, th.Messages[0].ID)

	id2 := s.CreateThread(conversation.NewUserMessage("x"), "")
	th2, _ := s.Thread(id2)
	assert.Equal(t, models.DefaultModel, th2.Model)

	list := s.Threads()
	require.Len(t, list, 2)
	assert.Equal(t, id, list[0].ID)
	assert.Equal(t, id2, list[1].ID)
}

func TestStore_CreateThreadUsesPreferredModel(t *testing.T) {
	s := newHydrated(t)
	s.UpdatePreferences(func(p *Preferences) { p.DefaultModel = models.Claude35Haiku })
	id := s.CreateThread(conversation.NewUserMessage("x"), "")
	th, _ := s.Thread(id)
	assert.Equal(t, models.Claude35Haiku, th.Model)
}

func TestStore_AddMessage_ImmutableUpdate(t *testing.T) {
	s := newHydrated(t)
	id := s.CreateThread(conversation.NewUserMessage("hi"), models.Claude3Haiku)
	before, _ := s.Thread(id)
	beforeState := s.GetState()

	ok := s.AddMessage(id, conversation.NewAssistantMessage("yo"), &TokenInfo{Model: models.Claude3Haiku, Input: 10, Output: 2})
	require.True(t, ok)

	after, _ := s.Thread(id)
	assert.NotSame(t, before, after)
	assert.Len(t, before.Messages, 1)
	assert.Len(t, after.Messages, 2)
	assert.Equal(t, models.TokenCount{Input: 10, Output: 2}, after.Tokens[models.Claude3Haiku])
	assert.Empty(t, before.Tokens)

	// the old state value still points at the old thread record
	assert.Same(t, before, beforeState.Threads[id])
}

func TestStore_AddMessage_MissingThreadIsNoop(t *testing.T) {
	s := newHydrated(t)
	calls := 0
	s.Subscribe(func(old, new State) { calls++ })

	assert.NotPanics(t, func() {
		assert.False(t, s.AddMessage("nope", conversation.NewAssistantMessage("x"), nil))
	})
	assert.Equal(t, 0, calls)
}

func TestStore_RemoveMessage(t *testing.T) {
	s := newHydrated(t)
	seed := conversation.NewUserMessage("seed")
	id := s.CreateThread(seed, models.Claude3Haiku)
	reply := conversation.NewAssistantMessage("reply")
	s.AddMessage(id, reply, nil)

	before, _ := s.Thread(id)

	// unknown message ids leave the same record in place
	assert.False(t, s.RemoveMessage(id, "unknown"))
	same, _ := s.Thread(id)
	assert.Same(t, before, same)

	assert.False(t, s.RemoveMessage("unknown-thread", reply.ID))

	// the seed message can be removed
	require.True(t, s.RemoveMessage(id, seed.ID))
	after, _ := s.Thread(id)
	require.Len(t, after.Messages, 1)
	assert.Equal(t, reply.ID, after.Messages[0].ID)
	assert.Len(t, before.Messages, 2)
}

func TestStore_RenameAndSetModel(t *testing.T) {
	s := newHydrated(t)
	id := s.CreateThread(conversation.NewUserMessage("hi"), models.Claude3Haiku)

	assert.True(t, s.RenameThread(id, "Greetings"))
	assert.False(t, s.RenameThread(id, "Greetings"))
	assert.False(t, s.RenameThread("missing", "x"))
	assert.True(t, s.SetThreadModel(id, models.GPT4oMini))

	th, _ := s.Thread(id)
	assert.Equal(t, "Greetings", th.Name)
	assert.Equal(t, models.GPT4oMini, th.Model)
}

func TestStore_DeleteThreadTombstones(t *testing.T) {
	s := newHydrated(t)
	id := s.CreateThread(conversation.NewUserMessage("hi"), models.Claude3Haiku)
	other := s.CreateThread(conversation.NewUserMessage("other"), models.Claude3Haiku)

	require.True(t, s.DeleteThread(id))
	assert.False(t, s.DeleteThread(id))

	st := s.GetState()
	v, present := st.Threads[id]
	assert.True(t, present)
	assert.Nil(t, v)

	_, ok := s.Thread(id)
	assert.False(t, ok)
	list := s.Threads()
	require.Len(t, list, 1)
	assert.Equal(t, other, list[0].ID)

	assert.False(t, s.AddMessage(id, conversation.NewAssistantMessage("late"), nil))
}

func TestStore_AddTokensIsGlobal(t *testing.T) {
	s := newHydrated(t)
	s.AddTokens(models.Claude3Haiku, 1_000_000, 0)
	s.AddTokens(models.Claude3Haiku, 0, 1_000_000)
	s.AddTokens(models.GPT4o, 10, 20)

	st := s.GetState()
	assert.Equal(t, models.TokenCount{Input: 1_000_000, Output: 1_000_000}, st.Tokens[models.Claude3Haiku])
	assert.Equal(t, models.TokenCount{Input: 10, Output: 20}, st.Tokens[models.GPT4o])
	assert.InDelta(t, 1.5+0.000225, st.Cost(), 1e-9)
}

func TestStore_SubscribeAndUnsubscribe(t *testing.T) {
	s := newHydrated(t)
	var seen []State
	unsubscribe := s.Subscribe(func(old, new State) {
		seen = append(seen, new)
	})

	id := s.CreateThread(conversation.NewUserMessage("hi"), models.Claude3Haiku)
	require.Len(t, seen, 1)
	_, ok := seen[0].Threads[id]
	assert.True(t, ok)

	unsubscribe()
	s.RenameThread(id, "x")
	assert.Len(t, seen, 1)
}

func TestStore_Snapshot(t *testing.T) {
	s := newHydrated(t)
	id := s.CreateThread(conversation.NewUserMessage("hi"), models.Claude3Haiku)

	snap, ok := s.Snapshot(id)
	require.True(t, ok)
	snap.Messages[0].Content[0].Text = "changed"
	snap.Name = "changed"

	th, _ := s.Thread(id)
	assert.Equal(t, "hi", th.Messages[0].Content[0].Text)
	assert.Equal(t, conversation.DefaultThreadName, th.Name)
}

func TestStore_Naming(t *testing.T) {
	namer := &fakeNamer{name: "Saying hello", seeds: make(chan conversation.Message, 1)}
	s := newHydrated(t, WithNamer(namer), WithNamingTimeout(time.Second))

	seed := conversation.NewUserMessage("hello there")
	id := s.CreateThread(seed, models.Claude3Haiku)
	s.Wait()

	got := <-namer.seeds
	assert.Equal(t, seed.ID, got.ID)
	th, _ := s.Thread(id)
	assert.Equal(t, "Saying hello", th.Name)
}

func TestStore_NamingAfterDeleteIsNoop(t *testing.T) {
	namer := &fakeNamer{name: "Too late", release: make(chan struct{})}
	s := newHydrated(t, WithNamer(namer))

	id := s.CreateThread(conversation.NewUserMessage("hello"), models.Claude3Haiku)
	require.True(t, s.DeleteThread(id))
	close(namer.release)
	s.Wait()

	st := s.GetState()
	v, present := st.Threads[id]
	assert.True(t, present)
	assert.Nil(t, v)
}

func TestStore_NamingFailureKeepsDefault(t *testing.T) {
	namer := &fakeNamer{err: errors.New("no credentials")}
	s := newHydrated(t, WithNamer(namer))
	id := s.CreateThread(conversation.NewUserMessage("hello"), models.Claude3Haiku)
	s.Wait()

	th, _ := s.Thread(id)
	assert.Equal(t, conversation.DefaultThreadName, th.Name)
}

func TestStore_PersistAndHydrate(t *testing.T) {
	ctx := context.Background()
	backing := kv.NewMemoryKV()

	s := New(WithKV(backing, "test-key"))
	// mutations before hydration are not written
	early := s.CreateThread(conversation.NewUserMessage("early"), models.Claude3Haiku)
	assert.Equal(t, 0, backing.Writes())
	require.NoError(t, s.Hydrate(ctx))
	assert.True(t, s.HasHydrated())

	id := s.CreateThread(conversation.NewUserMessage("hi"), models.GPT4o)
	s.AddMessage(id, conversation.NewAssistantMessage("yo"), &TokenInfo{Model: models.GPT4o, Input: 3, Output: 4})
	s.AddTokens(models.GPT4o, 3, 4)
	s.UpdatePreferences(func(p *Preferences) {
		p.UseCredentialProfile = true
		p.CredentialProfile = "work"
	})
	gone := s.CreateThread(conversation.NewUserMessage("bye"), models.GPT4o)
	s.DeleteThread(gone)

	raw, ok, err := backing.Get(ctx, "test-key")
	require.NoError(t, err)
	require.True(t, ok)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &decoded))
	assert.Contains(t, decoded, "state")

	restored := New(WithKV(backing, "test-key"))
	assert.False(t, restored.HasHydrated())
	require.NoError(t, restored.Hydrate(ctx))

	list := restored.Threads()
	require.Len(t, list, 2)
	assert.Equal(t, early, list[0].ID)
	assert.Equal(t, id, list[1].ID)
	assert.Len(t, list[1].Messages, 2)
	assert.Equal(t, models.TokenCount{Input: 3, Output: 4}, list[1].Tokens[models.GPT4o])

	st := restored.GetState()
	v, present := st.Threads[gone]
	assert.True(t, present)
	assert.Nil(t, v)
	assert.Equal(t, models.TokenCount{Input: 3, Output: 4}, st.Tokens[models.GPT4o])
	assert.True(t, st.Preferences.UseCredentialProfile)
	assert.Equal(t, "work", st.Preferences.CredentialProfile)
}

func TestStore_HydrateMergesInMemoryThreads(t *testing.T) {
	ctx := context.Background()
	backing := kv.NewMemoryKV()

	first := newHydrated(t, WithKV(backing, ""))
	persisted := first.CreateThread(conversation.NewUserMessage("old"), models.Claude3Haiku)

	second := New(WithKV(backing, ""))
	fresh := second.CreateThread(conversation.NewUserMessage("new"), models.Claude3Haiku)
	require.NoError(t, second.Hydrate(ctx))

	list := second.Threads()
	require.Len(t, list, 2)
	assert.Equal(t, persisted, list[0].ID)
	assert.Equal(t, fresh, list[1].ID)
}

func TestStore_HydrateRejectsGarbage(t *testing.T) {
	backing := kv.NewMemoryKV()
	require.NoError(t, backing.Set(context.Background(), DefaultKey, "{not json"))
	s := New(WithKV(backing, ""))
	assert.Error(t, s.Hydrate(context.Background()))
	assert.False(t, s.HasHydrated())
}
