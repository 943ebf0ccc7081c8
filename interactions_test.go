package main

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitea.kood.tech/petrkubec/soulmate/backend/querycache"
	"gitea.kood.tech/petrkubec/soulmate/backend/store"
)

// ============================================================================
// INTERACTION RECORDER TEST SUITE
// ============================================================================

func TestInteractionSuite(t *testing.T) {
	t.Run("Record", func(t *testing.T) {
		testRecordInteraction(t)
	})

	t.Run("Validation", func(t *testing.T) {
		testInteractionValidation(t)
	})

	t.Run("SideEffects", func(t *testing.T) {
		testInteractionSideEffects(t)
	})

	t.Run("List", func(t *testing.T) {
		testListInteractions(t)
	})
}

type interactionPair struct {
	env  *testEnv
	from testUser
	to   testUser
}

func newInteractionPair(t *testing.T) interactionPair {
	env := newTestEnv(t)
	from := env.createTestUser(t, "alice@example.com")
	to := env.createTestUser(t, "bob@example.com")
	env.addProfile(t, from.ID, "Alice", 28, "Mumbai", "Masters", "Engineer")
	env.addProfile(t, to.ID, "Bob", 30, "Delhi", "Bachelors", "Doctor")
	return interactionPair{env: env, from: from, to: to}
}

func (p interactionPair) interact(t *testing.T, body any, token string) (int, interactionResponse, map[string]any) {
	t.Helper()
	w := p.env.do(t, http.MethodPost, "/profile/"+p.to.ID+"/interactions", body, token)
	var resp interactionResponse
	var raw map[string]any
	decodeBody(t, w, &raw)
	decodeBody(t, w, &resp)
	return w.Code, resp, raw
}

func testRecordInteraction(t *testing.T) {
	tests := []struct {
		name    string
		body    map[string]string
		toast   string
		message string
	}{
		{"Like", map[string]string{"action": "like"}, "Interest shown successfully!", ""},
		{"Pass", map[string]string{"action": "pass"}, "Profile passed", ""},
		{"Message", map[string]string{"action": "message", "message": "  Hello there  "}, "Message sent successfully!", "Hello there"},
		{"Message Text Dropped For Like", map[string]string{"action": "like", "message": "ignored"}, "Interest shown successfully!", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newInteractionPair(t)

			status, resp, _ := p.interact(t, tt.body, p.from.Token)
			require.Equal(t, http.StatusCreated, status)
			assert.Equal(t, "success", resp.Toast.Kind)
			assert.Equal(t, tt.toast, resp.Toast.Message)
			assert.Equal(t, tt.message, resp.Interaction.Message)
			assert.NotEmpty(t, resp.Interaction.ID)
			assert.False(t, resp.Interaction.CreatedAt.IsZero())
		})
	}

	t.Run("Like Then Read Yields Exactly One Row", func(t *testing.T) {
		p := newInteractionPair(t)

		status, _, _ := p.interact(t, map[string]string{"action": "like"}, p.from.Token)
		require.Equal(t, http.StatusCreated, status)

		rows, err := p.env.store.InteractionsFrom(t.Context(), p.from.ID)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, p.from.ID, rows[0].FromProfileID)
		assert.Equal(t, p.to.ID, rows[0].ToProfileID)
		assert.Equal(t, store.ActionLike, rows[0].Action)
	})

	t.Run("Concurrent Writes Each Add A Row", func(t *testing.T) {
		p := newInteractionPair(t)

		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				p.env.do(t, http.MethodPost, "/profile/"+p.to.ID+"/interactions", map[string]string{"action": "like"}, p.from.Token)
			}()
		}
		wg.Wait()

		rows, err := p.env.store.InteractionsFrom(t.Context(), p.from.ID)
		require.NoError(t, err)
		assert.Len(t, rows, 5)
	})

	t.Run("Backend Failure Surfaces Error Toast", func(t *testing.T) {
		p := newInteractionPair(t)
		token := p.from.Token
		// only the insert fails; the session still resolves
		p.env.app.store = &failingRecorder{fakeStore: p.env.store}

		status, _, raw := p.interact(t, map[string]string{"action": "like"}, token)
		require.Equal(t, http.StatusInternalServerError, status)
		toast := raw["toast"].(map[string]any)
		assert.Equal(t, "error", toast["kind"])
		assert.Equal(t, "Failed to interact with profile: "+errBackend.Error(), toast["message"])

		scrape := p.env.do(t, http.MethodGet, "/metrics", nil, "")
		assert.Contains(t, scrape.Body.String(), `soulmate_test_interactions_total{action="like",result="error"} 1`)
	})
}

// failingRecorder fails only the interaction insert.
type failingRecorder struct {
	*fakeStore
}

func (f *failingRecorder) RecordInteraction(ctx context.Context, in store.NewInteraction) (store.Interaction, error) {
	return store.Interaction{}, errBackend
}

func testInteractionValidation(t *testing.T) {
	p := newInteractionPair(t)

	t.Run("Anonymous Like", func(t *testing.T) {
		status, _, raw := p.interact(t, map[string]string{"action": "like"}, "")
		require.Equal(t, http.StatusUnauthorized, status)
		toast := raw["toast"].(map[string]any)
		assert.Equal(t, "Please log in to connect.", toast["message"])
	})

	t.Run("Anonymous Message", func(t *testing.T) {
		status, _, raw := p.interact(t, map[string]string{"action": "message", "message": "hi"}, "")
		require.Equal(t, http.StatusUnauthorized, status)
		toast := raw["toast"].(map[string]any)
		assert.Equal(t, "Please log in to send a message.", toast["message"])
	})

	t.Run("Anonymous With Unreadable Body", func(t *testing.T) {
		for _, body := range []any{"{", ""} {
			status, _, raw := p.interact(t, body, "")
			require.Equal(t, http.StatusUnauthorized, status)
			toast := raw["toast"].(map[string]any)
			assert.Equal(t, "Please log in to connect.", toast["message"])
		}
	})

	tests := []struct {
		name   string
		body   any
		status int
		field  string
	}{
		{"Unknown Action", map[string]string{"action": "wink"}, http.StatusUnprocessableEntity, "action"},
		{"Blank Message", map[string]string{"action": "message", "message": "   "}, http.StatusUnprocessableEntity, "message"},
		{"Missing Action", map[string]string{}, http.StatusUnprocessableEntity, "action"},
		{"Invalid JSON", "{", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _, raw := p.interact(t, tt.body, p.from.Token)
			require.Equal(t, tt.status, status)
			if tt.field != "" {
				fields := raw["fields"].(map[string]any)
				assert.Contains(t, fields, tt.field)
			}
		})
	}

	t.Run("Self Interaction Rejected", func(t *testing.T) {
		w := p.env.do(t, http.MethodPost, "/profile/"+p.from.ID+"/interactions", map[string]string{"action": "like"}, p.from.Token)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "self_interaction")
	})

	t.Run("Unknown Target", func(t *testing.T) {
		w := p.env.do(t, http.MethodPost, "/profile/"+uuid.NewString()+"/interactions", map[string]string{"action": "like"}, p.from.Token)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "Profile not found")
	})

	t.Run("Member Without Profile", func(t *testing.T) {
		bare := p.env.createTestUser(t, "no.profile@example.com")
		w := p.env.do(t, http.MethodPost, "/profile/"+bare.ID+"/interactions", map[string]string{"action": "like"}, p.from.Token)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "Profile not found")
	})

	t.Run("Nothing Was Written", func(t *testing.T) {
		rows, err := p.env.store.InteractionsFrom(t.Context(), p.from.ID)
		require.NoError(t, err)
		assert.Empty(t, rows)
	})
}

func testInteractionSideEffects(t *testing.T) {
	t.Run("Write Invalidates Interaction Lists", func(t *testing.T) {
		p := newInteractionPair(t)
		key := querycache.Key{Kind: kindInteractions, Params: p.from.ID}

		w := p.env.do(t, http.MethodGet, "/interactions", nil, p.from.Token)
		require.Equal(t, http.StatusOK, w.Code)
		assert.False(t, querycache.Peek[[]store.Interaction](p.env.app.cache, key).IsLoading)
		assert.Equal(t, 1, p.env.app.cache.Len())

		p.interact(t, map[string]string{"action": "like"}, p.from.Token)

		res := querycache.Peek[[]store.Interaction](p.env.app.cache, key)
		assert.Nil(t, res.Data)
		assert.True(t, res.FetchedAt.IsZero())
	})

	t.Run("Like Notifies Recipient", func(t *testing.T) {
		p := newInteractionPair(t)

		// warm the recipient's counts so the write has something to drop
		n, m := p.env.app.unreadCounts(t.Context(), p.to.ID)
		require.Zero(t, n)
		require.Zero(t, m)

		p.interact(t, map[string]string{"action": "like"}, p.from.Token)

		n, m = p.env.app.unreadCounts(t.Context(), p.to.ID)
		assert.Equal(t, 1, n)
		assert.Equal(t, 0, m)
	})

	t.Run("Message Adds Notification And Message", func(t *testing.T) {
		p := newInteractionPair(t)
		p.env.app.unreadCounts(t.Context(), p.to.ID)

		p.interact(t, map[string]string{"action": "message", "message": "hello"}, p.from.Token)

		n, m := p.env.app.unreadCounts(t.Context(), p.to.ID)
		assert.Equal(t, 1, n)
		assert.Equal(t, 1, m)
	})

	t.Run("Pass Is Silent", func(t *testing.T) {
		p := newInteractionPair(t)

		p.interact(t, map[string]string{"action": "pass"}, p.from.Token)

		n, m := p.env.app.unreadCounts(t.Context(), p.to.ID)
		assert.Zero(t, n)
		assert.Zero(t, m)
	})

	t.Run("Outcome Is Counted", func(t *testing.T) {
		p := newInteractionPair(t)
		p.interact(t, map[string]string{"action": "like"}, p.from.Token)
		p.interact(t, map[string]string{"action": "like"}, p.from.Token)

		scrape := p.env.do(t, http.MethodGet, "/metrics", nil, "")
		assert.Contains(t, scrape.Body.String(), `soulmate_test_interactions_total{action="like",result="ok"} 2`)
	})
}

func testListInteractions(t *testing.T) {
	p := newInteractionPair(t)
	carol := p.env.createTestUser(t, "carol@example.com")
	p.env.addProfile(t, carol.ID, "Carol", 27, "Pune", "Masters", "Teacher")

	p.interact(t, map[string]string{"action": "like"}, p.from.Token)
	p.env.do(t, http.MethodPost, "/profile/"+carol.ID+"/interactions", map[string]string{"action": "pass"}, p.from.Token)

	cardsBefore := p.env.store.cardsCalls
	w := p.env.do(t, http.MethodGet, "/interactions", nil, p.from.Token)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Interactions []sentInteraction `json:"interactions"`
	}
	decodeBody(t, w, &body)
	require.Len(t, body.Interactions, 2)

	// newest first
	assert.Equal(t, carol.ID, body.Interactions[0].ToProfileID)
	require.NotNil(t, body.Interactions[0].Profile)
	assert.Equal(t, "Carol", body.Interactions[0].Profile.FirstName)
	assert.Equal(t, "Bob", body.Interactions[1].Profile.FirstName)

	// both cards come from one batched lookup
	assert.Equal(t, cardsBefore+1, p.env.store.cardsCalls)
}
