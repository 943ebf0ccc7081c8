package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"gitea.kood.tech/petrkubec/soulmate/backend/config"
	"gitea.kood.tech/petrkubec/soulmate/backend/filter"
	"gitea.kood.tech/petrkubec/soulmate/backend/media"
	"gitea.kood.tech/petrkubec/soulmate/backend/metrics"
	"gitea.kood.tech/petrkubec/soulmate/backend/store"
)

// ============================================================================
// IN-MEMORY STORE
// ============================================================================

// fakeStore implements store.Store in memory. Set failWith to make every
// call return that error.
type fakeStore struct {
	mu sync.Mutex

	users         map[string]store.User
	profiles      map[string]store.ProfileDetail
	accounts      map[string]store.Account
	interactions  []store.Interaction
	notifications map[string]int
	messages      map[string]int

	failWith     error
	listCalls    int
	detailCalls  int
	cardsCalls   int
	countFailure error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:         map[string]store.User{},
		profiles:      map[string]store.ProfileDetail{},
		accounts:      map[string]store.Account{},
		notifications: map[string]int{},
		messages:      map[string]int{},
	}
}

func (s *fakeStore) CreateUser(ctx context.Context, email, passwordHash string) (store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return store.User{}, s.failWith
	}
	for _, u := range s.users {
		if u.Email == email {
			return store.User{}, store.ErrDuplicate
		}
	}
	u := store.User{ID: uuid.NewString(), Email: email, PasswordHash: passwordHash, CreatedAt: time.Now()}
	s.users[u.ID] = u
	return u, nil
}

func (s *fakeStore) UserByEmail(ctx context.Context, email string) (store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return store.User{}, s.failWith
	}
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return store.User{}, store.ErrNotFound
}

func (s *fakeStore) UserByID(ctx context.Context, id string) (store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return store.User{}, s.failWith
	}
	u, ok := s.users[id]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return u, nil
}

func (s *fakeStore) TouchLastOnline(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		now := time.Now()
		u.LastOnline = &now
		s.users[id] = u
	}
	return nil
}

func (s *fakeStore) ListProfiles(ctx context.Context, pred filter.Predicate) ([]store.ProfileCard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.failWith != nil {
		return nil, s.failWith
	}
	var out []store.ProfileCard
	for _, p := range s.profiles {
		if pred.Matches(p.Fields()) {
			out = append(out, p.ProfileCard)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FirstName < out[j].FirstName })
	return out, nil
}

func (s *fakeStore) ProfileDetail(ctx context.Context, profileID string) (store.ProfileDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detailCalls++
	if s.failWith != nil {
		return store.ProfileDetail{}, s.failWith
	}
	p, ok := s.profiles[profileID]
	if !ok {
		return store.ProfileDetail{}, store.ErrNotFound
	}
	return p, nil
}

func (s *fakeStore) ProfileCards(ctx context.Context, profileIDs []string) (map[string]store.ProfileCard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cardsCalls++
	if s.failWith != nil {
		return nil, s.failWith
	}
	out := make(map[string]store.ProfileCard, len(profileIDs))
	for _, id := range profileIDs {
		if p, ok := s.profiles[id]; ok {
			out[id] = p.ProfileCard
		}
	}
	return out, nil
}

func (s *fakeStore) AddProfileImage(ctx context.Context, profileID, imageURL string) (store.ProfileImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return store.ProfileImage{}, s.failWith
	}
	p, ok := s.profiles[profileID]
	if !ok {
		return store.ProfileImage{}, store.ErrNotFound
	}
	img := store.ProfileImage{
		ID:         uuid.NewString(),
		ImageURL:   imageURL,
		IsPrimary:  len(p.Images) == 0,
		OrderIndex: len(p.Images),
	}
	p.Images = append(p.Images, img)
	if img.IsPrimary {
		p.ProfileImage = imageURL
		if a, ok := s.accounts[profileID]; ok {
			a.AvatarURL = imageURL
			s.accounts[profileID] = a
		}
	}
	s.profiles[profileID] = p
	return img, nil
}

func (s *fakeStore) Account(ctx context.Context, userID string) (store.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return store.Account{}, s.failWith
	}
	a, ok := s.accounts[userID]
	if !ok {
		return store.Account{}, store.ErrNotFound
	}
	return a, nil
}

func (s *fakeStore) UpsertAccount(ctx context.Context, a store.Account) (store.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return store.Account{}, s.failWith
	}
	a.UpdatedAt = time.Now()
	s.accounts[a.ID] = a
	return a, nil
}

func (s *fakeStore) RecordInteraction(ctx context.Context, in store.NewInteraction) (store.Interaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return store.Interaction{}, s.failWith
	}
	if _, ok := s.profiles[in.ToProfileID]; !ok {
		return store.Interaction{}, store.ErrNotFound
	}
	row := store.Interaction{
		ID:            uuid.NewString(),
		FromProfileID: in.FromProfileID,
		ToProfileID:   in.ToProfileID,
		Action:        in.Action,
		Message:       in.Message,
		CreatedAt:     time.Now(),
	}
	s.interactions = append(s.interactions, row)
	return row, nil
}

func (s *fakeStore) InteractionsFrom(ctx context.Context, fromProfileID string) ([]store.Interaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	var out []store.Interaction
	for i := len(s.interactions) - 1; i >= 0; i-- {
		if s.interactions[i].FromProfileID == fromProfileID {
			out = append(out, s.interactions[i])
		}
	}
	return out, nil
}

func (s *fakeStore) CreateNotification(ctx context.Context, userID, kind, actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications[userID]++
	return nil
}

func (s *fakeStore) CreateMessage(ctx context.Context, senderID, receiverID, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[receiverID]++
	return nil
}

func (s *fakeStore) UnreadNotifications(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countFailure != nil {
		return 0, s.countFailure
	}
	return s.notifications[userID], nil
}

func (s *fakeStore) UnreadMessages(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countFailure != nil {
		return 0, s.countFailure
	}
	return s.messages[userID], nil
}

func (s *fakeStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failWith
}

func (s *fakeStore) fail(err error) {
	s.mu.Lock()
	s.failWith = err
	s.mu.Unlock()
}

var _ store.Store = (*fakeStore)(nil)

var errBackend = errors.New("connection refused")

// ============================================================================
// TEST APP
// ============================================================================

type testUser struct {
	ID    string
	Email string
	Token string
}

type testEnv struct {
	app     *App
	store   *fakeStore
	handler http.Handler
	metrics *metrics.Metrics
}

func testConfig(t *testing.T) config.Config {
	cfg := config.Default()
	cfg.Postgres.DSN = "postgres://unused"
	cfg.Auth.JWTSecret = "test-secret-key-for-testing"
	cfg.Uploads.Dir = t.TempDir()
	cfg.Cache.RetryDelay = 0
	return cfg
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := testConfig(t)

	photos, err := media.NewDiskStorage(cfg.Uploads.Dir, cfg.Uploads.URLPrefix)
	require.NoError(t, err)
	m, err := metrics.New("soulmate_test")
	require.NoError(t, err)

	fs := newFakeStore()
	app := newApp(appDeps{Config: cfg, Store: fs, Photos: photos, Metrics: m})
	return &testEnv{app: app, store: fs, handler: app.routes(), metrics: m}
}

// createTestUser registers a member directly in the store and signs a token.
func (e *testEnv) createTestUser(t *testing.T, email string) testUser {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	u, err := e.store.CreateUser(context.Background(), email, string(hash))
	require.NoError(t, err)
	token, err := e.app.issueToken(u)
	require.NoError(t, err)
	return testUser{ID: u.ID, Email: u.Email, Token: token}
}

// addProfile gives a member a browsable profile.
func (e *testEnv) addProfile(t *testing.T, ownerID, first string, age int, location, education, occupation string) {
	t.Helper()
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	e.store.profiles[ownerID] = store.ProfileDetail{
		ProfileCard: store.ProfileCard{
			ID:         uuid.NewString(),
			ProfileID:  ownerID,
			FirstName:  first,
			LastName:   "Test",
			Age:        age,
			Location:   location,
			Education:  education,
			Occupation: occupation,
		},
	}
}

func (e *testEnv) do(t *testing.T, method, target string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst), w.Body.String())
}
