package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/companion/internal/auth"
	"github.com/nadzzz/companion/internal/catalog"
	"github.com/nadzzz/companion/internal/config"
	"github.com/nadzzz/companion/internal/llm"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeCatalog struct {
	mu      sync.Mutex
	tokens  []string
	updates map[int]catalog.Update
	removed []int
	list    []catalog.ListItem
	asked   []catalog.Status
	err     error
}

func (f *fakeCatalog) record(token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, token)
	return f.err
}

func (f *fakeCatalog) Search(_ context.Context, token, query string, limit int) ([]catalog.Entry, error) {
	if err := f.record(token); err != nil {
		return nil, err
	}
	out := []catalog.Entry{{ID: 1, Title: query}}
	for i := 2; i <= limit && i <= 3; i++ {
		out = append(out, catalog.Entry{ID: i, Title: query + " II"})
	}
	return out, nil
}

func (f *fakeCatalog) FetchList(_ context.Context, token string, status catalog.Status, _ int) ([]catalog.ListItem, error) {
	if err := f.record(token); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.asked = append(f.asked, status)
	f.mu.Unlock()
	if f.list != nil {
		return f.list, nil
	}
	if status == "" {
		status = catalog.StatusWatching
	}
	return []catalog.ListItem{{Entry: catalog.Entry{ID: 7, Title: "Frieren"}, Membership: catalog.ListStatus{Status: status}}}, nil
}

func (f *fakeCatalog) UpdateStatus(_ context.Context, token string, id int, u catalog.Update) (*catalog.ListStatus, error) {
	if err := f.record(token); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updates == nil {
		f.updates = map[int]catalog.Update{}
	}
	f.updates[id] = u
	ls := &catalog.ListStatus{Status: catalog.StatusPlanToWatch}
	if u.Status != nil {
		ls.Status = *u.Status
	}
	if u.Score != nil {
		ls.Score = *u.Score
	}
	return ls, nil
}

func (f *fakeCatalog) Remove(_ context.Context, token string, id int) error {
	if err := f.record(token); err != nil {
		return err
	}
	f.mu.Lock()
	f.removed = append(f.removed, id)
	f.mu.Unlock()
	return nil
}

func (f *fakeCatalog) Details(_ context.Context, token string, id int) (*catalog.Details, error) {
	if err := f.record(token); err != nil {
		return nil, err
	}
	return &catalog.Details{Entry: catalog.Entry{ID: id, Title: "Frieren"}, Studios: []string{"Madhouse"}}, nil
}

func (f *fakeCatalog) Seasonal(_ context.Context, token string, _ int, _ string, _ int) ([]catalog.Entry, error) {
	if err := f.record(token); err != nil {
		return nil, err
	}
	return []catalog.Entry{{ID: 9, Title: "Dandadan"}}, nil
}

type fakeModel struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (m *fakeModel) Name() string { return "fake" }

func (m *fakeModel) Generate(_ context.Context, prompt string, _ llm.GenerateOpts) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	return m.reply, m.err
}

type harness struct {
	srv     *httptest.Server
	tokens  *auth.MemoryTokenStore
	pending *auth.MemoryPendingStore
	catalog *fakeCatalog
	model   *fakeModel
}

func newHarness(t *testing.T, tokenURL string, opts ...Option) *harness {
	t.Helper()
	tokens := auth.NewMemoryTokenStore()
	pending := auth.NewMemoryPendingStore()
	flow := auth.NewFlow(config.CatalogConfig{
		AuthURL:         "https://catalog.example/authorize",
		TokenURL:        tokenURL,
		ClientID:        "client-id",
		ChallengeMethod: auth.ChallengePlain,
	}, config.AuthConfig{}, tokens, pending)
	flow.Now = func() time.Time { return now }

	fc := &fakeCatalog{}
	model := &fakeModel{reply: "1. Mushishi - quiet and episodic"}
	h := New(flow, tokens, fc, "", append([]Option{WithModel(model, config.PersonaConfig{SystemPrompt: "be kind"})}, opts...)...)
	h.Now = func() time.Time { return now }

	r := chi.NewRouter()
	h.Mount(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &harness{srv: srv, tokens: tokens, pending: pending, catalog: fc, model: model}
}

func (h *harness) login(t *testing.T, userID string, expires time.Time) {
	t.Helper()
	require.NoError(t, h.tokens.Put(context.Background(), &auth.Session{UserID: userID, AccessToken: "tok-" + userID, ExpiresAt: expires}))
}

func (h *harness) do(t *testing.T, method, path, body string, header ...string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, h.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestAuthorize(t *testing.T) {
	h := newHarness(t, "http://unused")

	resp := h.do(t, http.MethodGet, "/api/auth/authorize", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	req := decode[auth.Request](t, resp)
	assert.NotEmpty(t, req.State)
	assert.True(t, strings.HasPrefix(req.URL, "https://catalog.example/authorize?"))

	resp = h.do(t, http.MethodGet, "/api/auth/authorize?redirect=true", "")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Location"), "code_challenge=")
}

func TestCallback(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "fresh", "token_type": "Bearer", "expires_in": 3600})
	}))
	t.Cleanup(tokenSrv.Close)
	h := newHarness(t, tokenSrv.URL)

	req := decode[auth.Request](t, h.do(t, http.MethodGet, "/api/auth/authorize", "", HeaderUser, "alice"))

	resp := h.do(t, http.MethodGet, "/api/auth/callback?code=abc&state="+req.State, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[callbackResponse](t, resp)
	assert.True(t, body.Success)
	assert.Equal(t, "alice", body.UserID)

	sess, err := h.tokens.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "fresh", sess.AccessToken)

	resp = h.do(t, http.MethodGet, "/api/auth/callback?code=abc&state="+req.State, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "state_reused", decode[errorResponse](t, resp).Code)
}

func TestCallbackErrors(t *testing.T) {
	h := newHarness(t, "http://unused")

	tests := []struct {
		name  string
		query string
		code  string
	}{
		{"unknown state", "?code=abc&state=nope", "unknown_state"},
		{"missing state", "?code=abc", "unknown_state"},
		{"denied", "?error=access_denied", "access_denied"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.do(t, http.MethodGet, "/api/auth/callback"+tt.query, "")
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.code, decode[errorResponse](t, resp).Code)
		})
	}
}

func TestCallbackDeniedConsumesState(t *testing.T) {
	h := newHarness(t, "http://unused")

	req := decode[auth.Request](t, h.do(t, http.MethodGet, "/api/auth/authorize", ""))
	require.Equal(t, 1, h.pending.Len())

	resp := h.do(t, http.MethodGet, "/api/auth/callback?error=access_denied&state="+req.State, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "access_denied", decode[errorResponse](t, resp).Code)
	assert.Equal(t, 0, h.pending.Len())

	resp = h.do(t, http.MethodGet, "/api/auth/callback?code=abc&state="+req.State, "")
	assert.Equal(t, "state_reused", decode[errorResponse](t, resp).Code)
}

func TestCallbackMissingCodeConsumesState(t *testing.T) {
	h := newHarness(t, "http://unused")

	req := decode[auth.Request](t, h.do(t, http.MethodGet, "/api/auth/authorize", ""))

	resp := h.do(t, http.MethodGet, "/api/auth/callback?state="+req.State, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "exchange_failed", decode[errorResponse](t, resp).Code)
	assert.Equal(t, 0, h.pending.Len())
}

func TestStatus(t *testing.T) {
	h := newHarness(t, "http://unused")

	st := decode[auth.Status](t, h.do(t, http.MethodGet, "/api/auth/status", ""))
	assert.False(t, st.Authenticated)

	h.login(t, auth.DefaultUserID, now.Add(time.Hour))
	st = decode[auth.Status](t, h.do(t, http.MethodGet, "/api/auth/status", ""))
	assert.True(t, st.Authenticated)
	assert.False(t, st.Expired)
}

func TestCatalogRoutesRequireSession(t *testing.T) {
	h := newHarness(t, "http://unused")
	h.login(t, "expired", now.Add(-time.Minute))

	for _, path := range []string{"/api/catalog/search?q=x", "/api/list", "/api/list/summary", "/api/anime/1"} {
		resp := h.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)

		resp = h.do(t, http.MethodGet, path, "", HeaderUser, "expired")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
	assert.Empty(t, h.catalog.tokens)
}

func TestSearch(t *testing.T) {
	h := newHarness(t, "http://unused")
	h.login(t, auth.DefaultUserID, now.Add(time.Hour))

	resp := h.do(t, http.MethodGet, "/api/catalog/search?q=Frieren&limit=2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[[]catalog.Entry](t, resp)
	want := []catalog.Entry{{ID: 1, Title: "Frieren"}, {ID: 2, Title: "Frieren II"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("search mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"tok-default"}, h.catalog.tokens)

	resp = h.do(t, http.MethodGet, "/api/catalog/search", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSeasonal(t *testing.T) {
	h := newHarness(t, "http://unused")
	h.login(t, auth.DefaultUserID, now.Add(time.Hour))

	resp := h.do(t, http.MethodGet, "/api/catalog/seasonal?year=2024&season=Fall", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]catalog.Entry](t, resp), 1)

	resp = h.do(t, http.MethodGet, "/api/catalog/seasonal?year=2024&season=monsoon", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_season", decode[errorResponse](t, resp).Code)

	resp = h.do(t, http.MethodGet, "/api/catalog/seasonal?season=fall", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListAndSummary(t *testing.T) {
	h := newHarness(t, "http://unused")
	h.login(t, auth.DefaultUserID, now.Add(time.Hour))

	items := decode[[]catalog.ListItem](t, h.do(t, http.MethodGet, "/api/list?status=completed", ""))
	require.Len(t, items, 1)
	assert.Equal(t, catalog.StatusCompleted, items[0].Membership.Status)

	resp := h.do(t, http.MethodGet, "/api/list?status=binging", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	sum := decode[summaryResponse](t, h.do(t, http.MethodGet, "/api/list/summary", ""))
	assert.Equal(t, 1, sum.Entries)
	assert.Contains(t, sum.Summary, "Frieren")
}

func TestDetails(t *testing.T) {
	h := newHarness(t, "http://unused")
	h.login(t, auth.DefaultUserID, now.Add(time.Hour))

	d := decode[catalog.Details](t, h.do(t, http.MethodGet, "/api/anime/52991", ""))
	assert.Equal(t, 52991, d.ID)
	assert.Equal(t, []string{"Madhouse"}, d.Studios)

	resp := h.do(t, http.MethodGet, "/api/anime/abc", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateStatus(t *testing.T) {
	h := newHarness(t, "http://unused")
	h.login(t, auth.DefaultUserID, now.Add(time.Hour))

	resp := h.do(t, http.MethodPut, "/api/anime/7/status", `{"status":"completed","score":9}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	ls := decode[catalog.ListStatus](t, resp)
	assert.Equal(t, catalog.StatusCompleted, ls.Status)
	assert.Equal(t, 9, ls.Score)

	u := h.catalog.updates[7]
	require.NotNil(t, u.Status)
	assert.Nil(t, u.WatchedEpisodes)

	tests := []struct {
		name string
		body string
		code string
	}{
		{"bad json", "{", "invalid_json"},
		{"unknown status", `{"status":"binging"}`, "unknown_status"},
		{"score too high", `{"score":11}`, "score_out_of_range"},
		{"score zero", `{"score":0}`, "score_out_of_range"},
		{"negative episodes", `{"watched_episodes":-1}`, "invalid_episodes"},
		{"empty", `{}`, "empty_update"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.do(t, http.MethodPut, "/api/anime/7/status", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, tt.code, decode[errorResponse](t, resp).Code)
		})
	}
}

func TestRemove(t *testing.T) {
	h := newHarness(t, "http://unused")
	h.login(t, auth.DefaultUserID, now.Add(time.Hour))

	resp := h.do(t, http.MethodDelete, "/api/anime/7", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, []int{7}, h.catalog.removed)
}

func TestCatalogErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"auth", &catalog.AuthError{Status: 401, Message: "invalid_token"}, http.StatusUnauthorized, "not_authorized"},
		{"not found", &catalog.NotFoundError{Resource: "/anime/1"}, http.StatusNotFound, "not_found"},
		{"remote", &catalog.RemoteError{Status: 503, Message: "down"}, http.StatusBadGateway, "remote_error"},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, "http://unused")
			h.login(t, auth.DefaultUserID, now.Add(time.Hour))
			h.catalog.err = tt.err

			resp := h.do(t, http.MethodGet, "/api/anime/1", "")
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, decode[errorResponse](t, resp).Code)
		})
	}
}

func TestRecommend(t *testing.T) {
	h := newHarness(t, "http://unused")
	h.login(t, auth.DefaultUserID, now.Add(time.Hour))
	h.catalog.list = []catalog.ListItem{
		{Entry: catalog.Entry{Title: "Haikyuu", Genres: []string{"Sports"}}, Membership: catalog.ListStatus{Status: catalog.StatusCompleted, Score: 7}},
		{Entry: catalog.Entry{Title: "Frieren", Genres: []string{"Adventure", "Fantasy"}}, Membership: catalog.ListStatus{Status: catalog.StatusCompleted, Score: 10}},
	}

	resp := h.do(t, http.MethodPost, "/api/recommend", `{"preferences":"something calm","genres":["Slice of Life"],"count":3}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[recommendResponse](t, resp)

	assert.Equal(t, "1. Mushishi - quiet and episodic", body.Recommendations)
	assert.Equal(t, []string{"Frieren", "Haikyuu"}, body.BasedOn, "best scored first")
	assert.Equal(t, "fake", body.Backend)
	assert.Equal(t, []catalog.Status{catalog.StatusCompleted}, h.catalog.asked)

	require.Len(t, h.model.prompts, 1)
	prompt := h.model.prompts[0]
	for _, want := range []string{
		"- Frieren (genres: Adventure, Fantasy; scored 10/10)",
		"- Haikyuu (genres: Sports; scored 7/10)",
		"Preferred genres: Slice of Life",
		"something calm",
		"Recommend 3 anime",
	} {
		assert.Contains(t, prompt, want)
	}
}

func TestRecommendEmptyBody(t *testing.T) {
	h := newHarness(t, "http://unused")
	h.login(t, auth.DefaultUserID, now.Add(time.Hour))
	h.catalog.list = []catalog.ListItem{}

	resp := h.do(t, http.MethodPost, "/api/recommend", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[recommendResponse](t, resp).BasedOn)
	require.Len(t, h.model.prompts, 1)
	assert.Contains(t, h.model.prompts[0], "has not completed any anime yet")
	assert.Contains(t, h.model.prompts[0], "Recommend 5 anime")
}

func TestRecommendErrors(t *testing.T) {
	t.Run("requires session", func(t *testing.T) {
		h := newHarness(t, "http://unused")
		resp := h.do(t, http.MethodPost, "/api/recommend", "{}")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("bad json", func(t *testing.T) {
		h := newHarness(t, "http://unused")
		h.login(t, auth.DefaultUserID, now.Add(time.Hour))
		resp := h.do(t, http.MethodPost, "/api/recommend", "{")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Empty(t, h.model.prompts)
	})

	t.Run("body too large", func(t *testing.T) {
		h := newHarness(t, "http://unused")
		h.login(t, auth.DefaultUserID, now.Add(time.Hour))
		resp := h.do(t, http.MethodPost, "/api/recommend", `{"preferences":"`+strings.Repeat("a", maxRecommendBody)+`"}`)
		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	})

	t.Run("model fails", func(t *testing.T) {
		h := newHarness(t, "http://unused")
		h.login(t, auth.DefaultUserID, now.Add(time.Hour))
		h.model.err = errors.New("quota")
		resp := h.do(t, http.MethodPost, "/api/recommend", "{}")
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		assert.Equal(t, "model_error", decode[errorResponse](t, resp).Code)
	})

	t.Run("no model", func(t *testing.T) {
		h := newHarness(t, "http://unused", WithModel(nil, config.PersonaConfig{}))
		h.login(t, auth.DefaultUserID, now.Add(time.Hour))
		resp := h.do(t, http.MethodPost, "/api/recommend", "{}")
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})
}
