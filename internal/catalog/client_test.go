package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/nadzzz/companion/internal/config"
)

type recorded struct {
	method string
	path   string
	query  url.Values
	form   url.Values
	auth   string
}

type fakeMAL struct {
	mu    sync.Mutex
	calls []recorded
}

func (f *fakeMAL) last() recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func newFakeMAL(t *testing.T, routes map[string]func(w http.ResponseWriter, r *http.Request)) (*fakeMAL, *Client) {
	t.Helper()
	f := &fakeMAL{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		f.mu.Lock()
		f.calls = append(f.calls, recorded{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.Query(),
			form:   r.PostForm,
			auth:   r.Header.Get("Authorization"),
		})
		f.mu.Unlock()

		h, ok := routes[r.Method+" "+r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not_found","message":""}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		h(w, r)
	}))
	t.Cleanup(srv.Close)

	c := New(config.CatalogConfig{BaseURL: srv.URL, Timeout: 5 * time.Second})
	return f, c
}

func write(body string) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(body)) }
}

func writeStatus(code int, body string) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body))
	}
}

func TestSearch(t *testing.T) {
	f, c := newFakeMAL(t, map[string]func(http.ResponseWriter, *http.Request){
		"GET /anime": write(`{"data":[
			{"node":{"id":16498,"title":"Attack on Titan","mean":8.5,"num_episodes":25,
				"genres":[{"id":1,"name":"Action"},{"id":8,"name":"Drama"}],
				"main_picture":{"medium":"m.jpg","large":"l.jpg"},
				"media_type":"tv","status":"finished_airing",
				"my_list_status":{"status":"watching","score":0,"num_episodes_watched":3}}},
			{"node":{"id":2,"title":"Attack on Titan Season 2"}}
		]}`),
	})

	entries, err := c.Search(context.Background(), "tok", "attack on titan", 3)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	first := entries[0]
	assert.Equal(t, 16498, first.ID)
	assert.Equal(t, "Attack on Titan", first.Title)
	assert.Equal(t, []string{"Action", "Drama"}, first.Genres)
	assert.Equal(t, "l.jpg", first.Image)
	assert.Equal(t, 25, first.Episodes)
	require.NotNil(t, first.ListStatus)
	assert.Equal(t, StatusWatching, first.ListStatus.Status)
	assert.Nil(t, entries[1].ListStatus)
	assert.Empty(t, entries[1].Genres)

	call := f.last()
	assert.Equal(t, "Bearer tok", call.auth)
	assert.Equal(t, "attack on titan", call.query.Get("q"))
	assert.Equal(t, "3", call.query.Get("limit"))
	assert.Contains(t, call.query.Get("fields"), "my_list_status")
}

func TestSearch_EmptyIsNotAnError(t *testing.T) {
	_, c := newFakeMAL(t, map[string]func(http.ResponseWriter, *http.Request){
		"GET /anime": write(`{"data":[]}`),
	})
	entries, err := c.Search(context.Background(), "tok", "nonexistent title xyz", 3)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFetchList(t *testing.T) {
	f, c := newFakeMAL(t, map[string]func(http.ResponseWriter, *http.Request){
		"GET /users/@me/animelist": write(`{"data":[
			{"node":{"id":1,"title":"Frieren","num_episodes":28},
			 "list_status":{"status":"watching","score":0,"num_episodes_watched":10,"updated_at":"2024-01-02T03:04:05+00:00"}},
			{"node":{"id":2,"title":"Mushishi"},
			 "list_status":{"status":"completed","score":10,"num_episodes_watched":26}}
		]}`),
	})

	items, err := c.FetchList(context.Background(), "tok", StatusWatching, 20)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Frieren", items[0].Title)
	assert.Equal(t, 10, items[0].Membership.WatchedEpisodes)
	assert.Equal(t, 2024, items[0].Membership.UpdatedAt.Year())
	assert.Equal(t, 10, items[1].Membership.Score)

	q := f.last().query
	assert.Equal(t, "watching", q.Get("status"))
	assert.Equal(t, "20", q.Get("limit"))
}

func TestFetchList_NoStatusFilter(t *testing.T) {
	f, c := newFakeMAL(t, map[string]func(http.ResponseWriter, *http.Request){
		"GET /users/@me/animelist": write(`{"data":[]}`),
	})
	_, err := c.FetchList(context.Background(), "tok", "", 5)
	require.NoError(t, err)
	assert.False(t, f.last().query.Has("status"))
}

func TestUpdateStatus_SendsOnlyProvidedFields(t *testing.T) {
	f, c := newFakeMAL(t, map[string]func(http.ResponseWriter, *http.Request){
		"PATCH /anime/1/my_list_status": write(`{"status":"plan_to_watch","score":0,"num_episodes_watched":0}`),
	})

	st := StatusPlanToWatch
	ls, err := c.UpdateStatus(context.Background(), "tok", 1, Update{Status: &st})
	require.NoError(t, err)
	assert.Equal(t, StatusPlanToWatch, ls.Status)

	form := f.last().form
	assert.Equal(t, "plan_to_watch", form.Get("status"))
	assert.False(t, form.Has("score"), "omitted fields must not be sent")
	assert.False(t, form.Has("num_watched_episodes"))
}

func TestUpdateStatus_ScoreOnly(t *testing.T) {
	f, c := newFakeMAL(t, map[string]func(http.ResponseWriter, *http.Request){
		"PATCH /anime/7/my_list_status": write(`{"status":"completed","score":9}`),
	})
	score := 9
	_, err := c.UpdateStatus(context.Background(), "tok", 7, Update{Score: &score})
	require.NoError(t, err)

	form := f.last().form
	assert.Equal(t, "9", form.Get("score"))
	assert.False(t, form.Has("status"))
}

func TestUpdateStatus_RejectsEmpty(t *testing.T) {
	f, c := newFakeMAL(t, nil)
	_, err := c.UpdateStatus(context.Background(), "tok", 1, Update{})
	require.Error(t, err)
	assert.Empty(t, f.calls)
}

func TestRemove_NotFoundIsSuccess(t *testing.T) {
	f, c := newFakeMAL(t, nil)
	ctx := context.Background()

	require.NoError(t, c.Remove(ctx, "tok", 5))
	require.NoError(t, c.Remove(ctx, "tok", 5))
	assert.Len(t, f.calls, 2)
	assert.Equal(t, http.MethodDelete, f.last().method)
}

func TestErrorTaxonomy(t *testing.T) {
	_, c := newFakeMAL(t, map[string]func(http.ResponseWriter, *http.Request){
		"GET /anime":                     writeStatus(http.StatusUnauthorized, `{"error":"invalid_token"}`),
		"GET /users/@me/animelist":       writeStatus(http.StatusInternalServerError, `{"error":"oops","message":"boom"}`),
		"DELETE /anime/9/my_list_status": writeStatus(http.StatusForbidden, `{"error":"forbidden"}`),
	})
	ctx := context.Background()

	_, err := c.Search(ctx, "tok", "x", 1)
	var ae *AuthError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, http.StatusUnauthorized, ae.Status)

	_, err = c.FetchList(ctx, "tok", "", 1)
	var re *RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusInternalServerError, re.Status)
	assert.Equal(t, "oops boom", re.Message)

	_, err = c.Details(ctx, "tok", 123)
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "/anime/123", nf.Resource)

	err = c.Remove(ctx, "tok", 9)
	require.True(t, errors.As(err, &ae), "403 on delete is not swallowed")
}

func TestDetails(t *testing.T) {
	_, c := newFakeMAL(t, map[string]func(http.ResponseWriter, *http.Request){
		"GET /anime/30": write(`{"id":30,"title":"Neon Genesis Evangelion","num_episodes":26,
			"alternative_titles":{"synonyms":["Eva"],"en":"Neon Genesis Evangelion","ja":"新世紀エヴァンゲリオン"},
			"start_date":"1995-10-04","rating":"pg_13","studios":[{"id":6,"name":"Gainax"}]}`),
	})
	d, err := c.Details(context.Background(), "tok", 30)
	require.NoError(t, err)
	assert.Equal(t, "Neon Genesis Evangelion", d.Title)
	assert.Equal(t, []string{"Gainax"}, d.Studios)
	assert.Equal(t, []string{"Neon Genesis Evangelion", "新世紀エヴァンゲリオン", "Eva"}, d.AlternativeTitles)
	assert.Equal(t, "1995-10-04", d.StartDate)
}

func TestSeasonal(t *testing.T) {
	f, c := newFakeMAL(t, map[string]func(http.ResponseWriter, *http.Request){
		"GET /anime/season/2024/fall": write(`{"data":[{"node":{"id":1,"title":"Dandadan","start_season":{"year":2024,"season":"fall"}}}]}`),
	})
	entries, err := c.Seasonal(context.Background(), "tok", 2024, "Fall", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, &Season{Year: 2024, Season: "fall"}, entries[0].Season)
	assert.Equal(t, "10", f.last().query.Get("limit"))

	_, err = c.Seasonal(context.Background(), "tok", 2024, "monsoon", 10)
	require.Error(t, err)
}

type observed struct {
	op, outcome string
}

type recordingObserver struct {
	mu  sync.Mutex
	obs []observed
}

func (r *recordingObserver) ObserveCatalogCall(op, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.obs = append(r.obs, observed{op, outcome})
}

func TestObserver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/anime" {
			_, _ = w.Write([]byte(`{"data":[]}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	rec := &recordingObserver{}
	c := New(config.CatalogConfig{BaseURL: srv.URL}, WithObserver(rec))
	ctx := context.Background()

	_, _ = c.Search(ctx, "tok", "x", 1)
	_ = c.Remove(ctx, "tok", 1)

	assert.Equal(t, []observed{{"search", "ok"}, {"remove", "not_found"}}, rec.obs)
}

func TestRateLimitHonorsContext(t *testing.T) {
	_, c := newFakeMAL(t, map[string]func(http.ResponseWriter, *http.Request){
		"GET /anime": write(`{"data":[]}`),
	})
	c.limiter = rate.NewLimiter(rate.Every(time.Hour), 1)

	ctx := context.Background()
	_, err := c.Search(ctx, "tok", "x", 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = c.Search(ctx, "tok", "x", 1)
	require.Error(t, err)
}

func TestParseStatus(t *testing.T) {
	cases := map[string]Status{
		"watching":      StatusWatching,
		"Finished":      StatusCompleted,
		"done":          StatusCompleted,
		"on hold":       StatusOnHold,
		"on-hold":       StatusOnHold,
		"Plan to Watch": StatusPlanToWatch,
		"dropped":       StatusDropped,
	}
	for in, want := range cases {
		got, ok := ParseStatus(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParseStatus("binging")
	assert.False(t, ok)
	assert.Equal(t, "plan to watch", StatusPlanToWatch.Label())
}
