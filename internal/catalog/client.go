package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/nadzzz/companion/internal/config"
)

const (
	entryFields   = "id,title,main_picture,synopsis,mean,rank,popularity,num_episodes,start_season,genres,media_type,status,my_list_status"
	listFields    = "list_status,node(id,title,main_picture,synopsis,mean,num_episodes,genres,media_type,status)"
	detailsFields = "id,title,main_picture,alternative_titles,start_date,end_date,synopsis,mean,rank,popularity,media_type,status,genres,my_list_status,num_episodes,start_season,rating,studios"
)

// Observer receives one call per remote request. outcome is "ok",
// "unauthorized", "not_found" or "error".
type Observer interface {
	ObserveCatalogCall(op, outcome string, elapsed time.Duration)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithObserver attaches a call observer (usually the metrics collector).
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// Client talks to the MyAnimeList v2 API.
type Client struct {
	baseURL  string
	http     *http.Client
	limiter  *rate.Limiter
	observer Observer
}

// New creates a Client from config. A non-positive RequestsPerSecond
// disables outbound limiting.
func New(cfg config.CatalogConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Search returns up to limit entries ordered by remote relevance.
// An empty slice is a valid result.
func (c *Client) Search(ctx context.Context, token, query string, limit int) ([]Entry, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("fields", entryFields)

	var page pageDTO
	if err := c.do(ctx, "search", token, http.MethodGet, "/anime?"+q.Encode(), nil, &page); err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(page.Data))
	for _, d := range page.Data {
		entries = append(entries, d.Node.entry())
	}
	return entries, nil
}

// FetchList returns the user's list. An empty status returns every status.
func (c *Client) FetchList(ctx context.Context, token string, status Status, limit int) ([]ListItem, error) {
	q := url.Values{}
	q.Set("fields", listFields)
	q.Set("limit", strconv.Itoa(limit))
	if status != "" {
		q.Set("status", string(status))
	}

	var page pageDTO
	if err := c.do(ctx, "fetch_list", token, http.MethodGet, "/users/@me/animelist?"+q.Encode(), nil, &page); err != nil {
		return nil, err
	}
	items := make([]ListItem, 0, len(page.Data))
	for _, d := range page.Data {
		item := ListItem{Entry: d.Node.entry()}
		if d.ListStatus != nil {
			item.Membership = d.ListStatus.status()
		}
		items = append(items, item)
	}
	return items, nil
}

// UpdateStatus applies a partial change to the user's membership for id.
// Only the non-nil fields of u are sent.
func (c *Client) UpdateStatus(ctx context.Context, token string, id int, u Update) (*ListStatus, error) {
	if u.Empty() {
		return nil, fmt.Errorf("empty update for entry %d", id)
	}
	form := url.Values{}
	if u.Status != nil {
		form.Set("status", string(*u.Status))
	}
	if u.Score != nil {
		form.Set("score", strconv.Itoa(*u.Score))
	}
	if u.WatchedEpisodes != nil {
		form.Set("num_watched_episodes", strconv.Itoa(*u.WatchedEpisodes))
	}
	if u.IsRewatching != nil {
		form.Set("is_rewatching", strconv.FormatBool(*u.IsRewatching))
	}

	var ls listStatusDTO
	path := fmt.Sprintf("/anime/%d/my_list_status", id)
	if err := c.do(ctx, "update_status", token, http.MethodPatch, path, form, &ls); err != nil {
		return nil, err
	}
	out := ls.status()
	return &out, nil
}

// Remove deletes id from the user's list. A remote 404 counts as success.
func (c *Client) Remove(ctx context.Context, token string, id int) error {
	path := fmt.Sprintf("/anime/%d/my_list_status", id)
	err := c.do(ctx, "remove", token, http.MethodDelete, path, nil, nil)
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return nil
	}
	return err
}

// Details returns the extended record for id.
func (c *Client) Details(ctx context.Context, token string, id int) (*Details, error) {
	q := url.Values{}
	q.Set("fields", detailsFields)

	var n detailsDTO
	if err := c.do(ctx, "details", token, http.MethodGet, fmt.Sprintf("/anime/%d?%s", id, q.Encode()), nil, &n); err != nil {
		return nil, err
	}
	return n.details(), nil
}

// Seasonal lists entries airing in the given season ("winter", "spring",
// "summer", "fall").
func (c *Client) Seasonal(ctx context.Context, token string, year int, season string, limit int) ([]Entry, error) {
	season = strings.ToLower(season)
	switch season {
	case "winter", "spring", "summer", "fall":
	default:
		return nil, fmt.Errorf("unknown season %q", season)
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("fields", entryFields)

	var page pageDTO
	if err := c.do(ctx, "seasonal", token, http.MethodGet, fmt.Sprintf("/anime/season/%d/%s?%s", year, season, q.Encode()), nil, &page); err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(page.Data))
	for _, d := range page.Data {
		entries = append(entries, d.Node.entry())
	}
	return entries, nil
}

func (c *Client) do(ctx context.Context, op, token, method, path string, form url.Values, out any) (err error) {
	start := time.Now()
	defer func() {
		if c.observer != nil {
			c.observer.ObserveCatalogCall(op, outcomeLabel(err), time.Since(start))
		}
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("catalog rate limit: %w", err)
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", op, err)
	}
	defer resp.Body.Close()

	slog.Debug("catalog call", "op", op, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp, path)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", op, err)
	}
	return nil
}

func statusError(resp *http.Response, path string) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	var e struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &e) == nil && (e.Error != "" || e.Message != "") {
		msg = strings.TrimSpace(e.Error + " " + e.Message)
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &AuthError{Status: resp.StatusCode, Message: msg}
	case http.StatusNotFound:
		if i := strings.IndexByte(path, '?'); i >= 0 {
			path = path[:i]
		}
		return &NotFoundError{Resource: path}
	default:
		return &RemoteError{Status: resp.StatusCode, Message: msg}
	}
}

func outcomeLabel(err error) string {
	var (
		ae *AuthError
		nf *NotFoundError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &ae):
		return "unauthorized"
	case errors.As(err, &nf):
		return "not_found"
	default:
		return "error"
	}
}

// --- Wire types ---

type pageDTO struct {
	Data []struct {
		Node       nodeDTO        `json:"node"`
		ListStatus *listStatusDTO `json:"list_status"`
	} `json:"data"`
}

type nodeDTO struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	MainPicture *struct {
		Medium string `json:"medium"`
		Large  string `json:"large"`
	} `json:"main_picture"`
	Synopsis   string  `json:"synopsis"`
	Mean       float64 `json:"mean"`
	Rank       int     `json:"rank"`
	Popularity int     `json:"popularity"`
	Episodes   int     `json:"num_episodes"`
	Genres     []struct {
		Name string `json:"name"`
	} `json:"genres"`
	MediaType    string         `json:"media_type"`
	Status       string         `json:"status"`
	StartSeason  *Season        `json:"start_season"`
	MyListStatus *listStatusDTO `json:"my_list_status"`
}

type listStatusDTO struct {
	Status          string    `json:"status"`
	Score           int       `json:"score"`
	WatchedEpisodes int       `json:"num_episodes_watched"`
	IsRewatching    bool      `json:"is_rewatching"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type detailsDTO struct {
	nodeDTO
	AlternativeTitles *struct {
		Synonyms []string `json:"synonyms"`
		En       string   `json:"en"`
		Ja       string   `json:"ja"`
	} `json:"alternative_titles"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Rating    string `json:"rating"`
	Studios   []struct {
		Name string `json:"name"`
	} `json:"studios"`
}

func (n nodeDTO) entry() Entry {
	e := Entry{
		ID:         n.ID,
		Title:      n.Title,
		Synopsis:   n.Synopsis,
		Score:      n.Mean,
		Rank:       n.Rank,
		Popularity: n.Popularity,
		Episodes:   n.Episodes,
		Genres:     make([]string, 0, len(n.Genres)),
		MediaType:  n.MediaType,
		Status:     n.Status,
		Season:     n.StartSeason,
	}
	if n.MainPicture != nil {
		e.Image = n.MainPicture.Large
		if e.Image == "" {
			e.Image = n.MainPicture.Medium
		}
	}
	for _, g := range n.Genres {
		e.Genres = append(e.Genres, g.Name)
	}
	if n.MyListStatus != nil && n.MyListStatus.Status != "" {
		ls := n.MyListStatus.status()
		e.ListStatus = &ls
	}
	return e
}

func (l listStatusDTO) status() ListStatus {
	return ListStatus{
		Status:          Status(l.Status),
		Score:           l.Score,
		WatchedEpisodes: l.WatchedEpisodes,
		IsRewatching:    l.IsRewatching,
		UpdatedAt:       l.UpdatedAt,
	}
}

func (d detailsDTO) details() *Details {
	out := &Details{
		Entry:     d.entry(),
		StartDate: d.StartDate,
		EndDate:   d.EndDate,
		Rating:    d.Rating,
	}
	if at := d.AlternativeTitles; at != nil {
		for _, t := range append([]string{at.En, at.Ja}, at.Synonyms...) {
			if t != "" {
				out.AlternativeTitles = append(out.AlternativeTitles, t)
			}
		}
	}
	for _, s := range d.Studios {
		out.Studios = append(out.Studios, s.Name)
	}
	return out
}
