/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package gitlab

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "strconv"
    "strings"
    "time"

    "github.com/Dzmitry-Leushukou/GitLabAnalyserBot/internal/config"
    "github.com/Dzmitry-Leushukou/GitLabAnalyserBot/internal/domain"
    "github.com/rs/zerolog"
)

// Client talks to the GitLab REST API v4 with a private token. All
// list endpoints are paginated via per_page/page and the x-total-pages
// response header.
type Client struct {
    baseURL  string
    token    string
    pageSize int
    http     *http.Client
    log      zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
    return &Client{
        baseURL:  strings.TrimRight(cfg.GitLabURL, "/"),
        token:    cfg.GitLabToken,
        pageSize: cfg.PageSize,
        http:     &http.Client{ Timeout: cfg.HTTPTimeout },
        log:      log,
    }
}

func (c *Client) apiURL(path string, q url.Values) string {
    if !strings.HasPrefix(path, "/") { path = "/" + path }
    u := c.baseURL + "/api/v4" + path
    if len(q) > 0 { u = u + "?" + q.Encode() }
    return u
}

// errNotFound marks a 404 so list callers can map it to an empty
// result instead of failing the whole report.
var errNotFound = errors.New("gitlab: not found")

func IsNotFound(err error) bool { return errors.Is(err, errNotFound) }

func (c *Client) doJSON(ctx context.Context, method, u string, body any, out any) (http.Header, error) {
    if c.baseURL == "" { return nil, errors.New("gitlab: empty baseURL") }
    var payload []byte
    if body != nil {
        b, err := json.Marshal(body)
        if err != nil { return nil, err }
        payload = b
    }
    var lastErr error
    for attempt := 0; attempt < 3; attempt++ {
        var r io.Reader
        if payload != nil { r = strings.NewReader(string(payload)) }
        req, err := http.NewRequestWithContext(ctx, method, u, r)
        if err != nil { return nil, err }
        if payload != nil { req.Header.Set("Content-Type", "application/json") }
        if c.token != "" { req.Header.Set("PRIVATE-TOKEN", c.token) }
        resp, err := c.http.Do(req)
        if err != nil { lastErr = err } else {
            func() {
                defer resp.Body.Close()
                if resp.StatusCode == http.StatusNotFound {
                    io.Copy(io.Discard, resp.Body)
                    lastErr = errNotFound
                    return
                }
                if resp.StatusCode >= 300 {
                    b, _ := io.ReadAll(resp.Body)
                    lastErr = fmt.Errorf("gitlab api status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
                    if resp.StatusCode != 429 && resp.StatusCode < 500 {
                        lastErr = &permErr{lastErr}
                    }
                    return
                }
                if out != nil {
                    if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
                        lastErr = &permErr{err}
                        return
                    }
                } else {
                    io.Copy(io.Discard, resp.Body)
                }
                lastErr = nil
            }()
            if lastErr == nil { return resp.Header, nil }
            var pe *permErr
            if errors.As(lastErr, &pe) { return nil, pe.err }
            if errors.Is(lastErr, errNotFound) { return nil, lastErr }
        }
        time.Sleep(time.Duration(300*(1<<attempt)) * time.Millisecond)
    }
    return nil, lastErr
}

// permErr wraps errors that a retry cannot fix.
type permErr struct{ err error }

func (e *permErr) Error() string { return e.err.Error() }
func (e *permErr) Unwrap() error { return e.err }

func totalPages(h http.Header) int {
    // GitLab omits x-total-pages for very large collections; treat
    // that as unknown and let the caller stop on a short page.
    n, err := strconv.Atoi(h.Get("X-Total-Pages"))
    if err != nil { return 0 }
    return n
}

// listAll walks every page of a collection endpoint. onPage, when not
// nil, is called after each fetched page with (page, totalPages);
// totalPages is 0 when the header is absent.
func listAll[T any](ctx context.Context, c *Client, path string, q url.Values, onPage func(page, total int)) ([]T, error) {
    out := make([]T, 0, c.pageSize)
    if q == nil { q = url.Values{} }
    q.Set("per_page", strconv.Itoa(c.pageSize))
    for page := 1; ; page++ {
        q.Set("page", strconv.Itoa(page))
        var batch []T
        h, err := c.doJSON(ctx, http.MethodGet, c.apiURL(path, q), nil, &batch)
        if err != nil { return nil, err }
        out = append(out, batch...)
        total := totalPages(h)
        if onPage != nil { onPage(page, total) }
        if total > 0 && page >= total { break }
        if len(batch) < c.pageSize { break }
    }
    return out, nil
}

// ActiveUsers lists every active user on the instance.
func (c *Client) ActiveUsers(ctx context.Context) ([]domain.UserProfile, error) {
    q := url.Values{}
    q.Set("active", "true")
    return listAll[domain.UserProfile](ctx, c, "/users", q, nil)
}

// UserByUsername resolves a username to a profile. GitLab returns a
// list for exact-username lookup; empty means unknown user.
func (c *Client) UserByUsername(ctx context.Context, username string) (domain.UserProfile, error) {
    q := url.Values{}
    q.Set("username", username)
    var users []domain.UserProfile
    _, err := c.doJSON(ctx, http.MethodGet, c.apiURL("/users", q), nil, &users)
    if err != nil { return domain.UserProfile{}, err }
    if len(users) == 0 { return domain.UserProfile{}, fmt.Errorf("gitlab: user %q not found", username) }
    return users[0], nil
}

// AllIssues lists every issue visible to the token across the
// instance, in all states. Expensive on big instances.
func (c *Client) AllIssues(ctx context.Context, onPage func(page, total int)) ([]domain.Issue, error) {
    q := url.Values{}
    q.Set("state", "all")
    q.Set("scope", "all")
    return listAll[domain.Issue](ctx, c, "/issues", q, onPage)
}

// AssignedIssues lists issues currently assigned to the given user.
func (c *Client) AssignedIssues(ctx context.Context, username string, onPage func(page, total int)) ([]domain.Issue, error) {
    q := url.Values{}
    q.Set("state", "all")
    q.Set("scope", "all")
    q.Set("assignee_username", username)
    return listAll[domain.Issue](ctx, c, "/issues", q, onPage)
}

func issuePath(ref domain.IssueRef, tail string) string {
    return fmt.Sprintf("/projects/%d/issues/%d%s", ref.ProjectID, ref.IssueIID, tail)
}

// Notes fetches every note on an issue, system and human alike.
// A 404 maps to an empty list: the issue may have been deleted or
// made confidential between discovery and fetch.
func (c *Client) Notes(ctx context.Context, ref domain.IssueRef) ([]domain.RawNote, error) {
    notes, err := listAll[domain.RawNote](ctx, c, issuePath(ref, "/notes"), nil, nil)
    if IsNotFound(err) { return nil, nil }
    return notes, err
}

// LabelEvents fetches the resource label events of an issue. 404 maps
// to an empty list, same as Notes.
func (c *Client) LabelEvents(ctx context.Context, ref domain.IssueRef) ([]domain.RawLabelEvent, error) {
    evs, err := listAll[domain.RawLabelEvent](ctx, c, issuePath(ref, "/resource_label_events"), nil, nil)
    if IsNotFound(err) { return nil, nil }
    return evs, err
}

// Participants lists everyone who ever touched an issue. 404 maps to
// an empty list.
func (c *Client) Participants(ctx context.Context, ref domain.IssueRef) ([]domain.UserRef, error) {
    ps, err := listAll[domain.UserRef](ctx, c, issuePath(ref, "/participants"), nil, nil)
    if IsNotFound(err) { return nil, nil }
    return ps, err
}

// TimeStats fetches the time tracking block of an issue.
func (c *Client) TimeStats(ctx context.Context, ref domain.IssueRef) (domain.TimeStats, error) {
    var ts domain.TimeStats
    _, err := c.doJSON(ctx, http.MethodGet, c.apiURL(issuePath(ref, "/time_stats"), nil), nil, &ts)
    return ts, err
}

// ProjectLabels lists the labels defined on a project.
func (c *Client) ProjectLabels(ctx context.Context, projectID int64) ([]domain.Label, error) {
    return listAll[domain.Label](ctx, c, fmt.Sprintf("/projects/%d/labels", projectID), nil, nil)
}

// CreateIssue opens a new issue from a draft. assigneeID of 0 leaves
// the issue unassigned.
func (c *Client) CreateIssue(ctx context.Context, draft domain.TaskDraft, assigneeID int64) (domain.Issue, error) {
    if draft.ProjectID <= 0 { return domain.Issue{}, errors.New("gitlab: draft without project id") }
    if strings.TrimSpace(draft.Title) == "" { return domain.Issue{}, errors.New("gitlab: draft without title") }
    body := map[string]any{
        "title":       draft.Title,
        "description": draft.Description,
    }
    if assigneeID > 0 { body["assignee_ids"] = []int64{assigneeID} }
    if len(draft.Labels) > 0 { body["labels"] = strings.Join(draft.Labels, ",") }
    var issue domain.Issue
    u := c.apiURL(fmt.Sprintf("/projects/%d/issues", draft.ProjectID), nil)
    _, err := c.doJSON(ctx, http.MethodPost, u, body, &issue)
    return issue, err
}
