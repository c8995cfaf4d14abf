// Package bitbucket implements the change lookup against the Bitbucket
// Cloud API, with the tracker's dev-status panel as the configuration-free
// fallback. Responses are normalized into taskctx.ChangeRecord at this
// boundary.
package bitbucket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"taskmaster/internal/aggregate"
	"taskmaster/internal/taskctx"
)

const bitbucketTime = "2006-01-02T15:04:05.999999999-07:00"

// DevStatusConfig points at the tracker's dev-status endpoint, which lists
// the code changes linked to an issue without any repository configuration.
type DevStatusConfig struct {
	BaseURL  string // tracker base URL, e.g. https://your-site.atlassian.net
	Email    string
	APIToken string
}

// Config holds Bitbucket API connection settings.
type Config struct {
	BaseURL     string // e.g. https://api.bitbucket.org
	Workspace   string
	Username    string
	AppPassword string
	DevStatus   DevStatusConfig
}

// Client looks up pull requests for work items. No retries here; a failed
// lookup is the caller's signal to degrade.
type Client struct {
	HTTPClient *http.Client
	Config     Config
}

// NewClient returns a client with the given config. A nil HTTPClient means
// http.DefaultClient.
func NewClient(cfg Config) *Client {
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	cfg.DevStatus.BaseURL = strings.TrimSuffix(cfg.DevStatus.BaseURL, "/")
	return &Client{Config: cfg, HTTPClient: http.DefaultClient}
}

// Minimal Bitbucket response shapes.
type prPage struct {
	Values []pullRequest `json:"values"`
}

type pullRequest struct {
	ID          int        `json:"id"`
	Title       string     `json:"title"`
	State       string     `json:"state"` // OPEN, MERGED, DECLINED
	CreatedOn   string     `json:"created_on"`
	UpdatedOn   string     `json:"updated_on"`
	Source      prEndpoint `json:"source"`
	Destination prEndpoint `json:"destination"`
}

type prEndpoint struct {
	Branch struct {
		Name string `json:"name"`
	} `json:"branch"`
	Repository struct {
		Name string `json:"name"`
	} `json:"repository"`
}

type diffStatPage struct {
	Values []struct {
		LinesAdded   int `json:"lines_added"`
		LinesRemoved int `json:"lines_removed"`
		New          struct {
			Path string `json:"path"`
		} `json:"new"`
		Old struct {
			Path string `json:"path"`
		} `json:"old"`
	} `json:"values"`
}

// Find searches each repository in scope for pull requests referencing
// itemKey (by title or source branch) and enriches hits with diffstat
// detail. An empty scope returns nothing; callers then fall back to
// DevStatus.
func (c *Client) Find(ctx context.Context, itemKey string, repoScope []string) ([]taskctx.ChangeRecord, error) {
	if len(repoScope) == 0 {
		return nil, nil
	}

	var out []taskctx.ChangeRecord
	for _, repo := range repoScope {
		prs, err := c.searchRepo(ctx, repo, itemKey)
		if err != nil {
			return nil, fmt.Errorf("find changes for %s in %s: %w", itemKey, repo, err)
		}
		for _, pr := range prs {
			rec := normalizePR(repo, pr)
			// Diffstat is best effort: a PR without it is still a
			// valid summary record.
			if ds, files, err := c.diffStat(ctx, repo, pr.ID); err == nil {
				rec.DiffStat = ds
				rec.FilesChanged = files
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

func (c *Client) searchRepo(ctx context.Context, repo, itemKey string) ([]pullRequest, error) {
	q := fmt.Sprintf(`title ~ "%s" OR source.branch.name ~ "%s"`, itemKey, itemKey)
	u := fmt.Sprintf("%s/2.0/repositories/%s/%s/pullrequests?q=%s&state=OPEN&state=MERGED&state=DECLINED",
		c.Config.BaseURL, c.Config.Workspace, repo, url.QueryEscape(q))

	var page prPage
	if err := c.getJSON(ctx, u, &page); err != nil {
		return nil, err
	}
	return page.Values, nil
}

func (c *Client) diffStat(ctx context.Context, repo string, prID int) (*taskctx.DiffStat, []string, error) {
	u := fmt.Sprintf("%s/2.0/repositories/%s/%s/pullrequests/%d/diffstat",
		c.Config.BaseURL, c.Config.Workspace, repo, prID)

	var page diffStatPage
	if err := c.getJSON(ctx, u, &page); err != nil {
		return nil, nil, err
	}

	ds := &taskctx.DiffStat{FilesChanged: len(page.Values)}
	files := make([]string, 0, len(page.Values))
	for _, v := range page.Values {
		ds.Additions += v.LinesAdded
		ds.Deletions += v.LinesRemoved
		path := v.New.Path
		if path == "" {
			path = v.Old.Path
		}
		if path != "" {
			files = append(files, path)
		}
	}
	return ds, files, nil
}

func normalizePR(repo string, pr pullRequest) taskctx.ChangeRecord {
	rec := taskctx.ChangeRecord{
		ID:         fmt.Sprintf("%s#%d", repo, pr.ID),
		Title:      pr.Title,
		State:      normalizeState(pr.State),
		Repository: repo,
		Created:    parseTime(pr.CreatedOn),
		Updated:    parseTime(pr.UpdatedOn),
	}
	if rec.State == taskctx.ChangeMerged {
		rec.Merged = rec.Updated
	}
	if pr.Source.Branch.Name != "" || pr.Destination.Branch.Name != "" {
		rec.Branch = &taskctx.BranchInfo{
			Source: pr.Source.Branch.Name,
			Target: pr.Destination.Branch.Name,
		}
	}
	return rec
}

func normalizeState(s string) taskctx.ChangeState {
	switch strings.ToUpper(s) {
	case "MERGED":
		return taskctx.ChangeMerged
	case "DECLINED", "SUPERSEDED":
		return taskctx.ChangeDeclined
	default:
		return taskctx.ChangeOpen
	}
}

// Dev-status response shapes (tracker side).
type devStatusResponse struct {
	Detail []struct {
		PullRequests []devStatusPR `json:"pullRequests"`
	} `json:"detail"`
}

type devStatusPR struct {
	ID         string `json:"id"` // "#12"
	Name       string `json:"name"`
	Status     string `json:"status"`
	LastUpdate string `json:"lastUpdate"`
	Source     struct {
		Branch     string `json:"branch"`
		Repository struct {
			Name string `json:"name"`
		} `json:"repository"`
	} `json:"source"`
	Destination struct {
		Branch string `json:"branch"`
	} `json:"destination"`
}

// DevStatus lists the changes the tracker itself links to itemKey. Summary
// level only — no diffstat detail — which is exactly what the merge engine's
// detail preference is for.
func (c *Client) DevStatus(ctx context.Context, itemKey string) ([]taskctx.ChangeRecord, error) {
	u := fmt.Sprintf("%s/rest/dev-status/1.0/issue/detail?issueKey=%s&applicationType=bitbucket&dataType=pullrequest",
		c.Config.DevStatus.BaseURL, url.QueryEscape(itemKey))

	var resp devStatusResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("dev-status for %s: %w", itemKey, err)
	}

	var out []taskctx.ChangeRecord
	for _, d := range resp.Detail {
		for _, pr := range d.PullRequests {
			repo := pr.Source.Repository.Name
			rec := taskctx.ChangeRecord{
				ID:         fmt.Sprintf("%s#%s", repo, strings.TrimPrefix(pr.ID, "#")),
				Title:      pr.Name,
				State:      normalizeState(pr.Status),
				Repository: repo,
				Updated:    parseTime(pr.LastUpdate),
			}
			if rec.State == taskctx.ChangeMerged {
				rec.Merged = rec.Updated
			}
			if pr.Source.Branch != "" || pr.Destination.Branch != "" {
				rec.Branch = &taskctx.BranchInfo{Source: pr.Source.Branch, Target: pr.Destination.Branch}
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, u string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	if strings.HasPrefix(u, c.Config.DevStatus.BaseURL) && c.Config.DevStatus.BaseURL != "" {
		if c.Config.DevStatus.Email != "" {
			req.SetBasicAuth(c.Config.DevStatus.Email, c.Config.DevStatus.APIToken)
		}
	} else if c.Config.Username != "" {
		req.SetBasicAuth(c.Config.Username, c.Config.AppPassword)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%s: %s", resp.Status, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{bitbucketTime, time.RFC3339, "2006-01-02T15:04:05.000-0700"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

var _ aggregate.ChangeLookup = (*Client)(nil)
