// Package jira implements the relationship resolver against the Jira REST
// API. Loosely-typed upstream payloads are normalized into taskctx types
// here, at the boundary, so the pipeline never sees a missing field.
package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"taskmaster/internal/aggregate"
	"taskmaster/internal/taskctx"
)

// jiraTime is the timestamp layout Jira emits.
const jiraTime = "2006-01-02T15:04:05.000-0700"

// Config holds Jira API connection settings.
type Config struct {
	BaseURL  string // e.g. https://your-site.atlassian.net
	Email    string // basic auth user; empty means bearer auth
	APIToken string
}

// Client resolves work-item relationship graphs over the Jira REST API.
// It never retries; retry policy belongs to callers that want one.
type Client struct {
	HTTPClient *http.Client
	Config     Config
}

// NewClient returns a client with the given config. A nil HTTPClient means
// http.DefaultClient.
func NewClient(cfg Config) *Client {
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	return &Client{Config: cfg, HTTPClient: http.DefaultClient}
}

// Minimal Jira response shapes for unmarshalling.
type issue struct {
	Key    string      `json:"key"`
	Fields issueFields `json:"fields"`
}

type issueFields struct {
	Summary     string      `json:"summary"`
	Description string      `json:"description"`
	Created     string      `json:"created"`
	Updated     string      `json:"updated"`
	Status      *namedRef   `json:"status"`
	IssueType   *namedRef   `json:"issuetype"`
	Parent      *issue      `json:"parent"`
	Subtasks    []issue     `json:"subtasks"`
	IssueLinks  []issueLink `json:"issuelinks"`
}

type namedRef struct {
	Name string `json:"name"`
}

type issueLink struct {
	Type         linkType `json:"type"`
	OutwardIssue *issue   `json:"outwardIssue"`
	InwardIssue  *issue   `json:"inwardIssue"`
}

type linkType struct {
	Name    string `json:"name"`
	Inward  string `json:"inward"`
	Outward string `json:"outward"`
}

// Fetch returns one item's own fields, normalized. Used to anchor the
// context package around the primary item.
func (c *Client) Fetch(ctx context.Context, itemKey string) (taskctx.RelatedItem, error) {
	iss, err := c.fetchIssue(ctx, itemKey)
	if err != nil {
		return taskctx.RelatedItem{}, err
	}
	return normalizeItem(iss), nil
}

// Resolve walks the relationship graph of itemKey breadth-first up to depth
// hops, filtering by includeTypes when non-empty. One GET per visited issue;
// an item that fails to fetch terminates that branch only.
func (c *Client) Resolve(ctx context.Context, itemKey string, depth int, includeTypes []taskctx.RelationType) (*aggregate.Resolution, error) {
	if depth <= 0 {
		depth = 1
	}

	root, err := c.fetchIssue(ctx, itemKey)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", itemKey, err)
	}

	allowed := make(map[taskctx.RelationType]bool, len(includeTypes))
	for _, t := range includeTypes {
		allowed[t] = true
	}

	res := &aggregate.Resolution{SourceKey: itemKey}
	visited := map[string]bool{itemKey: true}

	frontier := []*issue{root}
	for hop := 1; hop <= depth && len(frontier) > 0; hop++ {
		var next []*issue
		for _, iss := range frontier {
			for _, link := range linksOf(iss, hop) {
				if len(allowed) > 0 && !allowed[link.Type] {
					continue
				}
				res.Links = append(res.Links, link)
				if visited[link.Item.Key] || hop == depth {
					continue
				}
				visited[link.Item.Key] = true
				child, err := c.fetchIssue(ctx, link.Item.Key)
				if err != nil {
					continue // branch ends here; siblings still walk
				}
				next = append(next, child)
			}
		}
		frontier = next
	}

	return res, nil
}

// linksOf enumerates one issue's direct relationships: parent, subtasks,
// and issue links.
func linksOf(iss *issue, hop int) []aggregate.ResolvedLink {
	var links []aggregate.ResolvedLink

	if p := iss.Fields.Parent; p != nil && p.Key != "" {
		t := taskctx.RelParent
		if p.Fields.IssueType != nil && strings.EqualFold(p.Fields.IssueType.Name, "Epic") {
			t = taskctx.RelEpic
		}
		links = append(links, aggregate.ResolvedLink{
			Item: normalizeItem(p), Type: t, Direction: "inward", Depth: hop,
		})
	}

	for i := range iss.Fields.Subtasks {
		sub := &iss.Fields.Subtasks[i]
		if sub.Key == "" {
			continue
		}
		links = append(links, aggregate.ResolvedLink{
			Item: normalizeItem(sub), Type: taskctx.RelChild, Direction: "outward", Depth: hop,
		})
	}

	for _, l := range iss.Fields.IssueLinks {
		target := l.OutwardIssue
		direction := "outward"
		if target == nil {
			target = l.InwardIssue
			direction = "inward"
		}
		if target == nil || target.Key == "" {
			continue
		}
		links = append(links, aggregate.ResolvedLink{
			Item:      normalizeItem(target),
			Type:      mapLinkType(l.Type.Name, direction),
			Direction: direction,
			Depth:     hop,
		})
	}

	return links
}

// mapLinkType maps a Jira link-type name onto a relation type. Unknown names
// pass through lowercased, where they score the default weight.
func mapLinkType(name, direction string) taskctx.RelationType {
	switch n := strings.ToLower(name); {
	case strings.Contains(n, "block"):
		if direction == "inward" {
			return taskctx.RelBlockedBy
		}
		return taskctx.RelBlocks
	case strings.Contains(n, "depend"):
		return taskctx.RelDependency
	case strings.Contains(n, "epic"):
		return taskctx.RelEpic
	case strings.Contains(n, "relate"):
		return taskctx.RelRelates
	case n == "":
		return taskctx.RelRelates
	default:
		return taskctx.RelationType(strings.ReplaceAll(strings.ToLower(name), " ", "_"))
	}
}

// normalizeItem converts an upstream issue into the fixed record shape with
// defensive defaults for anything missing.
func normalizeItem(iss *issue) taskctx.RelatedItem {
	item := taskctx.RelatedItem{
		Key:         iss.Key,
		Summary:     iss.Fields.Summary,
		Description: iss.Fields.Description,
		Created:     parseTime(iss.Fields.Created),
		Updated:     parseTime(iss.Fields.Updated),
	}
	if iss.Fields.Status != nil {
		item.Status = iss.Fields.Status.Name
	}
	return item
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(jiraTime, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (c *Client) fetchIssue(ctx context.Context, key string) (*issue, error) {
	u := fmt.Sprintf("%s/rest/api/2/issue/%s?fields=summary,description,status,issuetype,created,updated,parent,subtasks,issuelinks", c.Config.BaseURL, key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	c.auth(req)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("issue %s: %s: %s", key, resp.Status, string(body))
	}

	var iss issue
	if err := json.NewDecoder(resp.Body).Decode(&iss); err != nil {
		return nil, fmt.Errorf("decode issue %s: %w", key, err)
	}
	if iss.Key == "" {
		iss.Key = key
	}
	return &iss, nil
}

func (c *Client) auth(req *http.Request) {
	switch {
	case c.Config.Email != "" && c.Config.APIToken != "":
		req.SetBasicAuth(c.Config.Email, c.Config.APIToken)
	case c.Config.APIToken != "":
		req.Header.Set("Authorization", "Bearer "+c.Config.APIToken)
	}
}

var _ aggregate.Resolver = (*Client)(nil)
