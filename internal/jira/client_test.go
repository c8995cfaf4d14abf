package jira

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"taskmaster/internal/taskctx"
)

// issueServer serves canned Jira issue payloads keyed by issue key and
// records requests.
func issueServer(t *testing.T, payloads map[string]string) (*httptest.Server, *[]string) {
	t.Helper()
	var requested []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/rest/api/2/issue/")
		requested = append(requested, key)
		body, ok := payloads[key]
		if !ok {
			http.Error(w, `{"errorMessages":["Issue does not exist"]}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &requested
}

func TestFetch_Normalizes(t *testing.T) {
	srv, _ := issueServer(t, map[string]string{
		"PROJ-1": `{
			"key": "PROJ-1",
			"fields": {
				"summary": "Fix login flow",
				"description": "Users cannot log in after password reset.",
				"status": {"name": "In Progress"},
				"created": "2026-01-10T09:00:00.000+0000",
				"updated": "2026-02-01T15:30:00.000+0000"
			}
		}`,
	})

	c := NewClient(Config{BaseURL: srv.URL})
	item, err := c.Fetch(context.Background(), "PROJ-1")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	want := taskctx.RelatedItem{
		Key:         "PROJ-1",
		Summary:     "Fix login flow",
		Status:      "In Progress",
		Description: "Users cannot log in after password reset.",
		Created:     time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC),
		Updated:     time.Date(2026, 2, 1, 15, 30, 0, 0, time.UTC),
	}
	if diff := cmp.Diff(want, item, cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })); diff != "" {
		t.Errorf("item mismatch (-want +got):\n%s", diff)
	}
}

func TestFetch_MalformedTimestampIsZero(t *testing.T) {
	srv, _ := issueServer(t, map[string]string{
		"PROJ-1": `{"key":"PROJ-1","fields":{"summary":"x","created":"yesterday-ish"}}`,
	})

	item, err := NewClient(Config{BaseURL: srv.URL}).Fetch(context.Background(), "PROJ-1")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !item.Created.IsZero() {
		t.Errorf("unparseable timestamp should normalize to zero, got %v", item.Created)
	}
}

func TestResolve_DirectLinks(t *testing.T) {
	srv, _ := issueServer(t, map[string]string{
		"PROJ-1": `{
			"key": "PROJ-1",
			"fields": {
				"summary": "Story",
				"parent": {"key": "PROJ-100", "fields": {"summary": "Theme", "issuetype": {"name": "Epic"}}},
				"subtasks": [{"key": "PROJ-2", "fields": {"summary": "Subtask"}}],
				"issuelinks": [
					{"type": {"name": "Blocks"}, "outwardIssue": {"key": "PROJ-3", "fields": {"summary": "Downstream"}}},
					{"type": {"name": "Blocks"}, "inwardIssue": {"key": "PROJ-4", "fields": {"summary": "Upstream"}}},
					{"type": {"name": "Relates"}, "outwardIssue": {"key": "PROJ-5", "fields": {"summary": "Neighbor"}}}
				]
			}
		}`,
	})

	res, err := NewClient(Config{BaseURL: srv.URL}).Resolve(context.Background(), "PROJ-1", 1, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	got := make(map[string]taskctx.RelationType, len(res.Links))
	for _, l := range res.Links {
		got[l.Item.Key] = l.Type
	}
	want := map[string]taskctx.RelationType{
		"PROJ-100": taskctx.RelEpic,
		"PROJ-2":   taskctx.RelChild,
		"PROJ-3":   taskctx.RelBlocks,
		"PROJ-4":   taskctx.RelBlockedBy,
		"PROJ-5":   taskctx.RelRelates,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("link types (-want +got):\n%s", diff)
	}
	for _, l := range res.Links {
		if l.Depth != 1 {
			t.Errorf("%s: depth = %d, want 1", l.Item.Key, l.Depth)
		}
	}
}

func TestResolve_TypeFilter(t *testing.T) {
	srv, _ := issueServer(t, map[string]string{
		"PROJ-1": `{
			"key": "PROJ-1",
			"fields": {
				"subtasks": [{"key": "PROJ-2", "fields": {}}],
				"issuelinks": [{"type": {"name": "Relates"}, "outwardIssue": {"key": "PROJ-5", "fields": {}}}]
			}
		}`,
	})

	res, err := NewClient(Config{BaseURL: srv.URL}).Resolve(
		context.Background(), "PROJ-1", 1, []taskctx.RelationType{taskctx.RelChild})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(res.Links) != 1 || res.Links[0].Item.Key != "PROJ-2" {
		t.Errorf("want only the subtask link, got %+v", res.Links)
	}
}

func TestResolve_MultiHop(t *testing.T) {
	srv, requested := issueServer(t, map[string]string{
		"PROJ-1": `{"key":"PROJ-1","fields":{"subtasks":[{"key":"PROJ-2","fields":{}}]}}`,
		"PROJ-2": `{"key":"PROJ-2","fields":{"issuelinks":[{"type":{"name":"Relates"},"outwardIssue":{"key":"PROJ-3","fields":{}}}]}}`,
	})

	res, err := NewClient(Config{BaseURL: srv.URL}).Resolve(context.Background(), "PROJ-1", 2, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if len(res.Links) != 2 {
		t.Fatalf("expected 2 links across 2 hops, got %d", len(res.Links))
	}
	depths := map[string]int{}
	for _, l := range res.Links {
		depths[l.Item.Key] = l.Depth
	}
	if depths["PROJ-2"] != 1 || depths["PROJ-3"] != 2 {
		t.Errorf("hop depths: %v", depths)
	}
	// Second-hop issues are never fetched themselves at the depth boundary.
	for _, key := range *requested {
		if key == "PROJ-3" {
			t.Error("PROJ-3 fetched beyond the depth limit")
		}
	}
}

func TestResolve_FailedBranchDoesNotAbort(t *testing.T) {
	srv, _ := issueServer(t, map[string]string{
		// PROJ-2 is linked but the server has no payload for it: 404.
		"PROJ-1": `{"key":"PROJ-1","fields":{
			"subtasks":[{"key":"PROJ-2","fields":{}},{"key":"PROJ-3","fields":{}}]}}`,
		"PROJ-3": `{"key":"PROJ-3","fields":{"issuelinks":[{"type":{"name":"Relates"},"outwardIssue":{"key":"PROJ-4","fields":{}}}]}}`,
	})

	res, err := NewClient(Config{BaseURL: srv.URL}).Resolve(context.Background(), "PROJ-1", 2, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(res.Links) != 3 {
		t.Errorf("expected PROJ-2, PROJ-3 and PROJ-4 links, got %d: %+v", len(res.Links), res.Links)
	}
}

func TestResolve_RootFetchError(t *testing.T) {
	srv, _ := issueServer(t, nil)

	_, err := NewClient(Config{BaseURL: srv.URL}).Resolve(context.Background(), "PROJ-1", 1, nil)
	if err == nil {
		t.Fatal("expected an error for a missing root issue")
	}
	if !strings.Contains(err.Error(), "PROJ-1") {
		t.Errorf("error should name the item: %v", err)
	}
}

func TestAuthHeaders(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"key":"PROJ-1","fields":{}}`)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(Config{BaseURL: srv.URL, Email: "dev@example.com", APIToken: "tok"})
	if _, err := c.Fetch(context.Background(), "PROJ-1"); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("dev@example.com:tok"))
	if gotAuth != want {
		t.Errorf("basic auth header = %q, want %q", gotAuth, want)
	}

	c = NewClient(Config{BaseURL: srv.URL, APIToken: "tok"})
	if _, err := c.Fetch(context.Background(), "PROJ-1"); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("bearer header = %q", gotAuth)
	}
}

func TestMapLinkType(t *testing.T) {
	cases := []struct {
		name, direction string
		want            taskctx.RelationType
	}{
		{"Blocks", "outward", taskctx.RelBlocks},
		{"Blocks", "inward", taskctx.RelBlockedBy},
		{"Dependency", "outward", taskctx.RelDependency},
		{"Epic Link", "outward", taskctx.RelEpic},
		{"Relates", "inward", taskctx.RelRelates},
		{"", "outward", taskctx.RelRelates},
		{"Cloned By", "inward", taskctx.RelationType("cloned_by")},
	}
	for _, tc := range cases {
		if got := mapLinkType(tc.name, tc.direction); got != tc.want {
			t.Errorf("mapLinkType(%q, %q) = %q, want %q", tc.name, tc.direction, got, tc.want)
		}
	}
}
