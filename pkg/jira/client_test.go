package jira

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"donotmiss/pkg/task"
)

type fakeTransport struct {
	fn func(*http.Request) (*http.Response, error)
}

func (f fakeTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	return f.fn(r)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func testClient(fn func(*http.Request) (*http.Response, error)) *Client {
	c := New("https://example.atlassian.net/", "dev@example.com", "secret-token", "PROJ")
	c.HTTPClient = &http.Client{Transport: fakeTransport{fn}}
	return c
}

// TestCreateIssueNotConfigured verifies a client without credentials
// fails fast and performs no network I/O.
func TestCreateIssueNotConfigured(t *testing.T) {
	cases := []struct {
		name string
		c    *Client
	}{
		{"no site", New("", "dev@example.com", "secret", "PROJ")},
		{"no token", New("https://example.atlassian.net", "dev@example.com", "", "PROJ")},
		{"nothing", New("", "", "", "")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.c.HTTPClient = &http.Client{Transport: fakeTransport{func(*http.Request) (*http.Response, error) {
				t.Fatal("network I/O attempted on unconfigured client")
				return nil, nil
			}}}
			if tc.c.Configured() {
				t.Error("Configured() = true")
			}
			_, _, err := tc.c.CreateIssue(context.Background(), &task.Task{Title: "x", Text: "x"})
			if !errors.Is(err, ErrNotConfigured) {
				t.Errorf("err = %v, want ErrNotConfigured", err)
			}
		})
	}
}

// TestCreateIssueMapping verifies the request the adapter builds:
// endpoint, auth, field mapping, priority table, due date and labels.
func TestCreateIssueMapping(t *testing.T) {
	deadline, _ := task.ParseDate("2026-10-20")
	src := &task.Task{
		ID:          "task-abc",
		Title:       "Fix the roof",
		Description: "The roof leaks when it rains.",
		Text:        "The roof leaks when it rains.",
		Source:      "extension",
		URL:         "https://example.com/roof",
		Priority:    task.PriorityHigh,
		Deadline:    &deadline,
	}

	var captured *http.Request
	var payload map[string]any
	c := testClient(func(r *http.Request) (*http.Response, error) {
		captured = r
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("request body is not JSON: %v", err)
		}
		return jsonResponse(201, `{"id":"10001","key":"PROJ-42","self":"https://example.atlassian.net/rest/api/3/issue/10001"}`), nil
	})

	key, url, err := c.CreateIssue(context.Background(), src)
	if err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	if key != "PROJ-42" {
		t.Errorf("key = %q, want PROJ-42", key)
	}
	if url != "https://example.atlassian.net/browse/PROJ-42" {
		t.Errorf("url = %q", url)
	}

	if captured.Method != http.MethodPost || captured.URL.Path != "/rest/api/3/issue" {
		t.Errorf("request = %s %s", captured.Method, captured.URL.Path)
	}
	if user, pass, ok := captured.BasicAuth(); !ok || user != "dev@example.com" || pass != "secret-token" {
		t.Errorf("basic auth = %q/%q ok=%v", user, pass, ok)
	}

	fields, _ := payload["fields"].(map[string]any)
	if fields == nil {
		t.Fatalf("payload missing fields: %v", payload)
	}
	if fields["summary"] != "Fix the roof" {
		t.Errorf("summary = %v", fields["summary"])
	}
	if proj, _ := fields["project"].(map[string]any); proj["key"] != "PROJ" {
		t.Errorf("project = %v", fields["project"])
	}
	if prio, _ := fields["priority"].(map[string]any); prio["id"] != "2" {
		t.Errorf("priority = %v, want id 2 for high", fields["priority"])
	}
	if fields["duedate"] != "2026-10-20" {
		t.Errorf("duedate = %v", fields["duedate"])
	}

	labels, _ := fields["labels"].([]any)
	if len(labels) != 2 || labels[0] != "donotmiss" || labels[1] != "source-extension" {
		t.Errorf("labels = %v", labels)
	}

	doc, _ := fields["description"].(map[string]any)
	if doc["type"] != "doc" {
		t.Fatalf("description = %v", fields["description"])
	}
	paragraphs := docTexts(t, doc)
	want := []string{
		"The roof leaks when it rains.",
		"Source: extension",
		"URL: https://example.com/roof",
		"Captured via DoNotMiss extension",
	}
	if len(paragraphs) != len(want) {
		t.Fatalf("paragraphs = %v, want %v", paragraphs, want)
	}
	for i := range want {
		if paragraphs[i] != want[i] {
			t.Errorf("paragraph %d = %q, want %q", i, paragraphs[i], want[i])
		}
	}
}

// TestCreateIssueNoURLNoDeadline verifies optional fields are omitted.
func TestCreateIssueNoURLNoDeadline(t *testing.T) {
	var payload map[string]any
	c := testClient(func(r *http.Request) (*http.Response, error) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &payload)
		return jsonResponse(201, `{"key":"PROJ-1"}`), nil
	})

	_, _, err := c.CreateIssue(context.Background(), &task.Task{Title: "t", Text: "body", Source: "web"})
	if err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}

	fields, _ := payload["fields"].(map[string]any)
	if _, ok := fields["duedate"]; ok {
		t.Errorf("duedate present without deadline: %v", fields["duedate"])
	}
	doc, _ := fields["description"].(map[string]any)
	for _, p := range docTexts(t, doc) {
		if strings.HasPrefix(p, "URL:") {
			t.Errorf("URL paragraph present without url: %q", p)
		}
	}
}

// TestCreateIssueErrorBodies verifies tracker errors surface Jira's
// reported messages, falling back to the raw body.
func TestCreateIssueErrorBodies(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"error messages", 400, `{"errorMessages":["Field 'summary' is required"],"errors":{}}`, "Field 'summary' is required"},
		{"field errors", 400, `{"errorMessages":[],"errors":{"project":"project is required"}}`, "project: project is required"},
		{"unparseable", 502, `<html>Bad Gateway</html>`, "<html>Bad Gateway</html>"},
		{"unauthorized", 401, `{"errorMessages":["Unauthorized"],"errors":{}}`, "Unauthorized"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := testClient(func(*http.Request) (*http.Response, error) {
				return jsonResponse(tc.status, tc.body), nil
			})
			_, _, err := c.CreateIssue(context.Background(), &task.Task{Title: "t", Text: "x"})
			if err == nil {
				t.Fatal("CreateIssue succeeded, want error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %q, want it to contain %q", err, tc.want)
			}
		})
	}
}

// TestCreateIssueTransportFailure verifies transport errors surface the
// underlying cause.
func TestCreateIssueTransportFailure(t *testing.T) {
	c := testClient(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("dial tcp: connection refused")
	})
	_, _, err := c.CreateIssue(context.Background(), &task.Task{Title: "t", Text: "x"})
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("err = %v, want underlying transport error", err)
	}
}

// TestCreateIssueMissingKey verifies a 2xx response without an issue key
// is treated as an error.
func TestCreateIssueMissingKey(t *testing.T) {
	c := testClient(func(*http.Request) (*http.Response, error) {
		return jsonResponse(201, `{"id":"10001"}`), nil
	})
	_, _, err := c.CreateIssue(context.Background(), &task.Task{Title: "t", Text: "x"})
	if err == nil || !strings.Contains(err.Error(), "missing issue key") {
		t.Errorf("err = %v, want missing-key error", err)
	}
}

// docTexts flattens an ADF doc (decoded as map[string]any) into its
// paragraph texts.
func docTexts(t *testing.T, doc map[string]any) []string {
	t.Helper()
	content, _ := doc["content"].([]any)
	var out []string
	for _, node := range content {
		para, _ := node.(map[string]any)
		inner, _ := para["content"].([]any)
		var text string
		for _, leaf := range inner {
			m, _ := leaf.(map[string]any)
			if s, ok := m["text"].(string); ok {
				text += s
			}
		}
		out = append(out, text)
	}
	return out
}
