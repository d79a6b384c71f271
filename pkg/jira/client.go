// Package jira maps tasks onto Jira Cloud issue-creation requests.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"donotmiss/pkg/task"
)

// ErrNotConfigured means the site or API token is missing; no network
// I/O is attempted in that case.
var ErrNotConfigured = errors.New("jira is not configured")

// Client talks to the Jira Cloud REST API. One synchronous call per
// issue; no retries, no idempotency key — a duplicate call creates a
// duplicate issue.
type Client struct {
	Site       string // e.g. https://example.atlassian.net
	Email      string
	APIToken   string
	ProjectKey string

	// HTTPClient overrides the default client (10s timeout) when set.
	HTTPClient *http.Client
}

// New creates a Client. A trailing slash on site is tolerated.
func New(site, email, apiToken, projectKey string) *Client {
	return &Client{
		Site:       strings.TrimRight(site, "/"),
		Email:      email,
		APIToken:   apiToken,
		ProjectKey: projectKey,
	}
}

// Configured reports whether the client has enough credentials to call Jira.
func (c *Client) Configured() bool {
	return c.Site != "" && c.APIToken != ""
}

// CreateIssue creates a Jira issue for the task and returns the issue key
// and browse URL.
func (c *Client) CreateIssue(ctx context.Context, t *task.Task) (string, string, error) {
	if !c.Configured() {
		return "", "", ErrNotConfigured
	}

	payload, err := json.Marshal(map[string]any{"fields": c.issueFields(t)})
	if err != nil {
		return "", "", fmt.Errorf("marshal issue: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Site+"/rest/api/3/issue", bytes.NewReader(payload))
	if err != nil {
		return "", "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.Email, c.APIToken)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return "", "", fmt.Errorf("jira request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("read jira response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", "", fmt.Errorf("jira returned %d: %s", resp.StatusCode, errorMessage(body))
	}

	key := gjson.GetBytes(body, "key").String()
	if key == "" {
		return "", "", fmt.Errorf("jira response missing issue key: %s", body)
	}
	return key, c.Site + "/browse/" + key, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// issueFields builds the Jira fields payload for a task.
func (c *Client) issueFields(t *task.Task) map[string]any {
	fields := map[string]any{
		"project":     map[string]string{"key": c.ProjectKey},
		"issuetype":   map[string]string{"name": "Task"},
		"summary":     t.Title,
		"description": descriptionDoc(t),
		"priority":    map[string]string{"id": strconv.Itoa(t.Priority.JiraID())},
		"labels":      []string{"donotmiss", "source-" + t.Source},
	}
	if t.Deadline != nil {
		fields["duedate"] = t.Deadline.Format("2006-01-02")
	}
	return fields
}

// adfNode is a node of an Atlassian Document Format tree.
type adfNode struct {
	Type    string    `json:"type"`
	Version int       `json:"version,omitempty"`
	Text    string    `json:"text,omitempty"`
	Content []adfNode `json:"content,omitempty"`
}

func paragraph(text string) adfNode {
	return adfNode{
		Type:    "paragraph",
		Content: []adfNode{{Type: "text", Text: text}},
	}
}

// descriptionDoc renders the task body as an ADF document: the captured
// text, the source, the originating URL when present, and a provenance
// line, each as its own paragraph.
func descriptionDoc(t *task.Task) adfNode {
	body := t.Description
	if body == "" {
		body = t.Text
	}
	content := []adfNode{
		paragraph(body),
		paragraph("Source: " + t.Source),
	}
	if t.URL != "" {
		content = append(content, paragraph("URL: "+t.URL))
	}
	content = append(content, paragraph("Captured via DoNotMiss extension"))
	return adfNode{Type: "doc", Version: 1, Content: content}
}

// errorMessage flattens a Jira error body into one string. Jira reports
// errors in "errorMessages" (a list) and "errors" (a field -> message
// map); an unparseable body is returned as-is.
func errorMessage(body []byte) string {
	var parts []string
	for _, m := range gjson.GetBytes(body, "errorMessages").Array() {
		parts = append(parts, m.String())
	}
	gjson.GetBytes(body, "errors").ForEach(func(key, value gjson.Result) bool {
		parts = append(parts, key.String()+": "+value.String())
		return true
	})
	if len(parts) == 0 {
		return strings.TrimSpace(string(body))
	}
	return strings.Join(parts, "; ")
}
