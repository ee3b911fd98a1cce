//go:build e2e

package e2e_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"
)

// Environment variable names for E2E test configuration.
const (
	EnvServerURL = "E2E_SERVER_URL"
)

// Default configuration values.
const (
	DefaultServerURL = "http://localhost:8080"
	DefaultTimeout   = 15 * time.Second
)

// getEnvOrDefault returns the value of the environment variable
// identified by key, or defaultVal if the variable is not set.
func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// e2eServerURL returns the base URL of the server under test.
func e2eServerURL() string {
	return strings.TrimSuffix(getEnvOrDefault(EnvServerURL, DefaultServerURL), "/")
}

// skipIfServerUnavailable skips the test unless the server is up and its
// database answers.
func skipIfServerUnavailable(t *testing.T) {
	t.Helper()

	base := e2eServerURL()
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(base + "/ready")
	if err != nil {
		t.Skipf("Server unavailable at %s: %v", base, err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Skipf("Server at %s is not ready: %d", base, resp.StatusCode)
	}
}

// newHTTPClient returns an *http.Client with a sensible timeout.
func newHTTPClient() *http.Client {
	return &http.Client{Timeout: DefaultTimeout}
}

// listedItem is one line of the GET /items body.
type listedItem struct {
	ID          int32
	Name        string
	Description string
}

// doRequest performs an HTTP request and returns status code and body.
func doRequest(
	t *testing.T,
	client *http.Client,
	method, url string,
	body io.Reader,
) (int, string) {
	t.Helper()

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Request %s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response body: %v", err)
	}

	return resp.StatusCode, string(respBody)
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()

	payload, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Failed to marshal payload: %v", err)
	}
	return bytes.NewReader(payload)
}

// parseList parses "id: N, name: X, description: Y" lines.
func parseList(t *testing.T, body string) []listedItem {
	t.Helper()

	var items []listedItem
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()

		rest, ok := strings.CutPrefix(line, "id: ")
		if !ok {
			t.Fatalf("unexpected list line %q", line)
		}
		idStr, rest, ok := strings.Cut(rest, ", name: ")
		if !ok {
			t.Fatalf("unexpected list line %q", line)
		}
		name, description, ok := strings.Cut(rest, ", description: ")
		if !ok {
			t.Fatalf("unexpected list line %q", line)
		}

		id, err := strconv.ParseInt(idStr, 10, 32)
		if err != nil {
			t.Fatalf("bad id in list line %q: %v", line, err)
		}
		items = append(items, listedItem{ID: int32(id), Name: name, Description: description})
	}

	return items
}

// listItems fetches and parses GET /items.
func listItems(t *testing.T, client *http.Client, base string) []listedItem {
	t.Helper()

	status, body := doRequest(t, client, http.MethodGet, base+"/items", nil)
	if status != http.StatusOK {
		t.Fatalf("listItems: expected 200, got %d. Body: %s", status, body)
	}
	return parseList(t, body)
}

// findByName returns the first listed item with the given name.
func findByName(items []listedItem, name string) (listedItem, bool) {
	for _, item := range items {
		if item.Name == name {
			return item, true
		}
	}
	return listedItem{}, false
}

// uniqueName returns a name no other test run will use.
func uniqueName(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

// createItem creates an item and looks up the id the server assigned.
func createItem(t *testing.T, client *http.Client, base, name, description string) listedItem {
	t.Helper()

	status, body := doRequest(t, client, http.MethodPost, base+"/items",
		jsonBody(t, map[string]string{"name": name, "description": description}))
	if status != http.StatusOK {
		t.Fatalf("createItem: expected 200, got %d. Body: %s", status, body)
	}

	created, ok := findByName(listItems(t, client, base), name)
	if !ok {
		t.Fatalf("createItem: %q not listed after create", name)
	}
	return created
}

// deleteItem is a cleanup helper that deletes an item by id.
func deleteItem(t *testing.T, client *http.Client, base string, id int32) {
	t.Helper()

	status, body := doRequest(t, client, http.MethodDelete, fmt.Sprintf("%s/items/%d", base, id), nil)
	if status != http.StatusOK {
		t.Logf("deleteItem cleanup: expected 200, got %d. Body: %s", status, body)
	}
}
