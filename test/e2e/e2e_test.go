//go:build e2e

package e2e_test

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
)

// TestE2E_FullCRUDWorkflow exercises the complete user journey:
// create, list, update, verify update, delete, verify delete.
func TestE2E_FullCRUDWorkflow(t *testing.T) {
	skipIfServerUnavailable(t)

	base := e2eServerURL()
	client := newHTTPClient()

	t.Log("Step 1: Create item")
	name := uniqueName("e2e-workflow")
	created := createItem(t, client, base, name, "Created during E2E test")
	if created.Description != "Created during E2E test" {
		t.Errorf("Create: description = %q", created.Description)
	}

	t.Log("Step 2: Update item")
	updatedName := name + "-updated"
	status, body := doRequest(t, client, http.MethodPut, base+"/items", jsonBody(t, map[string]any{
		"id":          created.ID,
		"name":        updatedName,
		"description": "Updated during E2E test",
	}))
	if status != http.StatusOK || body != "Item updated successfully" {
		t.Fatalf("Update: got %d %q", status, body)
	}

	t.Log("Step 3: Verify update")
	items := listItems(t, client, base)
	if _, ok := findByName(items, name); ok {
		t.Error("Update: old name still listed")
	}
	updated, ok := findByName(items, updatedName)
	if !ok {
		t.Fatal("Update: new name not listed")
	}
	if updated.ID != created.ID || updated.Description != "Updated during E2E test" {
		t.Errorf("Update: listed %+v", updated)
	}

	t.Log("Step 4: Delete item")
	status, body = doRequest(t, client, http.MethodDelete, fmt.Sprintf("%s/items/%d", base, created.ID), nil)
	if status != http.StatusOK || body != "Item deleted successfully" {
		t.Fatalf("Delete: got %d %q", status, body)
	}

	t.Log("Step 5: Verify delete")
	for _, item := range listItems(t, client, base) {
		if item.ID == created.ID {
			t.Errorf("Delete: id %d still listed", created.ID)
		}
	}
}

// TestE2E_MissingIDIsSuccess verifies writes to an id with no row still
// answer 200 and leave the table unchanged.
func TestE2E_MissingIDIsSuccess(t *testing.T) {
	skipIfServerUnavailable(t)

	base := e2eServerURL()
	client := newHTTPClient()
	before := len(listItems(t, client, base))

	status, _ := doRequest(t, client, http.MethodPut, base+"/items",
		strings.NewReader(`{"id":2147483647,"name":"x","description":"y"}`))
	if status != http.StatusOK {
		t.Errorf("Update missing id: expected 200, got %d", status)
	}

	status, _ = doRequest(t, client, http.MethodDelete, base+"/items/2147483647", nil)
	if status != http.StatusOK {
		t.Errorf("Delete missing id: expected 200, got %d", status)
	}

	if after := len(listItems(t, client, base)); after != before {
		t.Errorf("item count changed from %d to %d", before, after)
	}
}

// TestE2E_BadRequests verifies malformed input never reaches the database.
func TestE2E_BadRequests(t *testing.T) {
	skipIfServerUnavailable(t)

	base := e2eServerURL()
	client := newHTTPClient()
	before := len(listItems(t, client, base))

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"create missing description", http.MethodPost, "/items", `{"name":"OnlyName"}`},
		{"create not json", http.MethodPost, "/items", `not json`},
		{"update missing id", http.MethodPut, "/items", `{"name":"x","description":"y"}`},
		{"delete non-numeric id", http.MethodDelete, "/items/abc", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var status int
			if tt.body == "" {
				status, _ = doRequest(t, client, tt.method, base+tt.path, nil)
			} else {
				status, _ = doRequest(t, client, tt.method, base+tt.path, strings.NewReader(tt.body))
			}
			if status != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", status)
			}
		})
	}

	if after := len(listItems(t, client, base)); after != before {
		t.Errorf("item count changed from %d to %d", before, after)
	}
}

// TestE2E_ConcurrentCreates verifies concurrent writers all land.
func TestE2E_ConcurrentCreates(t *testing.T) {
	skipIfServerUnavailable(t)

	base := e2eServerURL()
	client := newHTTPClient()
	prefix := uniqueName("e2e-concurrent")

	const numWriters = 10
	var wg sync.WaitGroup
	statuses := make(chan int, numWriters)

	for i := 0; i < numWriters; i++ {
		payload := fmt.Sprintf(`{"name":"%s-%d","description":"concurrent"}`, prefix, i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := client.Post(base+"/items", "application/json", strings.NewReader(payload))
			if err != nil {
				statuses <- 0
				return
			}
			resp.Body.Close()
			statuses <- resp.StatusCode
		}()
	}
	wg.Wait()
	close(statuses)

	for status := range statuses {
		if status != http.StatusOK {
			t.Errorf("concurrent create: expected 200, got %d", status)
		}
	}

	found := 0
	for _, item := range listItems(t, client, base) {
		if strings.HasPrefix(item.Name, prefix) {
			found++
			deleteItem(t, client, base, item.ID)
		}
	}
	if found != numWriters {
		t.Errorf("listed %d concurrent items, want %d", found, numWriters)
	}
}
