package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
)

func pageHandler(t *testing.T, items [][]map[string]any, total int) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Zotero-API-Key") != "secret" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		start, _ := strconv.Atoi(r.URL.Query().Get("start"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		page := start / limit
		w.Header().Set("Total-Results", strconv.Itoa(total))
		if page >= len(items) {
			json.NewEncoder(w).Encode([]any{})
			return
		}
		json.NewEncoder(w).Encode(items[page])
	}
}

func linkedItem(key, path string) map[string]any {
	return map[string]any{
		"key": key,
		"data": map[string]any{
			"key":      key,
			"itemType": "attachment",
			"linkMode": "linked_file",
			"path":     path,
		},
	}
}

func TestBuildIndexDrainsPagination(t *testing.T) {
	pages := [][]map[string]any{
		{linkedItem("A1", "attachments:papers/a.pdf"), linkedItem("B2", "attachments:papers/b.pdf")},
		{linkedItem("C3", "/abs/c.pdf")},
	}
	srv := httptest.NewServer(pageHandler(t, pages, 3))
	defer srv.Close()

	client := NewClient(ClientOptions{
		BaseURL:           srv.URL,
		LibraryID:         "1234",
		APIKey:            "secret",
		PageSize:          2,
		RequestsPerSecond: 1000,
	})

	ix, err := BuildIndex(context.Background(), client, IndexOptions{Root: "/lib"})
	if err != nil {
		t.Fatalf("build index: %v", err)
	}
	if len(ix.Records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(ix.Records))
	}
	if got := ix.Records[0].ResolvedPath; got != "/lib/papers/a.pdf" {
		t.Fatalf("resolved path: %q", got)
	}
	if got := ix.Records[2].ResolvedPath; got != "/abs/c.pdf" {
		t.Fatalf("absolute path should pass through, got %q", got)
	}
}

func TestListAttachmentsAuthError(t *testing.T) {
	srv := httptest.NewServer(pageHandler(t, nil, 0))
	defer srv.Close()

	client := NewClient(ClientOptions{
		BaseURL:           srv.URL,
		LibraryID:         "1234",
		APIKey:            "wrong",
		RequestsPerSecond: 1000,
	})

	_, err := client.ListAttachments(context.Background(), 0)
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
}

func TestListAttachmentsRetriesThenUnavailable(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(ClientOptions{
		BaseURL:           srv.URL,
		LibraryID:         "1234",
		APIKey:            "secret",
		MaxRetries:        2,
		BaseDelay:         1,
		MaxDelay:          1,
		RequestsPerSecond: 1000,
	})

	_, err := client.ListAttachments(context.Background(), 0)
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestListAttachmentsRecoversMidRetry(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Total-Results", "1")
		fmt.Fprint(w, `[{"key":"A1","data":{"key":"A1","itemType":"attachment","linkMode":"linked_file","path":"attachments:a.pdf"}}]`)
	}))
	defer srv.Close()

	client := NewClient(ClientOptions{
		BaseURL:           srv.URL,
		LibraryID:         "1234",
		MaxRetries:        3,
		BaseDelay:         1,
		MaxDelay:          1,
		RequestsPerSecond: 1000,
	})

	page, err := client.ListAttachments(context.Background(), 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 1 || page.Next != -1 {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestStoredAttachmentResolution(t *testing.T) {
	a := Attachment{Key: "K9", Mode: LinkModeStored, Filename: "doc.pdf"}
	if p := resolvePath(a, "/lib", "/data/storage"); p != "/data/storage/K9/doc.pdf" {
		t.Fatalf("stored path: %q", p)
	}
	if p := resolvePath(a, "/lib", ""); p != "" {
		t.Fatalf("stored path without storage dir should be empty, got %q", p)
	}
}
