package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lemanrza/tripCast-travel-journal-sub001/internal/protocol"
)

func TestHistoryFetchAllPagesOldestFirst(t *testing.T) {
	// Two pages, newest first, cursor-linked.
	pages := map[string]historyPage{
		"": {
			Messages:   []protocol.MessageView{msgView("c", "u1", "third"), msgView("d", "u2", "fourth")},
			NextBefore: "c",
		},
		"c": {
			Messages: []protocol.MessageView{msgView("a", "u1", "first"), msgView("b", "u2", "second")},
		},
	}

	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/groups/g1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(pages[r.URL.Query().Get("before")])
	}))
	defer srv.Close()

	h := NewHistory(srv.URL, "tok-1")
	msgs, err := h.FetchAll(context.Background(), "g1")
	if err != nil {
		t.Fatal(err)
	}

	if gotAuth != "Bearer tok-1" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
	want := []string{"a", "b", "c", "d"}
	got := ids(msgs)
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestHistoryFetchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	h := NewHistory(srv.URL, "tok-1")
	if _, _, err := h.Fetch(context.Background(), "g1", ""); err == nil {
		t.Fatal("expected error on non-200 status")
	}
}
