package chatapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mahaj/dupahar/pkg/model"
)

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "bad request carries the reason",
			status: http.StatusBadRequest,
			body:   "content required",
			check: func(t *testing.T, err error) {
				var verr *model.ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("want ValidationError, got %v", err)
				}
				if verr.Reason != "content required" {
					t.Fatalf("reason = %q", verr.Reason)
				}
			},
		},
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			check: func(t *testing.T, err error) {
				var perr *model.PermissionError
				if !errors.As(err, &perr) {
					t.Fatalf("want PermissionError, got %v", err)
				}
			},
		},
		{
			name:   "forbidden",
			status: http.StatusForbidden,
			check: func(t *testing.T, err error) {
				var perr *model.PermissionError
				if !errors.As(err, &perr) {
					t.Fatalf("want PermissionError, got %v", err)
				}
			},
		},
		{
			name:   "not found means the target is gone",
			status: http.StatusNotFound,
			check: func(t *testing.T, err error) {
				var cerr *model.ConflictError
				if !errors.As(err, &cerr) {
					t.Fatalf("want ConflictError, got %v", err)
				}
				if cerr.MessageID != 1 {
					t.Fatalf("conflict lost the target id: %d", cerr.MessageID)
				}
			},
		},
		{
			name:   "conflict",
			status: http.StatusConflict,
			check: func(t *testing.T, err error) {
				var cerr *model.ConflictError
				if !errors.As(err, &cerr) {
					t.Fatalf("want ConflictError, got %v", err)
				}
				if cerr.MessageID != 1 {
					t.Fatalf("conflict lost the target id: %d", cerr.MessageID)
				}
			},
		},
		{
			name:   "server error is transient",
			status: http.StatusInternalServerError,
			check: func(t *testing.T, err error) {
				var nerr *model.NetworkError
				if !errors.As(err, &nerr) {
					t.Fatalf("want NetworkError, got %v", err)
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := New(srv.URL, "token")
			err := c.React(context.Background(), "general", 1, "like")
			if err == nil {
				t.Fatal("expected an error")
			}
			tc.check(t, err)
		})
	}
}

func TestUnreachableServerIsNetworkError(t *testing.T) {
	c := New("http://127.0.0.1:1", "token")
	_, err := c.FetchPage(context.Background(), "general", 0, 50)
	var nerr *model.NetworkError
	if !errors.As(err, &nerr) {
		t.Fatalf("want NetworkError, got %v", err)
	}
}

func TestConflictCarriesTargetAcrossMutations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Message not found", http.StatusNotFound)
	}))
	defer srv.Close()
	c := New(srv.URL, "token")

	_, editErr := c.Edit(context.Background(), "general", 42, "new text")
	for name, err := range map[string]error{
		"edit":   editErr,
		"delete": c.Delete(context.Background(), "general", 42),
	} {
		var cerr *model.ConflictError
		if !errors.As(err, &cerr) {
			t.Fatalf("%s: want ConflictError, got %v", name, err)
		}
		if cerr.MessageID != 42 {
			t.Fatalf("%s: conflict lost the target id: %d", name, cerr.MessageID)
		}
	}
}

func TestSendRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token" {
			t.Errorf("Authorization = %q", got)
		}
		var req sendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(model.Message{
			ID:        100,
			ChannelID: req.ChannelID,
			UserID:    "user1",
			Content:   req.Content,
			ReplyTo:   req.ReplyTo,
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "token")
	out, err := c.Send(context.Background(), "general", "hi", nil, 7)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if out.ID != 100 || out.Content != "hi" || out.ReplyTo != 7 {
		t.Fatalf("canonical result = %+v", out)
	}
}

func TestFetchPagePassesQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("channel_id") != "general" || q.Get("page") != "2" || q.Get("page_size") != "50" {
			t.Errorf("query = %v", q)
		}
		json.NewEncoder(w).Encode([]model.Message{{ID: 1, ChannelID: "general"}})
	}))
	defer srv.Close()

	c := New(srv.URL, "token")
	items, err := c.FetchPage(context.Background(), "general", 2, 50)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(items) != 1 || items[0].ID != 1 {
		t.Fatalf("items = %+v", items)
	}
}
