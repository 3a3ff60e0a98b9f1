package sendgrid

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/yungbote/coursesync-backend/internal/platform/logger"
)

func TestSend_BuildsMailSendPayload(t *testing.T) {
	var got mailSendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/mail/send" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer SG.key" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("X-Message-Id", "msg-1")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c, err := New(logger.Nop(), Config{
		APIKey:           "SG.key",
		BaseURL:          srv.URL,
		DefaultFromEmail: "noreply@example.com",
		RetryBackoff:     time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := c.Send(context.Background(), SendEmailRequest{
		To:      []EmailAddress{{Email: "learner@example.com"}},
		Subject: "Course Progress Synced",
		Text:    "synced",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.MessageID != "msg-1" || res.StatusCode != http.StatusAccepted {
		t.Fatalf("unexpected result %+v", res)
	}
	if got.From.Email != "noreply@example.com" {
		t.Fatalf("expected default sender, got %q", got.From.Email)
	}
	if len(got.Personalizations) != 1 || got.Personalizations[0].To[0].Email != "learner@example.com" {
		t.Fatalf("unexpected personalizations %+v", got.Personalizations)
	}
	if len(got.Content) != 1 || got.Content[0].Type != "text/plain" {
		t.Fatalf("unexpected content %+v", got.Content)
	}
}

func TestSend_SurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"message":"The provided authorization grant is invalid"}]}`))
	}))
	defer srv.Close()

	c, err := New(logger.Nop(), Config{APIKey: "bad", BaseURL: srv.URL, DefaultFromEmail: "a@b.c"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.Send(context.Background(), SendEmailRequest{
		To:      []EmailAddress{{Email: "x@example.com"}},
		Subject: "s",
		HTML:    "<p>h</p>",
	})
	var he *HTTPError
	if !errors.As(err, &he) || he.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 HTTPError, got %v", err)
	}
}

func TestSend_ValidatesRequest(t *testing.T) {
	c, err := New(logger.Nop(), Config{APIKey: "k", DefaultFromEmail: "a@b.c"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Send(context.Background(), SendEmailRequest{Subject: "s", Text: "t"}); err == nil {
		t.Fatalf("expected error without recipients")
	}
	if _, err := c.Send(context.Background(), SendEmailRequest{To: []EmailAddress{{Email: "x@y.z"}}, Text: "t"}); err == nil {
		t.Fatalf("expected error without subject")
	}
}
