package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/rs/zerolog"
	"github.com/stemsi/examflow/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, srv
}

func writeEnvelope(w http.ResponseWriter, status int, env map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func TestNew_RejectsBadScheme(t *testing.T) {
	if _, err := New("ftp://example.com", zerolog.Nop()); err == nil {
		t.Fatal("expected error for ftp scheme")
	}
}

func TestResolvePasscode_EmptyMakesNoRequest(t *testing.T) {
	called := false
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	_, err := c.ResolvePasscode(context.Background(), "   ")
	if !errors.Is(err, ErrMissingContext) {
		t.Fatalf("expected ErrMissingContext, got %v", err)
	}
	if KindOf(err) != KindMissingContext {
		t.Fatalf("kind = %v", KindOf(err))
	}
	if called {
		t.Fatal("server must not be called for an empty passcode")
	}
}

func TestResolvePasscode_Success(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tests/passcode/MATH123" {
			t.Errorf("path = %s", r.URL.Path)
		}
		writeEnvelope(w, http.StatusOK, map[string]interface{}{
			"status": "OK",
			"data": map[string]interface{}{
				"id": 42, "title": "Algebra", "testtime": 2, "passcode": "MATH123", "numberquestion": 5,
			},
		})
	})

	desc, err := c.ResolvePasscode(context.Background(), "MATH123")
	if err != nil {
		t.Fatalf("ResolvePasscode: %v", err)
	}
	if desc.ID != 42 || desc.Duration() != 2*time.Minute || desc.QuestionCount != 5 {
		t.Fatalf("unexpected descriptor %+v", desc)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		kind    Kind
		message string
	}{
		{
			name: "http status with server message",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeEnvelope(w, http.StatusNotFound, map[string]interface{}{"status": "ERROR", "message": "Test not found."})
			},
			kind:    KindHTTPStatus,
			message: "Test not found.",
		},
		{
			name: "http status without body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			},
			kind:    KindHTTPStatus,
			message: "Your session has expired. Please log in again.",
		},
		{
			name: "application error on 200",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeEnvelope(w, http.StatusOK, map[string]interface{}{"status": "ERROR", "message": "Test is closed."})
			},
			kind:    KindApplication,
			message: "Test is closed.",
		},
		{
			name: "undecodable body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, "<html>")
			},
			kind:    KindApplication,
			message: "The exam server sent an unexpected response.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, tt.handler)
			_, err := c.ResolvePasscode(context.Background(), "X1")
			if KindOf(err) != tt.kind {
				t.Fatalf("kind = %v, want %v (err %v)", KindOf(err), tt.kind, err)
			}
			if got := UserMessage(err); got != tt.message {
				t.Fatalf("UserMessage = %q, want %q", got, tt.message)
			}
		})
	}
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, err := New(url, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.ResolvePasscode(context.Background(), "MATH123")
	if KindOf(err) != KindTransport {
		t.Fatalf("kind = %v, want transport", KindOf(err))
	}
	if !strings.Contains(UserMessage(err), "Could not reach") {
		t.Fatalf("UserMessage = %q", UserMessage(err))
	}
}

func TestSetChoice_PathAndEmptyBody(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/students/7/questions/3/answers/11" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	if err := c.SetChoice(context.Background(), 7, 3, 11); err != nil {
		t.Fatalf("SetChoice: %v", err)
	}
	if err := c.SetChoice(context.Background(), 0, 3, 11); !errors.Is(err, ErrMissingContext) {
		t.Fatalf("expected missing context, got %v", err)
	}
}

func TestOpenAndFinalize_Bodies(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Minute)

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/students/7/results" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		switch r.Method {
		case http.MethodPost:
			if body["testId"] != float64(42) || body["startTime"] != start.Format(time.RFC3339) {
				t.Errorf("open body = %v", body)
			}
		case http.MethodPut:
			if body["testId"] != float64(42) || body["endTime"] != end.Format(time.RFC3339) {
				t.Errorf("finalize body = %v", body)
			}
		}
		writeEnvelope(w, http.StatusOK, map[string]interface{}{"status": "OK"})
	})

	if err := c.OpenResult(context.Background(), 7, 42, start); err != nil {
		t.Fatalf("OpenResult: %v", err)
	}
	if err := c.FinalizeResult(context.Background(), 7, 42, end); err != nil {
		t.Fatalf("FinalizeResult: %v", err)
	}
}

func TestFetchQuestions_DerivesKind(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"OK","data":[
			{"id":1,"content":"2+2?","score":1,"answers":[{"id":10,"content":"4"}]},
			{"id":2,"content":"Explain.","score":2,"answers":[]}
		]}`)
	})

	qs, err := c.FetchQuestions(context.Background(), 42)
	if err != nil {
		t.Fatalf("FetchQuestions: %v", err)
	}
	if len(qs) != 2 || qs[0].Kind != model.KindChoice || qs[1].Kind != model.KindFreeText {
		t.Fatalf("unexpected questions %+v", qs)
	}
}

func TestLogin_StoresCookie(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/login":
			http.SetCookie(w, &http.Cookie{Name: "token", Value: "abc", Path: "/"})
			writeEnvelope(w, http.StatusOK, map[string]interface{}{
				"status": "OK",
				"data":   map[string]interface{}{"userId": 7, "username": "ana", "role": "STUDENT", "token": "abc"},
			})
		case "/users/me":
			ck, err := r.Cookie("token")
			if err != nil || ck.Value != "abc" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			writeEnvelope(w, http.StatusOK, map[string]interface{}{
				"status": "OK",
				"data":   map[string]interface{}{"id": 7, "username": "ana", "role": "STUDENT"},
			})
		}
	})

	resp, err := c.Login(context.Background(), "ana", "secret1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if resp.UserID != 7 || resp.Role != model.RoleStudent {
		t.Fatalf("unexpected login %+v", resp)
	}
	if len(c.Jar().Cookies(c.BaseURL())) == 0 {
		t.Fatalf("no cookie stored for %s", srv.URL)
	}
	me, err := c.Me(context.Background())
	if err != nil || me.ID != 7 {
		t.Fatalf("Me = %+v, %v", me, err)
	}
}

func TestDecodesBrotliResponses(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept-Encoding") != "br" {
			t.Errorf("Accept-Encoding = %q", r.Header.Get("Accept-Encoding"))
		}
		w.Header().Set("Content-Encoding", "br")
		bw := brotli.NewWriter(w)
		_, _ = io.WriteString(bw, `{"status":"OK","data":{"id":42,"title":"Algebra","testtime":2}}`)
		_ = bw.Close()
	})

	desc, err := c.ResolvePasscode(context.Background(), "MATH123")
	if err != nil {
		t.Fatalf("ResolvePasscode: %v", err)
	}
	if desc.ID != 42 {
		t.Fatalf("descriptor = %+v", desc)
	}
}
