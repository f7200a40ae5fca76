package httputil

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestGetJSON(t *testing.T) {
	mock := NewMockHTTPClient().AddResponse(http.StatusOK, `{"liveness":"idle","requests":4}`)

	var got struct {
		Liveness string `json:"liveness"`
		Requests int    `json:"requests"`
	}
	if err := GetJSON(context.Background(), mock, "http://bridge/api/status", &got); err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if got.Liveness != "idle" || got.Requests != 4 {
		t.Errorf("unexpected decode %+v", got)
	}
	if mock.RequestCount() != 1 || mock.Requests[0].Method != http.MethodGet {
		t.Errorf("unexpected requests %v", mock.Requests)
	}
}

func TestGetJSON_APIError(t *testing.T) {
	mock := NewMockHTTPClient().AddResponse(http.StatusBadRequest, `{"error":"unknown LED mode"}`)
	err := GetJSON(context.Background(), mock, "http://bridge/api/led", nil)
	if err == nil || !strings.Contains(err.Error(), "unknown LED mode") {
		t.Errorf("expected API error message, got %v", err)
	}
}

func TestGetJSON_TransportError(t *testing.T) {
	mock := NewMockHTTPClient().AddErrorResponse(errors.New("connection refused"))
	err := GetJSON(context.Background(), mock, "http://bridge/api/status", nil)
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("expected transport error, got %v", err)
	}
}

func TestPostFormJSON(t *testing.T) {
	var gotMode, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Content-Type")
		gotMode = r.FormValue("mode")
		WriteJSONOK(w, map[string]string{"mode": gotMode})
	}))
	defer srv.Close()

	var resp map[string]string
	err := PostFormJSON(context.Background(), http.DefaultClient, srv.URL+"/api/led", url.Values{"mode": {"mood"}}, &resp)
	if err != nil {
		t.Fatalf("PostFormJSON failed: %v", err)
	}
	if gotMode != "mood" || gotType != "application/x-www-form-urlencoded" {
		t.Errorf("server saw mode=%q type=%q", gotMode, gotType)
	}
	if resp["mode"] != "mood" {
		t.Errorf("unexpected response %v", resp)
	}
}

func TestMockHTTPClient_DefaultResponse(t *testing.T) {
	mock := NewMockHTTPClient()
	req, _ := http.NewRequest(http.MethodGet, "http://bridge/", nil)
	resp, err := mock.Do(req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || len(body) != 0 {
		t.Errorf("unexpected default response %d %q", resp.StatusCode, body)
	}
}
