package httputil

import (
	"errors"
	"io"
	"net/http"
	"testing"
)

func TestMockHTTPClient_QueuedResponses(t *testing.T) {
	m := NewMockHTTPClient().
		AddResponse(http.StatusCreated, `{"ok":true}`).
		AddErrorResponse(errors.New("connection refused"))

	req, _ := http.NewRequest(http.MethodPost, "http://example/api/estimate", nil)
	resp, err := m.Do(req)
	if err != nil {
		t.Fatalf("first Do: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want 201", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"ok":true}` {
		t.Errorf("body = %s", body)
	}

	if _, err := m.Do(req); err == nil || err.Error() != "connection refused" {
		t.Errorf("second Do error = %v, want connection refused", err)
	}

	resp, err = m.Do(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Errorf("exhausted queue should answer 200, got %v, %v", resp, err)
	}
	if m.RequestCount() != 3 {
		t.Errorf("RequestCount = %d, want 3", m.RequestCount())
	}
	if m.LastRequest() != req {
		t.Error("LastRequest should return the recorded request")
	}
}

func TestMockHTTPClient_DoFunc(t *testing.T) {
	m := NewMockHTTPClient()
	m.DoFunc = func(req *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusTeapot, Body: http.NoBody}, nil
	}
	req, _ := http.NewRequest(http.MethodGet, "http://example/", nil)
	resp, err := m.Do(req)
	if err != nil || resp.StatusCode != http.StatusTeapot {
		t.Fatalf("Do = %v, %v; want 418", resp, err)
	}
}

func TestMockHTTPClient_LastRequestEmpty(t *testing.T) {
	if NewMockHTTPClient().LastRequest() != nil {
		t.Error("LastRequest on a fresh mock should be nil")
	}
}

// *http.Client satisfies HTTPClient.
var _ HTTPClient = (*http.Client)(nil)
