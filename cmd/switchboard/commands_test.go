package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestAskCommand_Escalated(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /agent/call-received": `{"answerText":"Let me check with my supervisor and get back to you.","source":"escalated","helpRequestId":"req-123"}`,
	})

	client := ts.client()
	body := map[string]any{
		"question": "Do you deliver on Sundays?",
		"customerInfo": map[string]string{
			"name": "Ada",
		},
	}

	resp, err := client.post(ctx, "/agent/call-received", body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if result["source"] != "escalated" {
		t.Errorf("source = %q, want escalated", result["source"])
	}
	if result["helpRequestId"] != "req-123" {
		t.Errorf("helpRequestId = %q, want req-123", result["helpRequestId"])
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}

	r := ts.requests[0]
	if r.Method != "POST" || r.Path != "/agent/call-received" {
		t.Errorf("request = %s %s, want POST /agent/call-received", r.Method, r.Path)
	}
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}

	var sentBody map[string]any
	if err := json.Unmarshal([]byte(r.Body), &sentBody); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if sentBody["question"] != "Do you deliver on Sundays?" {
		t.Errorf("body.question = %v", sentBody["question"])
	}
}

func TestAskCommand_MissingArgs(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"ask"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing args")
	}
}

func TestRequestsCommand_PendingFilter(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /help-requests": `[{"id":"req-00000001","question":"hello","status":"PENDING","createdAt":"2026-01-01T00:00:00Z","timeoutAt":"2026-01-01T00:10:00Z"}]`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/help-requests?status=pending")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var requests []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := decodeJSON(resp, &requests); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if len(requests) != 1 || requests[0].Status != "PENDING" {
		t.Fatalf("requests = %+v, want one PENDING", requests)
	}

	if !strings.Contains(ts.requests[0].Path, "status=pending") {
		t.Errorf("path = %q, want pending filter", ts.requests[0].Path)
	}
}

func TestRespondCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /help-requests/req-1/respond": `{"helpRequest":{"id":"req-00000001","status":"RESOLVED"},"knowledgeEntry":{"id":"kn-00000001","answerText":"the answer"}}`,
	})

	client := ts.client()
	body := map[string]string{"supervisorResponse": "the answer"}
	resp, err := client.post(ctx, "/help-requests/req-1/respond", body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		HelpRequest struct {
			Status string `json:"status"`
		} `json:"helpRequest"`
		KnowledgeEntry struct {
			ID string `json:"id"`
		} `json:"knowledgeEntry"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if result.HelpRequest.Status != "RESOLVED" {
		t.Errorf("status = %q, want RESOLVED", result.HelpRequest.Status)
	}
	if result.KnowledgeEntry.ID == "" {
		t.Error("expected a knowledge entry id")
	}

	var sentBody map[string]string
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &sentBody); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if sentBody["supervisorResponse"] != "the answer" {
		t.Errorf("body = %v", sentBody)
	}
}

func TestKnowledgeDelete_NotFound(t *testing.T) {
	ts := newTestServer(t, map[string]string{})

	client := ts.client()
	resp, err := client.delete(ctx, "/knowledge/nonexistent")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	if err := decodeJSON(resp, &result); err == nil {
		t.Fatal("expected error for 404 response")
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	client := ts.client()
	_, err := client.get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":{"message":"unauthorized","type":"authentication_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{
		baseURL:    ts.URL,
		token:      "bad-token",
		httpClient: ts.Client(),
	}

	resp, err := client.get(ctx, "/help-requests")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %q, want it to contain '401'", err.Error())
	}
}

func TestAPIClientOmitsAuthWhenTokenEmpty(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"healthy"}`,
	})

	client := ts.client()
	client.token = ""

	resp, err := client.get(ctx, "/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if ts.requests[0].Auth != "" {
		t.Errorf("auth = %q, want empty when no token configured", ts.requests[0].Auth)
	}
}
