package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/seantiz/courier/internal/model"
)

func TestCreateInvocationSucceeds(t *testing.T) {
	srv := newTestServer(t)
	up := newUpstream(t, http.StatusOK, "pong")

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	rec := postInvocation(t, ts.URL, createInvocationRequest{Name: "ping", URL: up.URL})
	if rec.ID == "" {
		t.Fatal("expected non-empty ID")
	}
	if rec.Status != model.StatusRunning {
		t.Errorf("status = %q, want %q", rec.Status, model.StatusRunning)
	}
	if rec.Name != "ping" || rec.Target != up.URL {
		t.Errorf("name/target = %q/%q", rec.Name, rec.Target)
	}

	done := waitForSettled(t, ts.URL, rec.ID)
	if done.Status != model.StatusSucceeded {
		t.Errorf("status = %q, want %q", done.Status, model.StatusSucceeded)
	}
	if done.StatusCode == nil || *done.StatusCode != 200 {
		t.Errorf("status_code = %v, want 200", done.StatusCode)
	}
	if done.Message != "Call was successful" {
		t.Errorf("message = %q", done.Message)
	}
}

func TestCreateInvocationNameDefaultsToURL(t *testing.T) {
	srv := newTestServer(t)
	up := newUpstream(t, http.StatusOK, "")

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	rec := postInvocation(t, ts.URL, createInvocationRequest{URL: up.URL})
	if rec.Name != up.URL {
		t.Errorf("name = %q, want %q", rec.Name, up.URL)
	}
	waitForSettled(t, ts.URL, rec.ID)
}

func TestCreateInvocationUpstreamFailure(t *testing.T) {
	srv := newTestServer(t)
	up := newUpstream(t, http.StatusServiceUnavailable, "maintenance")

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	rec := postInvocation(t, ts.URL, createInvocationRequest{URL: up.URL})
	done := waitForSettled(t, ts.URL, rec.ID)

	if done.Status != model.StatusFailed {
		t.Errorf("status = %q, want %q", done.Status, model.StatusFailed)
	}
	if done.StatusCode == nil || *done.StatusCode != 503 {
		t.Errorf("status_code = %v, want 503", done.StatusCode)
	}
	if done.Error != "service error 503: maintenance" {
		t.Errorf("error = %q, want the upstream payload", done.Error)
	}
}

func TestCreateInvocationSimulatedFailure(t *testing.T) {
	srv := newTestServer(t)
	up := newUpstream(t, http.StatusOK, "fine")

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	rec := postInvocation(t, ts.URL, createInvocationRequest{URL: up.URL, SimulateFailure: true})
	if !rec.Simulated {
		t.Error("simulate_failure not recorded")
	}
	done := waitForSettled(t, ts.URL, rec.ID)
	if done.Status != model.StatusFailed {
		t.Errorf("status = %q, want %q", done.Status, model.StatusFailed)
	}
}

func TestCreateInvocationValidation(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	tests := []struct {
		name string
		body string
	}{
		{"invalid JSON", `{bad`},
		{"missing url", `{"name":"x"}`},
		{"unsupported scheme", `{"url":"ftp://example.test"}`},
		{"no host", `{"url":"http://"}`},
		{"negative delay", `{"url":"http://example.test","delay_ms":-1}`},
		{"delay too long", `{"url":"http://example.test","delay_ms":600000}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/v1/invocations", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("POST: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
			var body map[string]string
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["error"] == "" {
				t.Error("expected error message")
			}
		})
	}
}

func TestCreateInvocationBodyTooLarge(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	big := `{"url":"http://example.test","name":"` + strings.Repeat("a", maxBodySize) + `"}`
	resp, err := http.Post(ts.URL+"/v1/invocations", "application/json", bytes.NewReader([]byte(big)))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetInvocationNotFound(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/invocations/nonexistent")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestListInvocations(t *testing.T) {
	srv := newTestServer(t)
	up := newUpstream(t, http.StatusOK, "")

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	for range 3 {
		rec := postInvocation(t, ts.URL, createInvocationRequest{URL: up.URL})
		waitForSettled(t, ts.URL, rec.ID)
	}

	resp, err := http.Get(ts.URL + "/v1/invocations?limit=2")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var list listInvocationsResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Total != 3 {
		t.Errorf("total = %d, want 3", list.Total)
	}
	if len(list.Invocations) != 2 {
		t.Errorf("len = %d, want 2", len(list.Invocations))
	}
	if list.Limit != 2 || list.Offset != 0 {
		t.Errorf("limit/offset = %d/%d, want 2/0", list.Limit, list.Offset)
	}
}

func TestListInvocationsEmpty(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/invocations?limit=0&offset=-5")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var list listInvocationsResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Invocations == nil || len(list.Invocations) != 0 {
		t.Errorf("invocations = %v, want empty array", list.Invocations)
	}
	if list.Limit != defaultListLimit || list.Offset != 0 {
		t.Errorf("limit/offset = %d/%d, want %d/0", list.Limit, list.Offset, defaultListLimit)
	}
}

func deleteInvocation(t *testing.T, baseURL, id string) int {
	t.Helper()
	req, _ := http.NewRequest(http.MethodDelete, baseURL+"/v1/invocations/"+id, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestCancelInvocation(t *testing.T) {
	srv := newTestServer(t)
	up := newUpstream(t, http.StatusOK, "late")

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	rec := postInvocation(t, ts.URL, createInvocationRequest{URL: up.URL, DelayMS: 300})
	if code := deleteInvocation(t, ts.URL, rec.ID); code != http.StatusAccepted {
		t.Fatalf("cancel status = %d, want 202", code)
	}

	// Cancellation is advisory, so the call still completes.
	done := waitForSettled(t, ts.URL, rec.ID)
	if done.Status != model.StatusSucceeded {
		t.Errorf("status = %q, want %q", done.Status, model.StatusSucceeded)
	}
	if !done.Cancelled {
		t.Error("cancelled = false, want true")
	}

	if code := deleteInvocation(t, ts.URL, rec.ID); code != http.StatusConflict {
		t.Errorf("cancel settled status = %d, want 409", code)
	}
}

func TestCancelInvocationNotFound(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	if code := deleteInvocation(t, ts.URL, "nonexistent"); code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", code)
	}
}
