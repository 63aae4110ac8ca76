package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/canarys/gh-cc-members/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&discardW{}, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type discardW struct{}

func (discardW) Write(p []byte) (int, error) { return len(p), nil }

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	return &Client{
		http:             &http.Client{Timeout: 5 * time.Second},
		baseURL:          url,
		enterprise:       "test-ent",
		token:            "test-token",
		log:              testLogger(),
		retries:          1,
		rateLimitRetries: 2,
		retryBase:        time.Millisecond,
	}
}

func TestNewClient(t *testing.T) {
	logger := testLogger()
	t.Run("success", func(t *testing.T) {
		cfg := &config.Manager{Enterprise: "my-ent", Token: "tok", APIBaseURL: "https://api.github.com", Retries: 1}
		c, err := NewClient(cfg, logger)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.enterprise != "my-ent" {
			t.Errorf("enterprise = %q, want %q", c.enterprise, "my-ent")
		}
		if c.baseURL != "https://api.github.com" {
			t.Errorf("baseURL = %q", c.baseURL)
		}
		if c.http.Timeout != config.DefaultRequestTimeout {
			t.Errorf("timeout = %v, want default", c.http.Timeout)
		}
		if c.retries != 1 {
			t.Errorf("retries = %d", c.retries)
		}
	})
	t.Run("trailing slash stripped", func(t *testing.T) {
		cfg := &config.Manager{Enterprise: "ent", Token: "tok", APIBaseURL: "https://api.github.com/"}
		c, err := NewClient(cfg, logger)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.baseURL != "https://api.github.com" {
			t.Errorf("baseURL = %q, want trailing slash stripped", c.baseURL)
		}
	})
	t.Run("options applied", func(t *testing.T) {
		hc := &http.Client{}
		cfg := &config.Manager{Enterprise: "ent", Token: "tok", APIBaseURL: "https://api.github.com"}
		c, err := NewClient(cfg, logger, WithHTTPClient(hc), WithRetryBase(time.Millisecond))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.http != hc || c.retryBase != time.Millisecond {
			t.Error("options not applied")
		}
	})
	t.Run("missing enterprise and token", func(t *testing.T) {
		cfg := &config.Manager{APIBaseURL: "https://api.github.com"}
		_, err := NewClient(cfg, logger)
		var cfgErr *config.ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("expected ConfigurationError, got %v", err)
		}
		if len(cfgErr.Missing) != 2 {
			t.Errorf("missing = %v", cfgErr.Missing)
		}
	})
}

func TestEnterpriseURL(t *testing.T) {
	c := &Client{baseURL: "https://api.github.com", enterprise: "my-ent"}
	tests := []struct {
		path, want string
	}{
		{"/settings/billing/cost-centers", "https://api.github.com/enterprises/my-ent/settings/billing/cost-centers"},
		{"/teams", "https://api.github.com/enterprises/my-ent/teams"},
	}
	for _, tt := range tests {
		if got := c.enterpriseURL(tt.path); got != tt.want {
			t.Errorf("enterpriseURL(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
	want := "https://api.github.com/enterprises/my-ent/settings/billing/cost-centers/cc-1/resource"
	if got := c.costCenterURL("cc-1", "/resource"); got != want {
		t.Errorf("costCenterURL = %q, want %q", got, want)
	}
}

func TestAPIError(t *testing.T) {
	e := &APIError{StatusCode: 404, Body: "not found"}
	if !strings.Contains(e.Error(), "404") {
		t.Errorf("Error() missing status code: %s", e.Error())
	}
	if !strings.Contains(e.Error(), "not found") {
		t.Errorf("Error() missing body: %s", e.Error())
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		status    int
		wantAuth  bool
		wantValid bool
	}{
		{401, true, false},
		{403, true, false},
		{404, false, true},
		{422, false, true},
	}
	for _, tt := range tests {
		err := classify(&APIError{StatusCode: tt.status})
		var authErr *AuthorizationError
		var valErr *RemoteValidationError
		if got := errors.As(err, &authErr); got != tt.wantAuth {
			t.Errorf("%d: AuthorizationError = %v, want %v", tt.status, got, tt.wantAuth)
		}
		if got := errors.As(err, &valErr); got != tt.wantValid {
			t.Errorf("%d: RemoteValidationError = %v, want %v", tt.status, got, tt.wantValid)
		}
		if IsFatal(err) != tt.wantAuth {
			t.Errorf("%d: IsFatal = %v", tt.status, IsFatal(err))
		}
		if StatusCode(fmt.Errorf("wrapped: %w", err)) != tt.status {
			t.Errorf("%d: StatusCode through wrapping = %d", tt.status, StatusCode(err))
		}
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{fmt.Errorf("connection refused"), true},
		{fmt.Errorf("connection reset by peer"), true},
		{fmt.Errorf("i/o timeout"), true},
		{fmt.Errorf("TLS handshake timeout"), true},
		{fmt.Errorf("unexpected EOF"), true},
		{fmt.Errorf("post: %w", io.ErrUnexpectedEOF), true},
		{fmt.Errorf("404: not found"), false},
		{fmt.Errorf("permission denied"), false},
	}
	for _, tt := range tests {
		label := "<nil>"
		if tt.err != nil {
			label = tt.err.Error()
		}
		if got := isTransient(tt.err); got != tt.want {
			t.Errorf("isTransient(%q) = %v, want %v", label, got, tt.want)
		}
	}
}

func TestBackoff(t *testing.T) {
	c := &Client{log: testLogger()}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{10, maxBackoff},
	}
	for _, tt := range tests {
		if got := c.backoff(tt.attempt, nil); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
	resp := &response{Header: http.Header{"Retry-After": []string{"7"}}}
	if got := c.backoff(0, resp); got != 7*time.Second {
		t.Errorf("backoff with Retry-After = %v, want 7s", got)
	}
}

func TestRateLimitWait(t *testing.T) {
	c := &Client{log: testLogger()}
	t.Run("with valid header", func(t *testing.T) {
		resetTime := time.Now().Add(30 * time.Second)
		resp := &response{Header: http.Header{"X-Ratelimit-Reset": []string{strconv.FormatInt(resetTime.Unix(), 10)}}}
		wait := c.rateLimitWait(resp)
		if wait < 29*time.Second || wait > 33*time.Second {
			t.Errorf("rateLimitWait = %v, expected ~31s", wait)
		}
	})
	t.Run("retry-after wins", func(t *testing.T) {
		resp := &response{Header: http.Header{"Retry-After": []string{"3"}, "X-Ratelimit-Reset": []string{"1"}}}
		if wait := c.rateLimitWait(resp); wait != 3*time.Second {
			t.Errorf("rateLimitWait = %v, want 3s", wait)
		}
	})
	t.Run("missing header", func(t *testing.T) {
		resp := &response{Header: http.Header{}}
		if wait := c.rateLimitWait(resp); wait != rateLimitFallback {
			t.Errorf("rateLimitWait = %v, want %v", wait, rateLimitFallback)
		}
	})
	t.Run("invalid header", func(t *testing.T) {
		resp := &response{Header: http.Header{"X-Ratelimit-Reset": []string{"bad"}}}
		if wait := c.rateLimitWait(resp); wait != rateLimitFallback {
			t.Errorf("rateLimitWait = %v, want %v", wait, rateLimitFallback)
		}
	})
	t.Run("past reset time", func(t *testing.T) {
		resetTime := time.Now().Add(-10 * time.Second)
		resp := &response{Header: http.Header{"X-Ratelimit-Reset": []string{strconv.FormatInt(resetTime.Unix(), 10)}}}
		if wait := c.rateLimitWait(resp); wait != time.Second {
			t.Errorf("rateLimitWait = %v, want 1s", wait)
		}
	})
}

func TestIsRateLimited(t *testing.T) {
	tests := []struct {
		name string
		resp *response
		want bool
	}{
		{"429", &response{StatusCode: 429, Header: http.Header{}}, true},
		{"secondary", &response{StatusCode: 403, Header: http.Header{}, Body: []byte(`{"message":"You have exceeded a secondary rate limit"}`)}, true},
		{"primary exhausted", &response{StatusCode: 403, Header: http.Header{"X-Ratelimit-Remaining": []string{"0"}}}, true},
		{"plain 403", &response{StatusCode: 403, Header: http.Header{}, Body: []byte("Must have admin rights")}, false},
		{"401", &response{StatusCode: 401, Header: http.Header{}}, false},
	}
	for _, tt := range tests {
		if got := isRateLimited(tt.resp); got != tt.want {
			t.Errorf("%s: isRateLimited = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestDoJSON_Success(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != acceptHeader {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		if r.Header.Get("User-Agent") != userAgent {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		if r.Header.Get("X-GitHub-Api-Version") != apiVersion {
			t.Errorf("X-GitHub-Api-Version = %q", r.Header.Get("X-GitHub-Api-Version"))
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(payload{Name: "Alice", Age: 30})
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL)
	var got payload
	if _, err := c.doJSON(context.Background(), http.MethodGet, srv.URL+"/test", nil, &got); err != nil {
		t.Fatalf("doJSON: %v", err)
	}
	if got.Name != "Alice" || got.Age != 30 {
		t.Errorf("got %+v, want {Alice 30}", got)
	}
}

func TestDoJSON_NoBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL)
	var out map[string]string
	status, err := c.doJSON(context.Background(), http.MethodPost, srv.URL+"/test", map[string]string{"a": "b"}, &out)
	if err != nil {
		t.Fatalf("doJSON: %v", err)
	}
	if status != http.StatusNoContent {
		t.Errorf("status = %d", status)
	}
}

func TestDoJSON_PostWithBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["name"] != "test-cc" {
			t.Errorf("name = %q", body["name"])
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "abc-123"})
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL)
	var resp map[string]string
	if _, err := c.doJSON(context.Background(), http.MethodPost, srv.URL+"/test", map[string]string{"name": "test-cc"}, &resp); err != nil {
		t.Fatalf("doJSON: %v", err)
	}
	if resp["id"] != "abc-123" {
		t.Errorf("id = %q", resp["id"])
	}
}

func TestDoJSON_AuthorizationNotRetried(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		t.Run(strconv.Itoa(status), func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(status)
				_, _ = w.Write([]byte("Bad credentials"))
			}))
			defer srv.Close()
			c := newTestClient(t, srv.URL)
			_, err := c.doJSON(context.Background(), http.MethodGet, srv.URL+"/test", nil, nil)
			var authErr *AuthorizationError
			if !errors.As(err, &authErr) {
				t.Fatalf("expected AuthorizationError, got %T: %v", err, err)
			}
			if authErr.Err.StatusCode != status {
				t.Errorf("StatusCode = %d", authErr.Err.StatusCode)
			}
			if !strings.Contains(authErr.Err.Body, "Bad credentials") {
				t.Errorf("Body = %q", authErr.Err.Body)
			}
			if got := calls.Load(); got != 1 {
				t.Errorf("calls = %d, want 1", got)
			}
		})
	}
}

func TestDoJSON_ValidationNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"user does not exist"}`))
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL)
	_, err := c.doJSON(context.Background(), http.MethodPost, srv.URL+"/test", map[string]any{}, nil)
	var valErr *RemoteValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected RemoteValidationError, got %T: %v", err, err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestDoJSON_RetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := calls.Add(1)
		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("bad gateway"))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL)
	var resp map[string]string
	if _, err := c.doJSON(context.Background(), http.MethodGet, srv.URL+"/test", nil, &resp); err != nil {
		t.Fatalf("doJSON: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status = %q", resp["status"])
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestDoJSON_ExhaustedRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("internal error"))
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL)
	_, err := c.doJSON(context.Background(), http.MethodGet, srv.URL+"/test", nil, nil)
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError, got %T: %v", err, err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected wrapped APIError 500, got %v", err)
	}
	if got := calls.Load(); got != int32(c.retries+1) {
		t.Errorf("calls = %d, want %d", got, c.retries+1)
	}
}

func TestDoJSON_TimeoutRetriedOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			time.Sleep(300 * time.Millisecond)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL)
	c.http = &http.Client{Timeout: 100 * time.Millisecond}
	status, err := c.doJSON(context.Background(), http.MethodPost, srv.URL+"/test", map[string]any{}, nil)
	if err != nil {
		t.Fatalf("doJSON: %v", err)
	}
	if status != http.StatusCreated {
		t.Errorf("status = %d", status)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestDoJSON_TimeoutExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL)
	c.http = &http.Client{Timeout: 50 * time.Millisecond}
	_, err := c.doJSON(context.Background(), http.MethodPost, srv.URL+"/test", map[string]any{}, nil)
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError, got %T: %v", err, err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2 (one retry)", got)
	}
}

func TestDoJSON_RateLimitRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"message":"You have exceeded a secondary rate limit."}`))
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL)
	if _, err := c.doJSON(context.Background(), http.MethodPost, srv.URL+"/test", map[string]any{}, nil); err != nil {
		t.Fatalf("doJSON: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestDoJSON_RateLimitExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL)
	_, err := c.doJSON(context.Background(), http.MethodGet, srv.URL+"/test", nil, nil)
	var rlErr *RateLimitError
	if !errors.As(err, &rlErr) {
		t.Fatalf("expected RateLimitError, got %T: %v", err, err)
	}
	if IsFatal(err) {
		t.Error("rate limit must not be fatal")
	}
	if got := calls.Load(); got != int32(c.rateLimitRetries+1) {
		t.Errorf("calls = %d, want %d", got, c.rateLimitRetries+1)
	}
}

func TestDoJSON_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.doJSON(ctx, http.MethodGet, srv.URL+"/test", nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestPreview(t *testing.T) {
	long := strings.Repeat("x", maxBodyPreview+50)
	got := preview([]byte(long))
	if len(got) != maxBodyPreview+3 || !strings.HasSuffix(got, "...") {
		t.Errorf("preview length = %d", len(got))
	}
	if preview([]byte("  short \n")) != "short" {
		t.Error("preview should trim whitespace")
	}
}

func TestAddUsersToCostCenter(t *testing.T) {
	var gotPath, gotMethod string
	var gotBody usersPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"message":"Resources successfully added to the cost center."}`))
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL)
	res, err := c.AddUsersToCostCenter(context.Background(), "cc-1", []string{"johndoe", "janedoe"})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("method = %s", gotMethod)
	}
	if gotPath != "/enterprises/test-ent/settings/billing/cost-centers/cc-1/resource" {
		t.Errorf("path = %s", gotPath)
	}
	if strings.Join(gotBody.Users, ",") != "johndoe,janedoe" {
		t.Errorf("users = %v", gotBody.Users)
	}
	if res.Unchanged || res.StatusCode != http.StatusOK {
		t.Errorf("result = %+v", res)
	}
}

func TestAddUsersToCostCenter_Rejections(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantUnchanged bool
		wantValErr    bool
	}{
		{"already assigned 422", 422, `{"message":"User has already been taken"}`, true, false},
		{"already assigned 409", 409, `{"message":"Conflict"}`, true, false},
		{"unknown user", 422, `{"message":"Validation failed: user baduser not found"}`, false, true},
		{"not found", 404, `{"message":"Not Found"}`, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()
			c := newTestClient(t, srv.URL)
			res, err := c.AddUsersToCostCenter(context.Background(), "cc-1", []string{"someone"})
			if tt.wantUnchanged {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if !res.Unchanged {
					t.Errorf("Unchanged = false, want true")
				}
				return
			}
			var valErr *RemoteValidationError
			if errors.As(err, &valErr) != tt.wantValErr {
				t.Errorf("err = %v, want RemoteValidationError=%v", err, tt.wantValErr)
			}
			if res.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", res.StatusCode, tt.status)
			}
		})
	}
}

func TestAddUsersToCostCenter_Empty(t *testing.T) {
	c := newTestClient(t, "http://unused.invalid")
	if _, err := c.AddUsersToCostCenter(context.Background(), "cc", nil); !errors.Is(err, errNoUsers) {
		t.Errorf("err = %v, want errNoUsers", err)
	}
}

func TestRemoveUsersFromCostCenter(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantErr       bool
		wantUnchanged bool
	}{
		{"removed", 200, `{}`, false, false},
		{"not a member", 400, `{"message":"No resources to remove"}`, false, true},
		{"not found", 404, `{"message":"Not Found"}`, false, true},
		{"other bad request", 400, `{"message":"Invalid payload"}`, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodDelete {
					t.Errorf("method = %s", r.Method)
				}
				var body usersPayload
				_ = json.NewDecoder(r.Body).Decode(&body)
				if len(body.Users) != 1 || body.Users[0] != "olduser" {
					t.Errorf("users = %v", body.Users)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()
			c := newTestClient(t, srv.URL)
			res, err := c.RemoveUsersFromCostCenter(context.Background(), "cc-1", []string{"olduser"})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if res.Unchanged != tt.wantUnchanged {
				t.Errorf("Unchanged = %v, want %v", res.Unchanged, tt.wantUnchanged)
			}
		})
	}
}

func TestGetCostCenterUsers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/enterprises/test-ent/settings/billing/cost-centers/cc-1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(CostCenter{ID: "cc-1", Name: "Platform", Resources: []Resource{
			{Type: "User", Name: "alice"},
			{Type: "Org", Name: "acme"},
			{Type: "User", Name: "bob"},
			{Type: "User", Name: "Alice"},
			{Type: "Repo", Name: "acme/api"},
		}})
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL)
	users, err := c.GetCostCenterUsers(context.Background(), "cc-1")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if strings.Join(users, ",") != "alice,bob" {
		t.Errorf("users = %v", users)
	}
}

func TestGetCostCenterUsers_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL)
	users, err := c.GetCostCenterUsers(context.Background(), "missing")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(users) != 0 {
		t.Errorf("users = %v, want empty", users)
	}
}

func TestGetEnterpriseTeamMembers_LinkPagination(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("page") {
		case "":
			if r.URL.Path != "/enterprises/test-ent/teams/eng/memberships" {
				t.Errorf("path = %s", r.URL.Path)
			}
			w.Header().Set("Link", fmt.Sprintf(`<%s/enterprises/test-ent/teams/eng/memberships?page=2>; rel="next", <%s/x?page=2>; rel="last"`, srv.URL, srv.URL))
			_, _ = w.Write([]byte(`[{"login":"alice"},{"login":"bob"}]`))
		case "2":
			_, _ = w.Write([]byte(`{"memberships":[{"user":{"login":"carol"}},{"user":{"login":"alice"}},{"login":""}]}`))
		default:
			t.Errorf("unexpected page %q", r.URL.Query().Get("page"))
		}
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL)
	members, err := c.GetEnterpriseTeamMembers(context.Background(), "eng")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if strings.Join(members, ",") != "alice,bob,carol" {
		t.Errorf("members = %v", members)
	}
}

func TestGetEnterpriseTeamMembers_PaginationLoop(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Link", fmt.Sprintf(`<%s/loop>; rel="next"`, srv.URL))
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL)
	if _, err := c.GetEnterpriseTeamMembers(context.Background(), "eng"); err == nil {
		t.Fatal("expected pagination loop error")
	}
}

func TestAddEnterpriseTeamMembers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/enterprises/test-ent/teams/eng/memberships/add" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var body map[string][]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if strings.Join(body["usernames"], ",") != "alice" {
			t.Errorf("body = %v", body)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL)
	res, err := c.AddEnterpriseTeamMembers(context.Background(), "eng", []string{"alice"})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if res.StatusCode != http.StatusCreated {
		t.Errorf("status = %d", res.StatusCode)
	}
}

func TestExtractMemberships(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"bare list", `[{"login":"a"},{"login":"b"}]`, 2},
		{"memberships key", `{"memberships":[{"user":{"login":"a"}}]}`, 1},
		{"items key", `{"items":[{"login":"a"}]}`, 1},
		{"unknown key list", `{"whatever":[{"login":"a"}], "total": 1}`, 1},
		{"empty object", `{}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractMemberships([]byte(tt.body))
			if err != nil {
				t.Fatalf("err: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
		})
	}
	if _, err := extractMemberships([]byte("not json")); err == nil {
		t.Error("expected error for non-JSON body")
	}
}

func TestNextLink(t *testing.T) {
	tests := []struct {
		header, want string
	}{
		{"", ""},
		{`<https://api.github.com/x?page=2>; rel="next", <https://api.github.com/x?page=5>; rel="last"`, "https://api.github.com/x?page=2"},
		{`<https://api.github.com/x?page=1>; rel="prev"`, ""},
		{`<>; rel="next"`, ""},
	}
	for _, tt := range tests {
		if got := nextLink(tt.header); got != tt.want {
			t.Errorf("nextLink(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestDedupeLogins(t *testing.T) {
	got := dedupeLogins([]string{"alice", "bob", "Alice", "", " charlie ", "bob"}, testLogger())
	if strings.Join(got, ",") != "alice,bob,charlie" {
		t.Errorf("got %v", got)
	}
	if got := DedupeLogins(nil, nil); len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}

func TestListEnterpriseTeamMemberships_Flatten(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"memberships":[
			{"role":"maintainer","state":"active","user":{"login":"alice","id":7,"html_url":"https://github.com/alice"}},
			{"login":"bob","id":8,"url":"https://api.github.com/users/bob"}
		]}`))
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL)
	got, err := c.ListEnterpriseTeamMemberships(context.Background(), "eng")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	want := []Membership{
		{Login: "alice", ID: 7, HTMLURL: "https://github.com/alice", Role: "maintainer", State: "active"},
		{Login: "bob", ID: 8, HTMLURL: "https://api.github.com/users/bob"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("membership[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}
