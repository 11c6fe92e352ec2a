package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/closecrm-client/internal/testutil"
	"github.com/Sternrassler/closecrm-client/pkg/logging"
	"github.com/Sternrassler/closecrm-client/pkg/pagination"
	"github.com/redis/go-redis/v9"
	"github.com/zoobzio/clockz"
)

const testAPIKey = "api_test_key"

// setupTestRedis creates a test Redis client.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	// Flush test DB
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

// newTestClient returns a client pointed at a fresh mock server with a fake clock.
func newTestClient(t *testing.T, mutate ...func(*Config)) (*Client, *testutil.MockClose, *clockz.FakeClock) {
	t.Helper()

	mock := testutil.NewMockClose()
	t.Cleanup(mock.Close)

	cfg := DefaultConfig(testAPIKey)
	cfg.BaseURL = mock.URL()
	for _, m := range mutate {
		m(&cfg)
	}

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	clock := clockz.NewFakeClockAt(testNow)
	client.SetClock(clock)
	return client, mock, clock
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
		errorMsg    string
	}{
		{
			name:   "valid config",
			config: DefaultConfig(testAPIKey),
		},
		{
			name:   "zero config with key gets defaults",
			config: Config{APIKey: testAPIKey},
		},
		{
			name:        "empty api key",
			config:      Config{},
			expectError: true,
			errorMsg:    "api key is required",
		},
		{
			name:        "blank api key",
			config:      Config{APIKey: "   "},
			expectError: true,
			errorMsg:    "api key is required",
		},
		{
			name:        "negative retries",
			config:      Config{APIKey: testAPIKey, MaxRetries: -1},
			expectError: true,
			errorMsg:    "max_retries must be >= 0 (got -1)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.config)
			if tt.expectError {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				if err.Error() != tt.errorMsg {
					t.Errorf("Error = %q, want %q", err.Error(), tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if client.baseURL != DefaultBaseURL {
				t.Errorf("baseURL = %q, want %q", client.baseURL, DefaultBaseURL)
			}
			if client.cache != nil {
				t.Error("cache should be disabled without Redis")
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig(testAPIKey)

	if cfg.APIKey != testAPIKey {
		t.Errorf("APIKey = %q", cfg.APIKey)
	}
	if cfg.BaseURL != "https://api.close.com/api/v1" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.RetryDelay != time.Second {
		t.Errorf("RetryDelay = %v, want 1s", cfg.RetryDelay)
	}
	if cfg.Redis != nil {
		t.Error("Redis should be nil by default")
	}
}

func TestNamespaceFor(t *testing.T) {
	ns := namespaceFor(testAPIKey)

	if len(ns) != 8 {
		t.Errorf("namespace %q should have 8 hex chars", ns)
	}
	if ns != namespaceFor(testAPIKey) {
		t.Error("namespace should be deterministic")
	}
	if ns == namespaceFor("other_key") {
		t.Error("different keys should get different namespaces")
	}
	if strings.Contains(testAPIKey, ns) {
		t.Error("namespace should not reveal the key")
	}
}

func TestDo_SendsAuthAndHeaders(t *testing.T) {
	client, mock, _ := newTestClient(t, func(cfg *Config) {
		cfg.UserAgent = "TestApp/1.0.0 (test@example.com)"
	})
	mock.RequireAPIKey(testAPIKey)
	mock.SetResponse("/lead/", testutil.NewJSONResponse(http.StatusOK, `{"id": "lead_1"}`))

	_, err := client.Post(context.Background(), "/lead/", map[string]any{"name": "Acme"})
	if err != nil {
		t.Fatalf("Post() failed: %v", err)
	}

	header := mock.LastHeader()
	req := &http.Request{Header: header}
	user, pass, ok := req.BasicAuth()
	if !ok || user != testAPIKey || pass != "" {
		t.Errorf("BasicAuth = (%q, %q, %v), want (%q, \"\", true)", user, pass, ok, testAPIKey)
	}
	if got := header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := header.Get("User-Agent"); got != "TestApp/1.0.0 (test@example.com)" {
		t.Errorf("User-Agent = %q", got)
	}

	var body map[string]any
	if err := json.Unmarshal(mock.LastBody(), &body); err != nil {
		t.Fatalf("request body is not JSON: %v", err)
	}
	if body["name"] != "Acme" {
		t.Errorf("body = %v", body)
	}
}

func TestDo_QueryParams(t *testing.T) {
	client, mock, _ := newTestClient(t)

	var gotQuery url.Values
	mock.SetHandler("/contact/", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": [], "has_more": false}`))
	})

	opts := pagination.Options{Limit: 10, Skip: 20, Fields: []string{"id", "name"}, Filters: map[string]string{"lead_id": "lead_1"}}
	if _, err := client.Contact.Search(context.Background(), opts); err != nil {
		t.Fatalf("Search() failed: %v", err)
	}

	want := map[string]string{"_limit": "10", "_skip": "20", "_fields": "id,name", "lead_id": "lead_1"}
	for key, value := range want {
		if got := gotQuery.Get(key); got != value {
			t.Errorf("query %s = %q, want %q", key, got, value)
		}
	}
}

func TestLead_SearchForwardsFilters(t *testing.T) {
	client, mock, _ := newTestClient(t)

	var gotQuery url.Values
	mock.SetHandler("/lead/", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": [], "has_more": false}`))
	})

	opts := pagination.Options{Filters: map[string]string{"status_id": "stat_1"}}
	if _, err := client.Lead.Search(context.Background(), opts); err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if got := gotQuery.Get("status_id"); got != "stat_1" {
		t.Errorf("status_id = %q, want stat_1", got)
	}
	if got := gotQuery.Get("query"); got != "status_id:stat_1" {
		t.Errorf("query = %q, want status_id:stat_1", got)
	}

	opts.Query = `name:"Acme"`
	if _, err := client.Lead.Search(context.Background(), opts); err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if got := gotQuery.Get("status_id"); got != "stat_1" {
		t.Errorf("status_id = %q, want stat_1 alongside an explicit query", got)
	}
	if got := gotQuery.Get("query"); got != `name:"Acme"` {
		t.Errorf("query = %q, want the explicit query", got)
	}
}

func TestDo_ResponseBody(t *testing.T) {
	client, mock, _ := newTestClient(t)
	mock.SetResponse("/me/", testutil.NewJSONResponse(http.StatusOK, `{"id": "user_1", "first_name": "Ada"}`))
	mock.SetResponse("/text/", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       "plain",
		Headers:    map[string]string{"Content-Type": "text/plain"},
	})
	ctx := context.Background()

	resp, err := client.User.Me(ctx)
	if err != nil {
		t.Fatalf("Me() failed: %v", err)
	}
	value, err := resp.Value()
	if err != nil {
		t.Fatalf("Value() failed: %v", err)
	}
	if m, ok := value.(map[string]any); !ok || m["first_name"] != "Ada" {
		t.Errorf("Value() = %#v, want decoded JSON", value)
	}

	resp, err = client.Get(ctx, "/text/", nil)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	value, _ = resp.Value()
	if value != "plain" {
		t.Errorf("Value() = %#v, want raw text", value)
	}
}

func TestDo_HTTPErrors(t *testing.T) {
	tests := []struct {
		name      string
		resp      testutil.MockResponse
		wantClass ErrorClass
		wantMsg   string
		wantHint  bool
	}{
		{
			name:      "bad request",
			resp:      testutil.NewErrorResponse(400, "Invalid field"),
			wantClass: ErrorClassClient,
			wantMsg:   "Invalid field",
			wantHint:  true,
		},
		{
			name:      "unauthorized",
			resp:      testutil.NewErrorResponse(401, "Unauthorized"),
			wantClass: ErrorClassClient,
			wantMsg:   "Unauthorized",
			wantHint:  true,
		},
		{
			name:      "forbidden",
			resp:      testutil.NewErrorResponse(403, "Forbidden"),
			wantClass: ErrorClassClient,
			wantMsg:   "Forbidden",
			wantHint:  true,
		},
		{
			name:      "not found",
			resp:      testutil.NewErrorResponse(404, "Not found"),
			wantClass: ErrorClassClient,
			wantMsg:   "Not found",
			wantHint:  true,
		},
		{
			name:      "server error",
			resp:      testutil.NewJSONResponse(500, `{"errors": ["boom"]}`),
			wantClass: ErrorClassServer,
			wantMsg:   "[boom]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, mock, clock := newTestClient(t)
			mock.SetResponse("/opportunity/opp_1/", tt.resp)

			var err error
			waits := testutil.DriveClock(clock, func() {
				_, err = client.Opportunity.Read(context.Background(), "opp_1")
			})

			var httpErr *HTTPError
			if !errors.As(err, &httpErr) {
				t.Fatalf("Expected *HTTPError, got %T: %v", err, err)
			}
			if httpErr.StatusCode != tt.resp.StatusCode {
				t.Errorf("StatusCode = %d, want %d", httpErr.StatusCode, tt.resp.StatusCode)
			}
			if httpErr.Method != "GET" || httpErr.Path != "/opportunity/opp_1/" {
				t.Errorf("context = %s %s", httpErr.Method, httpErr.Path)
			}
			if httpErr.ErrorClass != tt.wantClass {
				t.Errorf("ErrorClass = %q, want %q", httpErr.ErrorClass, tt.wantClass)
			}
			if httpErr.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", httpErr.Message, tt.wantMsg)
			}
			if (httpErr.Hint != "") != tt.wantHint {
				t.Errorf("Hint = %q, want hint: %v", httpErr.Hint, tt.wantHint)
			}

			// Non-429 errors are never retried.
			if got := mock.PathCount("/opportunity/opp_1/"); got != 1 {
				t.Errorf("Expected 1 request, got %d", got)
			}
			if len(waits) != 0 {
				t.Errorf("Expected no waits, got %v", waits)
			}
		})
	}
}

func TestDo_RateLimitRetryThenSuccess(t *testing.T) {
	client, mock, clock := newTestClient(t)
	mock.SetSequence("/lead/",
		testutil.NewRateLimitResponse("RateLimit-Reset", "5"),
		testutil.NewJSONResponse(http.StatusOK, `{"data": [], "has_more": false}`),
	)
	ctx := context.Background()

	var err error
	waits := testutil.DriveClock(clock, func() {
		_, err = client.Lead.Search(ctx, pagination.Options{})
	})
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if got := mock.PathCount("/lead/"); got != 2 {
		t.Errorf("Expected 2 requests, got %d", got)
	}
	if len(waits) != 1 || waits[0] != 5*time.Second {
		t.Errorf("waits = %v, want [5s]", waits)
	}

	// The pause was recorded for other requests sharing the key.
	state, err := client.RateLimiter().GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() failed: %v", err)
	}
	if want := testNow.Add(5 * time.Second); !state.PausedUntil.Equal(want) {
		t.Errorf("PausedUntil = %v, want %v", state.PausedUntil, want)
	}
}

func TestDo_LogsAsClientComponent(t *testing.T) {
	buf := &bytes.Buffer{}
	logging.Setup(logging.Config{Level: logging.LevelWarn, Output: buf})
	t.Cleanup(func() { logging.Setup(logging.DefaultConfig()) })

	client, mock, clock := newTestClient(t)
	mock.SetSequence("/lead/",
		testutil.NewRateLimitResponse("Retry-After", "1"),
		testutil.NewJSONResponse(http.StatusOK, `{"data": [], "has_more": false}`),
	)

	var err error
	testutil.DriveClock(clock, func() {
		_, err = client.Lead.Search(context.Background(), pagination.Options{})
	})
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, `"component":"`+logging.ComponentClient+`"`) {
		t.Errorf("Expected client component in logs, got %q", output)
	}
	if !strings.Contains(output, "Rate limited, retrying request") {
		t.Errorf("Expected retry warning in logs, got %q", output)
	}
}

func TestDo_RateLimitExhausted(t *testing.T) {
	client, mock, clock := newTestClient(t, func(cfg *Config) {
		cfg.MaxRetries = 3
	})
	mock.SetResponse("/lead/", testutil.NewRateLimitResponse("rate_reset", "1"))

	var err error
	waits := testutil.DriveClock(clock, func() {
		_, err = client.Lead.Search(context.Background(), pagination.Options{})
	})

	if !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("Expected ErrRateLimitExceeded, got %v", err)
	}
	if got := mock.PathCount("/lead/"); got != 4 {
		t.Errorf("Expected 4 requests (1 + 3 retries), got %d", got)
	}
	if len(waits) != 3 {
		t.Errorf("Expected 3 waits, got %v", waits)
	}
}

func TestDo_WaitsForRecordedPause(t *testing.T) {
	client, mock, clock := newTestClient(t)
	mock.SetResponse("/task/", testutil.NewJSONResponse(http.StatusOK, `{"data": [], "has_more": false}`))
	ctx := context.Background()

	if err := client.RateLimiter().RecordPause(ctx, 10*time.Second, "reset"); err != nil {
		t.Fatalf("RecordPause() failed: %v", err)
	}
	var err error
	waits := testutil.DriveClock(clock, func() {
		_, err = client.Task.Search(ctx, pagination.Options{})
	})
	if err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if len(waits) != 1 || waits[0] != 10*time.Second {
		t.Errorf("waits = %v, want [10s]", waits)
	}
}

func TestDo_NetworkErrorRetried(t *testing.T) {
	client, mock, clock := newTestClient(t, func(cfg *Config) {
		cfg.MaxRetries = 2
	})
	// Point at a closed server so every attempt fails to connect.
	mock.Close()

	var err error
	waits := testutil.DriveClock(clock, func() {
		_, err = client.Get(context.Background(), "/lead/", nil)
	})

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("Expected *TransportError, got %T: %v", err, err)
	}
	if transportErr.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", transportErr.Attempts)
	}
	if len(waits) != 2 || waits[0] != time.Second {
		t.Errorf("waits = %v, want [1s 1s]", waits)
	}
}

func TestBulk_Endpoints(t *testing.T) {
	client, mock, _ := newTestClient(t)
	ctx := context.Background()
	body := map[string]any{"query": "status:Bad"}

	calls := []struct {
		path string
		call func() (*Response, error)
	}{
		{"/bulk_delete/", func() (*Response, error) { return client.Bulk.Delete(ctx, body) }},
		{"/bulk_email/", func() (*Response, error) { return client.Bulk.Email(ctx, body) }},
		{"/bulk_update/", func() (*Response, error) { return client.Bulk.Update(ctx, body) }},
		{"/bulk_action/", func() (*Response, error) { return client.Bulk.Action(ctx, body) }},
	}

	for _, c := range calls {
		t.Run(c.path, func(t *testing.T) {
			mock.SetResponse(c.path, testutil.NewJSONResponse(http.StatusOK, `{"id": "bulk_1"}`))
			if _, err := c.call(); err != nil {
				t.Fatalf("call failed: %v", err)
			}
			if got := mock.PathCount(c.path); got != 1 {
				t.Errorf("Expected 1 request to %s, got %d", c.path, got)
			}
			if !strings.Contains(string(mock.LastBody()), "status:Bad") {
				t.Errorf("body = %s, want the query forwarded", mock.LastBody())
			}
		})
	}
}

func TestResource_ValidationBeforeRequest(t *testing.T) {
	client, mock, _ := newTestClient(t)
	ctx := context.Background()

	calls := []struct {
		name string
		call func() error
	}{
		{"read", func() error { _, err := client.Contact.Read(ctx, ""); return err }},
		{"update", func() error { _, err := client.Lead.Update(ctx, " ", map[string]any{}); return err }},
		{"delete", func() error { _, err := client.Pipeline.Delete(ctx, ""); return err }},
		{"event read", func() error { _, err := client.Event.Read(ctx, ""); return err }},
		{"report", func() error {
			_, err := client.Report.SentEmails(ctx, "", pagination.Options{})
			return err
		}},
		{"custom activity", func() error { _, err := client.CustomActivity(""); return err }},
		{"lead create", func() error {
			_, err := client.Lead.Create(ctx, map[string]any{"url": "https://acme.test"})
			return err
		}},
		{"lead merge", func() error {
			_, err := client.Lead.Merge(ctx, map[string]any{"source": "lead_1"})
			return err
		}},
	}

	for _, tt := range calls {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			if !errors.Is(err, ErrValidation) {
				t.Errorf("Expected validation error, got %v", err)
			}
		})
	}

	if got := mock.RequestCount(); got != 0 {
		t.Errorf("Expected no requests, got %d", got)
	}
}

func TestLead_MergeMissingFields(t *testing.T) {
	client, _, _ := newTestClient(t)

	_, err := client.Lead.Merge(context.Background(), map[string]any{})

	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("Expected *ValidationError, got %v", err)
	}
	if strings.Join(validationErr.Fields, ",") != "source,destination" {
		t.Errorf("Fields = %v", validationErr.Fields)
	}
}

func TestLead_CreateAcceptsStructs(t *testing.T) {
	client, mock, _ := newTestClient(t)
	mock.SetResponse("/lead/", testutil.NewJSONResponse(http.StatusOK, `{"id": "lead_1"}`))

	type lead struct {
		Name string `json:"name"`
	}
	if _, err := client.Lead.Create(context.Background(), lead{Name: "Acme"}); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
}

func TestLeadParams(t *testing.T) {
	tests := []struct {
		name      string
		opts      pagination.Options
		wantQuery string
	}{
		{
			name:      "filters become query terms",
			opts:      pagination.Options{Filters: map[string]string{"status": "Potential", "name": "Acme"}},
			wantQuery: "name:Acme status:Potential",
		},
		{
			name:      "field names with spaces are quoted",
			opts:      pagination.Options{Filters: map[string]string{"custom.Lead Source": "Web"}},
			wantQuery: `"custom.Lead Source":Web`,
		},
		{
			name:      "quoted field names are kept",
			opts:      pagination.Options{Filters: map[string]string{`"Lead Source"`: "Web"}},
			wantQuery: `"Lead Source":Web`,
		},
		{
			name:      "explicit query wins, filters still forwarded",
			opts:      pagination.Options{Query: `name:"Acme"`, Filters: map[string]string{"status_id": "stat_1"}},
			wantQuery: `name:"Acme"`,
		},
		{
			name:      "no filters",
			opts:      pagination.Options{Limit: 5},
			wantQuery: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := leadParams(tt.opts)
			if got := params.Get("query"); got != tt.wantQuery {
				t.Errorf("query = %q, want %q", got, tt.wantQuery)
			}
			for key, value := range tt.opts.Filters {
				if got := params.Get(key); got != value {
					t.Errorf("filter %q = %q, want it forwarded as %q", key, got, value)
				}
			}
		})
	}
}

func TestResource_PaginateAll(t *testing.T) {
	client, mock, _ := newTestClient(t)
	mock.SetCollection("/contact/", testutil.Items("cont", 250))

	type contact struct {
		ID string `json:"id"`
	}
	search := pagination.Typed[contact](client.Contact.SearchPage)

	contacts, err := pagination.Paginate(context.Background(), search, pagination.Options{})
	if err != nil {
		t.Fatalf("Paginate() failed: %v", err)
	}
	if len(contacts) != 250 {
		t.Fatalf("got %d contacts, want 250", len(contacts))
	}
	if contacts[0].ID != "cont_0" || contacts[249].ID != "cont_249" {
		t.Errorf("order not preserved: first %q, last %q", contacts[0].ID, contacts[249].ID)
	}

	skips := mock.Skips("/contact/")
	want := []int{0, 100, 200}
	if len(skips) != len(want) {
		t.Fatalf("skips = %v, want %v", skips, want)
	}
	for i := range want {
		if skips[i] != want[i] {
			t.Errorf("skips = %v, want %v", skips, want)
			break
		}
	}
}

func TestResource_StreamStopsEarly(t *testing.T) {
	client, mock, _ := newTestClient(t)
	mock.SetCollection("/opportunity/", testutil.Items("oppo", 500))

	var seen int
	for _, err := range pagination.Stream(context.Background(), client.Opportunity.SearchPage, pagination.Options{Limit: 50}) {
		if err != nil {
			t.Fatalf("Stream() error: %v", err)
		}
		seen++
		if seen == 60 {
			break
		}
	}

	if got := mock.PathCount("/opportunity/"); got != 2 {
		t.Errorf("Expected 2 page requests, got %d", got)
	}
}

func TestWhatsApp_CreateWithParams(t *testing.T) {
	client, mock, _ := newTestClient(t)

	var gotQuery url.Values
	mock.SetHandler("/activity/whatsapp_message/", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "acti_1"}`))
	})

	params := url.Values{"send_to_customer": {"true"}}
	if _, err := client.Activity.WhatsAppMessage.CreateWithParams(context.Background(), map[string]any{"lead_id": "lead_1"}, params); err != nil {
		t.Fatalf("CreateWithParams() failed: %v", err)
	}
	if gotQuery.Get("send_to_customer") != "true" {
		t.Errorf("query = %v", gotQuery)
	}
}

func TestEvent_SearchSendsParamsVerbatim(t *testing.T) {
	client, mock, _ := newTestClient(t)

	var gotQuery url.Values
	mock.SetHandler("/event/", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": [], "cursor_next": null}`))
	})

	params := url.Values{"limit": {"10"}, "object_type": {"lead"}}
	if _, err := client.Event.Search(context.Background(), params); err != nil {
		t.Fatalf("Search() failed: %v", err)
	}
	if gotQuery.Get("limit") != "10" || gotQuery.Has("_limit") {
		t.Errorf("query = %v, want limit passed as is", gotQuery)
	}
}

func TestCustomActivity_Path(t *testing.T) {
	client, _, _ := newTestClient(t)

	r, err := client.CustomActivity("actitype_1")
	if err != nil {
		t.Fatalf("CustomActivity() failed: %v", err)
	}
	if r.Path() != "/custom_activity/actitype_1/" {
		t.Errorf("Path() = %q", r.Path())
	}
}

func TestLookup(t *testing.T) {
	client, _, _ := newTestClient(t)

	tests := map[string]string{
		"lead":              "/lead/",
		"activity.note":     "/activity/note/",
		"custom_field.lead": "/custom_field/lead/",
		"status.lead":       "/status/lead/",
		"smart_view":        "/saved_search/",
		"email_thread":      "/activity/emailthread/",
	}
	for name, path := range tests {
		r, ok := client.Lookup(name)
		if !ok {
			t.Errorf("Lookup(%q) not found", name)
			continue
		}
		if r.Path() != path {
			t.Errorf("Lookup(%q).Path() = %q, want %q", name, r.Path(), path)
		}
	}

	if _, ok := client.Lookup("nope"); ok {
		t.Error("Lookup(nope) should fail")
	}
	if client.SmartView != client.SavedSearch {
		t.Error("SmartView should alias SavedSearch")
	}
	if names := client.ResourceNames(); len(names) == 0 || names[0] != "activity" {
		t.Errorf("ResourceNames() = %v", names)
	}
}

func TestDo_CacheReferenceData(t *testing.T) {
	redisClient := setupTestRedis(t)
	client, mock, _ := newTestClient(t, func(cfg *Config) {
		cfg.Redis = redisClient
		cfg.CacheTTL = time.Minute
	})
	mock.SetResponse("/status/lead/", testutil.NewJSONResponse(http.StatusOK, `{"data": [{"id": "stat_1"}]}`))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		resp, err := client.Status.Lead.List(ctx, pagination.Options{})
		if err != nil {
			t.Fatalf("List() failed: %v", err)
		}
		if !strings.Contains(resp.Text(), "stat_1") {
			t.Errorf("unexpected body %q", resp.Text())
		}
	}
	if got := mock.PathCount("/status/lead/"); got != 1 {
		t.Errorf("Expected 1 request with cache, got %d", got)
	}

	// A write under the same prefix invalidates it.
	if _, err := client.Status.Lead.Create(ctx, map[string]any{"label": "New"}); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	mock.SetResponse("/status/lead/", testutil.NewJSONResponse(http.StatusOK, `{"data": [{"id": "stat_2"}]}`))
	resp, err := client.Status.Lead.List(ctx, pagination.Options{})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if !strings.Contains(resp.Text(), "stat_2") {
		t.Errorf("expected fresh data after invalidation, got %q", resp.Text())
	}
}

func TestDo_NonReferenceNotCached(t *testing.T) {
	redisClient := setupTestRedis(t)
	client, mock, _ := newTestClient(t, func(cfg *Config) {
		cfg.Redis = redisClient
		cfg.CacheTTL = time.Minute
	})
	mock.SetResponse("/lead/", testutil.NewJSONResponse(http.StatusOK, `{"data": [], "has_more": false}`))

	for i := 0; i < 2; i++ {
		if _, err := client.Lead.Search(context.Background(), pagination.Options{}); err != nil {
			t.Fatalf("Search() failed: %v", err)
		}
	}
	if got := mock.PathCount("/lead/"); got != 2 {
		t.Errorf("Expected 2 requests, got %d", got)
	}
}
