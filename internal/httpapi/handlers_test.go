package httpapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"ponto.dev/internal/audit"
	"ponto.dev/internal/auth"
	"ponto.dev/internal/stream"
	"ponto.dev/internal/timeclock"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	users   *auth.InMemoryStore
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	t.Setenv("PONTO_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()
	t.Cleanup(auth.ResetSecretForTests)

	users := auth.NewInMemoryStore()
	api := New(ReadyProbe{}, "test", timeclock.NewInMemory(), users, audit.NewRecorder(nil), stream.New())
	api.rateBurst = 100
	api.ratePerSec = 100

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		users:   users,
		t:       t,
	}
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		c.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("get request: %v", err)
	}
	return resp
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// registerAccount seeds an account directly: privileged roles cannot be
// self-registered over the API.
func (c *apiClient) registerAccount(username, role string) *auth.User {
	c.t.Helper()
	hash, err := auth.HashPassword("pass-" + username)
	if err != nil {
		c.t.Fatalf("hash password: %v", err)
	}
	user := &auth.User{
		Username:     username,
		PasswordHash: hash,
		Name:         "Test " + username,
		Email:        username + "@example.com",
		Role:         role,
	}
	if err := c.users.Create(context.Background(), user); err != nil {
		c.t.Fatalf("create user: %v", err)
	}
	return user
}

func (c *apiClient) login(username string) string {
	c.t.Helper()
	resp := c.post("/v1/auth/login", map[string]any{
		"username": username,
		"password": "pass-" + username,
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("unexpected login status: %d", resp.StatusCode)
	}
	var payload loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.t.Fatalf("decode login response: %v", err)
	}
	if payload.Token == "" {
		c.t.Fatal("empty token issued")
	}
	return payload.Token
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func imagePayload(content string) string {
	return base64.StdEncoding.EncodeToString([]byte(content))
}

func punchBody(image string) map[string]any {
	return map[string]any{
		"image_base64": imagePayload(image),
		"type":         "entry",
		"latitude":     -23.5505,
		"longitude":    -46.6333,
		"gps_accuracy": 12.0,
	}
}

func TestRegisterLoginAndMe(t *testing.T) {
	c := newTestAPI(t)

	resp := c.post("/v1/users", map[string]any{
		"username": "alice",
		"password": "pass-alice",
		"name":     "Alice",
		"email":    "alice@example.com",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected register status: %d", resp.StatusCode)
	}
	created := decode[auth.User](t, resp)
	if created.ID == "" || created.Role != auth.RoleEmployee {
		t.Fatalf("unexpected created user: %+v", created)
	}

	token := c.login("alice")

	resp = c.get("/v1/users/me", nil, authHeaders(token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected me status: %d", resp.StatusCode)
	}
	me := decode[auth.User](t, resp)
	if me.ID != created.ID || me.Username != "alice" {
		t.Fatalf("unexpected identity: %+v", me)
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	c := newTestAPI(t)
	c.registerAccount("alice", auth.RoleEmployee)

	resp := c.post("/v1/users", map[string]any{
		"username": "alice",
		"password": "other",
		"name":     "Other Alice",
		"email":    "other@example.com",
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestRegisterPrivilegedRoleRequiresAdmin(t *testing.T) {
	c := newTestAPI(t)

	body := map[string]any{
		"username": "boss",
		"password": "pass-boss",
		"name":     "Boss",
		"email":    "boss@example.com",
		"role":     "manager",
	}

	resp := c.post("/v1/users", body, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("anonymous privileged registration: expected 403, got %d", resp.StatusCode)
	}

	c.registerAccount("admin", auth.RoleAdmin)
	resp = c.post("/v1/users", body, authHeaders(c.login("admin")))
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("admin privileged registration: expected 201, got %d", resp.StatusCode)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	c := newTestAPI(t)
	c.registerAccount("alice", auth.RoleEmployee)

	for _, body := range []map[string]any{
		{"username": "alice", "password": "wrong"},
		{"username": "ghost", "password": "whatever"},
	} {
		resp := c.post("/v1/auth/login", body, nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.StatusCode)
		}
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	c := newTestAPI(t)

	for _, path := range []string{"/v1/users/me", "/v1/punches", "/v1/justifications"} {
		resp := c.get(path, nil, nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, resp.StatusCode)
		}
	}

	resp := c.get("/v1/users/me", nil, authHeaders("not-a-token"))
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", resp.StatusCode)
	}
}

func TestEnrollAndPunchFlow(t *testing.T) {
	c := newTestAPI(t)
	user := c.registerAccount("alice", auth.RoleEmployee)
	token := c.login("alice")

	resp := c.post("/v1/users/"+user.ID+"/enroll-face", map[string]any{
		"image_base64": imagePayload("alice selfie"),
	}, authHeaders(token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected enroll status: %d", resp.StatusCode)
	}
	enrolled := decode[enrollFaceResponse](t, resp)
	if !enrolled.EmbeddingStored || enrolled.EnrolledAt.IsZero() {
		t.Fatalf("unexpected enroll response: %+v", enrolled)
	}

	resp = c.post("/v1/punches", punchBody("alice selfie"), authHeaders(token))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected punch status: %d", resp.StatusCode)
	}
	punch := decode[timeclock.Punch](t, resp)
	if punch.Status != timeclock.PunchOK || !punch.FaceMatched || !punch.GPSValid {
		t.Fatalf("unexpected punch: %+v", punch)
	}

	resp = c.get("/v1/punches/last", nil, authHeaders(token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected last status: %d", resp.StatusCode)
	}
	last := decode[timeclock.Punch](t, resp)
	if last.ID != punch.ID {
		t.Fatalf("expected %s, got %s", punch.ID, last.ID)
	}
}

func TestEnrollOtherUserForbidden(t *testing.T) {
	c := newTestAPI(t)
	c.registerAccount("alice", auth.RoleEmployee)
	victim := c.registerAccount("bob", auth.RoleEmployee)

	resp := c.post("/v1/users/"+victim.ID+"/enroll-face", map[string]any{
		"image_base64": imagePayload("not bob"),
	}, authHeaders(c.login("alice")))
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestUnenrolledPunchIsPending(t *testing.T) {
	c := newTestAPI(t)
	c.registerAccount("alice", auth.RoleEmployee)
	token := c.login("alice")

	resp := c.post("/v1/punches", punchBody("any capture"), authHeaders(token))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected punch status: %d", resp.StatusCode)
	}
	punch := decode[timeclock.Punch](t, resp)
	if punch.Status != timeclock.PunchPending || punch.FaceMatched {
		t.Fatalf("unexpected punch: %+v", punch)
	}

	resp = c.get("/v1/punches/pending", nil, authHeaders(token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected pending status: %d", resp.StatusCode)
	}
	listing := decode[struct {
		Punches []timeclock.Punch `json:"punches"`
		Count   int               `json:"count"`
	}](t, resp)
	if listing.Count != 1 || listing.Punches[0].ID != punch.ID {
		t.Fatalf("unexpected pending listing: %+v", listing)
	}
}

func TestPunchRejectsBadPayload(t *testing.T) {
	c := newTestAPI(t)
	c.registerAccount("alice", auth.RoleEmployee)
	token := c.login("alice")

	cases := map[string]map[string]any{
		"missing image": {"type": "entry"},
		"bad base64":    {"image_base64": "!!!", "type": "entry"},
		"bad type":      {"image_base64": imagePayload("x"), "type": "lunch"},
		"unknown field": {"image_base64": imagePayload("x"), "type": "entry", "unknown": 1},
	}
	for name, body := range cases {
		resp := c.post("/v1/punches", body, authHeaders(token))
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, resp.StatusCode)
		}
	}
}

func TestJustificationReviewFlow(t *testing.T) {
	c := newTestAPI(t)
	c.registerAccount("alice", auth.RoleEmployee)
	c.registerAccount("mgr", auth.RoleManager)
	employee := c.login("alice")
	manager := c.login("mgr")

	resp := c.post("/v1/punches", punchBody("unmatched capture"), authHeaders(employee))
	punch := decode[timeclock.Punch](t, resp)
	if punch.Status != timeclock.PunchPending {
		t.Fatalf("setup: expected pending punch")
	}

	resp = c.post("/v1/justifications", map[string]any{
		"punch_id": punch.ID,
		"reason":   "terminal was offline",
	}, authHeaders(employee))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected submit status: %d", resp.StatusCode)
	}
	just := decode[timeclock.Justification](t, resp)
	if just.Status != timeclock.JustificationPending {
		t.Fatalf("unexpected justification: %+v", just)
	}

	// duplicate submission while one is pending
	resp = c.post("/v1/justifications", map[string]any{
		"punch_id": punch.ID,
		"reason":   "again",
	}, authHeaders(employee))
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate, got %d", resp.StatusCode)
	}

	// employees cannot see the review queue
	resp = c.get("/v1/justifications/pending", nil, authHeaders(employee))
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for employee queue access, got %d", resp.StatusCode)
	}

	resp = c.get("/v1/justifications/pending", nil, authHeaders(manager))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected queue status: %d", resp.StatusCode)
	}
	queue := decode[struct {
		Justifications []timeclock.Justification `json:"justifications"`
	}](t, resp)
	if len(queue.Justifications) != 1 {
		t.Fatalf("expected 1 queued justification, got %d", len(queue.Justifications))
	}

	// employees cannot review either
	resp = c.post("/v1/justifications/"+just.ID+"/review", map[string]any{
		"decision": "approved",
	}, authHeaders(employee))
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for employee review, got %d", resp.StatusCode)
	}

	resp = c.post("/v1/justifications/"+just.ID+"/review", map[string]any{
		"decision": "approved",
	}, authHeaders(manager))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected review status: %d", resp.StatusCode)
	}
	reviewed := decode[timeclock.Justification](t, resp)
	if reviewed.Status != timeclock.JustificationApproved || reviewed.ReviewedBy == "" {
		t.Fatalf("unexpected reviewed justification: %+v", reviewed)
	}

	// second review of the same justification conflicts
	resp = c.post("/v1/justifications/"+just.ID+"/review", map[string]any{
		"decision": "rejected",
	}, authHeaders(manager))
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for double review, got %d", resp.StatusCode)
	}

	// approval flipped the punch
	resp = c.get("/v1/punches/last", nil, authHeaders(employee))
	final := decode[timeclock.Punch](t, resp)
	if final.Status != timeclock.PunchOK {
		t.Fatalf("expected punch ok after approval, got %s", final.Status)
	}
}

func TestListUsersIsReviewerOnly(t *testing.T) {
	c := newTestAPI(t)
	c.registerAccount("alice", auth.RoleEmployee)
	c.registerAccount("admin", auth.RoleAdmin)

	resp := c.get("/v1/users", nil, authHeaders(c.login("alice")))
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for employee, got %d", resp.StatusCode)
	}

	resp = c.get("/v1/users", nil, authHeaders(c.login("admin")))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", resp.StatusCode)
	}
	listing := decode[struct {
		Items []auth.User `json:"items"`
	}](t, resp)
	if len(listing.Items) != 2 {
		t.Fatalf("expected 2 users, got %d", len(listing.Items))
	}
}

func TestHealthAndInfo(t *testing.T) {
	c := newTestAPI(t)

	for _, path := range []string{"/healthz", "/readyz", "/v1/info"} {
		resp := c.get(path, nil, nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.StatusCode)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	c := newTestAPI(t)
	c.registerAccount("alice", auth.RoleEmployee)
	token := c.login("alice")

	resp := c.post("/v1/punches/last", nil, authHeaders(token))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
	if allow := resp.Header.Get("Allow"); allow != http.MethodGet {
		t.Fatalf("unexpected Allow header: %q", allow)
	}
}
