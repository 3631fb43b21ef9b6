package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"stardeck/api/internal/store"
)

func episodeExists(ctx context.Context, id string) (store.Episode, error) {
	return store.Episode{ID: id}, nil
}

func newTestServer(t *testing.T, fs *fakeStore) *httptest.Server {
	t.Helper()
	svc, _ := newTestService(fs)
	server := httptest.NewServer(NewHTTPServer(svc, "*").Handler())
	t.Cleanup(server.Close)
	return server
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	payload := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	return resp, payload
}

// register signs up an account. The first caller per server bootstraps the
// instance and needs no invite code; everyone after it sends the configured
// one.
func register(t *testing.T, server *httptest.Server, username string, inviteCode string) map[string]any {
	t.Helper()
	body := map[string]any{
		"username": username,
		"email":    username + "@example.com",
		"password": "tea-earl-grey-hot",
	}
	if inviteCode != "" {
		body["inviteCode"] = inviteCode
	}
	resp, payload := doJSON(t, http.MethodPost, server.URL+"/api/auth/register", "", body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: status = %d, payload = %v", username, resp.StatusCode, payload)
	}
	return payload
}

func login(t *testing.T, server *httptest.Server, username string) map[string]any {
	t.Helper()
	resp, payload := doJSON(t, http.MethodPost, server.URL+"/api/auth/login", "", map[string]any{
		"username": username,
		"password": "tea-earl-grey-hot",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login %s: status = %d, payload = %v", username, resp.StatusCode, payload)
	}
	return payload
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t, newFakeStore())

	resp, payload := doJSON(t, http.MethodGet, server.URL+"/api/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if payload["ok"] != true {
		t.Fatalf("payload = %v", payload)
	}
}

func TestFirstRegistrationBootstrapsAdmin(t *testing.T) {
	server := newTestServer(t, newFakeStore())

	first := register(t, server, "benjamin", "")
	if first["isAdmin"] != true || first["isApproved"] != true {
		t.Fatalf("first account = %v, want approved admin", first)
	}

	second := register(t, server, "jake", "invite-123")
	if second["isAdmin"] != false || second["isApproved"] != false {
		t.Fatalf("second account = %v, want pending non-admin", second)
	}
}

func TestDuplicateRegistrationConflicts(t *testing.T) {
	server := newTestServer(t, newFakeStore())
	register(t, server, "benjamin", "")

	resp, payload := doJSON(t, http.MethodPost, server.URL+"/api/auth/register", "", map[string]any{
		"username":   "benjamin",
		"email":      "other@example.com",
		"password":   "tea-earl-grey-hot",
		"inviteCode": "invite-123",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
	if payload["code"] != "ALREADY_REGISTERED" {
		t.Fatalf("code = %v", payload["code"])
	}
}

func TestRegisterRejectsBadInvite(t *testing.T) {
	server := newTestServer(t, newFakeStore())
	register(t, server, "benjamin", "")

	resp, _ := doJSON(t, http.MethodPost, server.URL+"/api/auth/register", "", map[string]any{
		"username":   "quark",
		"email":      "quark@example.com",
		"password":   "tea-earl-grey-hot",
		"inviteCode": "wrong",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
}

func TestFirstRegistrationSkipsInviteGate(t *testing.T) {
	server := newTestServer(t, newFakeStore())

	// Fresh instance, invite code configured, none supplied: the bootstrap
	// account still goes through as approved admin.
	resp, payload := doJSON(t, http.MethodPost, server.URL+"/api/auth/register", "", map[string]any{
		"username": "benjamin",
		"email":    "benjamin@example.com",
		"password": "tea-earl-grey-hot",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, payload = %v", resp.StatusCode, payload)
	}
	if payload["isAdmin"] != true || payload["isApproved"] != true {
		t.Fatalf("bootstrap account = %v, want approved admin", payload)
	}
}

func TestLoginAndAuthenticatedRequest(t *testing.T) {
	server := newTestServer(t, newFakeStore())
	register(t, server, "benjamin", "")
	tokens := login(t, server, "benjamin")

	token, _ := tokens["token"].(string)
	if token == "" {
		t.Fatalf("login payload = %v, want an access token", tokens)
	}

	resp, payload := doJSON(t, http.MethodGet, server.URL+"/api/me", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, payload = %v", resp.StatusCode, payload)
	}
	user := payload["user"].(map[string]any)
	if user["username"] != "benjamin" {
		t.Fatalf("profile user = %v", user)
	}
}

func TestPendingUserCannotLogin(t *testing.T) {
	server := newTestServer(t, newFakeStore())
	register(t, server, "benjamin", "")
	register(t, server, "jake", "invite-123")

	resp, payload := doJSON(t, http.MethodPost, server.URL+"/api/auth/login", "", map[string]any{
		"username": "jake",
		"password": "tea-earl-grey-hot",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
	if payload["code"] != "PENDING_APPROVAL" {
		t.Fatalf("code = %v", payload["code"])
	}
}

func TestUserStatusEndpoint(t *testing.T) {
	server := newTestServer(t, newFakeStore())
	register(t, server, "benjamin", "")
	register(t, server, "jake", "invite-123")

	for username, want := range map[string]string{
		"benjamin": "approved",
		"jake":     "pending",
		"odo":      "not_found",
	} {
		resp, payload := doJSON(t, http.MethodPost, server.URL+"/api/auth/user-status", "", map[string]any{"username": username})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: status = %d", username, resp.StatusCode)
		}
		if payload["status"] != want {
			t.Fatalf("%s: status = %v, want %s", username, payload["status"], want)
		}
	}
}

func TestMissingTokenIsUnauthorized(t *testing.T) {
	server := newTestServer(t, newFakeStore())

	for _, path := range []string{"/api/content", "/api/me", "/api/admin/users"} {
		resp, _ := doJSON(t, http.MethodGet, server.URL+path, "", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s: status = %d, want 401", path, resp.StatusCode)
		}
	}
}

func TestGarbageTokenIsUnauthorized(t *testing.T) {
	server := newTestServer(t, newFakeStore())

	resp, _ := doJSON(t, http.MethodGet, server.URL+"/api/content", "not-a-jwt", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestAdminEndpointsRequireAdmin(t *testing.T) {
	fs := newFakeStore()
	server := newTestServer(t, fs)
	register(t, server, "benjamin", "")
	register(t, server, "jake", "invite-123")

	// Approve jake so the gate failure is the admin check, not approval.
	for id, user := range fs.users {
		if user.Username == "jake" {
			user.IsApproved = true
			fs.users[id] = user
		}
	}
	tokens := login(t, server, "jake")
	token := tokens["token"].(string)

	resp, _ := doJSON(t, http.MethodGet, server.URL+"/api/admin/users", token, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
}

func TestAdminApprovalFlow(t *testing.T) {
	fs := newFakeStore()
	server := newTestServer(t, fs)
	register(t, server, "benjamin", "")
	jake := register(t, server, "jake", "invite-123")

	tokens := login(t, server, "benjamin")
	token := tokens["token"].(string)

	resp, _ := doJSON(t, http.MethodPatch, server.URL+"/api/admin/users", token, map[string]any{
		"userId": jake["userId"],
		"action": "approve",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approve: status = %d", resp.StatusCode)
	}
	login(t, server, "jake")
}

func TestContentDetailNotFound(t *testing.T) {
	server := newTestServer(t, newFakeStore())
	register(t, server, "benjamin", "")
	tokens := login(t, server, "benjamin")
	token := tokens["token"].(string)

	resp, payload := doJSON(t, http.MethodGet, server.URL+"/api/content/episode/missing", token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, payload = %v", resp.StatusCode, payload)
	}

	resp, _ = doJSON(t, http.MethodGet, server.URL+"/api/content/book/ep_1", token, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid type: status = %d, want 400", resp.StatusCode)
	}
}

func TestStatisticsEndpointValidation(t *testing.T) {
	server := newTestServer(t, newFakeStore())
	register(t, server, "benjamin", "")
	tokens := login(t, server, "benjamin")
	token := tokens["token"].(string)

	resp, _ := doJSON(t, http.MethodPost, server.URL+"/api/statistics", token, map[string]any{"scope": "galaxy"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	resp, payload := doJSON(t, http.MethodPost, server.URL+"/api/statistics", token, map[string]any{"scope": "all", "timeRange": "all"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, payload = %v", resp.StatusCode, payload)
	}
	for _, key := range []string{"summary", "distribution", "trend", "userComparison", "progressBySeries", "seriesBands", "movieOrders", "activity"} {
		if _, ok := payload[key]; !ok {
			t.Fatalf("payload missing %q", key)
		}
	}
}

func TestRefreshEndpointRotates(t *testing.T) {
	server := newTestServer(t, newFakeStore())
	register(t, server, "benjamin", "")
	tokens := login(t, server, "benjamin")

	resp, payload := doJSON(t, http.MethodPost, server.URL+"/api/auth/refresh", "", map[string]any{
		"refreshToken": tokens["refreshToken"],
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, payload = %v", resp.StatusCode, payload)
	}
	if payload["refreshToken"] == tokens["refreshToken"] {
		t.Fatal("refresh token was not rotated")
	}

	resp, _ = doJSON(t, http.MethodPost, server.URL+"/api/auth/refresh", "", map[string]any{
		"refreshToken": tokens["refreshToken"],
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("stale token: status = %d, want 401", resp.StatusCode)
	}
}

func TestRatingEndpointRejectsOutOfRange(t *testing.T) {
	fs := newFakeStore()
	fs.getEpisodeFn = episodeExists
	server := newTestServer(t, fs)
	register(t, server, "benjamin", "")
	tokens := login(t, server, "benjamin")
	token := tokens["token"].(string)

	resp, payload := doJSON(t, http.MethodPost, server.URL+"/api/ratings", token, map[string]any{
		"contentId":   "ep_1",
		"contentType": "episode",
		"rating":      10.5,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, payload = %v", resp.StatusCode, payload)
	}

	resp, payload = doJSON(t, http.MethodPost, server.URL+"/api/ratings", token, map[string]any{
		"contentId":   "ep_1",
		"contentType": "episode",
		"rating":      8.76,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, payload = %v", resp.StatusCode, payload)
	}
	if payload["value"] != 8.8 {
		t.Fatalf("stored value = %v, want 8.8", payload["value"])
	}
}
