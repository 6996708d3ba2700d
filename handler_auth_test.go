package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLoginFlow(t *testing.T) {
	defer setupTestDB(t)()
	seedTestUser(t, "admin", "hunter22")

	w := httptest.NewRecorder()
	handleLogin(w, newRequest(t, "POST", "/auth/login", map[string]string{
		"username": "admin", "password": "hunter22",
	}))
	if w.Code != 200 {
		t.Fatalf("Login failed: %d: %s", w.Code, w.Body.String())
	}

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == sessionCookie {
			cookie = c
		}
	}
	if cookie == nil || cookie.Value == "" {
		t.Fatal("Login must set the session cookie")
	}

	req := newRequest(t, "GET", "/auth/me", nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	handleMe(w, req)
	if w.Code != 200 {
		t.Fatalf("Expected 200 from /auth/me with session, got %d", w.Code)
	}

	req = newRequest(t, "POST", "/auth/logout", nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	handleLogout(w, req)
	if w.Code != 200 {
		t.Fatalf("Logout failed: %d", w.Code)
	}

	req = newRequest(t, "GET", "/auth/me", nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	handleMe(w, req)
	if w.Code != 401 {
		t.Errorf("Expected 401 after logout, got %d", w.Code)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	defer setupTestDB(t)()
	seedTestUser(t, "admin", "hunter22")

	w := httptest.NewRecorder()
	handleLogin(w, newRequest(t, "POST", "/auth/login", map[string]string{
		"username": "admin", "password": "wrong",
	}))
	if w.Code != 401 {
		t.Errorf("Expected 401 for wrong password, got %d", w.Code)
	}
}

func TestLoginDeactivatedAccount(t *testing.T) {
	defer setupTestDB(t)()
	seedTestUser(t, "olduser", "hunter22")
	db.Exec("UPDATE users SET active=0 WHERE username='olduser'")

	w := httptest.NewRecorder()
	handleLogin(w, newRequest(t, "POST", "/auth/login", map[string]string{
		"username": "olduser", "password": "hunter22",
	}))
	if w.Code != 403 {
		t.Errorf("Expected 403 for deactivated account, got %d", w.Code)
	}
}

func TestRequireAuthRedirectsAndRejects(t *testing.T) {
	defer setupTestDB(t)()
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	protected := requireAuth(inner)

	// API requests get a JSON 401, page requests a redirect to login.
	w := httptest.NewRecorder()
	protected.ServeHTTP(w, httptest.NewRequest("GET", "/api/jobs", nil))
	if w.Code != 401 {
		t.Errorf("Expected 401 for unauthenticated API request, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	protected.ServeHTTP(w, httptest.NewRequest("GET", "/some/page", nil))
	if w.Code != http.StatusSeeOther {
		t.Errorf("Expected redirect for unauthenticated page request, got %d", w.Code)
	}

	// The login route itself stays reachable.
	w = httptest.NewRecorder()
	protected.ServeHTTP(w, httptest.NewRequest("POST", "/auth/login", nil))
	if w.Code != 200 {
		t.Errorf("Expected /auth/login to bypass auth, got %d", w.Code)
	}
}
