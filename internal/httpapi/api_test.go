package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/xhifi/brainloggers-backend-sub001/internal/auth"
	"github.com/xhifi/brainloggers-backend-sub001/internal/cache"
	"github.com/xhifi/brainloggers-backend-sub001/internal/stream"
)

// in-memory stores backing the HTTP tests

type memUsers struct {
	mu   sync.Mutex
	byID map[string]*auth.User
}

func (s *memUsers) Create(ctx context.Context, u *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.byID {
		if existing.Email == u.Email {
			return auth.ErrConflict
		}
	}
	cp := *u
	cp.CreatedAt = time.Now().UTC()
	cp.UpdatedAt = cp.CreatedAt
	s.byID[u.ID] = &cp
	return nil
}

func (s *memUsers) Find(ctx context.Context, id string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memUsers) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *memUsers) Update(ctx context.Context, id string, upd auth.UserUpdate) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	u.UpdatedAt = time.Now().UTC()
	cp := *u
	return &cp, nil
}

func (s *memUsers) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (s *memUsers) MarkVerified(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.IsVerified = true
	u.VerificationToken = ""
	return nil
}

func (s *memUsers) FindByVerificationToken(ctx context.Context, tokenHash string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if u.VerificationToken != "" && u.VerificationToken == tokenHash {
			cp := *u
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *memUsers) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.ResetTokenHash = tokenHash
	u.ResetTokenExpiresAt = expiresAt
	return nil
}

func (s *memUsers) FindByResetToken(ctx context.Context, tokenHash string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if u.ResetTokenHash != "" && u.ResetTokenHash == tokenHash {
			cp := *u
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *memUsers) CompletePasswordReset(ctx context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.ResetTokenHash = ""
	u.ResetTokenExpiresAt = time.Time{}
	return nil
}

type memRefresh struct {
	mu   sync.Mutex
	byID map[string]*auth.RefreshToken
}

func (s *memRefresh) Replace(ctx context.Context, tok *auth.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *tok
	s.byID[tok.UserID] = &cp
	return nil
}

func (s *memRefresh) FindByUser(ctx context.Context, userID string) (*auth.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.byID[userID]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *tok
	return &cp, nil
}

func (s *memRefresh) Revoke(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[userID]; !ok {
		return auth.ErrNotFound
	}
	delete(s.byID, userID)
	return nil
}

type memRoles struct {
	mu          sync.Mutex
	nextID      int64
	rolesByID   map[int64]auth.Role
	assignments map[string]map[int64]struct{}
	permsByRole map[int64][]auth.Permission
}

func newMemRoles() *memRoles {
	return &memRoles{
		nextID:      1,
		rolesByID:   make(map[int64]auth.Role),
		assignments: make(map[string]map[int64]struct{}),
		permsByRole: make(map[int64][]auth.Permission),
	}
}

func (s *memRoles) addRole(name string, perms ...auth.Permission) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.rolesByID[id] = auth.Role{ID: id, Name: name}
	s.permsByRole[id] = perms
	return id
}

func (s *memRoles) RoleNamesForUser(ctx context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for id := range s.assignments[userID] {
		names = append(names, s.rolesByID[id].Name)
	}
	return names, nil
}

func (s *memRoles) RoleIDsByName(ctx context.Context, names []string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int64
	for _, name := range names {
		for id, role := range s.rolesByID {
			if strings.EqualFold(role.Name, name) {
				out = append(out, id)
			}
		}
	}
	return out, nil
}

func (s *memRoles) PermissionsForRoleIDs(ctx context.Context, roleIDs []int64) (auth.PermissionMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := auth.PermissionMap{}
	for _, id := range roleIDs {
		for _, p := range s.permsByRole[id] {
			m.Add(p.Resource, p.Action)
		}
	}
	return m, nil
}

func (s *memRoles) CreateRole(ctx context.Context, name, description string) (auth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, role := range s.rolesByID {
		if role.Name == name {
			return auth.Role{}, auth.ErrConflict
		}
	}
	id := s.nextID
	s.nextID++
	role := auth.Role{ID: id, Name: name, Description: description, CreatedAt: time.Now().UTC()}
	s.rolesByID[id] = role
	return role, nil
}

func (s *memRoles) SetRolePermissions(ctx context.Context, roleID int64, perms []auth.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rolesByID[roleID]; !ok {
		return auth.ErrNotFound
	}
	s.permsByRole[roleID] = perms
	return nil
}

func (s *memRoles) AssignRole(ctx context.Context, userID string, roleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rolesByID[roleID]; !ok {
		return auth.ErrNotFound
	}
	if s.assignments[userID] == nil {
		s.assignments[userID] = make(map[int64]struct{})
	}
	if _, ok := s.assignments[userID][roleID]; ok {
		return auth.ErrConflict
	}
	s.assignments[userID][roleID] = struct{}{}
	return nil
}

func (s *memRoles) RemoveRole(ctx context.Context, userID string, roleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assignments[userID][roleID]; !ok {
		return auth.ErrNotFound
	}
	delete(s.assignments[userID], roleID)
	return nil
}

type testMailer struct {
	verify chan string
	reset  chan string
}

func (m *testMailer) SendVerificationEmail(ctx context.Context, to, token string) error {
	m.verify <- token
	return nil
}

func (m *testMailer) SendPasswordResetEmail(ctx context.Context, to, token string) error {
	m.reset <- token
	return nil
}

type apiFixture struct {
	handler  http.Handler
	users    *memUsers
	roles    *memRoles
	resolver *auth.Resolver
	tokens   *auth.Tokens
	mailer   *testMailer
	events   *stream.Hub
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	c := cache.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	users := &memUsers{byID: make(map[string]*auth.User)}
	refresh := &memRefresh{byID: make(map[string]*auth.RefreshToken)}
	roles := newMemRoles()

	tokens, err := auth.NewTokens("http-test-secret", 15*time.Minute, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}
	resolver := auth.NewResolver(roles, c, time.Minute)
	denylist := auth.NewDenylist(c)
	mailer := &testMailer{verify: make(chan string, 4), reset: make(chan string, 4)}
	events := stream.NewHub()
	sessions := auth.NewSessions(users, refresh, resolver, tokens, denylist, mailer).WithEvents(events)

	api := New(Deps{
		Sessions: sessions,
		Resolver: resolver,
		Tokens:   tokens,
		Denylist: denylist,
		Users:    users,
		Roles:    roles,
		Events:   events,
		Version:  "test",
		Cookie:   CookieConfig{Name: "refreshToken", TTL: 7 * 24 * time.Hour},
	})
	return &apiFixture{
		handler:  api.Handler(),
		users:    users,
		roles:    roles,
		resolver: resolver,
		tokens:   tokens,
		mailer:   mailer,
		events:   events,
	}
}

func (f *apiFixture) do(t *testing.T, method, path, body string, opts ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func withBearer(token string) func(*http.Request) {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}

func withCookie(name, value string) func(*http.Request) {
	return func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: name, Value: value})
	}
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &m); err != nil {
		t.Fatalf("invalid JSON response %q: %v", rr.Body.String(), err)
	}
	return m
}

func waitEmailToken(t *testing.T, ch chan string) string {
	t.Helper()
	select {
	case tok := <-ch:
		return tok
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for email")
		return ""
	}
}

// registerAndLogin drives the full signup flow and returns the login payload
// plus the refresh cookie.
func (f *apiFixture) registerAndLogin(t *testing.T, email, password string) (map[string]any, *http.Cookie) {
	t.Helper()
	rr := f.do(t, http.MethodPost, "/v1/auth/register", `{"email":"`+email+`","password":"`+password+`"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	token := waitEmailToken(t, f.mailer.verify)

	rr = f.do(t, http.MethodPost, "/v1/auth/verify-email", `{"token":"`+token+`"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = f.do(t, http.MethodPost, "/v1/auth/login", `{"email":"`+email+`","password":"`+password+`"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var refreshCookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == "refreshToken" {
			refreshCookie = c
		}
	}
	if refreshCookie == nil {
		t.Fatal("login did not set the refresh cookie")
	}
	return decodeBody(t, rr), refreshCookie
}

func TestAuthLifecycleOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	body, cookie := f.registerAndLogin(t, "alice@example.com", "s3cret-pass")

	access, _ := body["accessToken"].(string)
	if access == "" {
		t.Fatal("missing accessToken")
	}
	if !cookie.HttpOnly || cookie.Path != "/" {
		t.Fatalf("refresh cookie not hardened: %+v", cookie)
	}
	// both expiry fields are absolute epoch milliseconds
	accessExp, ok := body["accessTokenExpiresIn"].(float64)
	if !ok || int64(accessExp) < time.Now().UnixMilli() {
		t.Fatalf("unexpected accessTokenExpiresIn: %v", body["accessTokenExpiresIn"])
	}
	refreshExp, ok := body["refreshTokenExpiresIn"].(float64)
	if !ok || int64(refreshExp) < int64(accessExp) {
		t.Fatalf("unexpected refreshTokenExpiresIn: %v", body["refreshTokenExpiresIn"])
	}
	user, _ := body["user"].(map[string]any)
	if user["id"] == "" {
		t.Fatal("missing user id")
	}
	if roles, ok := user["roles"].([]any); !ok || len(roles) != 0 {
		t.Fatalf("expected empty roles array, got %v", user["roles"])
	}

	// the access token works against a protected endpoint
	rr := f.do(t, http.MethodGet, "/v1/users/me", "", withBearer(access))
	if rr.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	me := decodeBody(t, rr)
	if me["email"] != "alice@example.com" {
		t.Fatalf("unexpected email: %v", me["email"])
	}

	// refresh rotates both tokens
	rr = f.do(t, http.MethodPost, "/v1/auth/refresh", "",
		withBearer(access), withCookie(cookie.Name, cookie.Value))
	if rr.Code != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	refreshed := decodeBody(t, rr)
	if refreshed["accessToken"] == access {
		t.Fatal("access token did not rotate")
	}
	var rotated *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == cookie.Name {
			rotated = c
		}
	}
	if rotated == nil || rotated.Value == cookie.Value {
		t.Fatal("refresh cookie did not rotate")
	}

	// logout revokes the session and clears the cookie
	newAccess, _ := refreshed["accessToken"].(string)
	rr = f.do(t, http.MethodPost, "/v1/auth/logout", "", withBearer(newAccess))
	if rr.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	for _, c := range rr.Result().Cookies() {
		if c.Name == cookie.Name && c.MaxAge >= 0 {
			t.Fatal("logout did not clear the refresh cookie")
		}
	}
	// the denylisted access token is dead immediately
	rr = f.do(t, http.MethodGet, "/v1/users/me", "", withBearer(newAccess))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rr.Code)
	}
}

func TestLoginFailures(t *testing.T) {
	f := newAPIFixture(t)

	rr := f.do(t, http.MethodPost, "/v1/auth/register", `{"email":"bob@example.com","password":"pass-word"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d", rr.Code)
	}
	_ = waitEmailToken(t, f.mailer.verify)

	// unverified account
	rr = f.do(t, http.MethodPost, "/v1/auth/login", `{"email":"bob@example.com","password":"pass-word"}`)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for unverified, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["needsVerification"] != true {
		t.Fatalf("expected needsVerification flag, got %v", body)
	}

	// unknown email and wrong password produce the identical response
	rr1 := f.do(t, http.MethodPost, "/v1/auth/login", `{"email":"nobody@example.com","password":"x-y-z-1"}`)
	rr2 := f.do(t, http.MethodPost, "/v1/auth/login", `{"email":"bob@example.com","password":"wrong-pw"}`)
	if rr1.Code != http.StatusUnauthorized || rr2.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401/401, got %d/%d", rr1.Code, rr2.Code)
	}
	b1, b2 := decodeBody(t, rr1), decodeBody(t, rr2)
	if b1["error"] != b2["error"] {
		t.Fatalf("credential failures must be indistinguishable: %v vs %v", b1["error"], b2["error"])
	}
}

func TestRefreshWithoutCookieClearsNothing(t *testing.T) {
	f := newAPIFixture(t)
	body, _ := f.registerAndLogin(t, "carol@example.com", "pass-word")
	access, _ := body["accessToken"].(string)

	rr := f.do(t, http.MethodPost, "/v1/auth/refresh", "", withBearer(access))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestRefreshReuseRevokesSession(t *testing.T) {
	f := newAPIFixture(t)
	body, cookie := f.registerAndLogin(t, "dave@example.com", "pass-word")
	access, _ := body["accessToken"].(string)

	rr := f.do(t, http.MethodPost, "/v1/auth/refresh", "",
		withBearer(access), withCookie(cookie.Name, cookie.Value))
	if rr.Code != http.StatusOK {
		t.Fatalf("first refresh: expected 200, got %d", rr.Code)
	}
	second := decodeBody(t, rr)
	newAccess, _ := second["accessToken"].(string)

	// replaying the old cookie is reuse: 401 and the cookie is cleared
	rr = f.do(t, http.MethodPost, "/v1/auth/refresh", "",
		withBearer(newAccess), withCookie(cookie.Name, cookie.Value))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 on reuse, got %d", rr.Code)
	}
	cleared := false
	for _, c := range rr.Result().Cookies() {
		if c.Name == cookie.Name && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatal("expected the refresh cookie to be cleared on reuse")
	}
}

func TestProtectedRoutesRequireBearer(t *testing.T) {
	f := newAPIFixture(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/v1/users/me"},
		{http.MethodPost, "/v1/auth/logout"},
		{http.MethodPost, "/v1/roles"},
	}
	for _, p := range paths {
		rr := f.do(t, p.method, p.path, "")
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401, got %d", p.method, p.path, rr.Code)
		}
	}
}

func TestUserUpdatePermissions(t *testing.T) {
	f := newAPIFixture(t)

	editorID := f.roles.addRole("editor",
		auth.Permission{Resource: "users", Action: "update_own"},
		auth.Permission{Resource: "users", Action: "update_any"})
	memberID := f.roles.addRole("member",
		auth.Permission{Resource: "users", Action: "update_own"})

	aliceBody, _ := f.registerAndLogin(t, "alice@example.com", "pass-word")
	bobBody, _ := f.registerAndLogin(t, "bob@example.com", "pass-word")
	aliceID := aliceBody["user"].(map[string]any)["id"].(string)
	bobID := bobBody["user"].(map[string]any)["id"].(string)

	_ = f.roles.AssignRole(context.Background(), aliceID, editorID)
	_ = f.roles.AssignRole(context.Background(), bobID, memberID)
	// role names were cached empty at login time
	f.resolver.InvalidateUser(context.Background(), aliceID)
	f.resolver.InvalidateUser(context.Background(), bobID)

	aliceAccess := aliceBody["accessToken"].(string)
	bobAccess := bobBody["accessToken"].(string)

	// self update with update_own
	rr := f.do(t, http.MethodPut, "/v1/users/"+bobID, `{"email":"bob2@example.com"}`, withBearer(bobAccess))
	if rr.Code != http.StatusOK {
		t.Fatalf("self update: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	// cross update with update_any and disjoint roles
	rr = f.do(t, http.MethodPut, "/v1/users/"+bobID, `{"email":"bob3@example.com"}`, withBearer(aliceAccess))
	if rr.Code != http.StatusOK {
		t.Fatalf("cross update: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	// cross update without update_any
	rr = f.do(t, http.MethodPut, "/v1/users/"+aliceID, `{"email":"x@example.com"}`, withBearer(bobAccess))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}

	// shared role vetoes the cross update even with update_any
	_ = f.roles.AssignRole(context.Background(), bobID, editorID)
	f.resolver.InvalidateUser(context.Background(), bobID)
	f.resolver.InvalidateUser(context.Background(), aliceID)
	rr = f.do(t, http.MethodPut, "/v1/users/"+bobID, `{"email":"bob4@example.com"}`, withBearer(aliceAccess))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected veto 403, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestRoleAdministration(t *testing.T) {
	f := newAPIFixture(t)

	adminRole := f.roles.addRole("admin", auth.Permission{Resource: "roles", Action: "manage"})
	adminBody, _ := f.registerAndLogin(t, "root@example.com", "pass-word")
	adminID := adminBody["user"].(map[string]any)["id"].(string)
	_ = f.roles.AssignRole(context.Background(), adminID, adminRole)
	f.resolver.InvalidateUser(context.Background(), adminID)
	adminAccess := adminBody["accessToken"].(string)

	plainBody, _ := f.registerAndLogin(t, "plain@example.com", "pass-word")
	plainAccess := plainBody["accessToken"].(string)
	plainID := plainBody["user"].(map[string]any)["id"].(string)

	// without roles:manage the admin surface is forbidden
	rr := f.do(t, http.MethodPost, "/v1/roles", `{"name":"auditor"}`, withBearer(plainAccess))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}

	rr = f.do(t, http.MethodPost, "/v1/roles", `{"name":"auditor","description":"Reviews accounts"}`, withBearer(adminAccess))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create role: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	created := decodeBody(t, rr)
	roleID := int64(created["id"].(float64))

	rr = f.do(t, http.MethodPost, "/v1/roles", `{"name":"auditor"}`, withBearer(adminAccess))
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate role: expected 409, got %d", rr.Code)
	}

	// grant the new role a permission set and assign it
	rr = f.do(t, http.MethodPut, "/v1/roles/"+itoa(roleID)+"/permissions",
		`{"permissions":[{"resource":"users","action":"update_any"}]}`, withBearer(adminAccess))
	if rr.Code != http.StatusOK {
		t.Fatalf("set permissions: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = f.do(t, http.MethodPost, "/v1/users/"+plainID+"/roles/"+itoa(roleID), "", withBearer(adminAccess))
	if rr.Code != http.StatusOK {
		t.Fatalf("assign role: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	// the grant is live: cache was invalidated on assignment
	rr = f.do(t, http.MethodPut, "/v1/users/"+adminID, `{"email":"root2@example.com"}`, withBearer(plainAccess))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected granted update, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = f.do(t, http.MethodDelete, "/v1/users/"+plainID+"/roles/"+itoa(roleID), "", withBearer(adminAccess))
	if rr.Code != http.StatusOK {
		t.Fatalf("remove role: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	rr = f.do(t, http.MethodPut, "/v1/users/"+adminID, `{"email":"root3@example.com"}`, withBearer(plainAccess))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 after removal, got %d", rr.Code)
	}
}

func TestHealthAndReady(t *testing.T) {
	f := newAPIFixture(t)

	rr := f.do(t, http.MethodGet, "/healthz", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", rr.Code)
	}
	rr = f.do(t, http.MethodGet, "/readyz", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("readyz: expected 200, got %d", rr.Code)
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}

func TestLogoutAlwaysClearsRefreshCookie(t *testing.T) {
	f := newAPIFixture(t)
	_, cookie := f.registerAndLogin(t, "erin@example.com", "pass-word")

	// no bearer at all: still 401, but the stale cookie must not survive
	rr := f.do(t, http.MethodPost, "/v1/auth/logout", "", withCookie(cookie.Name, cookie.Value))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	assertCookieCleared(t, rr, cookie.Name)

	// garbage bearer: same deal
	rr = f.do(t, http.MethodPost, "/v1/auth/logout", "",
		withBearer("not-a-jwt"), withCookie(cookie.Name, cookie.Value))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	assertCookieCleared(t, rr, cookie.Name)
}

func assertCookieCleared(t *testing.T, rr *httptest.ResponseRecorder, name string) {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == name && c.MaxAge < 0 {
			return
		}
	}
	t.Fatalf("expected the %s cookie to be cleared", name)
}

func TestAuthEventsStream(t *testing.T) {
	f := newAPIFixture(t)

	adminRole := f.roles.addRole("admin", auth.Permission{Resource: "roles", Action: "manage"})
	adminBody, _ := f.registerAndLogin(t, "root@example.com", "pass-word")
	adminID := adminBody["user"].(map[string]any)["id"].(string)
	_ = f.roles.AssignRole(context.Background(), adminID, adminRole)
	f.resolver.InvalidateUser(context.Background(), adminID)
	adminAccess := adminBody["accessToken"].(string)

	// the stream is part of the admin surface
	plainBody, _ := f.registerAndLogin(t, "plain@example.com", "pass-word")
	rr := f.do(t, http.MethodGet, "/v1/auth/events", "", withBearer(plainBody["accessToken"].(string)))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without roles:manage, got %d", rr.Code)
	}

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/v1/auth/events", nil).WithContext(ctx)
	withBearer(adminAccess)(req)
	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		f.handler.ServeHTTP(rec, req)
		close(done)
	}()

	// keep publishing until the subscriber is registered
	for i := 0; i < 20; i++ {
		f.events.Publish(stream.Event{Type: stream.EventLogin, UserID: adminID})
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream handler did not stop on context cancel")
	}

	body := rec.Body.String()
	if !strings.Contains(body, "event: "+stream.EventLogin) {
		t.Fatalf("expected a login event in the stream, got %q", body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
}
