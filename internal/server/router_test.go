package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"kutter-server/internal/auth"
	"kutter-server/internal/mailer"
	"kutter-server/internal/model"
	"kutter-server/internal/store"
)

type captureMailer struct {
	mu    sync.Mutex
	codes map[string]string
}

func (m *captureMailer) SendVerificationCode(_ context.Context, email, _, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.codes == nil {
		m.codes = make(map[string]string)
	}
	m.codes[email] = code
	return nil
}

func (m *captureMailer) code(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[email]
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func testTokenConfig() auth.TokenConfig {
	return auth.TokenConfig{Secret: "secret", Expiry: time.Hour, Issuer: "test"}
}

func seedUser(t *testing.T, st *store.Store, username string) model.User {
	t.Helper()
	u, err := st.CreateUser(context.Background(), username, username+"@example.com", "x", "CODE00")
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", username, err)
	}
	return u
}

func postJSON(t *testing.T, r *gin.Engine, path string, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	raw, _ := json.Marshal(body)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func getWithToken(t *testing.T, r *gin.Engine, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterValidation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := newTestStore(t)
	r := NewRouter(Deps{Store: st, TokenConfig: testTokenConfig(), Mailer: mailer.Discard{}})

	cases := []struct {
		name string
		body map[string]any
	}{
		{"bad email", map[string]any{"username": "amy", "email": "not-an-email", "password": "secret1"}},
		{"bad username", map[string]any{"username": "A!", "email": "amy@example.com", "password": "secret1"}},
		{"short password", map[string]any{"username": "amy", "email": "amy@example.com", "password": "abc"}},
	}
	for _, tc := range cases {
		if w := postJSON(t, r, "/register", tc.body); w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d: %s", tc.name, w.Code, w.Body.String())
		}
	}
}

func TestRegisterAndLogin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := newTestStore(t)
	r := NewRouter(Deps{Store: st, TokenConfig: testTokenConfig(), Mailer: mailer.Discard{}})

	w := postJSON(t, r, "/register", map[string]any{
		"username": "amy", "email": "amy@example.com", "password": "secret1",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = postJSON(t, r, "/login", map[string]any{"email": "amy@example.com", "password": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad login: expected 401, got %d: %s", w.Code, w.Body.String())
	}

	w = postJSON(t, r, "/login", map[string]any{"email": "amy@example.com", "password": "secret1"})
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["token"] == "" || resp["token"] == nil {
		t.Fatalf("expected token in login response: %v", resp)
	}
	if !strings.Contains(w.Header().Get("Set-Cookie"), "token=") {
		t.Fatalf("expected token cookie, got %q", w.Header().Get("Set-Cookie"))
	}
}

func TestRegisterDuplicate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := newTestStore(t)
	r := NewRouter(Deps{Store: st, TokenConfig: testTokenConfig(), Mailer: mailer.Discard{}})

	body := map[string]any{"username": "amy", "email": "amy@example.com", "password": "secret1"}
	if w := postJSON(t, r, "/register", body); w.Code != http.StatusCreated {
		t.Fatalf("first register: expected 201, got %d", w.Code)
	}
	if w := postJSON(t, r, "/register", body); w.Code != http.StatusConflict {
		t.Fatalf("second register: expected 409, got %d", w.Code)
	}
}

func TestVerifyEmailFlow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := newTestStore(t)
	mail := &captureMailer{}
	r := NewRouter(Deps{Store: st, TokenConfig: testTokenConfig(), Mailer: mail})

	w := postJSON(t, r, "/register", map[string]any{
		"username": "amy", "email": "amy@example.com", "password": "secret1",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	code := mail.code("amy@example.com")
	if len(code) != 6 {
		t.Fatalf("expected 6-char verification code, got %q", code)
	}

	w = postJSON(t, r, "/verify_email", map[string]any{"email": "amy@example.com", "code": "WRONG0"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong code: expected 401, got %d: %s", w.Code, w.Body.String())
	}

	w = postJSON(t, r, "/verify_email", map[string]any{"email": "amy@example.com", "code": code})
	if w.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = postJSON(t, r, "/verify_email", map[string]any{"email": "amy@example.com", "code": code})
	if w.Code != http.StatusConflict {
		t.Fatalf("already verified: expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestWhoamiAndLogout(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := newTestStore(t)
	tokenCfg := testTokenConfig()
	r := NewRouter(Deps{Store: st, TokenConfig: tokenCfg, Mailer: mailer.Discard{}})

	u := seedUser(t, st, "amy")
	tok, err := auth.CreateToken(u.Email, u.Username, tokenCfg)
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	w := getWithToken(t, r, "/verify", tok)
	if w.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"username":"amy"`) {
		t.Fatalf("expected username in whoami, got %s", w.Body.String())
	}

	req := httptest.NewRequest(http.MethodDelete, "/logout", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Header().Get("Set-Cookie"), "Max-Age=0") {
		t.Fatalf("expected expired cookie, got %q", w.Header().Get("Set-Cookie"))
	}
}

func TestProtectedEndpointsRequireAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := newTestStore(t)
	r := NewRouter(Deps{Store: st, TokenConfig: testTokenConfig(), Mailer: mailer.Discard{}})

	for _, path := range []string{"/chats", "/messages/1", "/friend_req", "/verify"} {
		if w := getWithToken(t, r, path, ""); w.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, w.Code)
		}
	}
}

func TestChatsAndMessages(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	st := newTestStore(t)
	tokenCfg := testTokenConfig()
	r := NewRouter(Deps{Store: st, TokenConfig: tokenCfg, Mailer: mailer.Discard{}})

	amy := seedUser(t, st, "amy")
	seedUser(t, st, "bob")
	zoe := seedUser(t, st, "zoe")

	chat, err := st.CreateChat(ctx, "amy", "bob", time.Now().UnixMilli())
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}
	if _, err := st.InsertMessage(ctx, chat.ID, amy.Email, amy.Username, "hi", nil, nil, time.Now().UnixMilli()); err != nil {
		t.Fatalf("InsertMessage: %v", err)
	}

	amyTok, _ := auth.CreateToken(amy.Email, amy.Username, tokenCfg)
	zoeTok, _ := auth.CreateToken(zoe.Email, zoe.Username, tokenCfg)

	w := getWithToken(t, r, "/chats", amyTok)
	if w.Code != http.StatusOK {
		t.Fatalf("chats: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var chatsResp struct {
		Chats []model.Chat `json:"chats"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &chatsResp); err != nil {
		t.Fatalf("unmarshal chats: %v", err)
	}
	if len(chatsResp.Chats) != 1 || chatsResp.Chats[0].ID != chat.ID {
		t.Fatalf("unexpected chats: %+v", chatsResp.Chats)
	}

	msgPath := fmt.Sprintf("/messages/%d", chat.ID)
	w = getWithToken(t, r, msgPath, amyTok)
	if w.Code != http.StatusOK {
		t.Fatalf("messages: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var msgResp struct {
		Messages []model.Message `json:"messages"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &msgResp); err != nil {
		t.Fatalf("unmarshal messages: %v", err)
	}
	if len(msgResp.Messages) != 1 || msgResp.Messages[0].Message != "hi" {
		t.Fatalf("unexpected messages: %+v", msgResp.Messages)
	}

	if w := getWithToken(t, r, msgPath, zoeTok); w.Code != http.StatusForbidden {
		t.Fatalf("non-member messages: expected 403, got %d", w.Code)
	}
	if w := getWithToken(t, r, "/messages/abc", amyTok); w.Code != http.StatusBadRequest {
		t.Fatalf("bad chat id: expected 400, got %d", w.Code)
	}
}

func TestFriendRequestList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	st := newTestStore(t)
	tokenCfg := testTokenConfig()
	r := NewRouter(Deps{Store: st, TokenConfig: tokenCfg, Mailer: mailer.Discard{}})

	amy := seedUser(t, st, "amy")
	seedUser(t, st, "bob")
	if _, err := st.CreateFriendRequest(ctx, "amy", "bob"); err != nil {
		t.Fatalf("CreateFriendRequest: %v", err)
	}

	amyTok, _ := auth.CreateToken(amy.Email, amy.Username, tokenCfg)
	w := getWithToken(t, r, "/friend_req", amyTok)
	if w.Code != http.StatusOK {
		t.Fatalf("friend_req: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		FriendRequests []model.Friendship `json:"friend_requests"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.FriendRequests) != 1 || resp.FriendRequests[0].Status != model.FriendStatusPending {
		t.Fatalf("unexpected friend requests: %+v", resp.FriendRequests)
	}
}

func TestLoginPasswordsAreBcryptHashed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := newTestStore(t)
	r := NewRouter(Deps{Store: st, TokenConfig: testTokenConfig(), Mailer: mailer.Discard{}})

	w := postJSON(t, r, "/register", map[string]any{
		"username": "amy", "email": "amy@example.com", "password": "secret1",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d", w.Code)
	}

	u, err := st.UserByEmail(context.Background(), "amy@example.com")
	if err != nil {
		t.Fatalf("UserByEmail: %v", err)
	}
	if u.PasswordHash == "secret1" {
		t.Fatal("password stored in plaintext")
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("secret1")) != nil {
		t.Fatal("stored hash does not match password")
	}
}
