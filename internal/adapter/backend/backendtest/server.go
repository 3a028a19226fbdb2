// Package backendtest runs an in-memory stand-in for the hosted service so
// client and handler tests can exercise real HTTP round trips. It mimics the
// hosted contract: password auth with bearer tokens, an apikey header on
// every call, and upsert-by-date semantics on the weight entry collection.
package backendtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ashmarin/weighttrack/internal/domain/entry"
	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	// APIKey is the anon key the fake accepts. Long enough to pass the
	// client's local key sanity check.
	APIKey = "backendtest-anon-key-0123456789abcdef"

	// JWTSecret signs the access tokens the fake issues.
	JWTSecret = "backendtest-signing-secret"
)

type user struct {
	ID           string
	Email        string
	PasswordHash []byte
}

// Server is the fake hosted service. All state lives in memory and is safe
// for concurrent use.
type Server struct {
	mu            sync.Mutex
	usersByEmail  map[string]*user
	usersByID     map[string]*user
	refreshTokens map[string]string
	entries       map[string][]entry.Entry
	resetEmails   []string
	accessTTL     time.Duration

	httpSrv *httptest.Server
}

func New() *Server {
	s := &Server{
		usersByEmail:  make(map[string]*user),
		usersByID:     make(map[string]*user),
		refreshTokens: make(map[string]string),
		entries:       make(map[string][]entry.Entry),
		accessTTL:     time.Hour,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /auth/v1/signup", s.handleSignUp)
	mux.HandleFunc("POST /auth/v1/token", s.handleToken)
	mux.HandleFunc("POST /auth/v1/logout", s.handleLogout)
	mux.HandleFunc("POST /auth/v1/recover", s.handleRecover)
	mux.HandleFunc("PUT /auth/v1/user", s.handleUpdateUser)
	mux.HandleFunc("GET /v1/users/{userID}/entries", s.handleListEntries)
	mux.HandleFunc("POST /v1/users/{userID}/entries", s.handleAddEntry)
	mux.HandleFunc("PATCH /v1/entries/{id}", s.handleUpdateEntry)
	mux.HandleFunc("DELETE /v1/entries/{id}", s.handleDeleteEntry)

	s.httpSrv = httptest.NewServer(s.requireAPIKey(mux))
	return s
}

func (s *Server) URL() string {
	return s.httpSrv.URL
}

func (s *Server) Close() {
	s.httpSrv.Close()
}

// SetAccessTTL shortens token lifetime so refresh paths can be tested.
func (s *Server) SetAccessTTL(ttl time.Duration) {
	s.mu.Lock()
	s.accessTTL = ttl
	s.mu.Unlock()
}

// SeedUser registers a user directly, bypassing the signup endpoint.
func (s *Server) SeedUser(email, password string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	u := &user{ID: uuid.NewString(), Email: email, PasswordHash: hash}

	s.mu.Lock()
	s.usersByEmail[email] = u
	s.usersByID[u.ID] = u
	s.mu.Unlock()
	return u.ID
}

// SeedEntry inserts an entry directly and returns it.
func (s *Server) SeedEntry(userID, date string, weight float64) entry.Entry {
	e := entry.Entry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Weight:    weight,
		Date:      date,
		CreatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.entries[userID] = append(s.entries[userID], e)
	s.mu.Unlock()
	return e
}

// EntriesOf returns a copy of a user's stored entries in insertion order.
func (s *Server) EntriesOf(userID string) []entry.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entry.Entry, len(s.entries[userID]))
	copy(out, s.entries[userID])
	return out
}

// ResetEmails lists the addresses password resets were requested for.
func (s *Server) ResetEmails() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.resetEmails))
	copy(out, s.resetEmails)
	return out
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("apikey") != APIKey {
			writeError(w, http.StatusUnauthorized, "invalid_api_key", "No API key found in request")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed body")
		return
	}

	s.mu.Lock()
	if _, exists := s.usersByEmail[c.Email]; exists {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "user_exists", "user already registered")
		return
	}
	s.mu.Unlock()

	s.SeedUser(c.Email, c.Password)
	s.issueSession(w, c.Email)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("grant_type") {
	case "password":
		var c credentials
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "malformed body")
			return
		}

		s.mu.Lock()
		u, ok := s.usersByEmail[c.Email]
		s.mu.Unlock()
		if !ok || bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(c.Password)) != nil {
			writeError(w, http.StatusBadRequest, "invalid_credentials", "invalid login credentials")
			return
		}
		s.issueSession(w, c.Email)

	case "refresh_token":
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "malformed body")
			return
		}

		s.mu.Lock()
		userID, ok := s.refreshTokens[body.RefreshToken]
		if ok {
			delete(s.refreshTokens, body.RefreshToken)
		}
		u := s.usersByID[userID]
		s.mu.Unlock()

		if !ok || u == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "refresh token is invalid or revoked")
			return
		}
		s.issueSession(w, u.Email)

	default:
		writeError(w, http.StatusBadRequest, "bad_request", "unsupported grant type")
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	u, ok := s.authenticate(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid bearer token")
		return
	}

	s.mu.Lock()
	for token, userID := range s.refreshTokens {
		if userID == u.ID {
			delete(s.refreshTokens, token)
		}
	}
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed body")
		return
	}

	s.mu.Lock()
	s.resetEmails = append(s.resetEmails, body.Email)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{})
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	u, ok := s.authenticate(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid bearer token")
		return
	}

	var body struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Password == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed body")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.MinCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	s.mu.Lock()
	u.PasswordHash = hash
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"id": u.ID})
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	u, ok := s.authenticate(r)
	if !ok || u.ID != r.PathValue("userID") {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid bearer token")
		return
	}

	s.mu.Lock()
	all := make([]entry.Entry, len(s.entries[u.ID]))
	copy(all, s.entries[u.ID])
	s.mu.Unlock()

	desc := r.URL.Query().Get("order") == "desc"
	sort.SliceStable(all, func(i, j int) bool {
		if desc {
			return all[i].Date > all[j].Date
		}
		return all[i].Date < all[j].Date
	})

	resp := listResponse{Entries: all, TotalCount: len(all)}

	if pageStr := r.URL.Query().Get("page"); pageStr != "" {
		page, _ := strconv.Atoi(pageStr)
		pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
		if page < 1 || pageSize < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid pagination")
			return
		}
		from := (page - 1) * pageSize
		to := from + pageSize
		if from > len(all) {
			from = len(all)
		}
		if to > len(all) {
			to = len(all)
		}
		resp.Entries = all[from:to]
	}

	if resp.Entries == nil {
		resp.Entries = []entry.Entry{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAddEntry(w http.ResponseWriter, r *http.Request) {
	u, ok := s.authenticate(r)
	if !ok || u.ID != r.PathValue("userID") {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid bearer token")
		return
	}

	var body struct {
		Date   string  `json:"date"`
		Weight float64 `json:"weight"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Upsert keyed by (user, date): a second measurement for the same day
	// replaces the weight, it never creates a second row.
	for i, e := range s.entries[u.ID] {
		if e.Date == body.Date {
			s.entries[u.ID][i].Weight = body.Weight
			writeJSON(w, http.StatusOK, s.entries[u.ID][i])
			return
		}
	}

	e := entry.Entry{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		Weight:    body.Weight,
		Date:      body.Date,
		CreatedAt: time.Now().UTC(),
	}
	s.entries[u.ID] = append(s.entries[u.ID], e)
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	u, ok := s.authenticate(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid bearer token")
		return
	}

	var body struct {
		Date   string  `json:"date"`
		Weight float64 `json:"weight"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed body")
		return
	}

	id := r.PathValue("id")

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.entries[u.ID] {
		if e.ID != id {
			continue
		}
		for _, other := range s.entries[u.ID] {
			if other.ID != id && other.Date == body.Date {
				writeError(w, http.StatusConflict, "date_conflict", "an entry for this date already exists")
				return
			}
		}
		s.entries[u.ID][i].Date = body.Date
		s.entries[u.ID][i].Weight = body.Weight
		writeJSON(w, http.StatusOK, s.entries[u.ID][i])
		return
	}
	writeError(w, http.StatusNotFound, "not_found", "entry not found")
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	u, ok := s.authenticate(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid bearer token")
		return
	}

	id := r.PathValue("id")

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.entries[u.ID] {
		if e.ID == id {
			s.entries[u.ID] = append(s.entries[u.ID][:i], s.entries[u.ID][i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeError(w, http.StatusNotFound, "not_found", "entry not found")
}

func (s *Server) issueSession(w http.ResponseWriter, email string) {
	s.mu.Lock()
	u := s.usersByEmail[email]
	ttl := s.accessTTL
	s.mu.Unlock()

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   u.ID,
		"email": u.Email,
		"exp":   now.Add(ttl).Unix(),
		"iat":   now.Unix(),
	})
	accessToken, err := token.SignedString([]byte(JWTSecret))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	refreshToken := uuid.NewString()
	s.mu.Lock()
	s.refreshTokens[refreshToken] = u.ID
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, sessionResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(ttl.Seconds()),
		User:         sessionUser{ID: u.ID, Email: u.Email},
	})
}

func (s *Server) authenticate(r *http.Request) (*user, bool) {
	header := r.Header.Get("Authorization")
	raw, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return nil, false
	}

	claims := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(JWTSecret), nil
	}); err != nil {
		return nil, false
	}

	sub, _ := claims["sub"].(string)

	s.mu.Lock()
	u, ok := s.usersByID[sub]
	s.mu.Unlock()
	return u, ok
}

type sessionUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type sessionResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int         `json:"expires_in"`
	User         sessionUser `json:"user"`
}

type listResponse struct {
	Entries    []entry.Entry `json:"entries"`
	TotalCount int           `json:"total_count"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}
