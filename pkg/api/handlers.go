package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/boa-dev/conformoor/pkg/api/snapshotstore"
	"github.com/boa-dev/conformoor/pkg/api/store"
	"github.com/boa-dev/conformoor/pkg/dashboard"
	"github.com/boa-dev/conformoor/pkg/report"
)

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// writeHTML serializes a render tree and writes it as an HTML document.
func writeHTML(w http.ResponseWriter, status int, page *dashboard.Node) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)

	_, _ = w.Write([]byte("<!DOCTYPE html>"))
	_, _ = w.Write([]byte(page.HTML()))
}

// --- Page handlers ---

// handleDashboard renders the main conformance page from the cached
// collector state.
func (s *server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	var items []dashboard.ReleaseItem

	releases, err := s.snapStore.ListReleases(r.Context())
	if err != nil {
		s.log.WithError(err).Warn("Failed to list releases for dashboard")
	} else {
		items = make([]dashboard.ReleaseItem, 0, len(releases))
		for i := range releases {
			items = append(items, dashboard.ReleaseItem{
				Tag: releases[i].TagName,
				URL: releases[i].HTMLURL,
			})
		}
	}

	refs := s.cfg.Reports.Refs()

	primaryRef := ""
	if len(refs) > 0 {
		primaryRef = refs[0]
	}

	page := dashboard.Page(
		s.cfg.Reports.GitHubRepo, primaryRef, s.state, items,
	)

	writeHTML(w, http.StatusOK, page)
}

// handleInfoPage renders the extended-information page for a ref: the
// summary panel plus the recursive suite tree. A ref without cached data
// renders the empty containers rather than failing.
func (s *server) handleInfoPage(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "*")

	latest := s.state.Latest(ref)
	if latest == nil {
		s.log.WithField("ref", ref).Debug("No cached data for ref")
	}

	body := dashboard.Element("body",
		dashboard.Element("h1", dashboard.Text("test262 conformance")),
		dashboard.HistorySummary(s.cfg.Reports.GitHubRepo, ref, latest, false),
		dashboard.SuiteTree(latest),
	)

	page := dashboard.Element("html",
		dashboard.Element("head",
			dashboard.Element("meta").WithAttr("charset", "utf-8"),
			dashboard.Element("title",
				dashboard.Text("test262 conformance ("+ref+")")),
		),
		body,
	)

	writeHTML(w, http.StatusOK, page)
}

// --- Public handlers ---

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleConfig returns the public auth, reports and storage configuration.
func (s *server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	api := s.cfg.API

	s3Enabled := api.Storage.S3 != nil && api.Storage.S3.Enabled
	localEnabled := api.Storage.Local != nil && api.Storage.Local.Enabled

	writeJSON(w, http.StatusOK, map[string]any{
		"auth": map[string]any{
			"basic_enabled":  api.Auth.Basic.Enabled,
			"anonymous_read": api.Auth.AnonymousRead,
		},
		"reports": map[string]any{
			"base_url":    s.cfg.Reports.BaseURL,
			"github_repo": s.cfg.Reports.GitHubRepo,
			"refs":        s.cfg.Reports.Refs(),
		},
		"storage": map[string]any{
			"s3":    map[string]any{"enabled": s3Enabled},
			"local": map[string]any{"enabled": localEnabled},
		},
	})
}

// --- Report data handlers ---

// handleInfo serves the engine metadata document verbatim.
func (s *server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	info := s.state.Info()
	if info == nil {
		writeJSON(w, http.StatusNotFound,
			errorResponse{"engine info not collected yet"})

		return
	}

	writeJSON(w, http.StatusOK, info)
}

// handleRefs lists the refs with recorded snapshots.
func (s *server) handleRefs(w http.ResponseWriter, r *http.Request) {
	refs, err := s.snapStore.ListRefs(r.Context())
	if err != nil {
		s.log.WithError(err).Error("Failed to list refs")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	writeJSON(w, http.StatusOK, refs)
}

// handleLatest returns the newest snapshot for a ref. The cached
// collector state is preferred since it carries the suite tree; the
// database covers refs collected before a restart.
func (s *server) handleLatest(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "*")

	if latest := s.state.Latest(ref); latest != nil {
		writeJSON(w, http.StatusOK, latest)

		return
	}

	snap, err := s.snapStore.LatestSnapshot(r.Context(), ref)
	if err != nil {
		s.log.WithError(err).Error("Failed to load latest snapshot")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	if snap == nil {
		writeJSON(w, http.StatusNotFound,
			errorResponse{"no snapshots for ref"})

		return
	}

	writeJSON(w, http.StatusOK, snapshotToLatest(snap))
}

// handleHistory returns the recorded snapshot series for a ref, oldest
// first, mirroring the upstream results.json shape.
func (s *server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "*")

	snaps, err := s.snapStore.ListSnapshots(r.Context(), ref)
	if err != nil {
		s.log.WithError(err).Error("Failed to list snapshots")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	history := make(report.History, 0, len(snaps))
	for i := range snaps {
		history = append(history, *snapshotToLatest(&snaps[i]))
	}

	writeJSON(w, http.StatusOK, history)
}

// handleReleases returns the recorded releases, newest published first.
func (s *server) handleReleases(w http.ResponseWriter, r *http.Request) {
	releases, err := s.snapStore.ListReleases(r.Context())
	if err != nil {
		s.log.WithError(err).Error("Failed to list releases")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	writeJSON(w, http.StatusOK, releases)
}

func snapshotToLatest(snap *snapshotstore.Snapshot) *report.Latest {
	return &report.Latest{
		Commit:  snap.Commit,
		Total:   snap.Total,
		Passed:  snap.Passed,
		Ignored: snap.Ignored,
	}
}

// handleFileRequest serves archived report documents from the configured
// storage backend.
func (s *server) handleFileRequest(w http.ResponseWriter, r *http.Request) {
	filePath := chi.URLParam(r, "*")
	if filePath == "" {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"file path is required"})

		return
	}

	if s.archive == nil {
		writeJSON(w, http.StatusNotFound,
			errorResponse{"storage not configured"})

		return
	}

	data, err := s.archive.GetFile(r.Context(), filePath)
	if err != nil {
		s.log.WithError(err).
			WithField("path", filePath).
			Warn("Failed to read archived file")

		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	if data == nil {
		writeJSON(w, http.StatusNotFound,
			errorResponse{"file not found"})

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))

	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)

		return
	}

	_, _ = w.Write(data)
}

// --- Admin handlers ---

// handleTriggerCollect runs a collection pass outside the regular
// schedule. The pass runs in the background; failures surface in the
// logs the same way scheduled passes do.
func (s *server) handleTriggerCollect(
	w http.ResponseWriter, _ *http.Request,
) {
	if s.collector == nil {
		writeJSON(w, http.StatusServiceUnavailable,
			errorResponse{"collector not enabled"})

		return
	}

	go func() {
		if err := s.collector.RunPass(context.Background()); err != nil {
			s.log.WithError(err).Warn("Triggered collection pass failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// handleDeleteSnapshot removes a recorded snapshot by ID.
func (s *server) handleDeleteSnapshot(
	w http.ResponseWriter, r *http.Request,
) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

		return
	}

	if err := s.snapStore.DeleteSnapshot(r.Context(), id); err != nil {
		s.log.WithError(err).Error("Failed to delete snapshot")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Auth handlers ---

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	User userResponse `json:"user"`
}

type userResponse struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Source   string `json:"source"`
}

// handleLogin authenticates a user with username/password and creates a session.
func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid request body"})

		return
	}

	if req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"username and password are required"})

		return
	}

	user, err := s.store.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized,
			errorResponse{"invalid credentials"})

		return
	}

	if !checkPassword(user.PasswordHash, req.Password) {
		writeJSON(w, http.StatusUnauthorized,
			errorResponse{"invalid credentials"})

		return
	}

	token, err := generateSessionToken()
	if err != nil {
		s.log.WithError(err).Error("Failed to generate session token")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	ttl, _ := time.ParseDuration(s.cfg.API.Auth.SessionTTL)

	session := &store.Session{
		Token:     token,
		UserID:    user.ID,
		ExpiresAt: time.Now().UTC().Add(ttl),
	}

	if err := s.store.CreateSession(r.Context(), session); err != nil {
		s.log.WithError(err).Error("Failed to create session")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"internal error"})

		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
		MaxAge:   int(ttl.Seconds()),
	})

	writeJSON(w, http.StatusOK, loginResponse{
		User: toUserResponse(user),
	})
}

// handleLogout destroys the current session.
func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil {
		_ = s.store.DeleteSession(r.Context(), cookie.Value)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMe returns the currently authenticated user.
func (s *server) handleMe(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	if user == nil {
		writeJSON(w, http.StatusUnauthorized,
			errorResponse{"not authenticated"})

		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func toUserResponse(u *store.User) userResponse {
	return userResponse{
		ID:       u.ID,
		Username: u.Username,
		Role:     u.Role,
		Source:   u.Source,
	}
}

// checkPassword compares a bcrypt hash with a plaintext password.
func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword(
		[]byte(hash), []byte(password),
	) == nil
}
