/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/kentakayama/uptane-trust/internal/domain/model"
	"github.com/kentakayama/uptane-trust/internal/tuf"
)

const (
	maxMetadataBodyBytes = 1 << 20  // 1 MiB is far above every role limit.
	maxTargetBodyBytes   = 64 << 20 // 64 MiB
	defaultReportLimit   = 20
)

type handler struct {
	repos  Repositories
	router *mux.Router
	logger logrus.FieldLogger
}

type responseSpec struct {
	status      int
	body        []byte
	contentType string
}

func newHandler(repos Repositories, gatherer prometheus.Gatherer, logger logrus.FieldLogger) (*handler, error) {
	h := &handler{
		repos:  repos,
		logger: logger,
	}

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/ecus/{serial}/reports", h.listReports).Methods(http.MethodGet)
	r.HandleFunc("/{repo}/targets/{path:.+}", h.getTarget).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/{repo}/targets/{path:.+}", h.putTarget).Methods(http.MethodPut)
	r.HandleFunc("/{repo}/{file:[^/]+\\.json}", h.getMetadata).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/{repo}/{file:[^/]+\\.json}", h.putMetadata).Methods(http.MethodPut)
	r.Use(h.logRequests)
	h.router = r

	return h, nil
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.logger.WithFields(logrus.Fields{
			"method":  r.Method,
			"path":    r.URL.Path,
			"elapsed": time.Since(start),
		}).Debug("request served")
	})
}

func repoOf(r *http.Request) (tuf.RepoKind, bool) {
	repo, err := tuf.ParseRepoKind(mux.Vars(r)["repo"])
	return repo, err == nil
}

func (h *handler) getMetadata(w http.ResponseWriter, r *http.Request) {
	repo, ok := repoOf(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	role, version, err := tuf.ParseRoleFileName(mux.Vars(r)["file"])
	if err != nil {
		http.NotFound(w, r)
		return
	}

	m, err := h.repos.Metadata.FindByVersion(r.Context(), repo.String(), role.Name(), version)
	if err != nil {
		h.logger.Errorf("failed to find metadata: %v", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if m == nil {
		http.NotFound(w, r)
		return
	}

	h.writeResponse(w, responseSpec{
		status:      http.StatusOK,
		body:        m.Raw,
		contentType: "application/json",
	})
}

func (h *handler) putMetadata(w http.ResponseWriter, r *http.Request) {
	repo, ok := repoOf(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	role, version, err := tuf.ParseRoleFileName(mux.Vars(r)["file"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	body, ok := h.readBody(w, r, maxMetadataBodyBytes)
	if !ok {
		return
	}
	if !json.Valid(body) {
		http.Error(w, "metadata is not valid JSON", http.StatusBadRequest)
		return
	}

	_, err = h.repos.Metadata.Create(r.Context(), &model.Metadata{
		Repository: repo.String(),
		Role:       role.Name(),
		Version:    version,
		Raw:        body,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		h.logger.Errorf("failed to store metadata: %v", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.logger.WithFields(logrus.Fields{"repo": repo.String(), "role": role.Name(), "version": version}).Info("metadata published")
	h.writeResponse(w, responseSpec{status: http.StatusNoContent})
}

func (h *handler) getTarget(w http.ResponseWriter, r *http.Request) {
	repo, ok := repoOf(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	t, err := h.repos.Targets.FindByPath(r.Context(), repo.String(), mux.Vars(r)["path"])
	if err != nil {
		h.logger.Errorf("failed to find target: %v", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if t == nil {
		http.NotFound(w, r)
		return
	}
	h.writeResponse(w, responseSpec{
		status:      http.StatusOK,
		body:        t.Content,
		contentType: "application/octet-stream",
	})
}

func (h *handler) putTarget(w http.ResponseWriter, r *http.Request) {
	repo, ok := repoOf(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	body, ok := h.readBody(w, r, maxTargetBodyBytes)
	if !ok {
		return
	}
	path := mux.Vars(r)["path"]
	_, err := h.repos.Targets.Create(r.Context(), &model.TargetFile{
		Repository: repo.String(),
		Path:       path,
		Content:    body,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		h.logger.Errorf("failed to store target: %v", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.logger.WithFields(logrus.Fields{"repo": repo.String(), "target": path, "length": len(body)}).Info("target published")
	h.writeResponse(w, responseSpec{status: http.StatusNoContent})
}

type reportJSON struct {
	Session    string    `json:"session"`
	TargetPath string    `json:"target,omitempty"`
	Accepted   bool      `json:"accepted"`
	Code       string    `json:"code,omitempty"`
	Message    string    `json:"message,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func (h *handler) listReports(w http.ResponseWriter, r *http.Request) {
	if h.repos.Reports == nil {
		http.NotFound(w, r)
		return
	}
	limit := defaultReportLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	reports, err := h.repos.Reports.ListByEcu(r.Context(), mux.Vars(r)["serial"], limit)
	if err != nil {
		h.logger.Errorf("failed to list reports: %v", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	out := make([]reportJSON, 0, len(reports))
	for _, rep := range reports {
		out = append(out, reportJSON{
			Session:    rep.Session,
			TargetPath: rep.TargetPath,
			Accepted:   rep.Accepted,
			Code:       rep.Code,
			Message:    rep.Message,
			CreatedAt:  rep.CreatedAt,
		})
	}
	body, err := json.Marshal(out)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.writeResponse(w, responseSpec{status: http.StatusOK, body: body, contentType: "application/json"})
}

func (h *handler) readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		h.logger.Warnf("failed reading request body: %v", err)
		http.Error(w, "failed to read request body", http.StatusRequestEntityTooLarge)
		return nil, false
	}
	return body, true
}

func (h *handler) writeResponse(w http.ResponseWriter, spec responseSpec) {
	w.Header().Set("Server", "uptane-trust")

	if len(spec.body) > 0 {
		for k, v := range defaultHeaders {
			w.Header().Set(k, v)
		}
		w.Header().Set("Content-Type", spec.contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(spec.body)))
		w.WriteHeader(spec.status)
		if _, err := w.Write(spec.body); err != nil {
			h.logger.Warnf("failed writing response body: %v", err)
		}
		return
	}

	w.WriteHeader(spec.status)
}

var defaultHeaders = map[string]string{
	"Cache-Control":          "no-store",
	"X-Content-Type-Options": "nosniff",
	"Referrer-Policy":        "no-referrer",
}
