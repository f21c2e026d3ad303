package main

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/brunobiangulo/pidscan"
)

type handler struct {
	engine      pidscan.Engine
	sessionRoot string
}

func newHandler(e pidscan.Engine, sessionRoot string) *handler {
	if sessionRoot == "" {
		sessionRoot = "sessions"
	}
	return &handler{engine: e, sessionRoot: sessionRoot}
}

// POST /upload
func (h *handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	sessionID, err := h.engine.Upload(r.Context(), file, header.Filename)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"session_id": sessionID,
		"file_name":  header.Filename,
		"status":     "processing",
	})
}

// GET /sessions
func (h *handler) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.engine.Sessions(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// GET /results/{id}
func (h *handler) handleResults(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	result, err := h.engine.Results(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GET /symbols/{id}?category=...&search=...
func (h *handler) handleSymbols(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	category := r.URL.Query().Get("category")
	search := r.URL.Query().Get("search")
	symbols, err := h.engine.Symbols(r.Context(), id, category, search)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"symbols": symbols,
		"count":   len(symbols),
	})
}

// POST /sessions/{id}/cancel
func (h *handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.engine.Cancel(r.Context(), id); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// chatRequest is the POST /chat body.
type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// POST /chat
func (h *handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "session_id and message are required")
		return
	}

	resp, err := h.engine.Chat(r.Context(), req.SessionID, req.Message)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// sessionFilePath resolves a session-relative filename to an on-disk path,
// rejecting any attempt to escape the session directory.
func (h *handler) sessionFilePath(sessionID, filename string) (string, error) {
	if strings.Contains(filename, "..") {
		return "", errors.New("invalid filename")
	}
	dir := filepath.Join(h.sessionRoot, filepath.Clean("/"+sessionID))
	path := filepath.Join(dir, filepath.Clean("/"+filename))
	if !strings.HasPrefix(path, dir+string(filepath.Separator)) && path != dir {
		return "", errors.New("invalid filename")
	}
	return path, nil
}

// GET /download/{id}/{filename}
func (h *handler) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	filename := r.PathValue("filename")

	path, err := h.sessionFilePath(id, filename)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filepath.Base(path)))
	http.ServeFile(w, r, path)
}

// GET /download/{id}
func (h *handler) handleDownloadSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	dir := filepath.Join(h.sessionRoot, filepath.Clean("/"+id))
	entries, err := os.ReadDir(dir)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="pidscan_%s.zip"`, id))

	zw := zip.NewWriter(w)
	defer zw.Close()

	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		if err := addFileToZip(zw, dir, de.Name()); err != nil {
			return
		}
	}
}

func addFileToZip(zw *zip.Writer, dir, name string) error {
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return err
	}
	defer f.Close()

	entry, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(entry, f)
	return err
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pidscan.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, pidscan.ErrInvalidUpload), errors.Is(err, pidscan.ErrUnsupportedKind),
		errors.Is(err, pidscan.ErrNonSelectQuery):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
