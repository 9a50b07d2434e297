package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"espmonitor/network"
	"espmonitor/session"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 1 << 20

type H map[string]any

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, detail string) {
	respondJSON(w, status, H{"detail": detail})
}

// decodeBody parses a JSON body into v. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

type attachRequest struct {
	Port     string `json:"port"`
	BaudRate *int   `json:"baudrate"`
}

type writeRequest struct {
	Data    string `json:"data"`
	Newline *bool  `json:"newline"`
}

func (s *Server) handlePorts(w http.ResponseWriter, r *http.Request) {
	ports, err := s.listPorts()
	if err != nil {
		s.logger.Error("Port enumeration failed", "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, H{"ports": ports})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.status.Snapshot())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, H{
		"status":      "healthy",
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"subscribers": s.broadcaster.Count(),
	})
}

func (s *Server) handleAttach(w http.ResponseWriter, r *http.Request) {
	var req attachRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	baud := s.defaultBaud
	if req.BaudRate != nil {
		baud = *req.BaudRate
	}

	err := s.session.Attach(req.Port, baud)
	var openErr *session.PortOpenError
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, H{"ok": true})
	case errors.Is(err, session.ErrPortBusy):
		respondError(w, http.StatusConflict, err.Error())
	case errors.As(err, &openErr):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrManagerClosed):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("Attach failed", "port", req.Port, "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleDetach(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Detach(); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, H{"ok": true})
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	var req writeRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	newline := true
	if req.Newline != nil {
		newline = *req.Newline
	}

	err := s.session.Write([]byte(req.Data), newline)
	var writeErr *session.WriteError
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, H{"ok": true})
	case errors.Is(err, session.ErrNotAttached):
		respondError(w, http.StatusConflict, err.Error())
	case errors.As(err, &writeErr):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleNetworkConnect(w http.ResponseWriter, r *http.Request) {
	s.networkControl(w, r, true)
}

func (s *Server) handleNetworkDisconnect(w http.ResponseWriter, r *http.Request) {
	s.networkControl(w, r, false)
}

func (s *Server) networkControl(w http.ResponseWriter, r *http.Request, connect bool) {
	var creds network.Credentials
	if err := decodeBody(w, r, &creds); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var err error
	if connect {
		err = s.network.Connect(r.Context(), creds)
	} else {
		err = s.network.Disconnect(r.Context(), creds)
	}

	var ce *network.ControlError
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, H{"ok": true, "network_connected": connect})
	case errors.Is(err, network.ErrInvalidCredentials):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &ce):
		s.logger.Warn("Router call failed", "creds", creds, "error", err)
		respondError(w, http.StatusFailedDependency, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}
