package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/iotmon/internal/device"
)

// handleListDevices returns all devices, optionally filtered by ?state=.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	var filter device.State
	if raw := r.URL.Query().Get("state"); raw != "" {
		state, err := device.ParseState(strings.ToUpper(raw))
		if err != nil {
			writeBadRequest(w, err.Error())
			return
		}
		filter = state
	}

	devices, err := s.devices.List(r.Context())
	if err != nil {
		s.logger.Error("listing devices failed", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}

	if filter != "" {
		matched := make([]device.Device, 0, len(devices))
		for _, d := range devices {
			if d.State == filter {
				matched = append(matched, d)
			}
		}
		devices = matched
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by address.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	dev, err := s.devices.Get(r.Context(), address)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("loading device failed", "address", address, "error", err)
		writeInternalError(w, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// handleDeviceTransitions returns the transition history of one device.
func (s *Server) handleDeviceTransitions(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	if _, err := s.devices.Get(r.Context(), address); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	s.writeHistory(w, r, address)
}

// handleListTransitions returns the transition history of all devices.
func (s *Server) handleListTransitions(w http.ResponseWriter, r *http.Request) {
	s.writeHistory(w, r, "")
}

func (s *Server) writeHistory(w http.ResponseWriter, r *http.Request, address string) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	transitions, err := s.transitions.History(r.Context(), address, limit)
	if err != nil {
		s.logger.Error("loading transitions failed", "address", address, "error", err)
		writeInternalError(w, "failed to load transitions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"transitions": transitions, "count": len(transitions)})
}
