package stubserver

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/muurk/sensorlink/internal/connection"
	"github.com/muurk/sensorlink/internal/logging"
)

const maxBody = 1 << 20

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)

	s.router.Post(connection.ProvisionPath+"{name}", s.handleSetup)
	s.router.Post(connection.PostSuffix, s.handlePush)
	s.router.Post(connection.PingSuffix, s.handlePing)
	s.router.Get(connection.ParamsSuffix+"{name}", s.handleParams)

	s.router.Get("/ip", s.handleIP)
	s.router.Get("/devices", s.handleDevices)
	s.router.Get("/feed", s.handleFeed)
}

// requestLogger logs every request through zap.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logging.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("user_agent", r.UserAgent()),
		)
	})
}

func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := r.ParseForm(); err != nil {
		s.reject(w, r, EventProvision, name, http.StatusBadRequest, "invalid form body")
		return
	}
	if formName := r.PostForm.Get("name"); formName != "" && formName != name {
		s.reject(w, r, EventProvision, name, http.StatusBadRequest, "name does not match the URL")
		return
	}

	cred, err := s.registry.Register(name, r.PostForm.Get("serial_number"), r.PostForm.Get("provtok"))
	switch {
	case errors.Is(err, ErrTokenRejected):
		s.reject(w, r, EventProvision, name, http.StatusForbidden, err.Error())
		return
	case errors.Is(err, ErrNameTaken):
		s.reject(w, r, EventProvision, name, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.reject(w, r, EventProvision, name, http.StatusInternalServerError, err.Error())
		return
	}

	logging.Info("Device provisioned",
		zap.String("name", name),
		zap.String("serial", r.PostForm.Get("serial_number")),
	)
	s.publish(r, EventProvision, name, http.StatusOK, nil)
	writeJSON(w, http.StatusOK, cred)
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		s.reject(w, r, EventPush, "", http.StatusRequestEntityTooLarge, "body too large")
		return
	}

	var payload connection.PushPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		s.reject(w, r, EventPush, "", http.StatusBadRequest, "body is not a push payload")
		return
	}
	if _, ok := s.registry.Authenticate(payload.SensorName, payload.Token); !ok {
		s.reject(w, r, EventPush, payload.SensorName, http.StatusUnauthorized, "unknown device token")
		return
	}

	s.registry.Touch(payload.Token, true)
	s.publish(r, EventPush, payload.SensorName, http.StatusOK, body)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := r.ParseForm(); err != nil {
		s.reject(w, r, EventPing, "", http.StatusBadRequest, "invalid form body")
		return
	}

	name, token := r.PostForm.Get("sensor_name"), r.PostForm.Get("token")
	if _, ok := s.registry.Authenticate(name, token); !ok {
		s.reject(w, r, EventPing, name, http.StatusUnauthorized, "unknown device token")
		return
	}

	fields := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		if k != "token" {
			fields[k] = r.PostForm.Get(k)
		}
	}
	payload, _ := json.Marshal(fields)

	s.registry.Touch(token, false)
	s.publish(r, EventPing, name, http.StatusOK, payload)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := s.registry.Authenticate(name, r.URL.Query().Get("token")); !ok {
		s.reject(w, r, EventParams, name, http.StatusUnauthorized, "unknown device token")
		return
	}

	params, err := s.params.load()
	if err != nil {
		logging.Error("Failed to load params", zap.Error(err))
		s.reject(w, r, EventParams, name, http.StatusInternalServerError, "params unavailable")
		return
	}

	s.publish(r, EventParams, name, http.StatusOK, nil)
	writeJSON(w, http.StatusOK, params)
}

// handleIP echoes the caller address in the format of the public IP lookup.
func (s *Server) handleIP(w http.ResponseWriter, r *http.Request) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	writeJSON(w, http.StatusOK, map[string]string{"ip": host})
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Devices())
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	// Subscribe first so no event is missed between the handshake and
	// the first read.
	events, cancel := s.hub.Subscribe()
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		logging.Warn("Feed upgrade failed", zap.Error(err))
		return
	}
	streamEvents(conn, events, r.RemoteAddr)
}

func (s *Server) reject(w http.ResponseWriter, r *http.Request, kind, node string, status int, msg string) {
	logging.Warn("Request rejected",
		zap.String("kind", kind),
		zap.String("sensor_name", node),
		zap.Int("status", status),
		zap.String("reason", msg),
	)
	detail, _ := json.Marshal(map[string]string{"op": kind, "error": msg})
	s.publish(r, EventRejected, node, status, detail)
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) publish(r *http.Request, kind, node string, status int, payload []byte) {
	s.hub.Publish(Event{
		Time:       time.Now().UTC(),
		Kind:       kind,
		Node:       node,
		RemoteAddr: r.RemoteAddr,
		RequestID:  middleware.GetReqID(r.Context()),
		Status:     status,
		Payload:    payload,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("Failed to write response", zap.Error(err))
	}
}
