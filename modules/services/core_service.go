// Copyright 2025 Nhat-Nguyen Nguyen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package services

import (
	"encoding/json"
	"net/http"

	"planhub/modules/server"
)

var _ server.RegistrableService = (*CoreAPIService)(nil)

// CoreAPIService mounts the minimal API surface: liveness, readiness and a
// demo endpoint sitting behind the limiter so the composed middleware chain
// is exercisable end to end.
type CoreAPIService struct {
	// degraded reports whether the limiter is running on its local
	// fallback. The process stays ready either way; the flag is surfaced
	// for operators.
	degraded func() bool
}

func NewCoreAPIService(degraded func() bool) *CoreAPIService {
	if degraded == nil {
		degraded = func() bool { return false }
	}
	return &CoreAPIService{degraded: degraded}
}

// Register mounts the core routes.
func (s *CoreAPIService) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /healthz/ready", func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		if s.degraded() {
			status = "degraded"
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": status})
	})

	mux.HandleFunc("GET /v1/ping", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "pong"})
	})
}

// Middlewares returns no service-specific middlewares; admission control is
// global and wired by the composition root.
func (s *CoreAPIService) Middlewares() []func(http.Handler) http.Handler {
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
