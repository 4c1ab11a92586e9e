// Command target-server serves the endpoints used by the configs in
// examples/, so they can be run locally:
//
//	go run ./scripts/target-server -addr :8080
//	surge run examples/health-ramp.yaml
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type server struct {
	mu       sync.RWMutex
	sessions map[string]string
	latency  time.Duration
}

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	latency := flag.Duration("latency", 0, "maximum random latency added to each response")
	flag.Parse()

	s := &server{sessions: make(map[string]string), latency: *latency}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.health)
	mux.HandleFunc("/api/login", s.login)
	mux.HandleFunc("/api/me", s.me)
	mux.HandleFunc("/status/", s.status)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      5 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}

	log.Printf("Starting target server on %s", *addr)
	log.Printf("Endpoints: GET /health, POST /api/login, GET /api/me, GET /status/{code}")
	if err := srv.ListenAndServe(); err != nil {
		log.Fatal(err)
	}
}

func (s *server) delay() {
	if s.latency > 0 {
		time.Sleep(time.Duration(rand.Int63n(int64(s.latency))))
	}
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	s.delay()
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "healthy")
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Username == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.delay()

	token := uuid.NewString()
	s.mu.Lock()
	s.sessions[token] = body.Username
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *server) me(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	s.mu.RLock()
	username, ok := s.sessions[token]
	s.mu.RUnlock()
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	s.delay()
	writeJSON(w, http.StatusOK, map[string]string{"id": token[:8], "username": username})
}

func (s *server) status(w http.ResponseWriter, r *http.Request) {
	code, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/status/"))
	if err != nil || code < 100 || code > 599 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.delay()
	w.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
