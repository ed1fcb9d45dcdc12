// Package fakeserver provides an in-process record service speaking the real
// wire protocol, for integration-style tests. It implements the paginated
// listing, create, versioned update, delete and batch conflict-check
// endpoints plus the websocket live channel, and can be switched into an
// "unreachable" mode that drops connections so tests can exercise the
// offline fallback paths without a network.
package fakeserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/offlinekit/recsync/pkg/models"
)

// Server holds records in memory, versions them on every accepted update and
// broadcasts created/updated/deleted events to all live channel subscribers.
type Server struct {
	mu          sync.Mutex
	records     map[string]models.Record
	order       []string // listing order, oldest first
	nextID      int
	owners      map[string]string // bearer token -> owner ID; empty disables auth
	unavailable bool
	conns       map[*websocket.Conn]bool

	httpServer *httptest.Server
	upgrader   websocket.Upgrader
}

func New() *Server {
	s := &Server{
		records: make(map[string]models.Record),
		owners:  make(map[string]string),
		conns:   make(map[*websocket.Conn]bool),
	}

	router := mux.NewRouter()
	router.HandleFunc("/api/item/conflicts", s.handleConflicts).Methods(http.MethodPost)
	router.HandleFunc("/api/item", s.handleList).Methods(http.MethodGet)
	router.HandleFunc("/api/item", s.handleCreate).Methods(http.MethodPost)
	router.HandleFunc("/api/item/{id}", s.handleUpdate).Methods(http.MethodPut)
	router.HandleFunc("/api/item/{id}", s.handleDelete).Methods(http.MethodDelete)
	router.HandleFunc("/", s.handleLive)

	s.httpServer = httptest.NewServer(router)
	return s
}

// URL is the service base URL, e.g. "http://127.0.0.1:43211".
func (s *Server) URL() string {
	return s.httpServer.URL
}

func (s *Server) Close() {
	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.conns = make(map[*websocket.Conn]bool)
	s.mu.Unlock()
	s.httpServer.Close()
}

// Authorize registers a bearer token and the owner it acts for. Once any
// token is registered, requests with unknown tokens are rejected.
func (s *Server) Authorize(token, ownerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owners[token] = ownerID
}

// SetUnavailable makes every subsequent request fail at the transport level,
// simulating an unreachable server.
func (s *Server) SetUnavailable(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = down
}

// Seed stores records directly, bypassing versioning and events. Records
// without a version get version 1.
func (s *Server) Seed(records ...models.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		if r.Version == 0 {
			r.Version = 1
		}
		if _, ok := s.records[r.ID]; !ok {
			s.order = append(s.order, r.ID)
		}
		s.records[r.ID] = r
	}
}

// Record returns the server's current copy, for assertions.
func (s *Server) Record(id string) (models.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	return r, ok
}

// Bump increments a record's version server-side, simulating a concurrent
// writer.
func (s *Server) Bump(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.records[id]
	r.Version++
	s.records[id] = r
}

// Subscribers reports how many live channel connections are registered.
func (s *Server) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Broadcast pushes an event to every live channel subscriber.
func (s *Server) Broadcast(event models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcastLocked(event)
}

func (s *Server) broadcastLocked(event models.Event) {
	for conn := range s.conns {
		if err := conn.WriteJSON(event); err != nil {
			conn.Close()
			delete(s.conns, conn)
		}
	}
}

// dropConnection hijacks and closes the underlying TCP connection so the
// client observes a transport error rather than an HTTP status.
func (s *Server) dropConnection(w http.ResponseWriter) {
	if hj, ok := w.(http.Hijacker); ok {
		if conn, _, err := hj.Hijack(); err == nil {
			conn.Close()
			return
		}
	}
	panic(http.ErrAbortHandler)
}

// gate enforces the unavailable switch and the bearer token. It reports
// whether the request may proceed.
func (s *Server) gate(w http.ResponseWriter, r *http.Request) (string, bool) {
	s.mu.Lock()
	down := s.unavailable
	s.mu.Unlock()
	if down {
		s.dropConnection(w)
		return "", false
	}

	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.owners) == 0 {
		return "", true
	}
	owner, ok := s.owners[token]
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return "", false
	}
	return owner, true
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.gate(w, r); !ok {
		return
	}
	query := r.URL.Query()
	offset, _ := strconv.Atoi(query.Get("offset"))
	size, _ := strconv.Atoi(query.Get("size"))

	filter := models.Filter{NamePrefix: query.Get("nameFilter")}
	if v := query.Get("isGood"); v != "" {
		good := v == "true"
		filter.Good = &good
	}

	s.mu.Lock()
	matched := make([]models.Record, 0)
	for _, id := range s.order {
		record := s.records[id]
		if filter.Match(record) {
			matched = append(matched, record)
		}
	}
	s.mu.Unlock()

	if offset > len(matched) {
		offset = len(matched)
	}
	end := len(matched)
	if size > 0 && offset+size < end {
		end = offset + size
	}
	writeJSON(w, http.StatusOK, matched[offset:end])
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.gate(w, r)
	if !ok {
		return
	}
	var record models.Record
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if record.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	created := s.createLocked(record, owner)
	s.broadcastLocked(models.Event{Type: models.EventCreated, Record: created})
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, created)
}

func (s *Server) createLocked(record models.Record, owner string) models.Record {
	s.nextID++
	record.ID = fmt.Sprintf("srv-%d", s.nextID)
	record.Version = 1
	record.Pending = false
	if owner != "" {
		record.OwnerID = owner
	}
	s.records[record.ID] = record
	s.order = append(s.order, record.ID)
	return record
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.gate(w, r); !ok {
		return
	}
	id := mux.Vars(r)["id"]
	var incoming models.Record
	if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	current, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if incoming.Version != current.Version {
		// Stale version: echo the authoritative record, leave it untouched.
		s.mu.Unlock()
		writeJSON(w, http.StatusConflict, current)
		return
	}
	incoming.ID = id
	incoming.Version = current.Version + 1
	s.records[id] = incoming
	s.broadcastLocked(models.Event{Type: models.EventUpdated, Record: incoming})
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, incoming)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.gate(w, r); !ok {
		return
	}
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	record, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	delete(s.records, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.broadcastLocked(models.Event{Type: models.EventDeleted, Record: record})
	s.mu.Unlock()

	w.WriteHeader(http.StatusOK)
}

// handleConflicts implements the batch conflict check: for every submitted
// record that never reached the server it creates it and returns the created
// version; for every stale record it returns the current authoritative
// version. Records that match the server copy produce no pair.
func (s *Server) handleConflicts(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.gate(w, r)
	if !ok {
		return
	}
	var locals []models.Record
	if err := json.NewDecoder(r.Body).Decode(&locals); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	conflicts := make([]models.Conflict, 0)
	for _, local := range locals {
		current, exists := s.records[local.ID]
		switch {
		case !exists || local.Pending:
			created := s.createLocked(local, owner)
			conflicts = append(conflicts, models.Conflict{Previous: local, Latest: created})
		case current.Version != local.Version:
			conflicts = append(conflicts, models.Conflict{Previous: local, Latest: current})
		}
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, conflicts)
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	down := s.unavailable
	authRequired := len(s.owners) > 0
	s.mu.Unlock()
	if down {
		s.dropConnection(w)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	// The first inbound frame must be the authorization message.
	var auth struct {
		Type    string `json:"type"`
		Payload struct {
			Token string `json:"token"`
		} `json:"payload"`
	}
	if err := conn.ReadJSON(&auth); err != nil || auth.Type != "authorization" {
		conn.Close()
		return
	}
	if authRequired {
		s.mu.Lock()
		_, ok := s.owners[auth.Payload.Token]
		s.mu.Unlock()
		if !ok {
			conn.Close()
			return
		}
	}

	s.mu.Lock()
	s.conns[conn] = true
	s.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
