// Package stub is an in-memory stand-in for the fastodo backend. It
// reproduces the real service's wire envelopes exactly, magic success
// strings and inconsistent casing included, so the reconciler can be
// exercised end to end without the production service.
package stub

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"fastodo/internal/api"
)

type user struct {
	ID       string
	Email    string
	Password string
	FullName string
}

type workspace struct {
	ID     string
	Name   string
	UserID string
}

type todo struct {
	ID          string
	Task        string
	Priority    string
	Done        bool
	UserID      string
	WorkspaceID string
}

// Server holds the stub's state behind one lock.
type Server struct {
	mu         sync.Mutex
	users      map[string]user      // by email
	workspaces map[string]workspace // by id
	todos      map[string]todo      // by id

	JWTSecret string
	Logger    *slog.Logger
}

func NewServer(jwtSecret string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		users:      make(map[string]user),
		workspaces: make(map[string]workspace),
		todos:      make(map[string]todo),
		JWTSecret:  jwtSecret,
		Logger:     logger,
	}
}

// Handler returns the stub's router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.session)
	r.Post("/users/signup", s.signUp)
	r.Post("/users/signin", s.signIn)
	r.Post("/users/{userId}/create-todo/{workspaceId}", s.createTodo)
	r.Post("/workspaces/create-workspace", s.createWorkspace)
	r.Put("/workspaces/update-workspace", s.updateWorkspace)
	r.Delete("/workspaces/delete-workspace", s.deleteWorkspace)
	r.Get("/workspaces/get-user-workspaces", s.userWorkspaces)
	r.Put("/todos/update-todo", s.updateTodo)
	r.Delete("/todos/delete-todo/{id}", s.deleteTodo)
	r.Post("/todos/toggle-todo", s.toggleTodo)
	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) signUp(w http.ResponseWriter, r *http.Request) {
	var creds api.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeJSON(w, map[string]string{"Error": err.Error()})
		return
	}
	if creds.Email == "" || creds.Password == "" {
		writeJSON(w, map[string]string{"Error": "Email/Password Empty"})
		return
	}
	s.mu.Lock()
	if _, exists := s.users[creds.Email]; exists {
		s.mu.Unlock()
		writeJSON(w, map[string]string{"Error": "User Already Exists"})
		return
	}
	u := user{
		ID:       uuid.New().String(),
		Email:    creds.Email,
		Password: creds.Password,
		FullName: creds.FullName,
	}
	s.users[creds.Email] = u
	s.mu.Unlock()
	s.issueSession(w, u)
}

func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	var creds api.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeJSON(w, map[string]string{"Error": err.Error()})
		return
	}
	s.mu.Lock()
	u, ok := s.users[creds.Email]
	s.mu.Unlock()
	if !ok || u.Password != creds.Password {
		writeJSON(w, map[string]string{"Error": "Invalid Credentials"})
		return
	}
	s.issueSession(w, u)
}

func (s *Server) issueSession(w http.ResponseWriter, u user) {
	access, refresh, err := s.signTokens(u.Email)
	if err != nil {
		writeJSON(w, map[string]string{"Error": err.Error()})
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name: api.SessionCookie, Value: access, HttpOnly: true, Path: "/",
		Expires: time.Now().Add(15 * time.Minute),
	})
	http.SetCookie(w, &http.Cookie{
		Name: "_refresh_token", Value: refresh, HttpOnly: true, Path: "/",
		Expires: time.Now().Add(7 * 24 * time.Hour),
	})
	writeJSON(w, map[string]any{"response": api.Session{
		Email:        u.Email,
		UserID:       u.ID,
		AccessToken:  access,
		RefreshToken: refresh,
	}})
}

func (s *Server) createWorkspace(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkspaceName string `json:"workspaceName"`
		UserID        string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.WorkspaceName == "" {
		writeJSON(w, map[string]any{"response": map[string]any{"success": "false", "Error": "Workspace Name Required"}})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ws := range s.workspaces {
		if ws.UserID == req.UserID && ws.Name == req.WorkspaceName {
			writeJSON(w, map[string]any{"response": map[string]any{"success": "false", "Error": "Workspace Already Exists"}})
			return
		}
	}
	ws := workspace{ID: uuid.New().String(), Name: req.WorkspaceName, UserID: req.UserID}
	s.workspaces[ws.ID] = ws
	writeJSON(w, map[string]any{"response": map[string]any{"workspaceId": ws.ID, "success": "true"}})
}

func (s *Server) updateWorkspace(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkspaceName        string `json:"workspaceName"`
		UpdatedWorkspaceName string `json:"updatedWorkspaceName"`
		UserID               string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, map[string]string{"response": "Invalid Request"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ws := range s.workspaces {
		if ws.UserID == req.UserID && ws.Name == req.WorkspaceName {
			ws.Name = req.UpdatedWorkspaceName
			s.workspaces[id] = ws
			writeJSON(w, map[string]string{"response": "Success"})
			return
		}
	}
	writeJSON(w, map[string]string{"response": "Workspace Not Found"})
}

func (s *Server) deleteWorkspace(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkspaceName string `json:"workspaceName"`
		UserID        string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, map[string]string{"response": "Invalid Request"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ws := range s.workspaces {
		if ws.UserID == req.UserID && ws.Name == req.WorkspaceName {
			delete(s.workspaces, id)
			for tid, t := range s.todos {
				if t.WorkspaceID == id {
					delete(s.todos, tid)
				}
			}
			writeJSON(w, map[string]string{"response": "Success"})
			return
		}
	}
	writeJSON(w, map[string]string{"response": "Workspace Not Found"})
}

func (s *Server) userWorkspaces(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeJSON(w, map[string]string{"Error": "UserId Required", "Success": "false"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []api.RemoteWorkspace{}
	for _, ws := range s.workspaces {
		if ws.UserID == userID {
			out = append(out, api.RemoteWorkspace{ID: ws.ID, Name: ws.Name})
		}
	}
	writeJSON(w, map[string]any{"response": out, "Success": "true"})
}

func (s *Server) createTodo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Task        string `json:"task"`
		Priority    string `json:"priority"`
		UserID      string `json:"userId"`
		WorkspaceID string `json:"workspaceId"`
		Done        bool   `json:"done"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Task == "" {
		writeJSON(w, map[string]any{"success": "false", "Error": "Task Required"})
		return
	}
	t := todo{
		ID:          uuid.New().String(),
		Task:        req.Task,
		Priority:    req.Priority,
		Done:        req.Done,
		UserID:      chi.URLParam(r, "userId"),
		WorkspaceID: chi.URLParam(r, "workspaceId"),
	}
	s.mu.Lock()
	s.todos[t.ID] = t
	s.mu.Unlock()
	writeJSON(w, map[string]any{"success": "true", "response": map[string]any{
		"_id": t.ID, "task": t.Task, "priority": t.Priority, "done": t.Done,
	}})
}

func (s *Server) updateTodo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID       string `json:"id"`
		Task     string `json:"task"`
		Priority string `json:"priority"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, map[string]string{"success": "false"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.todos[req.ID]
	if !ok {
		writeJSON(w, map[string]string{"success": "false"})
		return
	}
	t.Task = req.Task
	t.Priority = req.Priority
	s.todos[req.ID] = t
	writeJSON(w, map[string]string{"success": "true"})
}

func (s *Server) deleteTodo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	_, ok := s.todos[id]
	delete(s.todos, id)
	s.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]string{"error": "Delete False"})
		return
	}
	writeJSON(w, map[string]string{"Success": "True"})
}

func (s *Server) toggleTodo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     string `json:"id"`
		Toggle bool   `json:"toggle"`
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, map[string]string{"response": "false"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.todos[req.ID]
	if !ok {
		writeJSON(w, map[string]string{"response": "false"})
		return
	}
	t.Done = req.Toggle
	s.todos[req.ID] = t
	writeJSON(w, map[string]string{"response": "true"})
}

// WorkspaceCount reports how many workspaces a user has; test helper.
func (s *Server) WorkspaceCount(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ws := range s.workspaces {
		if ws.UserID == userID {
			n++
		}
	}
	return n
}
