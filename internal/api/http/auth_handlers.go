package http

import (
	"net/http"

	"github.com/course-hub/coursehub-lms/internal/auth"
	"github.com/course-hub/coursehub-lms/internal/rbac"
)

// POST /auth/register  { "username": "...", "password": "..." }
// Self-service accounts are always students; instructors are created by an
// admin through /users.
func RegisterHandler(users *auth.UserStore, authSvc *auth.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username" validate:"required,min=3"`
			Password string `json:"password" validate:"required,min=8"`
		}
		if !decodeValid(w, r, &req) {
			return
		}
		u, err := users.Create(r.Context(), req.Username, req.Password, "student")
		if err != nil {
			fail(w, err)
			return
		}
		tok, err := authSvc.IssueJWT(u.ID, u.Role)
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"user": u, "access_token": tok})
	}
}

// POST /auth/login  { "username": "...", "password": "..." }
func LoginHandler(users *auth.UserStore, authSvc *auth.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username" validate:"required"`
			Password string `json:"password" validate:"required"`
		}
		if !decodeValid(w, r, &req) {
			return
		}
		u, err := users.Authenticate(r.Context(), req.Username, req.Password)
		if err != nil {
			fail(w, err)
			return
		}
		tok, err := authSvc.IssueJWT(u.ID, u.Role)
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": u, "access_token": tok})
	}
}

// GET /auth/me
func MeHandler(users *auth.UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := users.Get(r.Context(), rbac.SubjectFromContext(r.Context()))
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}

// POST /auth/change-password  { "current_password": "...", "new_password": "..." }
func ChangePasswordHandler(users *auth.UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Current string `json:"current_password" validate:"required"`
			New     string `json:"new_password" validate:"required,min=8"`
		}
		if !decodeValid(w, r, &req) {
			return
		}
		sub := rbac.SubjectFromContext(r.Context())
		if err := users.ChangePassword(r.Context(), sub, req.Current, req.New); err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// POST /users  { "username", "password", "role" }  (admin)
func CreateUserHandler(users *auth.UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username" validate:"required,min=3"`
			Password string `json:"password" validate:"required,min=8"`
			Role     string `json:"role" validate:"required,oneof=student instructor admin"`
		}
		if !decodeValid(w, r, &req) {
			return
		}
		u, err := users.Create(r.Context(), req.Username, req.Password, req.Role)
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, u)
	}
}

// GET /users  (admin)
func ListUsersHandler(users *auth.UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := users.List(r.Context())
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// POST /users/bulk  { "users": [ { "username", "password", "role" }, ... ] }  (admin)
func BulkUpsertUsersHandler(users *auth.UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Users []auth.BulkEntry `json:"users" validate:"required,min=1,dive"`
		}
		if !decodeValid(w, r, &req) {
			return
		}
		n, err := users.BulkUpsert(r.Context(), req.Users)
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"upserted": n})
	}
}

// POST /users/{userID}/plus  { "plus_subscriber": true }  (admin)
func SetPlusHandler(users *auth.UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Plus bool `json:"plus_subscriber"`
		}
		if !decodeValid(w, r, &req) {
			return
		}
		if err := users.SetPlusSubscriber(r.Context(), pathParam(r, "userID"), req.Plus); err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
