package httpapi

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"ponto.dev/internal/auth"
)

type createUserRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Department string `json:"department"`
	Role       string `json:"role"`
}

type enrollFaceRequest struct {
	ImageBase64 string `json:"image_base64"`
}

type enrollFaceResponse struct {
	EmbeddingStored bool      `json:"embedding_stored"`
	EnrolledAt      time.Time `json:"enrolled_at"`
}

func (a *API) handleUsersCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createUser(w, r)
	case http.MethodGet:
		a.listUsers(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	username := strings.TrimSpace(req.Username)
	name := strings.TrimSpace(req.Name)
	email := strings.TrimSpace(req.Email)
	if username == "" || req.Password == "" || name == "" || email == "" {
		writeError(w, r, http.StatusBadRequest, "username, password, name and email are required")
		return
	}
	role := strings.TrimSpace(strings.ToLower(req.Role))
	if role == "" {
		role = auth.RoleEmployee
	}
	if !auth.ValidRole(role) {
		writeError(w, r, http.StatusBadRequest, "role must be employee, manager or admin")
		return
	}
	// Privileged roles are only assignable by an authenticated admin.
	if role != auth.RoleEmployee && !auth.HasAnyRole(r.Context(), auth.RoleAdmin) {
		writeError(w, r, http.StatusForbidden, "not authorized")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid password")
		return
	}

	user := &auth.User{
		Username:     username,
		PasswordHash: hash,
		Name:         name,
		Email:        email,
		Department:   strings.TrimSpace(req.Department),
		Role:         role,
	}
	if err := a.users.Create(r.Context(), user); err != nil {
		if errors.Is(err, auth.ErrAlreadyExists) {
			writeError(w, r, http.StatusConflict, "username already taken")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	a.audit(r, "user.create", "account created", map[string]string{
		"username": user.Username,
		"role":     user.Role,
	})

	w.Header().Set("Location", "/v1/users/"+user.ID)
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireReviewer(w, r); !ok {
		return
	}
	users, err := a.users.List(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": users})
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if path == "me" {
		a.getMe(w, r)
		return
	}

	if id, ok := strings.CutSuffix(path, "/enroll-face"); ok {
		id = strings.TrimSuffix(id, "/")
		if id == "" || strings.Contains(id, "/") {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		a.enrollFace(w, r, id)
		return
	}

	writeError(w, r, http.StatusNotFound, "resource not found")
}

func (a *API) getMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	userID, ok := requireAuthenticated(w, r)
	if !ok {
		return
	}
	user, err := a.users.Find(r.Context(), userID)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// enrollFace stores a new reference embedding. Users may only enroll
// themselves; the capture is decoded, embedded and discarded.
func (a *API) enrollFace(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	userID, ok := requireAuthenticated(w, r)
	if !ok {
		return
	}
	if userID != id {
		writeError(w, r, http.StatusForbidden, "not authorized")
		return
	}

	var req enrollFaceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	image, err := decodeImage(req.ImageBase64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	enrollment, err := a.clock.EnrollFace(r.Context(), userID, image)
	if err != nil {
		handleClockError(w, r, err)
		return
	}

	a.audit(r, "user.enroll_face", "face enrollment stored", nil)

	writeJSON(w, http.StatusOK, enrollFaceResponse{
		EmbeddingStored: true,
		EnrolledAt:      enrollment.EnrolledAt,
	})
}

// decodeImage decodes a base64 capture, tolerating a data-URL prefix.
func decodeImage(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, errors.New("image_base64 is required")
	}
	if idx := strings.Index(payload, ","); idx >= 0 && strings.HasPrefix(payload, "data:") {
		payload = payload[idx+1:]
	}
	image, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, errors.New("image_base64 is not valid base64")
	}
	if len(image) == 0 {
		return nil, errors.New("image_base64 is empty")
	}
	return image, nil
}
