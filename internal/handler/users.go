package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/msomdec/murmur/internal/service"
)

const maxUploadSize = 10 << 20 // 10MB

// UserHandler serves account, avatar and relationship routes.
type UserHandler struct {
	users         *service.UserService
	relationships *service.RelationshipService
	posts         *service.PostService
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(users *service.UserService, relationships *service.RelationshipService, posts *service.PostService) *UserHandler {
	return &UserHandler{users: users, relationships: relationships, posts: posts}
}

// HandleProfile returns the public profile of a user.
// GET /api/users/{id}
func (h *UserHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.users.Profile(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// HandleListPosts returns one page of a user's posts.
// GET /api/users/{id}/posts?page=N
func (h *UserHandler) HandleListPosts(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "You should choose a page.")
		return
	}

	posts, err := h.posts.ListByAuthor(r.Context(), r.PathValue("id"), page)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPostSummaryDTOs(posts))
}

// HandleUpdate changes a user's email and name. Callers updating
// themselves get a fresh token; others get 204.
// PATCH /api/users/{id}
// Request: {"email":"...","name":"..."}
func (h *UserHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())

	var req struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	token, err := h.users.Update(r.Context(), caller, r.PathValue("id"), req.Email, req.Name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if token == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

// HandleDelete removes an account.
// DELETE /api/users/{id}
func (h *UserHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	if err := h.users.Delete(r.Context(), caller, r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleChangePassword sets a new password for the caller.
// PATCH /api/users/{id}/password
// Request: {"password":"..."}
func (h *UserHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())

	var req struct {
		Password string `json:"password"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	if err := h.users.ChangePassword(r.Context(), caller, r.PathValue("id"), req.Password); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAvatar serves a user's avatar, or 204 when none is set.
// GET /api/users/{id}/avatar
func (h *UserHandler) HandleAvatar(w http.ResponseWriter, r *http.Request) {
	data, err := h.users.Avatar(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if len(data) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeImage(w, data)
}

// HandleSetAvatar replaces the caller's avatar with the uploaded image.
// PATCH /api/users/{id}/avatar (multipart field "avatar")
func (h *UserHandler) HandleSetAvatar(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+1<<20)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "File is required.")
		return
	}
	file, _, err := r.FormFile("avatar")
	if err != nil {
		writeError(w, http.StatusBadRequest, "File is required.")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Could not read the uploaded file.")
		return
	}

	if err := h.users.SetAvatar(r.Context(), caller, r.PathValue("id"), data); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDeleteAvatar clears a user's avatar.
// DELETE /api/users/{id}/avatar
func (h *UserHandler) HandleDeleteAvatar(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	if err := h.users.DeleteAvatar(r.Context(), caller, r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleFollow makes the caller follow a user.
// PATCH /api/users/{id}/follow
func (h *UserHandler) HandleFollow(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	if _, err := h.relationships.Follow(r.Context(), caller.ID, r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUnfollow makes the caller stop following a user.
// PATCH /api/users/{id}/unfollow
func (h *UserHandler) HandleUnfollow(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	if _, err := h.relationships.Unfollow(r.Context(), caller.ID, r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleFollowed lists the IDs a user follows.
// GET /api/users/{id}/followed
func (h *UserHandler) HandleFollowed(w http.ResponseWriter, r *http.Request) {
	ids, err := h.relationships.ListFollowed(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(ids))
}

// HandleFollowers lists the IDs following a user.
// GET /api/users/{id}/followers
func (h *UserHandler) HandleFollowers(w http.ResponseWriter, r *http.Request) {
	ids, err := h.relationships.ListFollowers(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(ids))
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func writeImage(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
