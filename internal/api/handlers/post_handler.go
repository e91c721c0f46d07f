package handlers

import (
	"net/http"

	"github.com/isdelr/telemed-portal/internal/auth"
	"github.com/isdelr/telemed-portal/internal/services"
)

// latestPosts is how many posts the home page shows.
const latestPosts = 3

// PostHandler handles HTTP requests for posts and their comments.
type PostHandler struct {
	service services.PostServiceProvider
}

// NewPostHandler creates a new PostHandler.
func NewPostHandler(service services.PostServiceProvider) *PostHandler {
	return &PostHandler{service: service}
}

// List handles paginated listing of posts.
func (h *PostHandler) List(w http.ResponseWriter, r *http.Request) {
	page := intQuery(r, "page", 1)
	pageSize := intQuery(r, "pageSize", services.DefaultPageSize)

	posts, err := h.service.ListPosts(r.Context(), auth.CurrentUser(r.Context()), page, pageSize)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

// Latest handles the home page feed.
func (h *PostHandler) Latest(w http.ResponseWriter, r *http.Request) {
	posts, err := h.service.Latest(r.Context(), auth.CurrentUser(r.Context()), latestPosts)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

// Get handles retrieving a single post.
func (h *PostHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusNotFound, "post not found")
		return
	}
	post, err := h.service.GetPost(r.Context(), auth.CurrentUser(r.Context()), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// Create handles creating a new post.
func (h *PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload services.PostInput
	if !decodeJSON(w, r, &payload) {
		return
	}
	post, err := h.service.CreatePost(r.Context(), auth.CurrentUser(r.Context()), payload)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

// Update handles editing a post.
func (h *PostHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusNotFound, "post not found")
		return
	}
	var payload services.PostInput
	if !decodeJSON(w, r, &payload) {
		return
	}
	post, err := h.service.EditPost(r.Context(), auth.CurrentUser(r.Context()), id, payload)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// Delete handles deleting a post with its comments.
func (h *PostHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusNotFound, "post not found")
		return
	}
	if err := h.service.DeletePost(r.Context(), auth.CurrentUser(r.Context()), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListComments handles listing the comments of a post.
func (h *PostHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusNotFound, "post not found")
		return
	}
	actor := auth.CurrentUser(r.Context())
	if _, err := h.service.GetPost(r.Context(), actor, id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	comments, err := h.service.ListComments(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

// AddComment handles posting a comment.
func (h *PostHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, http.StatusNotFound, "post not found")
		return
	}
	var payload struct {
		Text string `json:"text"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	comment, err := h.service.AddComment(r.Context(), auth.CurrentUser(r.Context()), id, payload.Text)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}
