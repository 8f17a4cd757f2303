package handler

import (
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/msomdec/murmur/internal/service"
)

const maxPostMedia = 4

// PostHandler serves post routes.
type PostHandler struct {
	posts *service.PostService
}

// NewPostHandler creates a new PostHandler.
func NewPostHandler(posts *service.PostService) *PostHandler {
	return &PostHandler{posts: posts}
}

// HandleCreate stores a new post by the caller.
// POST /api/posts
// Request: multipart fields "content", "parent" and up to four "media"
// files, or a JSON body {"content":"...","parent":"..."}.
// Response: 201 with the stored post.
func (h *PostHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())

	var content, parent string
	var media [][]byte

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		var req struct {
			Content string `json:"content"`
			Parent  string `json:"parent"`
		}
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body.")
			return
		}
		content, parent = req.Content, req.Parent

	case "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, (maxPostMedia+1)*maxUploadSize)
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			writeError(w, http.StatusBadRequest, "Upload is too large or malformed.")
			return
		}
		content = r.FormValue("content")
		parent = r.FormValue("parent")

		files := r.MultipartForm.File["media"]
		if len(files) > maxPostMedia {
			writeError(w, http.StatusBadRequest, "A post can carry at most 4 images.")
			return
		}
		for _, fh := range files {
			data, err := readFormFile(fh)
			if err != nil {
				writeError(w, http.StatusBadRequest, "Could not read the uploaded file.")
				return
			}
			media = append(media, data)
		}

	default:
		writeError(w, http.StatusUnsupportedMediaType, "Send multipart/form-data or JSON.")
		return
	}

	post, err := h.posts.Create(r.Context(), caller.ID, content, parent, media)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPostDTO(post))
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// HandleGet returns a post with its likes and media links.
// GET /api/posts/{id}
func (h *PostHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	post, err := h.posts.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPostDTO(post))
}

// HandleMedia serves one media attachment of a post.
// GET /api/posts/{id}/media/{n}
func (h *PostHandler) HandleMedia(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Media index must be a number.")
		return
	}

	data, err := h.posts.Media(r.Context(), r.PathValue("id"), n)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeImage(w, data)
}

// HandleLike adds or removes the caller's like.
// PATCH /api/posts/{id}/like
// Request: {"like": true|false}
func (h *PostHandler) HandleLike(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())

	var req struct {
		Like *bool `json:"like"`
	}
	if err := readJSON(w, r, &req); err != nil || req.Like == nil {
		writeError(w, http.StatusBadRequest, "You have to send a like property which is boolean.")
		return
	}

	var err error
	if *req.Like {
		_, err = h.posts.AddLike(r.Context(), r.PathValue("id"), caller.ID)
	} else {
		_, err = h.posts.DeleteLike(r.Context(), r.PathValue("id"), caller.ID)
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDelete removes a post.
// DELETE /api/posts/{id}
func (h *PostHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	caller, _ := CallerFromContext(r.Context())
	if err := h.posts.Delete(r.Context(), caller, r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
