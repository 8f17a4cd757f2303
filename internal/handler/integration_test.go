package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/msomdec/murmur/internal/handler"
	"github.com/msomdec/murmur/internal/service"
)

type apiClient struct {
	t   *testing.T
	srv *httptest.Server
}

func (c apiClient) do(method, path, token string, body io.Reader, contentType string) *http.Response {
	c.t.Helper()
	req, err := http.NewRequest(method, c.srv.URL+path, body)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	c.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (c apiClient) send(method, path, token string, payload any) *http.Response {
	c.t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			c.t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(data)
	}
	return c.do(method, path, token, body, "application/json")
}

func (c apiClient) expect(resp *http.Response, status int) {
	c.t.Helper()
	if resp.StatusCode != status {
		body, _ := io.ReadAll(resp.Body)
		c.t.Fatalf("%s %s: expected %d, got %d: %s",
			resp.Request.Method, resp.Request.URL.Path, status, resp.StatusCode, body)
	}
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func multipartBody(t *testing.T, fields map[string]string, fileField string, files ...[]byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for _, data := range files {
		fw, err := mw.CreateFormFile(fileField, "upload.png")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		fw.Write(data)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

type tokenBody struct {
	Token string `json:"token"`
}

func signUp(t *testing.T, c apiClient, auth *service.AuthService, email, name string) (id, token string) {
	t.Helper()
	resp := c.send(http.MethodPost, "/api/users", "", map[string]string{
		"email": email, "name": name, "password": testPassword,
	})
	c.expect(resp, http.StatusOK)
	token = decode[tokenBody](t, resp).Token

	claims, err := auth.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	return claims.Subject, token
}

func TestIntegration_AccountsAndRelationships(t *testing.T) {
	s := newTestServices(t)
	srv := httptest.NewServer(handler.NewServer(s))
	defer srv.Close()
	c := apiClient{t: t, srv: srv}

	aliceID, alice := signUp(t, c, s.Auth, "alice@example.com", "Alice")
	bobID, bob := signUp(t, c, s.Auth, "bob@example.com", "Bob")

	// Duplicate and invalid sign-ups.
	c.expect(c.send(http.MethodPost, "/api/users", "", map[string]string{
		"email": "ALICE@example.com", "name": "Alice 2", "password": testPassword,
	}), http.StatusConflict)
	c.expect(c.send(http.MethodPost, "/api/users", "", map[string]string{
		"email": "weak@example.com", "name": "Weak", "password": "weak",
	}), http.StatusBadRequest)

	// Login.
	resp := c.send(http.MethodPost, "/api/auth", "", map[string]string{"email": "alice@example.com", "password": testPassword})
	c.expect(resp, http.StatusOK)
	if decode[tokenBody](t, resp).Token == "" {
		t.Fatal("expected a token from login")
	}
	c.expect(c.send(http.MethodPost, "/api/auth", "", map[string]string{"email": "alice@example.com", "password": "Wr0ngpass"}), http.StatusUnauthorized)

	// Follow.
	c.expect(c.send(http.MethodPatch, "/api/users/"+bobID+"/follow", "", nil), http.StatusUnauthorized)
	c.expect(c.send(http.MethodPatch, "/api/users/"+bobID+"/follow", alice, nil), http.StatusNoContent)
	c.expect(c.send(http.MethodPatch, "/api/users/"+bobID+"/follow", alice, nil), http.StatusConflict)
	c.expect(c.send(http.MethodPatch, "/api/users/"+aliceID+"/follow", alice, nil), http.StatusBadRequest)
	c.expect(c.send(http.MethodPatch, "/api/users/nobody/follow", alice, nil), http.StatusNotFound)

	resp = c.send(http.MethodGet, "/api/users/"+bobID, "", nil)
	c.expect(resp, http.StatusOK)
	profile := decode[map[string]any](t, resp)
	if profile["name"] != "Bob" || profile["followersCount"] != float64(1) {
		t.Fatalf("unexpected profile %v", profile)
	}

	resp = c.send(http.MethodGet, "/api/users/"+bobID+"/followers", "", nil)
	c.expect(resp, http.StatusOK)
	if ids := decode[[]string](t, resp); len(ids) != 1 || ids[0] != aliceID {
		t.Fatalf("expected followers [%s], got %v", aliceID, ids)
	}
	resp = c.send(http.MethodGet, "/api/users/"+aliceID+"/followed", "", nil)
	c.expect(resp, http.StatusOK)
	if ids := decode[[]string](t, resp); len(ids) != 1 || ids[0] != bobID {
		t.Fatalf("expected followed [%s], got %v", bobID, ids)
	}

	// Unfollow.
	c.expect(c.send(http.MethodPatch, "/api/users/"+bobID+"/unfollow", alice, nil), http.StatusNoContent)
	c.expect(c.send(http.MethodPatch, "/api/users/"+bobID+"/unfollow", alice, nil), http.StatusConflict)

	// Profile updates.
	resp = c.send(http.MethodPatch, "/api/users/"+aliceID, alice, map[string]string{"email": "alice@example.com", "name": "Alice Liddell"})
	c.expect(resp, http.StatusOK)
	if decode[tokenBody](t, resp).Token == "" {
		t.Fatal("expected a fresh token after self update")
	}
	c.expect(c.send(http.MethodPatch, "/api/users/"+bobID, alice, map[string]string{"email": "bob@example.com", "name": "Hijacked"}), http.StatusForbidden)
	c.expect(c.send(http.MethodPatch, "/api/users/"+aliceID+"/password", alice, map[string]string{"password": "N3wPassword"}), http.StatusNoContent)
	c.expect(c.send(http.MethodPatch, "/api/users/"+bobID+"/password", alice, map[string]string{"password": "N3wPassword"}), http.StatusForbidden)

	// Avatar.
	c.expect(c.send(http.MethodGet, "/api/users/"+aliceID+"/avatar", "", nil), http.StatusNoContent)
	body, ct := multipartBody(t, nil, "avatar", testPNG(t, 400, 300))
	c.expect(c.do(http.MethodPatch, "/api/users/"+aliceID+"/avatar", alice, body, ct), http.StatusNoContent)
	resp = c.send(http.MethodGet, "/api/users/"+aliceID+"/avatar", "", nil)
	c.expect(resp, http.StatusOK)
	if got := resp.Header.Get("Content-Type"); got != "image/jpeg" {
		t.Fatalf("expected image/jpeg avatar, got %s", got)
	}
	body, ct = multipartBody(t, nil, "avatar", testPNG(t, 10, 10))
	c.expect(c.do(http.MethodPatch, "/api/users/"+bobID+"/avatar", alice, body, ct), http.StatusForbidden)
	c.expect(c.send(http.MethodDelete, "/api/users/"+aliceID+"/avatar", alice, nil), http.StatusNoContent)
	c.expect(c.send(http.MethodGet, "/api/users/"+aliceID+"/avatar", "", nil), http.StatusNoContent)

	// Account deletion.
	c.expect(c.send(http.MethodDelete, "/api/users/"+bobID, alice, nil), http.StatusForbidden)
	c.expect(c.send(http.MethodDelete, "/api/users/"+bobID, bob, nil), http.StatusNoContent)
	c.expect(c.send(http.MethodGet, "/api/users/"+bobID, "", nil), http.StatusNotFound)
	c.expect(c.send(http.MethodPatch, "/api/users/"+bobID+"/follow", bob, nil), http.StatusUnauthorized)
}

func TestIntegration_PostsAndLikes(t *testing.T) {
	s := newTestServices(t)
	srv := httptest.NewServer(handler.NewServer(s))
	defer srv.Close()
	c := apiClient{t: t, srv: srv}

	authorID, author := signUp(t, c, s.Auth, "author@example.com", "Author")
	_, fan := signUp(t, c, s.Auth, "fan@example.com", "Fan")

	// JSON post.
	resp := c.send(http.MethodPost, "/api/posts", author, map[string]string{"content": "first post"})
	c.expect(resp, http.StatusCreated)
	post := decode[map[string]any](t, resp)
	postID := post["id"].(string)
	if post["author"] != authorID || post["likesCount"] != float64(0) {
		t.Fatalf("unexpected post %v", post)
	}

	c.expect(c.send(http.MethodPost, "/api/posts", author, map[string]string{"content": "x"}), http.StatusBadRequest)
	c.expect(c.send(http.MethodPost, "/api/posts", author, map[string]string{"content": "reply", "parent": "nope"}), http.StatusBadRequest)
	c.expect(c.send(http.MethodPost, "/api/posts", author, map[string]string{"content": "a reply", "parent": postID}), http.StatusCreated)

	// Multipart post with media.
	body, ct := multipartBody(t, map[string]string{"content": "with pictures"}, "media", testPNG(t, 2000, 1000), testPNG(t, 50, 50))
	resp = c.do(http.MethodPost, "/api/posts", author, body, ct)
	c.expect(resp, http.StatusCreated)
	withMedia := decode[map[string]any](t, resp)
	media := withMedia["media"].([]any)
	if len(media) != 2 {
		t.Fatalf("expected 2 media links, got %v", media)
	}
	resp = c.send(http.MethodGet, media[0].(string), "", nil)
	c.expect(resp, http.StatusOK)
	img, err := jpegBounds(resp.Body)
	if err != nil {
		t.Fatalf("decode media: %v", err)
	}
	if img.Dx() != 1080 || img.Dy() != 540 {
		t.Fatalf("expected 1080x540 media, got %v", img)
	}
	c.expect(c.send(http.MethodGet, "/api/posts/"+postID+"/media/0", "", nil), http.StatusNotFound)

	tooMany, ct := multipartBody(t, map[string]string{"content": "too many"}, "media",
		testPNG(t, 1, 1), testPNG(t, 1, 1), testPNG(t, 1, 1), testPNG(t, 1, 1), testPNG(t, 1, 1))
	c.expect(c.do(http.MethodPost, "/api/posts", author, tooMany, ct), http.StatusBadRequest)

	// Likes.
	likePath := "/api/posts/" + postID + "/like"
	c.expect(c.send(http.MethodPatch, likePath, fan, map[string]any{"like": "yes"}), http.StatusBadRequest)
	c.expect(c.send(http.MethodPatch, likePath, fan, map[string]any{}), http.StatusBadRequest)
	c.expect(c.send(http.MethodPatch, likePath, fan, map[string]bool{"like": true}), http.StatusNoContent)
	c.expect(c.send(http.MethodPatch, likePath, fan, map[string]bool{"like": true}), http.StatusConflict)

	resp = c.send(http.MethodGet, "/api/posts/"+postID, "", nil)
	c.expect(resp, http.StatusOK)
	if got := decode[map[string]any](t, resp); got["likesCount"] != float64(1) {
		t.Fatalf("expected likesCount 1, got %v", got["likesCount"])
	}

	c.expect(c.send(http.MethodPatch, likePath, fan, map[string]bool{"like": false}), http.StatusNoContent)
	c.expect(c.send(http.MethodPatch, likePath, fan, map[string]bool{"like": false}), http.StatusConflict)

	// Author page.
	resp = c.send(http.MethodGet, "/api/users/"+authorID+"/posts?page=0", "", nil)
	c.expect(resp, http.StatusOK)
	if list := decode[[]map[string]any](t, resp); len(list) != 3 {
		t.Fatalf("expected 3 posts, got %d", len(list))
	}
	c.expect(c.send(http.MethodGet, "/api/users/"+authorID+"/posts?page=1", "", nil), http.StatusNotFound)
	c.expect(c.send(http.MethodGet, "/api/users/"+authorID+"/posts?page=-1", "", nil), http.StatusBadRequest)
	c.expect(c.send(http.MethodGet, "/api/users/"+authorID+"/posts", "", nil), http.StatusBadRequest)

	// Deletion.
	c.expect(c.send(http.MethodDelete, "/api/posts/"+postID, fan, nil), http.StatusForbidden)
	c.expect(c.send(http.MethodDelete, "/api/posts/"+postID, author, nil), http.StatusNoContent)
	c.expect(c.send(http.MethodGet, "/api/posts/"+postID, "", nil), http.StatusNotFound)
}

func TestIntegration_RateLimitedSignIn(t *testing.T) {
	s := newTestServices(t)
	s.Limiter = service.NewTokenBucket(0, 1)
	defer s.Limiter.Stop()
	srv := httptest.NewServer(handler.NewServer(s))
	defer srv.Close()
	c := apiClient{t: t, srv: srv}

	creds := map[string]string{"email": "nobody@example.com", "password": testPassword}
	c.expect(c.send(http.MethodPost, "/api/auth", "", creds), http.StatusUnauthorized)
	c.expect(c.send(http.MethodPost, "/api/auth", "", creds), http.StatusTooManyRequests)
}

func jpegBounds(r io.Reader) (image.Rectangle, error) {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		return image.Rectangle{}, err
	}
	if format != "jpeg" {
		return image.Rectangle{}, fmt.Errorf("expected jpeg, got %s", format)
	}
	return image.Rect(0, 0, cfg.Width, cfg.Height), nil
}

func TestIntegration_OversizedJSONBody(t *testing.T) {
	s := newTestServices(t)
	srv := httptest.NewServer(handler.NewServer(s))
	defer srv.Close()
	c := apiClient{t: t, srv: srv}

	// Under the cap the request reaches the credential check.
	c.expect(c.send(http.MethodPost, "/api/auth", "", map[string]string{
		"email": "nobody@example.com", "password": testPassword,
	}), http.StatusUnauthorized)

	c.expect(c.send(http.MethodPost, "/api/auth", "", map[string]string{
		"email": "nobody@example.com", "password": strings.Repeat("a", 128<<10),
	}), http.StatusBadRequest)
}
