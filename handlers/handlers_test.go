package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flipbook/auth"
	"flipbook/db"
	"flipbook/models"
	"flipbook/processing"
	"flipbook/storage"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type countingPlacer struct {
	mu      sync.Mutex
	calls   int
	placed  map[int]string
	removed []string
	fail    bool
}

func (p *countingPlacer) Place(ctx context.Context, obj storage.Object) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.fail {
		return "", errors.New("disk full")
	}
	if p.placed == nil {
		p.placed = map[int]string{}
	}
	p.placed[obj.Index] = string(obj.Data)
	return fmt.Sprintf("/uploads/%d/%d_%d%s", obj.AlbumID, p.calls, obj.Index, obj.Ext), nil
}

func (p *countingPlacer) Owns(locator string) bool {
	return strings.HasPrefix(locator, "/uploads/")
}

func (p *countingPlacer) Remove(ctx context.Context, locator string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed = append(p.removed, locator)
	return nil
}

func (p *countingPlacer) placeCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func setupRouter(t *testing.T) (*gin.Engine, *countingPlacer) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	instance, err := db.Open("", "file:"+uuid.NewString()+"?mode=memory&cache=shared", false)
	if err != nil {
		t.Fatalf("cannot open db: %v", err)
	}
	db.Instance = instance
	if err = models.Init(); err != nil {
		t.Fatalf("cannot migrate: %v", err)
	}
	placer := &countingPlacer{}
	store := models.NewFileStore(db.Instance)
	pipeline, err := processing.New(nil, placer, false, store, processing.Options{})
	if err != nil {
		t.Fatalf("cannot create pipeline: %v", err)
	}
	files := &Files{
		Pipeline:    pipeline,
		Store:       store,
		Placers:     []storage.Placer{placer},
		MaxFiles:    10,
		MaxFileSize: 1 << 20,
	}

	router := gin.New()
	router.Use(sessions.Sessions("session", cookie.NewStore([]byte("test-secret"))))
	router.POST("/user/signup", UserSignup(1))
	router.POST("/user/login", UserLogin)
	authRouter := auth.Router{Base: router}
	authRouter.GET("/user/status", UserStatus)
	authRouter.POST("/album/create", AlbumCreate)
	authRouter.GET("/album/list", AlbumList)
	authRouter.GET("/album/get", AlbumGet)
	authRouter.POST("/album/save", AlbumSave)
	authRouter.POST("/album/delete", files.DeleteAlbum)
	authRouter.POST("/albums/:id/files", files.Upload)
	authRouter.GET("/albums/:id/files", files.List)
	authRouter.DELETE("/albums/:id/files/:file", files.Delete)
	return router, placer
}

func serve(router *gin.Engine, req *http.Request, cookies []*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func postForm(router *gin.Engine, path string, values url.Values, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return serve(router, req, cookies)
}

func signup(t *testing.T, router *gin.Engine, email string) []*http.Cookie {
	t.Helper()
	w := postForm(router, "/user/signup", url.Values{
		"name":     {"Ana"},
		"email":    {email},
		"password": {"long-enough"},
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("signup status = %d, body = %s", w.Code, w.Body.String())
	}
	return w.Result().Cookies()
}

func createAlbum(t *testing.T, router *gin.Engine, cookies []*http.Cookie) AlbumInfo {
	t.Helper()
	w := postForm(router, "/album/create", url.Values{"title": {"Ana & Bo"}, "date": {"2026-06-20"}}, cookies)
	if w.Code != http.StatusOK {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	info := AlbumInfo{}
	decode(t, w, &info)
	return info
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("cannot decode %q: %v", w.Body.String(), err)
	}
}

type part struct {
	name    string
	content []byte
}

func multipartRequest(t *testing.T, path string, parts []part, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	for _, p := range parts {
		fw, err := mw.CreateFormFile("files", p.name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err = fw.Write(p.content); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestUnauthenticatedUploadRejected(t *testing.T) {
	router, placer := setupRouter(t)
	owner := signup(t, router, "ana@example.com")
	album := createAlbum(t, router, owner)

	path := fmt.Sprintf("/albums/%d/files", album.ID)
	w := serve(router, multipartRequest(t, path, []part{{"a.jpg", []byte("jpeg")}}, nil), nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if placer.placeCalls() != 0 {
		t.Errorf("placements = %d, want 0", placer.placeCalls())
	}
}

func TestUploadToForeignAlbum(t *testing.T) {
	router, placer := setupRouter(t)
	album := createAlbum(t, router, signup(t, router, "ana@example.com"))
	other := signup(t, router, "bo@example.com")

	path := fmt.Sprintf("/albums/%d/files", album.ID)
	w := serve(router, multipartRequest(t, path, []part{{"a.jpg", []byte("jpeg")}}, nil), other)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if placer.placeCalls() != 0 {
		t.Errorf("placements = %d, want 0", placer.placeCalls())
	}
}

func TestManifestUpload(t *testing.T) {
	router, placer := setupRouter(t)
	cookies := signup(t, router, "ana@example.com")
	album := createAlbum(t, router, cookies)

	body := `{"files":[
		{"filePath":"https://cdn.example.com/front.jpg","fileType":"cover_front","orderIndex":0},
		{"filePath":"https://cdn.example.com/s1.jpg","orderIndex":2}
	]}`
	w := serve(router, jsonRequest(fmt.Sprintf("/albums/%d/files", album.ID), body), cookies)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	got := []models.File{}
	decode(t, w, &got)
	want := []models.File{
		{AlbumID: album.ID, FilePath: "https://cdn.example.com/front.jpg", FileType: models.FileTypeCoverFront, OrderIndex: 0},
		{AlbumID: album.ID, FilePath: "https://cdn.example.com/s1.jpg", FileType: models.FileTypeSheet, OrderIndex: 2},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d files, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID == 0 {
			t.Errorf("file %d has no id", i)
		}
		got[i].ID = 0
		if got[i] != want[i] {
			t.Errorf("file %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if placer.placeCalls() != 0 {
		t.Errorf("placements = %d, want 0", placer.placeCalls())
	}
}

func TestManifestUploadRejectsBadEntries(t *testing.T) {
	router, _ := setupRouter(t)
	cookies := signup(t, router, "ana@example.com")
	album := createAlbum(t, router, cookies)
	path := fmt.Sprintf("/albums/%d/files", album.ID)

	tests := []struct {
		name string
		body string
	}{
		{"negative order index", `{"files":[{"filePath":"x","orderIndex":-5}]}`},
		{"missing file path", `{"files":[{"fileType":"sheet","orderIndex":1}]}`},
		{"second entry invalid", `{"files":[{"filePath":"x","orderIndex":0},{"filePath":"y","orderIndex":-1}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(router, jsonRequest(path, tt.body), cookies)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
			}
			resp := ErrorResponse{}
			decode(t, w, &resp)
			if resp.Error != "bad request" {
				t.Errorf("error = %q", resp.Error)
			}
		})
	}
	var count int64
	db.Instance.Model(&models.File{}).Where("album_id = ?", album.ID).Count(&count)
	if count != 0 {
		t.Errorf("recorded %d files, want 0", count)
	}
}

func TestMultipartUpload(t *testing.T) {
	router, placer := setupRouter(t)
	cookies := signup(t, router, "ana@example.com")
	album := createAlbum(t, router, cookies)

	path := fmt.Sprintf("/albums/%d/files", album.ID)
	parts := []part{
		{"Front.JPG", []byte("front")},
		{"back.png", []byte("back")},
		{"sheet", []byte("sheet")},
	}
	fields := map[string]string{"fileType_0": models.FileTypeCoverFront, "fileType_1": models.FileTypeCoverBack}
	w := serve(router, multipartRequest(t, path, parts, fields), cookies)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	got := []models.File{}
	decode(t, w, &got)
	wantTypes := []string{models.FileTypeCoverFront, models.FileTypeCoverBack, models.FileTypeSheet}
	wantExt := []string{".jpg", ".png", ""}
	if len(got) != len(parts) {
		t.Fatalf("got %d files, want %d", len(got), len(parts))
	}
	for i, f := range got {
		if f.OrderIndex != i || f.FileType != wantTypes[i] || f.AlbumID != album.ID {
			t.Errorf("file %d = %+v", i, f)
		}
		if !strings.HasPrefix(f.FilePath, "/uploads/") || !strings.HasSuffix(f.FilePath, fmt.Sprintf("_%d%s", i, wantExt[i])) {
			t.Errorf("file %d path = %s", i, f.FilePath)
		}
	}
	if placer.placeCalls() != len(parts) {
		t.Errorf("placements = %d, want %d", placer.placeCalls(), len(parts))
	}
	for i, p := range parts {
		if placer.placed[i] != string(p.content) {
			t.Errorf("placed content %d = %q, want %q", i, placer.placed[i], p.content)
		}
	}

	w = serve(router, httptest.NewRequest(http.MethodGet, path, nil), cookies)
	listed := []models.File{}
	decode(t, w, &listed)
	if len(listed) != len(parts) {
		t.Errorf("listed %d files, want %d", len(listed), len(parts))
	}
}

func TestUploadNoData(t *testing.T) {
	router, placer := setupRouter(t)
	cookies := signup(t, router, "ana@example.com")
	album := createAlbum(t, router, cookies)
	path := fmt.Sprintf("/albums/%d/files", album.ID)

	tests := []struct {
		name string
		req  *http.Request
	}{
		{"json without files", jsonRequest(path, `{"title":"x"}`)},
		{"empty json", jsonRequest(path, ``)},
		{"multipart without parts", multipartRequest(t, path, nil, map[string]string{"fileType_0": "sheet"})},
		{"no body", httptest.NewRequest(http.MethodPost, path, nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(router, tt.req, cookies)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
			}
			resp := ErrorResponse{}
			decode(t, w, &resp)
			if resp.Error != "no data received" {
				t.Errorf("error = %q", resp.Error)
			}
		})
	}
	if placer.placeCalls() != 0 {
		t.Errorf("placements = %d, want 0", placer.placeCalls())
	}
}

func TestUploadLimits(t *testing.T) {
	router, _ := setupRouter(t)
	cookies := signup(t, router, "ana@example.com")
	album := createAlbum(t, router, cookies)
	path := fmt.Sprintf("/albums/%d/files", album.ID)

	tooMany := make([]part, 11)
	for i := range tooMany {
		tooMany[i] = part{fmt.Sprintf("%d.jpg", i), []byte("x")}
	}
	w := serve(router, multipartRequest(t, path, tooMany, nil), cookies)
	if w.Code != http.StatusBadRequest {
		t.Errorf("too many files: status = %d", w.Code)
	}

	w = serve(router, multipartRequest(t, path, []part{{"big.jpg", make([]byte, 1<<20+1)}}, nil), cookies)
	if w.Code != http.StatusBadRequest {
		t.Errorf("file too large: status = %d", w.Code)
	}
}

func TestUploadPlacementFailure(t *testing.T) {
	router, placer := setupRouter(t)
	cookies := signup(t, router, "ana@example.com")
	album := createAlbum(t, router, cookies)
	placer.fail = true

	path := fmt.Sprintf("/albums/%d/files", album.ID)
	w := serve(router, multipartRequest(t, path, []part{{"a.jpg", []byte("a")}, {"b.jpg", []byte("b")}}, nil), cookies)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := ErrorResponse{}
	decode(t, w, &resp)
	if resp.Error != "upload failed" || !strings.Contains(resp.Message, "disk full") {
		t.Errorf("response = %+v", resp)
	}
	var count int64
	db.Instance.Model(&models.File{}).Where("album_id = ?", album.ID).Count(&count)
	if count != 0 {
		t.Errorf("recorded %d files, want 0", count)
	}
}

func TestAlbumCredits(t *testing.T) {
	router, _ := setupRouter(t)
	cookies := signup(t, router, "ana@example.com")
	createAlbum(t, router, cookies)

	w := postForm(router, "/album/create", url.Values{"title": {"Second"}}, cookies)
	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", w.Code)
	}
	w = serve(router, httptest.NewRequest(http.MethodGet, "/user/status", nil), cookies)
	info := UserInfo{}
	decode(t, w, &info)
	if info.Credits != 0 {
		t.Errorf("credits = %d, want 0", info.Credits)
	}
}

func TestAlbumSaveAndGet(t *testing.T) {
	router, _ := setupRouter(t)
	cookies := signup(t, router, "ana@example.com")
	album := createAlbum(t, router, cookies)

	w := postForm(router, "/album/save", url.Values{
		"album_id": {fmt.Sprint(album.ID)},
		"theme":    {"linen"},
		"password": {"rings"},
	}, cookies)
	if w.Code != http.StatusOK {
		t.Fatalf("save status = %d, body = %s", w.Code, w.Body.String())
	}
	w = serve(router, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/album/get?album_id=%d", album.ID), nil), cookies)
	got := AlbumInfo{}
	decode(t, w, &got)
	if got.Title != "Ana & Bo" || got.Theme != "linen" || got.Password != "rings" || !got.Protected {
		t.Errorf("album = %+v", got)
	}
}

func TestAlbumDeleteRemovesContent(t *testing.T) {
	router, placer := setupRouter(t)
	cookies := signup(t, router, "ana@example.com")
	album := createAlbum(t, router, cookies)
	path := fmt.Sprintf("/albums/%d/files", album.ID)

	w := serve(router, multipartRequest(t, path, []part{{"a.jpg", []byte("a")}, {"b.jpg", []byte("b")}}, nil), cookies)
	if w.Code != http.StatusOK {
		t.Fatalf("upload status = %d", w.Code)
	}
	w = serve(router, jsonRequest(path, `{"files":[{"filePath":"https://cdn.example.com/c.jpg"}]}`), cookies)
	if w.Code != http.StatusOK {
		t.Fatalf("manifest status = %d", w.Code)
	}

	w = serve(router, httptest.NewRequest(http.MethodGet, "/album/list", nil), cookies)
	list := []AlbumInfo{}
	decode(t, w, &list)
	if len(list) != 1 || list[0].Files != 3 {
		t.Fatalf("list = %+v", list)
	}

	w = postForm(router, "/album/delete", url.Values{"album_id": {fmt.Sprint(album.ID)}}, cookies)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d, body = %s", w.Code, w.Body.String())
	}
	if len(placer.removed) != 2 {
		t.Errorf("removed = %v, want the two placed files only", placer.removed)
	}
	w = serve(router, httptest.NewRequest(http.MethodGet, "/album/list", nil), cookies)
	list = nil
	decode(t, w, &list)
	if len(list) != 0 {
		t.Errorf("albums left = %d", len(list))
	}
}

func TestDeleteFile(t *testing.T) {
	router, placer := setupRouter(t)
	cookies := signup(t, router, "ana@example.com")
	album := createAlbum(t, router, cookies)
	path := fmt.Sprintf("/albums/%d/files", album.ID)

	w := serve(router, multipartRequest(t, path, []part{{"a.jpg", []byte("a")}}, nil), cookies)
	files := []models.File{}
	decode(t, w, &files)
	if len(files) != 1 {
		t.Fatalf("upload = %s", w.Body.String())
	}

	req := httptest.NewRequest(http.MethodDelete, fmt.Sprintf("%s/%d", path, files[0].ID), nil)
	if w = serve(router, req, cookies); w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}
	if len(placer.removed) != 1 || placer.removed[0] != files[0].FilePath {
		t.Errorf("removed = %v", placer.removed)
	}
	req = httptest.NewRequest(http.MethodDelete, fmt.Sprintf("%s/%d", path, files[0].ID), nil)
	if w = serve(router, req, cookies); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}
