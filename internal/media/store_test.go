package media

import (
	"bytes"
	"errors"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"strings"
	"testing"

	"parley/internal/core"
)

func uploadHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatal(err)
	}
	w.Close()

	req := httptest.NewRequest("POST", "/upload", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if err := req.ParseMultipartForm(1 << 20); err != nil {
		t.Fatal(err)
	}
	return req.MultipartForm.File["file"][0]
}

func TestSaveAndOpenRoundTrip(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), "/api/v1/files", 1<<20)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	content := []byte("attachment body")
	att, err := store.Save(uploadHeader(t, "photo.PNG", content))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if att.PublicID == "" || !strings.HasSuffix(att.PublicID, ".png") {
		t.Fatalf("public id = %q", att.PublicID)
	}
	if !strings.HasPrefix(att.URL, "/api/v1/files/") {
		t.Fatalf("url = %q", att.URL)
	}

	f, name, err := store.Open(att.PublicID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	got, _ := io.ReadAll(f)
	if !bytes.Equal(got, content) || name != att.PublicID {
		t.Fatalf("got %q name %q", got, name)
	}
}

func TestSaveRejectsOversize(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), "/files", 8)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	_, err = store.Save(uploadHeader(t, "big.bin", bytes.Repeat([]byte("x"), 64)))
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
}

func TestOpenRejectsPathEscape(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), "/files", 1<<20)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	for _, id := range []string{"", "../secret", "a/b"} {
		if _, _, err := store.Open(id); !errors.Is(err, core.ErrInvalidRequest) {
			t.Fatalf("id %q: err = %v, want ErrInvalidRequest", id, err)
		}
	}
	if _, _, err := store.Open("missing.png"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), "/files", 1<<20)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	att, err := store.Save(uploadHeader(t, "note.txt", []byte("hi")))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Remove(att.PublicID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := store.Remove(att.PublicID); err != nil {
		t.Fatalf("second remove: %v", err)
	}
	if _, _, err := store.Open(att.PublicID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
