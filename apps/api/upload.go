package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/mahaj/dupahar/pkg/model"
)

const maxUploadBytes = 25 << 20 // 25 MiB

// UploadHandler stores attachment files on local disk and serves them
// back under /files/. Object storage can replace this behind the same
// Attachment contract.
type UploadHandler struct {
	dir string
}

func NewUploadHandler(dir string) (*UploadHandler, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &UploadHandler{dir: dir}, nil
}

func (h *UploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if name == "" || name == "." {
		http.Error(w, "file needs a name", http.StatusBadRequest)
		return
	}

	// Unique on-disk name; the original name travels in the descriptor.
	stored := fmt.Sprintf("%d_%s", time.Now().UnixNano(), name)
	dst, err := os.Create(filepath.Join(h.dir, stored))
	if err != nil {
		log.Printf("Failed to create upload file: %v", err)
		http.Error(w, "Failed to store file", http.StatusInternalServerError)
		return
	}
	defer dst.Close()

	size, err := io.Copy(dst, file)
	if err != nil {
		log.Printf("Failed to write upload: %v", err)
		http.Error(w, "Failed to store file", http.StatusInternalServerError)
		return
	}

	mimeType := r.Header.Get("X-Upload-Mime")
	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(name))
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(model.Attachment{
		URL:  "/files/" + stored,
		Name: name,
		Size: size,
		Mime: mimeType,
	})
}

// FileServer serves previously uploaded attachments.
func (h *UploadHandler) FileServer() http.Handler {
	return http.StripPrefix("/files/", http.FileServer(http.Dir(h.dir)))
}
