package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/warp/attendance-engine/entity"
	"github.com/warp/attendance-engine/importer"
)

// =============================================================================
// PHOTO UPLOADS
// =============================================================================
//
// Photos are written to {uploads}/students/{millis}_{name}{ext} and
// referenced by their public path /uploads/students/... on the student.

const (
	maxUploadMemory = 32 << 20
	photoSubdir     = "students"
)

func (h *Handler) photoDir() string {
	return filepath.Join(h.cfg.UploadsDir, photoSubdir)
}

// savePhoto stores one uploaded file and returns its public path.
func (h *Handler) savePhoto(fh *multipart.FileHeader) (string, error) {
	dir := h.photoDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	name := importer.StoredName(fh.Filename, h.cfg.Clock())
	dst, err := os.OpenFile(filepath.Join(dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", name, err)
	}
	return path.Join("/uploads", photoSubdir, name), nil
}

// removePhoto deletes a stored photo by its public path.
func (h *Handler) removePhoto(public string) {
	name := path.Base(public)
	if err := os.Remove(filepath.Join(h.photoDir(), name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		h.logger.Warn("failed to remove orphan photo", "path", public, "error", err)
	}
}

// UploadPhoto stores one photo ("photo" field) for student_number and merges
// the optional name, gender and class_name form fields into the student.
func (h *Handler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		h.fail(w, r, "Invalid upload", entity.Invalid("body", err.Error()))
		return
	}
	_, fh, err := r.FormFile("photo")
	if err != nil {
		h.fail(w, r, "Invalid upload", entity.Invalid("photo", "required"))
		return
	}
	sn := strings.TrimSpace(r.FormValue("student_number"))
	if sn == "" {
		h.fail(w, r, "Invalid upload", entity.Invalid("student_number", "required"))
		return
	}

	public, err := h.savePhoto(fh)
	if err != nil {
		h.fail(w, r, "Failed to store photo", err)
		return
	}

	_, err = h.Store.MergeStudent(r.Context(), entity.Student{
		StudentNumber: sn,
		Name:          strings.TrimSpace(r.FormValue("name")),
		Gender:        strings.TrimSpace(r.FormValue("gender")),
		ClassName:     strings.TrimSpace(r.FormValue("class_name")),
		PhotoPath:     public,
	})
	if err != nil {
		h.removePhoto(public)
		h.fail(w, r, "Failed to save student", err)
		return
	}
	h.gallery.Invalidate()

	st, err := h.Store.GetStudentByNumber(r.Context(), sn)
	if err != nil {
		h.fail(w, r, "Failed to get student", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"student": toStudentDTO(*st)})
}

// ImportPhotos creates or merges one student per uploaded photo. File names
// carry "number-name"; form fields gender and class_name are defaults, and
// meta is a JSON object {filename: {gender, class_name}} overriding them.
func (h *Handler) ImportPhotos(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		h.fail(w, r, "Invalid upload", entity.Invalid("body", err.Error()))
		return
	}

	var meta map[string]importer.PhotoMeta
	if raw := r.FormValue("meta"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			h.logger.Warn("ignoring unparsable photo meta", "error", err)
			meta = nil
		}
	}
	defaults := importer.PhotoDefaults{
		Gender:    strings.TrimSpace(r.FormValue("gender")),
		ClassName: strings.TrimSpace(r.FormValue("class_name")),
	}

	headers := r.MultipartForm.File["photos"]
	files := make([]importer.PhotoFile, 0, len(headers))
	for _, fh := range headers {
		public, err := h.savePhoto(fh)
		if err != nil {
			h.fail(w, r, "Failed to store photo", err)
			return
		}
		files = append(files, importer.PhotoFile{OriginalName: fh.Filename, StoredPath: public})
	}

	sum := importer.ImportPhotos(r.Context(), h.Store, files, defaults, meta)
	h.gallery.Invalidate()
	h.logger.Info("photo import finished", "processed", sum.Processed, "inserted", sum.Inserted,
		"updated", sum.Updated, "skipped", sum.Skipped, "errors", len(sum.Errors))
	writeJSON(w, http.StatusOK, toSummaryDTO(sum))
}

// ListUploads lists the public paths of stored student photos.
func (h *Handler) ListUploads(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(h.photoDir())
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		h.fail(w, r, "Failed to list uploads", err)
		return
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		files = append(files, path.Join("/uploads", photoSubdir, e.Name()))
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}
