package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/warp/attendance-engine/entity"
)

// =============================================================================
// FACE GALLERY CACHE
// =============================================================================
//
// The gallery is every labelled descriptor set the client matcher loads:
// students with descriptors first, then legacy faces. It is rebuilt on
// demand and dropped on any student, face or wipe write.

const galleryKey = "gallery"

// galleryCache stamps every invalidation with a generation. A build that
// started before an invalidation is not stored.
type galleryCache struct {
	c   *cache.Cache
	mu  sync.Mutex
	gen uint64
}

func newGalleryCache(ttl time.Duration) *galleryCache {
	return &galleryCache{c: cache.New(ttl, ttl*2)}
}

// Get returns the cached entries, or the generation a rebuild must pass to Set.
func (g *galleryCache) Get() ([]GalleryEntryDTO, uint64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.c.Get(galleryKey)
	if !ok {
		return nil, g.gen, false
	}
	return v.([]GalleryEntryDTO), g.gen, true
}

// Set stores entries built at generation gen. It reports false and stores
// nothing when an invalidation happened since.
func (g *galleryCache) Set(entries []GalleryEntryDTO, gen uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if gen != g.gen {
		return false
	}
	g.c.Set(galleryKey, entries, cache.DefaultExpiration)
	return true
}

func (g *galleryCache) Invalidate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gen++
	g.c.Flush()
}

func (h *Handler) buildGallery(ctx context.Context) ([]GalleryEntryDTO, error) {
	students, err := h.Store.ListStudents(ctx)
	if err != nil {
		return nil, err
	}
	faces, err := h.Store.ListFaces(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]GalleryEntryDTO, 0, len(students)+len(faces))
	for _, st := range students {
		if !isJSONArray(rawJSON(st.FaceDescriptors)) {
			continue
		}
		out = append(out, GalleryEntryDTO{
			Source:        "student",
			Label:         st.StudentNumber + "-" + st.Name,
			StudentNumber: st.StudentNumber,
			Name:          st.Name,
			Class:         st.ClassName,
			Descriptors:   rawJSON(st.FaceDescriptors),
		})
	}
	for _, f := range faces {
		out = append(out, GalleryEntryDTO{
			Source:      "face",
			Label:       f.Label,
			FaceID:      f.ID,
			Name:        f.Name,
			Class:       f.Class,
			Descriptors: rawJSON(f.Descriptors),
		})
	}
	return out, nil
}

// Gallery returns the descriptor gallery, served from cache when warm.
func (h *Handler) Gallery(w http.ResponseWriter, r *http.Request) {
	entries, gen, ok := h.gallery.Get()
	if !ok {
		var err error
		entries, err = h.buildGallery(r.Context())
		if err != nil {
			h.fail(w, r, "Failed to build gallery", err)
			return
		}
		if !h.gallery.Set(entries, gen) {
			h.logger.Debug("gallery changed during rebuild, not cached")
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"gallery": entries})
}

// =============================================================================
// FACE HANDLERS (legacy records)
// =============================================================================

func (h *Handler) ListFaces(w http.ResponseWriter, r *http.Request) {
	faces, err := h.Store.ListFaces(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list faces", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"faces": mapSlice(faces, toFaceDTO)})
}

func (h *Handler) GetFace(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, r, "Invalid face id", err)
		return
	}
	f, err := h.Store.GetFace(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Failed to get face", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"face": toFaceDTO(*f)})
}

func (h *Handler) CreateFace(w http.ResponseWriter, r *http.Request) {
	var req FaceRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	id, err := h.Store.CreateFace(r.Context(), req.toEntity(0))
	if err != nil {
		h.fail(w, r, "Failed to create face", err)
		return
	}
	h.gallery.Invalidate()
	writeJSON(w, http.StatusOK, map[string]any{"id": id})
}

// UpdateFace overwrites every field of a face record.
func (h *Handler) UpdateFace(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, r, "Invalid face id", err)
		return
	}
	var req FaceRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "Invalid request body", err)
		return
	}
	n, err := h.Store.UpdateFace(r.Context(), req.toEntity(id))
	if err != nil {
		h.fail(w, r, "Failed to update face", err)
		return
	}
	h.gallery.Invalidate()
	writeJSON(w, http.StatusOK, ChangesResponse{Changes: n})
}

func (h *Handler) DeleteFace(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, r, "Invalid face id", err)
		return
	}
	n, err := h.Store.DeleteFace(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Failed to delete face", err)
		return
	}
	h.gallery.Invalidate()
	writeJSON(w, http.StatusOK, ChangesResponse{Changes: n})
}

func (req FaceRequest) toEntity(id int64) entity.Face {
	return entity.Face{
		ID:          id,
		Label:       req.Label,
		Descriptors: string(req.Descriptors),
		Class:       req.Class,
		Name:        req.Name,
		Course:      req.Course,
	}
}
