package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"samplecore/internal/blob"
)

// maxPhotoBytes bounds a single upload. Field photos are phone captures;
// 32 MiB leaves generous headroom.
const maxPhotoBytes = 32 << 20

// handleUploadPhoto accepts a multipart "photo" part, stores it under the
// sample's photo prefix and returns the blob info. The returned key is the
// opaque ref callers attach to a later transition via photo_refs.
func (a *API) handleUploadPhoto(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	sampleID := chi.URLParam(r, "id")
	// Access check piggybacks on the read path.
	if _, err := a.service.GetSample(r.Context(), sampleID, p); err != nil {
		writeDomainError(w, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxPhotoBytes)
	file, header, err := r.FormFile("photo")
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "multipart field 'photo' required")
		return
	}
	defer func() { _ = file.Close() }()

	key, err := blob.PhotoKey(sampleID, header.Filename)
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	info, err := a.photos.Put(r.Context(), key, file, blob.PutOptions{
		ContentType: header.Header.Get("Content-Type"),
		Metadata:    map[string]string{"uploaded_by": p.UserID},
	})
	if err != nil {
		writeErrorCode(w, http.StatusConflict, "photo_exists", err.Error())
		return
	}
	a.attachURL(r, &info)
	writeJSON(w, http.StatusCreated, info)
}

// handleListPhotos lists the sample's stored photos with presigned URLs
// where the driver supports them.
func (a *API) handleListPhotos(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	sampleID := chi.URLParam(r, "id")
	if _, err := a.service.GetSample(r.Context(), sampleID, p); err != nil {
		writeDomainError(w, err)
		return
	}
	infos, err := a.photos.List(r.Context(), blob.PhotoPrefix(sampleID))
	if err != nil {
		writeErrorCode(w, http.StatusBadGateway, "blob_error", err.Error())
		return
	}
	for i := range infos {
		a.attachURL(r, &infos[i])
	}
	writeJSON(w, http.StatusOK, infos)
}

func (a *API) attachURL(r *http.Request, info *blob.Info) {
	url, err := a.photos.PresignURL(r.Context(), info.Key, blob.SignedURLOptions{Expiry: 15 * time.Minute})
	switch {
	case err == nil:
		info.URL = url
	case errors.Is(err, blob.ErrUnsupported):
		// Driver has no URLs; callers fall back to the key.
	default:
		a.logger.WithError(err).Warn("presign photo url")
	}
}
