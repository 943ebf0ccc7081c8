package main

import (
	"errors"
	"net/http"
	"path"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitea.kood.tech/petrkubec/soulmate/backend/media"
	"gitea.kood.tech/petrkubec/soulmate/backend/querycache"
	"gitea.kood.tech/petrkubec/soulmate/backend/store"
)

// POST /settings/photos  (multipart form, field name: "file")
//
// Appends a JPEG to the caller's gallery. The first upload becomes the
// profile picture.
func uploadPhotoHandler(a *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := userFromContext(r.Context())

		maxBytes := a.cfg.Uploads.MaxBytes
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		if err := r.ParseMultipartForm(maxBytes + 1<<20); err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "file_too_large_or_missing")
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "missing_file")
			return
		}
		defer f.Close()

		isJPEG, err := media.SniffJPEG(f)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "seek_failed")
			return
		}
		if !isJPEG {
			writeError(w, http.StatusBadRequest, "only_jpeg_allowed")
			return
		}

		key := path.Join(user.ID, uuid.NewString()+".jpg")
		url, err := a.photos.Put(r.Context(), key, f, hdr.Size, "image/jpeg")
		if err != nil {
			a.log.Error("store photo", zap.String("user_id", user.ID), zap.Error(err))
			writeToast(w, http.StatusInternalServerError, "save_failed", errorToast("Error uploading photo"))
			return
		}

		img, err := a.store.AddProfileImage(r.Context(), user.ID, url)
		if err != nil {
			// the object is useless without its row
			if derr := a.photos.Delete(r.Context(), key); derr != nil {
				a.log.Warn("remove orphaned photo", zap.String("key", key), zap.Error(derr))
			}
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusConflict, "profile_not_initialized")
				return
			}
			a.log.Error("add profile image", zap.String("user_id", user.ID), zap.Error(err))
			writeToast(w, http.StatusInternalServerError, "db_update_failed", errorToast("Error uploading photo"))
			return
		}

		a.cache.InvalidateKey(querycache.Key{Kind: kindProfile, Params: user.ID})
		if img.IsPrimary {
			a.cache.Invalidate(kindProfiles)
			a.cache.InvalidateKey(querycache.Key{Kind: kindAccount, Params: user.ID})
		}

		writeJSON(w, http.StatusCreated, struct {
			Image store.ProfileImage `json:"image"`
			Toast *Toast             `json:"toast"`
		}{img, successToast("Photo uploaded successfully!")})
	}
}
