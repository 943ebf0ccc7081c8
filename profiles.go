package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitea.kood.tech/petrkubec/soulmate/backend/filter"
	"gitea.kood.tech/petrkubec/soulmate/backend/querycache"
	"gitea.kood.tech/petrkubec/soulmate/backend/store"
)

const defaultProfileImage = "https://images.pexels.com/photos/220453/pexels-photo-220453.jpeg?auto=compress&cs=tinysrgb&w=1260&h=750"

type profilesView struct {
	Filter   filter.Filter       `json:"filter"`
	Options  filter.Options      `json:"options"`
	Profiles []store.ProfileCard `json:"profiles"`
	Empty    *EmptyState         `json:"empty,omitempty"`
	Stale    bool                `json:"stale,omitempty"`
}

// GET /profiles?ageMin=&ageMax=&location=&education=&occupation=&q=
func profilesHandler(a *App) http.HandlerFunc {
	opts := filter.DefaultOptions()
	return func(w http.ResponseWriter, r *http.Request) {
		f := filter.FromQuery(r.URL.Query())
		key := querycache.Key{Kind: kindProfiles, Params: f.Key()}

		res := querycache.Get(r.Context(), a.cache, key, func(ctx context.Context) ([]store.ProfileCard, error) {
			return a.store.ListProfiles(ctx, filter.Build(f))
		})

		view := profilesView{Filter: f, Options: opts, Profiles: []store.ProfileCard{}, Stale: res.Stale}
		if res.IsError {
			a.log.Error("list profiles", zap.String("filter", key.Params), zap.Error(res.Err))
			view.Empty = &emptyProfilesError
			writeJSON(w, http.StatusInternalServerError, view)
			return
		}
		if len(res.Data) == 0 {
			view.Empty = &emptyNoProfiles
			writeJSON(w, http.StatusOK, view)
			return
		}

		// cached slices are shared between requests
		view.Profiles = make([]store.ProfileCard, len(res.Data))
		for i, c := range res.Data {
			if c.ProfileImage == "" {
				c.ProfileImage = defaultProfileImage
			}
			view.Profiles[i] = c
		}
		writeJSON(w, http.StatusOK, view)
	}
}

type profileDetailView struct {
	store.ProfileDetail
	FullName string `json:"full_name"`
	Stale    bool   `json:"stale,omitempty"`
}

// GET /profile/{id}
func profileDetailHandler(a *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := uuid.Parse(id); err != nil {
			writeJSON(w, http.StatusNotFound, emptyProfileNotFound)
			return
		}

		key := querycache.Key{Kind: kindProfile, Params: id}
		res := querycache.Get(r.Context(), a.cache, key, func(ctx context.Context) (store.ProfileDetail, error) {
			return a.store.ProfileDetail(ctx, id)
		})
		if res.IsError {
			if !errors.Is(res.Err, store.ErrNotFound) {
				a.log.Error("load profile", zap.String("profile_id", id), zap.Error(res.Err))
			}
			writeJSON(w, http.StatusNotFound, emptyProfileNotFound)
			return
		}

		p := res.Data
		if p.Bio == "" {
			p.Bio = "No bio available."
		}
		if p.Height == "" {
			p.Height = "Not specified"
		}
		if p.ProfileImage == "" {
			p.ProfileImage = defaultProfileImage
		}
		writeJSON(w, http.StatusOK, profileDetailView{
			ProfileDetail: p,
			FullName:      p.FirstName + " " + p.LastName,
			Stale:         res.Stale,
		})
	}
}
