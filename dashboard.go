package main

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"gitea.kood.tech/petrkubec/soulmate/backend/querycache"
	"gitea.kood.tech/petrkubec/soulmate/backend/store"
)

const defaultProfileCompletion = 30

type dashboardView struct {
	DisplayName       string         `json:"display_name"`
	Location          string         `json:"location"`
	AvatarURL         string         `json:"avatar_url"`
	ProfileCompletion int            `json:"profile_completion"`
	Account           *store.Account `json:"account"`
	Notifications     int            `json:"notifications"`
	Messages          int            `json:"messages"`
	Links             []link         `json:"links"`
}

// GET /dashboard
func dashboardHandler(a *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := userFromContext(r.Context())

		acct, ok, err := a.account(r.Context(), user.ID)
		if err != nil {
			a.log.Error("load account", zap.String("user_id", user.ID), zap.Error(err))
			writeToast(w, http.StatusInternalServerError, "db_error", errorToast("Error loading profile"))
			return
		}

		view := dashboardView{
			DisplayName:       displayName(acct, user),
			Location:          acct.Location,
			AvatarURL:         acct.AvatarURL,
			ProfileCompletion: acct.ProfileCompletion,
			Links: []link{
				{Label: "Edit Profile", To: "/settings"},
				{Label: "Browse Profiles", To: "/profiles"},
			},
		}
		if ok {
			view.Account = &acct
		}
		if view.Location == "" {
			view.Location = "Location not set"
		}
		if view.AvatarURL == "" {
			view.AvatarURL = defaultProfileImage
		}
		if view.ProfileCompletion == 0 {
			view.ProfileCompletion = defaultProfileCompletion
		}
		view.Notifications, view.Messages = a.unreadCounts(r.Context(), user.ID)
		writeJSON(w, http.StatusOK, view)
	}
}

// account loads the caller's settings record through the cache. A member
// who never saved settings has none; ok is false then.
func (a *App) account(ctx context.Context, userID string) (store.Account, bool, error) {
	res := querycache.Get(ctx, a.cache, querycache.Key{Kind: kindAccount, Params: userID},
		func(ctx context.Context) (store.Account, error) {
			return a.store.Account(ctx, userID)
		})
	if res.IsError {
		if errors.Is(res.Err, store.ErrNotFound) {
			return store.Account{}, false, nil
		}
		return store.Account{}, false, res.Err
	}
	return res.Data, true, nil
}

// unreadCounts returns the user's unread notification and message counts.
// A failed count is logged and reported as 0.
func (a *App) unreadCounts(ctx context.Context, userID string) (notifications, messages int) {
	count := func(kind string, fetch func(context.Context, string) (int, error)) int {
		res := querycache.Get(ctx, a.cache, querycache.Key{Kind: kind, Params: userID},
			func(ctx context.Context) (int, error) { return fetch(ctx, userID) })
		if res.IsError {
			a.log.Warn("unread count", zap.String("kind", kind), zap.String("user_id", userID), zap.Error(res.Err))
			return 0
		}
		return res.Data
	}
	return count(kindNotifications, a.store.UnreadNotifications), count(kindMessages, a.store.UnreadMessages)
}

func displayName(acct store.Account, u store.User) string {
	if name := strings.TrimSpace(acct.FullName); name != "" {
		return name
	}
	local, _, _ := strings.Cut(u.Email, "@")
	return local
}
