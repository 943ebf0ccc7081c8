package main

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitea.kood.tech/petrkubec/soulmate/backend/querycache"
	"gitea.kood.tech/petrkubec/soulmate/backend/store"
)

type interactionRequest struct {
	Action  store.Action `json:"action"`
	Message string       `json:"message"`
}

type interactionResponse struct {
	Interaction store.Interaction `json:"interaction"`
	Toast       *Toast            `json:"toast"`
}

var interactionToasts = map[store.Action]string{
	store.ActionLike:    "Interest shown successfully!",
	store.ActionPass:    "Profile passed",
	store.ActionMessage: "Message sent successfully!",
}

// POST /profile/{id}/interactions
//
// Records one row in the interaction log. The sender is always the
// signed-in user; nothing is deduplicated.
func interactionHandler(a *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		targetID := chi.URLParam(r, "id")

		user, state := a.resolveSession(r)
		if state == SessionLoading {
			writeLoading(w)
			return
		}

		// an anonymous caller is turned away even when the body is unreadable;
		// the body only picks the wording
		var req interactionRequest
		decodeErr := decodeJSON(r, &req)
		if state == SessionAnonymous {
			msg := "Please log in to connect."
			if decodeErr == nil && req.Action == store.ActionMessage {
				msg = "Please log in to send a message."
			}
			writeToast(w, http.StatusUnauthorized, "unauthorized", errorToast(msg))
			return
		}
		if decodeErr != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}

		if _, err := uuid.Parse(targetID); err != nil {
			writeJSON(w, http.StatusNotFound, emptyProfileNotFound)
			return
		}
		if !req.Action.Valid() {
			writeValidation(w, FieldErrors{"action": "Action must be one of like, pass, message"})
			return
		}
		req.Message = strings.TrimSpace(req.Message)
		if req.Action == store.ActionMessage && req.Message == "" {
			writeValidation(w, FieldErrors{"message": "Message is required"})
			return
		}
		if req.Action != store.ActionMessage {
			req.Message = ""
		}
		if targetID == user.ID {
			writeToast(w, http.StatusBadRequest, "self_interaction", errorToast("You cannot interact with your own profile."))
			return
		}

		in, err := a.store.RecordInteraction(r.Context(), store.NewInteraction{
			FromProfileID: user.ID,
			ToProfileID:   targetID,
			Action:        req.Action,
			Message:       req.Message,
		})
		a.metrics.Interaction(string(req.Action), err == nil)
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, emptyProfileNotFound)
			return
		} else if err != nil {
			a.log.Error("record interaction",
				zap.String("from", user.ID), zap.String("to", targetID), zap.Error(err))
			writeToast(w, http.StatusInternalServerError, "db_error",
				errorToast("Failed to interact with profile: "+err.Error()))
			return
		}

		a.cache.Invalidate(kindInteractions)
		a.notifyRecipient(context.WithoutCancel(r.Context()), in)

		writeJSON(w, http.StatusCreated, interactionResponse{
			Interaction: in,
			Toast:       successToast(interactionToasts[in.Action]),
		})
	}
}

// notifyRecipient writes the recipient's notification and message rows and
// pushes fresh counts. Failures are logged; the interaction stands.
func (a *App) notifyRecipient(ctx context.Context, in store.Interaction) {
	var touched []string
	switch in.Action {
	case store.ActionLike:
		if err := a.store.CreateNotification(ctx, in.ToProfileID, store.NotifyInterest, in.FromProfileID); err != nil {
			a.log.Warn("create notification", zap.String("interaction_id", in.ID), zap.Error(err))
		} else {
			touched = append(touched, kindNotifications)
		}
	case store.ActionMessage:
		if err := a.store.CreateNotification(ctx, in.ToProfileID, store.NotifyMessage, in.FromProfileID); err != nil {
			a.log.Warn("create notification", zap.String("interaction_id", in.ID), zap.Error(err))
		} else {
			touched = append(touched, kindNotifications)
		}
		if err := a.store.CreateMessage(ctx, in.FromProfileID, in.ToProfileID, in.Message); err != nil {
			a.log.Warn("create message", zap.String("interaction_id", in.ID), zap.Error(err))
		} else {
			touched = append(touched, kindMessages)
		}
	}
	if len(touched) == 0 {
		return
	}
	for _, kind := range touched {
		a.cache.InvalidateKey(querycache.Key{Kind: kind, Params: in.ToProfileID})
	}
	a.pushCounts(ctx, in.ToProfileID)
}

type sentInteraction struct {
	store.Interaction
	Profile *store.ProfileCard `json:"profile"`
}

// GET /interactions lists what the caller has sent, newest first, with a
// summary of each target profile.
func interactionsHandler(a *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := userFromContext(r.Context())

		res := querycache.Get(r.Context(), a.cache, querycache.Key{Kind: kindInteractions, Params: user.ID},
			func(ctx context.Context) ([]store.Interaction, error) {
				return a.store.InteractionsFrom(ctx, user.ID)
			})
		if res.IsError {
			a.log.Error("list interactions", zap.String("user_id", user.ID), zap.Error(res.Err))
			writeToast(w, http.StatusInternalServerError, "db_error", errorToast("Error loading interactions"))
			return
		}

		out := make([]sentInteraction, len(res.Data))
		loaders := GetDataLoadersFromContext(r.Context())
		if loaders == nil {
			loaders = NewDataLoaders(a.store)
		}
		thunks := make([]func() (*store.ProfileCard, error), len(res.Data))
		for i, in := range res.Data {
			out[i].Interaction = in
			thunks[i] = loaders.ProfileCards.Load(r.Context(), in.ToProfileID)
		}
		for i, thunk := range thunks {
			card, err := thunk()
			if err != nil {
				a.log.Warn("load profile card", zap.String("profile_id", out[i].ToProfileID), zap.Error(err))
				continue
			}
			out[i].Profile = card
		}
		writeJSON(w, http.StatusOK, map[string]any{"interactions": out})
	}
}
