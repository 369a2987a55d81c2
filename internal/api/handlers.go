package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"devcollab/internal/auth"
	"devcollab/internal/chat"
	"devcollab/internal/filestore"
	"devcollab/internal/models"
	"devcollab/internal/notify"
	"devcollab/internal/storage"
	"devcollab/internal/ws"

	"github.com/h2non/filetype"
)

const (
	maxAvatarSize = 5 << 20
	// filetype needs at most this many leading bytes to identify a format.
	sniffLen = 261
)

type API struct {
	auth     *auth.Gate
	chat     *chat.Pipeline
	inbox    *notify.Service
	storage  *storage.BboltStorage
	files    filestore.FileStore
	vapidKey string
}

func New(
	auth *auth.Gate,
	chat *chat.Pipeline,
	inbox *notify.Service,
	storage *storage.BboltStorage,
	files filestore.FileStore,
	vapidKey string,
) *API {
	return &API{
		auth:     auth,
		chat:     chat,
		inbox:    inbox,
		storage:  storage,
		files:    files,
		vapidKey: vapidKey,
	}
}

type ctxKey struct{}

func userFrom(r *http.Request) models.User {
	user, _ := r.Context().Value(ctxKey{}).(models.User)
	return user
}

// RequireAuth rejects requests without a valid session token and passes the
// authenticated user down in the request context.
func (a *API) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := a.auth.Authenticate(ws.TokenFromRequest(r))
		if err != nil {
			if errors.Is(err, auth.ErrMissingToken) || errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrUserNotFound) {
				writeJSON(w, http.StatusUnauthorized, models.ErrorPayload{Error: auth.Reason(err)})
				return
			}
			writeError(w, err)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, user)))
	}
}

// RequireSameOrigin rejects cross-site state changing requests that carry
// an Origin header not matching the request host.
func RequireSameOrigin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			u, err := url.Parse(origin)
			if err != nil || u.Host != r.Host {
				http.Error(w, "Cross-origin request rejected", http.StatusForbidden)
				return
			}
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func statusOf(reason string) int {
	switch reason {
	case models.ReasonNotFound, models.ReasonProjectNotFound:
		return http.StatusNotFound
	case models.ReasonNotAuthorized:
		return http.StatusForbidden
	case models.ReasonValidation:
		return http.StatusBadRequest
	case models.ReasonEditWindowExpired:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps a domain error to its status and reason. Internal details
// are logged, never sent.
func writeError(w http.ResponseWriter, err error) {
	reason := models.Reason(err)
	status := statusOf(reason)
	if status == http.StatusInternalServerError {
		log.Printf("request failed: %v", err)
	}
	writeJSON(w, status, models.ErrorPayload{Error: reason})
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return models.Invalid("invalid request body")
	}
	return nil
}

const (
	maxPage  = 10000
	maxLimit = 100
)

func paging(r *http.Request) (page, limit int, err error) {
	q := r.URL.Query()
	for name, dst := range map[string]*int{"page": &page, "limit": &limit} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, convErr := strconv.Atoi(v)
		if convErr != nil || n < 1 {
			return 0, 0, models.Invalid("%s must be a positive integer", name)
		}
		*dst = n
	}
	if page == 0 {
		page = 1
	}
	if page > maxPage {
		return 0, 0, models.Invalid("page must not exceed %d", maxPage)
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit, nil
}

type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit,omitempty"`
}

func (a *API) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest

	// Support both JSON and form posts.
	if r.Header.Get("Content-Type") == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Failed to parse form", http.StatusBadRequest)
			return
		}
		req.Email = r.FormValue("email")
		req.Password = r.FormValue("password")
	}

	loginResp := a.auth.Login(req)
	if !loginResp.Success {
		writeJSON(w, http.StatusUnauthorized, loginResp)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    loginResp.Token,
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteStrictMode,
		Expires:  time.Unix(loginResp.TokenExpiry, 0),
	})

	writeJSON(w, http.StatusOK, loginResp)
}

func (a *API) LogoffHandler(w http.ResponseWriter, r *http.Request) {
	if token := ws.TokenFromRequest(r); token != "" {
		_ = a.auth.Logoff(token)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    "",
		HttpOnly: true,
		Path:     "/",
		MaxAge:   -1,
	})

	w.WriteHeader(http.StatusOK)
}

func (a *API) MeHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userFrom(r))
}

func (a *API) MessagesHandler(w http.ResponseWriter, r *http.Request) {
	page, limit, err := paging(r)
	if err != nil {
		writeError(w, err)
		return
	}
	msgs, total, err := a.chat.History(userFrom(r).ID, r.PathValue("id"), page, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if msgs == nil {
		msgs = []models.MessageView{}
	}
	writeJSON(w, http.StatusOK, Page[models.MessageView]{Items: msgs, Total: total, Page: page, Limit: limit})
}

func (a *API) NotificationsHandler(w http.ResponseWriter, r *http.Request) {
	page, limit, err := paging(r)
	if err != nil {
		writeError(w, err)
		return
	}
	unreadOnly, _ := strconv.ParseBool(r.URL.Query().Get("unreadOnly"))

	items, total, err := a.inbox.List(userFrom(r).ID, page, limit, unreadOnly)
	if err != nil {
		writeError(w, err)
		return
	}
	if items == nil {
		items = []models.Notification{}
	}
	writeJSON(w, http.StatusOK, Page[models.Notification]{Items: items, Total: total, Page: page, Limit: limit})
}

func (a *API) UnreadCountHandler(w http.ResponseWriter, r *http.Request) {
	count, err := a.inbox.UnreadCount(userFrom(r).ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (a *API) MarkReadHandler(w http.ResponseWriter, r *http.Request) {
	n, err := a.inbox.MarkRead(userFrom(r).ID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (a *API) MarkAllReadHandler(w http.ResponseWriter, r *http.Request) {
	updated, err := a.inbox.MarkAllRead(userFrom(r).ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

func (a *API) DeleteNotificationHandler(w http.ResponseWriter, r *http.Request) {
	if err := a.inbox.Delete(userFrom(r).ID, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.APIResponse{Success: true})
}

func (a *API) ClearReadHandler(w http.ResponseWriter, r *http.Request) {
	deleted, err := a.inbox.ClearRead(userFrom(r).ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

func (a *API) UploadAvatarHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarSize)
	file, _, err := r.FormFile("avatar")
	if err != nil {
		writeError(w, models.Invalid("avatar file is required"))
		return
	}
	defer func() { _ = file.Close() }()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		writeError(w, models.Invalid("avatar file is empty"))
		return
	}
	head = head[:n]

	if !filetype.IsImage(head) {
		writeError(w, models.Invalid("avatar must be an image"))
		return
	}
	kind, err := filetype.Match(head)
	if err != nil || kind.MIME.Value == "" {
		writeError(w, models.Invalid("unrecognized image format"))
		return
	}

	user := userFrom(r)
	hash, size, err := a.files.Save(io.MultiReader(bytes.NewReader(head), file))
	if err != nil {
		writeError(w, models.Transient("save avatar", err))
		return
	}

	if err := a.storage.UpsertFileMetadata(storage.FileMetadata{
		ID:       hash,
		Hash:     hash,
		MimeType: kind.MIME.Value,
		Size:     size,
		OwnerID:  user.ID,
	}); err != nil {
		writeError(w, models.Transient("save avatar metadata", err))
		return
	}

	updated, err := a.storage.UpdateUserAvatar(user.ID, fmt.Sprintf("/api/images/%s", hash))
	if err != nil {
		writeError(w, models.Transient("update avatar", err))
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) GetImageHandler(w http.ResponseWriter, r *http.Request) {
	meta, err := a.storage.GetFileMetadata(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		writeError(w, err)
		return
	}

	rc, err := a.files.Get(meta.Hash)
	if err != nil {
		log.Printf("file %s has metadata but no content: %v", meta.ID, err)
		http.NotFound(w, r)
		return
	}
	defer func() { _ = rc.Close() }()

	w.Header().Set("Content-Type", meta.MimeType)
	w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	// Content addressed, so it never changes.
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	if _, err := io.Copy(w, rc); err != nil {
		log.Printf("failed to send file %s: %v", meta.ID, err)
	}
}

// PushSubscription mirrors the browser's PushSubscription.toJSON() shape.
type PushSubscription struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

func (a *API) PushSubscribeHandler(w http.ResponseWriter, r *http.Request) {
	var req PushSubscription
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Keys.P256dh == "" || req.Keys.Auth == "" {
		writeError(w, models.Invalid("subscription keys are required"))
		return
	}

	err := a.storage.UpsertPushSubscription(models.PushSubscription{
		UserID:   userFrom(r).ID,
		Endpoint: req.Endpoint,
		P256dh:   req.Keys.P256dh,
		Auth:     req.Keys.Auth,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, models.APIResponse{Success: true})
}

func (a *API) VapidKeyHandler(w http.ResponseWriter, r *http.Request) {
	if a.vapidKey == "" {
		writeJSON(w, http.StatusNotFound, models.APIResponse{Message: "Web push is not configured"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"publicKey": a.vapidKey})
}
