package api

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"devcollab/internal/auth"
	"devcollab/internal/content"
	"devcollab/internal/events"
	"devcollab/internal/models"
	"devcollab/internal/notify"
	"devcollab/internal/rooms"
	"devcollab/internal/storage"
)

type AdminHandler struct {
	storage  *storage.BboltStorage
	notifier *notify.Service
	emitter  *events.Emitter
	baseURL  string
}

func NewAdminHandler(storage *storage.BboltStorage, notifier *notify.Service, emitter *events.Emitter, baseURL string) *AdminHandler {
	return &AdminHandler{storage: storage, notifier: notifier, emitter: emitter, baseURL: baseURL}
}

type AddUserRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Password string `json:"password,omitempty"`
}

type AddUserResponse struct {
	Success  bool         `json:"success"`
	Message  string       `json:"message,omitempty"`
	User     *models.User `json:"user,omitempty"`
	Password string       `json:"password,omitempty"` // set only when generated
	LoginURL string       `json:"loginUrl,omitempty"`
}

func (h *AdminHandler) AddUserHandler(w http.ResponseWriter, r *http.Request) {
	var req AddUserRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeJSON(w, http.StatusBadRequest, AddUserResponse{Message: "A valid email is required"})
		return
	}

	name := req.Name
	if name == "" {
		name, _, _ = strings.Cut(req.Email, "@")
	}
	name, err := content.ValidateName(name)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, AddUserResponse{Message: err.Error()})
		return
	}

	password, generated := req.Password, false
	if password == "" {
		password, generated = rand.Text(), true
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, AddUserResponse{Message: err.Error()})
		return
	}

	user, err := h.storage.CreateUser(models.User{Email: req.Email, Name: name, Active: true}, hash)
	if err != nil {
		if errors.Is(err, storage.ErrEmailTaken) {
			writeJSON(w, http.StatusConflict, AddUserResponse{Message: "Email is already registered"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, AddUserResponse{
			Message: fmt.Sprintf("Failed to create user: %v", err),
		})
		return
	}

	resp := AddUserResponse{
		Success:  true,
		User:     &user,
		LoginURL: strings.TrimRight(h.baseURL, "/") + "/api/login",
	}
	if generated {
		resp.Password = password
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *AdminHandler) ListUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := h.storage.ListUsers()
	if err != nil {
		writeError(w, models.Transient("list users", err))
		return
	}
	if users == nil {
		users = []models.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

type CreateWorkspaceRequest struct {
	Name    string `json:"name"`
	OwnerID string `json:"ownerId"`
}

func (h *AdminHandler) CreateWorkspaceHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkspaceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	name, err := content.ValidateName(req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.OwnerID == "" {
		writeError(w, models.Invalid("ownerId is required"))
		return
	}

	ws, err := h.storage.CreateWorkspace(models.Workspace{Name: name, OwnerID: req.OwnerID})
	if err != nil {
		writeError(w, models.Transient("create workspace", err))
		return
	}
	writeJSON(w, http.StatusCreated, ws)
}

type AddMemberRequest struct {
	UserID    string      `json:"userId"`
	Role      models.Role `json:"role,omitempty"`
	InvitedBy string      `json:"invitedBy,omitempty"`
}

// AddWorkspaceMemberHandler invites a user into a workspace and notifies
// them about it.
func (h *AdminHandler) AddWorkspaceMemberHandler(w http.ResponseWriter, r *http.Request) {
	var req AddMemberRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.UserID == "" {
		writeError(w, models.Invalid("userId is required"))
		return
	}
	if req.Role == "" {
		req.Role = models.RoleMember
	}
	if !req.Role.Valid() || req.Role == models.RoleOwner {
		writeError(w, models.Invalid("invalid role %q", req.Role))
		return
	}

	ws, err := h.storage.GetWorkspace(r.PathValue("id"))
	if err != nil {
		writeError(w, models.Transient("get workspace", err))
		return
	}
	_, member, err := h.storage.MembershipOf(ws.ID, req.UserID)
	if err != nil {
		writeError(w, models.Transient("membership", err))
		return
	}
	if member {
		writeError(w, models.Invalid("user is already a member of this workspace"))
		return
	}

	if err := h.storage.UpsertMember(models.WorkspaceMember{
		WorkspaceID: ws.ID,
		UserID:      req.UserID,
		Role:        req.Role,
	}); err != nil {
		writeError(w, models.Transient("add member", err))
		return
	}

	if _, err := h.notifier.Notify(models.Notification{
		UserID: req.UserID,
		Type:   models.NotificationWorkspaceInvite,
		Text:   notify.WorkspaceInviteText(ws.Name),
		Data:   models.NotificationData{WorkspaceID: ws.ID, SenderID: req.InvitedBy},
	}); err != nil {
		writeError(w, err)
		return
	}
	h.emitter.WorkspaceUpdated(ws.ID, map[string]string{"memberAdded": req.UserID})

	writeJSON(w, http.StatusCreated, models.APIResponse{Success: true})
}

type CreateProjectRequest struct {
	WorkspaceID string `json:"workspaceId"`
	Name        string `json:"name"`
}

func (h *AdminHandler) CreateProjectHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	name, err := content.ValidateName(req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.WorkspaceID == "" {
		writeError(w, models.Invalid("workspaceId is required"))
		return
	}

	project, err := h.storage.CreateProject(models.Project{WorkspaceID: req.WorkspaceID, Name: name})
	if err != nil {
		writeError(w, models.Transient("create project", err))
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

type AddProjectMemberRequest struct {
	UserID string             `json:"userId"`
	Role   models.ProjectRole `json:"role,omitempty"`
}

// AddProjectMemberHandler puts a workspace member on a project and notifies
// them about it. Users outside the workspace are rejected.
func (h *AdminHandler) AddProjectMemberHandler(w http.ResponseWriter, r *http.Request) {
	var req AddProjectMemberRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.UserID == "" {
		writeError(w, models.Invalid("userId is required"))
		return
	}
	switch req.Role {
	case "":
		req.Role = models.ProjectRoleDeveloper
	case models.ProjectRoleLead, models.ProjectRoleDeveloper, models.ProjectRoleViewer:
	default:
		writeError(w, models.Invalid("invalid role %q", req.Role))
		return
	}

	project, err := h.storage.GetProject(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			err = models.ErrProjectNotFound
		}
		writeError(w, models.Transient("get project", err))
		return
	}

	_, member, err := h.storage.MembershipOf(project.WorkspaceID, req.UserID)
	if err != nil {
		writeError(w, models.Transient("membership", err))
		return
	}
	if !member {
		writeError(w, models.Invalid("user must be a workspace member first"))
		return
	}
	if project.HasMember(req.UserID) {
		writeError(w, models.Invalid("user is already a member of this project"))
		return
	}

	project.Members = append(project.Members, models.ProjectMember{UserID: req.UserID, Role: req.Role})
	if err := h.storage.SaveProject(project); err != nil {
		writeError(w, models.Transient("save project", err))
		return
	}

	if _, err := h.notifier.Notify(models.Notification{
		UserID: req.UserID,
		Type:   models.NotificationProjectAdded,
		Text:   notify.ProjectAddedText(project.Name),
		Data:   models.NotificationData{WorkspaceID: project.WorkspaceID, ProjectID: project.ID},
	}); err != nil {
		writeError(w, err)
		return
	}
	h.emitter.BoardUpdated(project.ID, map[string]string{"memberAdded": req.UserID})

	writeJSON(w, http.StatusCreated, project)
}

// EmitHandler lets sibling services push domain events to connected clients.
func (h *AdminHandler) EmitHandler(w http.ResponseWriter, r *http.Request) {
	var req events.EmitRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.emitter.Dispatch(req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, models.APIResponse{Success: true})
}

type PresenceResponse struct {
	// OnlineUsers counts distinct users; Connections counts open sockets.
	OnlineUsers int              `json:"onlineUsers"`
	Connections int              `json:"connections"`
	Rooms       int              `json:"rooms"`
	Users       []models.Profile `json:"users"`
}

type UserPresence struct {
	UserID      string `json:"userId"`
	Online      bool   `json:"online"`
	Connections int    `json:"connections"`
}

type RoomPresence struct {
	Room        rooms.Key `json:"room"`
	Connections int       `json:"connections"`
}

// PresenceHandler reports who is online. The userId and room query
// parameters narrow the answer to a single user or room.
func (h *AdminHandler) PresenceHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if userID := query.Get("userId"); userID != "" {
		writeJSON(w, http.StatusOK, UserPresence{
			UserID:      userID,
			Online:      h.emitter.IsUserOnline(userID),
			Connections: h.emitter.UserConnections(userID),
		})
		return
	}
	if room := query.Get("room"); room != "" {
		key, err := rooms.ParseKey(room)
		if err != nil {
			writeError(w, models.Invalid("%v", err))
			return
		}
		writeJSON(w, http.StatusOK, RoomPresence{Room: key, Connections: h.emitter.RoomSize(key)})
		return
	}

	users := h.emitter.OnlineUsers()
	if users == nil {
		users = []models.Profile{}
	}
	writeJSON(w, http.StatusOK, PresenceResponse{
		OnlineUsers: h.emitter.ConnectedUsersCount(),
		Connections: h.emitter.ConnectionCount(),
		Rooms:       h.emitter.RoomCount(),
		Users:       users,
	})
}
