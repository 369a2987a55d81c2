package storage

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"devcollab/internal/models"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

var (
	bucketUsers             = []byte("users")
	bucketUsersByEmail      = []byte("users_by_email")
	bucketWorkspaces        = []byte("workspaces")
	bucketWorkspaceMembers  = []byte("workspace_members")
	bucketProjects          = []byte("projects")
	bucketMessages          = []byte("messages")
	bucketProjectMessages   = []byte("project_messages")
	bucketNotifications     = []byte("notifications")
	bucketPushSubscriptions = []byte("push_subscriptions")
	bucketFiles             = []byte("files")
)

var (
	ErrEmailTaken = errors.New("email already registered")
)

type BboltStorage struct {
	db  *bbolt.DB
	now func() time.Time
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{
			bucketUsers,
			bucketUsersByEmail,
			bucketWorkspaces,
			bucketWorkspaceMembers,
			bucketProjects,
			bucketMessages,
			bucketProjectMessages,
			bucketNotifications,
			bucketPushSubscriptions,
			bucketFiles,
		} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db, now: time.Now}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// pageOffset returns how many records precede the page. It saturates
// instead of overflowing for huge page numbers.
func pageOffset(page, limit int) int {
	if page-1 > math.MaxInt/limit {
		return math.MaxInt
	}
	return (page - 1) * limit
}

func getRecord(b *bbolt.Bucket, key []byte, dst Storeable) error {
	data := b.Get(key)
	if data == nil {
		return models.ErrNotFound
	}
	return dst.UnmarshalBinary(data)
}

func putRecord(b *bbolt.Bucket, rec Storeable) error {
	data, err := rec.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	return b.Put(rec.Key(), data)
}

// CreateUser stores a new user together with its password hash.
func (s *BboltStorage) CreateUser(user models.User, passwordHash string) (models.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	user.Email = normalizeEmail(user.Email)

	err := s.db.Update(func(tx *bbolt.Tx) error {
		byEmail := tx.Bucket(bucketUsersByEmail)
		if user.Email != "" {
			if byEmail.Get([]byte(user.Email)) != nil {
				return ErrEmailTaken
			}
			if err := byEmail.Put([]byte(user.Email), []byte(user.ID)); err != nil {
				return err
			}
		}

		return putRecord(tx.Bucket(bucketUsers), &DBUser{
			ID:           user.ID,
			Email:        user.Email,
			Name:         user.Name,
			AvatarURL:    user.AvatarURL,
			Active:       user.Active,
			PasswordHash: passwordHash,
			CreatedAt:    millis(user.CreatedAt),
		})
	})
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (s *BboltStorage) GetUser(id string) (models.User, error) {
	var dbUser DBUser
	err := s.db.View(func(tx *bbolt.Tx) error {
		return getRecord(tx.Bucket(bucketUsers), []byte(id), &dbUser)
	})
	if err != nil {
		return models.User{}, err
	}
	return dbUser.model(), nil
}

// GetUserCredentials looks a user up by email and returns the password hash.
func (s *BboltStorage) GetUserCredentials(email string) (models.User, string, error) {
	var dbUser DBUser
	err := s.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(bucketUsersByEmail).Get([]byte(normalizeEmail(email)))
		if id == nil {
			return models.ErrNotFound
		}
		return getRecord(tx.Bucket(bucketUsers), id, &dbUser)
	})
	if err != nil {
		return models.User{}, "", err
	}
	return dbUser.model(), dbUser.PasswordHash, nil
}

// GetUsers returns the users with the given ids in the same order, skipping
// ids that do not resolve.
func (s *BboltStorage) GetUsers(ids []string) ([]models.User, error) {
	users := make([]models.User, 0, len(ids))
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		for _, id := range ids {
			var dbUser DBUser
			err := getRecord(b, []byte(id), &dbUser)
			if errors.Is(err, models.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			users = append(users, dbUser.model())
		}
		return nil
	})
	return users, err
}

func (s *BboltStorage) ListUsers() ([]models.User, error) {
	var users []models.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(k, v []byte) error {
			var dbUser DBUser
			if err := dbUser.UnmarshalBinary(v); err != nil {
				return err
			}
			users = append(users, dbUser.model())
			return nil
		})
	})
	return users, err
}

func (s *BboltStorage) UpdateUserAvatar(id, avatarURL string) (models.User, error) {
	var dbUser DBUser
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		if err := getRecord(b, []byte(id), &dbUser); err != nil {
			return err
		}
		dbUser.AvatarURL = avatarURL
		return putRecord(b, &dbUser)
	})
	if err != nil {
		return models.User{}, err
	}
	return dbUser.model(), nil
}

// CreateWorkspace stores the workspace and makes its owner an owner member.
func (s *BboltStorage) CreateWorkspace(ws models.Workspace) (models.Workspace, error) {
	if ws.ID == "" {
		ws.ID = uuid.NewString()
	}
	if ws.CreatedAt.IsZero() {
		ws.CreatedAt = s.now()
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketUsers).Get([]byte(ws.OwnerID)) == nil {
			return fmt.Errorf("owner %s: %w", ws.OwnerID, models.ErrNotFound)
		}
		if err := putRecord(tx.Bucket(bucketWorkspaces), &DBWorkspace{
			ID:        ws.ID,
			Name:      ws.Name,
			OwnerID:   ws.OwnerID,
			CreatedAt: millis(ws.CreatedAt),
		}); err != nil {
			return err
		}
		return putRecord(tx.Bucket(bucketWorkspaceMembers), &DBMember{
			WorkspaceID: ws.ID,
			UserID:      ws.OwnerID,
			Role:        string(models.RoleOwner),
			JoinedAt:    millis(ws.CreatedAt),
		})
	})
	if err != nil {
		return models.Workspace{}, err
	}
	return ws, nil
}

func (s *BboltStorage) GetWorkspace(id string) (models.Workspace, error) {
	var dbWorkspace DBWorkspace
	err := s.db.View(func(tx *bbolt.Tx) error {
		return getRecord(tx.Bucket(bucketWorkspaces), []byte(id), &dbWorkspace)
	})
	if err != nil {
		return models.Workspace{}, err
	}
	return dbWorkspace.model(), nil
}

// UpsertMember adds a user to a workspace or changes their role.
func (s *BboltStorage) UpsertMember(member models.WorkspaceMember) error {
	if member.JoinedAt.IsZero() {
		member.JoinedAt = s.now()
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketWorkspaces).Get([]byte(member.WorkspaceID)) == nil {
			return fmt.Errorf("workspace %s: %w", member.WorkspaceID, models.ErrNotFound)
		}
		if tx.Bucket(bucketUsers).Get([]byte(member.UserID)) == nil {
			return fmt.Errorf("user %s: %w", member.UserID, models.ErrNotFound)
		}
		return putRecord(tx.Bucket(bucketWorkspaceMembers), &DBMember{
			WorkspaceID: member.WorkspaceID,
			UserID:      member.UserID,
			Role:        string(member.Role),
			JoinedAt:    millis(member.JoinedAt),
		})
	})
}

// MembershipOf returns the user's role in the workspace. ok is false when the
// user is not a member.
func (s *BboltStorage) MembershipOf(workspaceID, userID string) (role models.Role, ok bool, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		var dbMember DBMember
		err := getRecord(tx.Bucket(bucketWorkspaceMembers), memberKey(workspaceID, userID), &dbMember)
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		role, ok = models.Role(dbMember.Role), true
		return nil
	})
	return role, ok, err
}

func (s *BboltStorage) ListMembers(workspaceID string) ([]models.WorkspaceMember, error) {
	var members []models.WorkspaceMember
	prefix := []byte(workspaceID + "/")
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketWorkspaceMembers).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var dbMember DBMember
			if err := dbMember.UnmarshalBinary(v); err != nil {
				return err
			}
			members = append(members, dbMember.model())
		}
		return nil
	})
	return members, err
}

func (s *BboltStorage) CreateProject(project models.Project) (models.Project, error) {
	if project.ID == "" {
		project.ID = uuid.NewString()
	}
	if project.CreatedAt.IsZero() {
		project.CreatedAt = s.now()
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketWorkspaces).Get([]byte(project.WorkspaceID)) == nil {
			return fmt.Errorf("workspace %s: %w", project.WorkspaceID, models.ErrNotFound)
		}
		dbProject := newDBProject(project)
		return putRecord(tx.Bucket(bucketProjects), &dbProject)
	})
	if err != nil {
		return models.Project{}, err
	}
	return project, nil
}

func (s *BboltStorage) GetProject(id string) (models.Project, error) {
	var dbProject DBProject
	err := s.db.View(func(tx *bbolt.Tx) error {
		return getRecord(tx.Bucket(bucketProjects), []byte(id), &dbProject)
	})
	if err != nil {
		return models.Project{}, err
	}
	return dbProject.model(), nil
}

func (s *BboltStorage) SaveProject(project models.Project) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketProjects)
		if b.Get([]byte(project.ID)) == nil {
			return models.ErrNotFound
		}
		dbProject := newDBProject(project)
		return putRecord(b, &dbProject)
	})
}
