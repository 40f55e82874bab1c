// Package store persists linked Instagram accounts, caption drafts, and
// brand frames.
//
// Two backends implement the same interfaces: SQLStore (gorm over pure-Go
// SQLite) for local and single-node deployments, and DynamoStore (single
// table, PK/SK design) for the Lambda deployment.
//
// All Get methods return (nil, nil) when the record does not exist. A record
// owned by a different user is indistinguishable from a missing one.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Delete methods when nothing matched.
var ErrNotFound = errors.New("record not found")

// accountNamespace seeds deterministic account IDs.
var accountNamespace = uuid.MustParse("6f0d7c5e-1f3b-4a59-9d55-2b8f0e6c4a10")

// Account is one Instagram Business identity linked to an application user.
// At most one Account exists per (UserID, InstagramBusinessID).
type Account struct {
	ID                  string    `json:"id" gorm:"primaryKey" dynamodbav:"id"`
	UserID              string    `json:"userId" gorm:"uniqueIndex:idx_user_business;not null" dynamodbav:"userId"`
	InstagramBusinessID string    `json:"instagramBusinessId" gorm:"uniqueIndex:idx_user_business;not null" dynamodbav:"instagramBusinessId"`
	PageID              string    `json:"pageId" dynamodbav:"pageId"`
	AccessToken         string    `json:"-" gorm:"not null" dynamodbav:"accessToken"`
	Username            string    `json:"username" dynamodbav:"username"`
	AvatarURL           string    `json:"avatarUrl,omitempty" dynamodbav:"avatarUrl,omitempty"`
	CreatedAt           time.Time `json:"createdAt" dynamodbav:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt" dynamodbav:"updatedAt"`
}

// TableName keeps the SQL table name stable regardless of gorm's pluralizer.
func (Account) TableName() string { return "instagram_accounts" }

// AccountID returns the ID an account for (userID, businessID) always gets.
// Deterministic IDs make upserts keep the same ID on every backend.
func AccountID(userID, businessID string) string {
	return uuid.NewSHA1(accountNamespace, []byte(userID+"\x00"+businessID)).String()
}

// Draft is a saved, unpublished post.
type Draft struct {
	ID        string    `json:"id" gorm:"primaryKey" dynamodbav:"id"`
	UserID    string    `json:"userId" gorm:"index;not null" dynamodbav:"userId"`
	ImageURL  string    `json:"imageUrl" gorm:"type:text" dynamodbav:"imageUrl"`
	Caption   string    `json:"caption" gorm:"type:text" dynamodbav:"caption"`
	Hashtags  []string  `json:"hashtags" gorm:"serializer:json" dynamodbav:"hashtags"`
	CreatedAt time.Time `json:"createdAt" gorm:"index" dynamodbav:"createdAt"`
}

func (Draft) TableName() string { return "drafts" }

// Frame is a brand frame overlay shared by all users.
type Frame struct {
	ID            string    `json:"id" gorm:"primaryKey" dynamodbav:"id"`
	Name          string    `json:"name" gorm:"not null" dynamodbav:"name"`
	StoragePath   string    `json:"storagePath" dynamodbav:"storagePath"`
	URL           string    `json:"url" dynamodbav:"url"`
	ThumbnailPath string    `json:"thumbnailPath,omitempty" dynamodbav:"thumbnailPath,omitempty"`
	ThumbnailURL  string    `json:"thumbnailUrl,omitempty" dynamodbav:"thumbnailUrl,omitempty"`
	CreatedAt     time.Time `json:"createdAt" gorm:"index" dynamodbav:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt" dynamodbav:"updatedAt"`
}

func (Frame) TableName() string { return "frames" }

// AccountStore persists linked accounts.
type AccountStore interface {
	// UpsertAccount inserts the account or, when (UserID, InstagramBusinessID)
	// already exists, replaces its token and profile fields. The stored
	// record is returned.
	UpsertAccount(ctx context.Context, account *Account) (*Account, error)

	// GetAccount returns the account with id if it belongs to userID.
	GetAccount(ctx context.Context, id, userID string) (*Account, error)

	// ListAccounts returns userID's accounts ordered by username.
	ListAccounts(ctx context.Context, userID string) ([]Account, error)

	// DeleteAccount removes the account if it belongs to userID.
	DeleteAccount(ctx context.Context, id, userID string) error
}

// DraftStore persists drafts.
type DraftStore interface {
	CreateDraft(ctx context.Context, draft *Draft) error
	// ListDrafts returns userID's drafts, newest first.
	ListDrafts(ctx context.Context, userID string) ([]Draft, error)
	DeleteDraft(ctx context.Context, id, userID string) error
}

// FrameStore persists frames.
type FrameStore interface {
	CreateFrame(ctx context.Context, frame *Frame) error
	// ListFrames returns all frames, newest first.
	ListFrames(ctx context.Context) ([]Frame, error)
	GetFrame(ctx context.Context, id string) (*Frame, error)
	DeleteFrame(ctx context.Context, id string) error
}

// Store is everything the HTTP service persists.
type Store interface {
	AccountStore
	DraftStore
	FrameStore
}

// prepareAccount fills the derived fields of an account before a write.
func prepareAccount(a *Account, now time.Time) {
	a.ID = AccountID(a.UserID, a.InstagramBusinessID)
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
}

func newID() string {
	return uuid.NewString()
}
