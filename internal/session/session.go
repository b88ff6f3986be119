// Package session exposes who is signed in. Authentication itself happens
// elsewhere; the stores only need the user id and account creation time.
package session

import (
	"context"
	"time"

	"github.com/julianstephens/daystreak/internal/docstore"
	apperrors "github.com/julianstephens/daystreak/internal/errors"
	"github.com/julianstephens/daystreak/internal/models"
)

type Provider interface {
	// CurrentUserID returns false when nobody is signed in
	CurrentUserID() (string, bool)
	AccountCreatedAt() time.Time
}

// Static is a fixed session, used by the CLI and tests
type Static struct {
	UserID    string
	CreatedAt time.Time
}

func (s Static) CurrentUserID() (string, bool) {
	return s.UserID, s.UserID != ""
}

func (s Static) AccountCreatedAt() time.Time {
	return s.CreatedAt
}

// Anonymous has no user
var Anonymous Provider = Static{}

// Load reads the user's record, creating it on first use, and returns a
// session for that user.
func Load(ctx context.Context, docs docstore.Store, userID string, now time.Time) (Static, error) {
	if userID == "" {
		return Static{}, apperrors.Validation("user id cannot be empty")
	}
	path := docstore.UserPath(userID)

	rec, err := readUser(ctx, docs, path)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		if err := docs.Merge(ctx, path, map[string]interface{}{
			"id":        userID,
			"createdAt": now,
		}); err != nil {
			return Static{}, err
		}
		rec, err = readUser(ctx, docs, path)
	}
	if err != nil {
		return Static{}, err
	}

	// records created implicitly by a points increment have no timestamp yet
	if rec.CreatedAt.IsZero() {
		if err := docs.Merge(ctx, path, map[string]interface{}{"createdAt": now}); err != nil {
			return Static{}, err
		}
		rec.CreatedAt = now
	}
	return Static{UserID: userID, CreatedAt: rec.CreatedAt}, nil
}

func readUser(ctx context.Context, docs docstore.Store, path string) (models.UserRecord, error) {
	var rec models.UserRecord
	doc, err := docs.Get(ctx, path)
	if err != nil {
		return rec, err
	}
	err = doc.Decode(&rec)
	return rec, err
}
