package habits

import (
	"context"
	"fmt"
	"time"

	"github.com/julianstephens/daystreak/internal/constants"
	"github.com/julianstephens/daystreak/internal/docstore"
	apperrors "github.com/julianstephens/daystreak/internal/errors"
	"github.com/julianstephens/daystreak/internal/logger"
	"github.com/julianstephens/daystreak/internal/models"
)

// DefaultHabits are the starter habits every new user receives
func DefaultHabits(userID string) []models.Habit {
	return []models.Habit{
		{
			OwnerID:        userID,
			Title:          "Go for a run",
			Goal:           "5 km",
			MetricCategory: constants.MetricQuantity,
			MetricType:     models.MetricType{Kind: models.MetricPredefined, Name: "distance"},
		},
		{
			OwnerID:        userID,
			Title:          "Read",
			Goal:           "20 pages",
			MetricCategory: constants.MetricQuantity,
			MetricType:     models.MetricType{Kind: models.MetricPredefined, Name: "pages read"},
		},
		{
			OwnerID:        userID,
			Title:          "Journal",
			Goal:           "1 entry",
			MetricCategory: constants.MetricQuantity,
			MetricType:     models.MetricType{Kind: models.MetricPredefined, Name: "entries written"},
		},
		{
			OwnerID:        userID,
			Title:          "Make the bed",
			Description:    "Done or not done",
			MetricCategory: constants.MetricCompletion,
			MetricType:     models.MetricType{Kind: models.MetricPredefined, Name: "completion"},
		},
		{
			OwnerID:        userID,
			Title:          "Meditate",
			Goal:           "10 minutes",
			MetricCategory: constants.MetricTime,
			MetricType:     models.MetricType{Kind: models.MetricPredefined, Name: "minutes"},
		},
	}
}

// DefaultHabitID is the fixed id of the n-th starter habit, so a retried or
// racing seed writes the same documents.
func DefaultHabitID(userID string, n int) string {
	return fmt.Sprintf("%s-default-%d", userID, n)
}

// SeedDefaultsIfNeeded creates the starter habits once per user and reports
// whether this call claimed the seeding. The claim is a conditional create of
// a marker document, so two racing callers cannot both seed. A caller that
// finds the claim taken but the user record unflagged fills in any starter
// habits an earlier run failed to write before setting the flag.
func (s *Store) SeedDefaultsIfNeeded(ctx context.Context, userID string) (bool, error) {
	if err := s.requireUser(userID); err != nil {
		return false, err
	}
	userPath := docstore.UserPath(userID)

	doc, err := s.docs.Get(ctx, userPath)
	switch {
	case err == nil:
		var rec models.UserRecord
		if err := doc.Decode(&rec); err != nil {
			return false, err
		}
		if rec.DefaultHabitsCreated {
			return false, nil
		}
	case !apperrors.Is(err, apperrors.ErrNotFound):
		return false, err
	}

	flagPath := docstore.DefaultHabitsFlagPath(userID)
	marker, err := docstore.Encode(map[string]interface{}{"createdAt": s.clock()})
	if err != nil {
		return false, err
	}
	claimed := true
	err = s.docs.Create(ctx, flagPath, marker)
	switch {
	case apperrors.Is(err, apperrors.ErrAlreadyExists):
		claimed = false
	case err != nil:
		err = apperrors.StoreWrite("create", flagPath, err)
		s.report(err)
		return false, err
	}

	if err := s.seedMissing(ctx, userID); err != nil {
		return claimed, err
	}
	if err := s.markSeeded(ctx, userPath); err != nil {
		return claimed, err
	}
	if claimed {
		logger.Info("seeded default habits", "user", userID)
	}
	return claimed, nil
}

// seedMissing writes every starter habit not yet stored. Existing documents
// are left alone.
func (s *Store) seedMissing(ctx context.Context, userID string) error {
	now := s.clock()
	for i, h := range DefaultHabits(userID) {
		h.ID = DefaultHabitID(userID, i+1)
		// stagger start dates so newest-first order matches the list order
		h.StartDate = now.Add(-time.Duration(i) * time.Millisecond)
		h.Revision = 1

		path := docstore.HabitPath(h.ID)
		data, err := docstore.Encode(h)
		if err != nil {
			return apperrors.StoreWrite("create", path, err)
		}

		unlock := s.locks.Lock(h.ID)
		s.mu.Lock()
		gen := s.gen
		s.mu.Unlock()
		err = s.docs.Create(ctx, path, data)
		switch {
		case err == nil:
			s.put(gen, h)
		case !apperrors.Is(err, apperrors.ErrAlreadyExists):
			unlock()
			err = apperrors.StoreWrite("create", path, err)
			s.report(err)
			return err
		}
		unlock()
	}
	return nil
}

func (s *Store) markSeeded(ctx context.Context, userPath string) error {
	if err := s.docs.Merge(ctx, userPath, map[string]interface{}{constants.FieldDefaultsCreated: true}); err != nil {
		err = apperrors.StoreWrite("merge", userPath, err)
		s.report(err)
		return err
	}
	return nil
}
