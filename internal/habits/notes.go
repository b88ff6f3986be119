package habits

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/julianstephens/daystreak/internal/constants"
	"github.com/julianstephens/daystreak/internal/docstore"
	apperrors "github.com/julianstephens/daystreak/internal/errors"
	"github.com/julianstephens/daystreak/internal/logger"
	"github.com/julianstephens/daystreak/internal/models"
)

// SaveNote attaches a note to a habit. Blank text is rejected.
func (s *Store) SaveNote(ctx context.Context, habitID, text string) (models.UserNote, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.UserNote{}, apperrors.Validation("note text cannot be blank")
	}
	if habitID == "" {
		return models.UserNote{}, apperrors.Validation("habit id cannot be empty")
	}
	note := models.UserNote{
		ID:        uuid.New().String(),
		HabitID:   habitID,
		NoteText:  text,
		Timestamp: s.clock(),
	}
	path := docstore.NotePath(note.ID)
	data, err := docstore.Encode(note)
	if err == nil {
		err = s.docs.Set(ctx, path, data)
	}
	if err != nil {
		err = apperrors.StoreWrite("set", path, err)
		s.report(err)
		return models.UserNote{}, err
	}
	return note, nil
}

func (s *Store) DeleteNote(ctx context.Context, note models.UserNote) error {
	if note.ID == "" {
		return apperrors.Validation("note id cannot be empty")
	}
	path := docstore.NotePath(note.ID)
	if err := s.docs.Delete(ctx, path); err != nil {
		err = apperrors.StoreWrite("delete", path, err)
		s.report(err)
		return err
	}
	return nil
}

// Notes lists a habit's notes, newest first
func (s *Store) Notes(ctx context.Context, habitID string) ([]models.UserNote, error) {
	docs, err := s.docs.Query(ctx, docstore.Query{
		Collection: constants.CollectionUserNotes,
		Field:      constants.FieldHabitID,
		Value:      habitID,
	})
	if err != nil {
		return nil, err
	}
	notes := make([]models.UserNote, 0, len(docs))
	for _, d := range docs {
		var n models.UserNote
		if err := d.Decode(&n); err != nil {
			logger.Warn("skipping undecodable note", "path", d.Path, "error", err)
			continue
		}
		if n.ID == "" {
			n.ID = d.ID()
		}
		notes = append(notes, n)
	}
	sort.SliceStable(notes, func(i, j int) bool {
		return notes[i].Timestamp.After(notes[j].Timestamp)
	})
	return notes, nil
}
