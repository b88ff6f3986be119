package habits

import (
	"context"
	"fmt"
	"strings"

	"github.com/julianstephens/daystreak/internal/cli"
)

type NoteCmd struct {
	Add    NoteAddCmd    `cmd:"" help:"Attach a note to a habit."`
	List   NoteListCmd   `cmd:"" help:"List a habit's notes, newest first."`
	Delete NoteDeleteCmd `cmd:"" help:"Delete a note."`
}

type NoteAddCmd struct {
	Habit string   `arg:"" help:"Habit title or id."`
	Text  []string `arg:"" help:"Note text."`
}

func (c *NoteAddCmd) Run(ctx *cli.Context) error {
	bg := context.Background()
	hs, err := ctx.HabitStore(bg)
	if err != nil {
		return err
	}
	h, err := cli.FindHabit(hs, c.Habit)
	if err != nil {
		return err
	}
	note, err := hs.SaveNote(bg, h.ID, strings.Join(c.Text, " "))
	if err != nil {
		return err
	}
	ctx.Printf("Saved note %s on %s\n", cli.ShortID(note.ID), h.Title)
	return nil
}

type NoteListCmd struct {
	Habit string `arg:"" help:"Habit title or id."`
}

func (c *NoteListCmd) Run(ctx *cli.Context) error {
	bg := context.Background()
	hs, err := ctx.HabitStore(bg)
	if err != nil {
		return err
	}
	h, err := cli.FindHabit(hs, c.Habit)
	if err != nil {
		return err
	}
	notes, err := hs.Notes(bg, h.ID)
	if err != nil {
		return err
	}
	if len(notes) == 0 {
		ctx.Printf("No notes for %s.\n", h.Title)
		return nil
	}
	for _, n := range notes {
		ctx.Printf("%s  %s  %s\n", cli.ShortID(n.ID), n.Timestamp.In(ctx.Now().Location()).Format("2006-01-02 15:04"), n.NoteText)
	}
	return nil
}

type NoteDeleteCmd struct {
	Habit string `arg:"" help:"Habit title or id."`
	Note  string `arg:"" help:"Note id or id prefix."`
}

func (c *NoteDeleteCmd) Run(ctx *cli.Context) error {
	bg := context.Background()
	hs, err := ctx.HabitStore(bg)
	if err != nil {
		return err
	}
	h, err := cli.FindHabit(hs, c.Habit)
	if err != nil {
		return err
	}
	notes, err := hs.Notes(bg, h.ID)
	if err != nil {
		return err
	}
	for _, n := range notes {
		if n.ID == c.Note || strings.HasPrefix(n.ID, c.Note) {
			if err := hs.DeleteNote(bg, n); err != nil {
				return err
			}
			ctx.Printf("Deleted note %s\n", cli.ShortID(n.ID))
			return nil
		}
	}
	return fmt.Errorf("note %q not found on %s", c.Note, h.Title)
}
