package system

import (
	"context"

	"github.com/julianstephens/daystreak/internal/cli"
)

type InitCmd struct {
	NoSeed bool `help:"Do not create the starter habits."`
}

// Run opens the store (creating and migrating it when needed), creates the
// user record and seeds the starter habits once.
func (c *InitCmd) Run(ctx *cli.Context) error {
	bg := context.Background()
	t, err := ctx.Target()
	if err != nil {
		return err
	}
	sess, err := ctx.Session(bg)
	if err != nil {
		return err
	}
	where := t.DSN
	if t.FromKeyring {
		where = "connection string from OS keyring"
	}
	ctx.Printf("Initialized %s store for %s at: %s\n", t.Backend, sess.UserID, where)

	if c.NoSeed {
		return nil
	}
	hs, err := ctx.HabitStore(bg)
	if err != nil {
		return err
	}
	seeded, err := hs.SeedDefaultsIfNeeded(bg, sess.UserID)
	if err != nil {
		return err
	}
	if seeded {
		ctx.Printf("Created %d starter habits.\n", len(hs.Habits()))
	}
	return nil
}
