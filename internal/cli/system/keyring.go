package system

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/julianstephens/daystreak/internal/cli"
	"github.com/julianstephens/daystreak/internal/config"
	"github.com/julianstephens/daystreak/internal/docstore/postgres"
	"github.com/julianstephens/daystreak/internal/keyring"
)

type KeyringCmd struct {
	Set    KeyringSetCmd    `cmd:"" help:"Store a store location in the OS keyring."`
	Show   KeyringShowCmd   `cmd:"" help:"Show the stored location with the password masked."`
	Delete KeyringDeleteCmd `cmd:"" help:"Remove the stored location."`
}

// KeyringSetCmd stores a connection string; use --store keyring: to select it
type KeyringSetCmd struct {
	ConnectionString string `arg:"" help:"PostgreSQL connection string or firestore://<project>."`
}

func (cmd *KeyringSetCmd) Run(ctx *cli.Context) error {
	if _, err := config.Resolve(cmd.ConnectionString, nil); err != nil {
		if !errors.Is(err, postgres.ErrEmbeddedCredentials) {
			return fmt.Errorf("invalid connection string: %w", err)
		}
		ctx.Printf("Connection string contains a password; it is kept only in the encrypted OS keyring.\n")
	}
	if err := keyring.SetConnectionString(cmd.ConnectionString); err != nil {
		return err
	}
	ctx.Printf("Stored in OS keyring. Select it with --store keyring: (or DAYSTREAK_STORE=keyring:)\n")
	return nil
}

type KeyringShowCmd struct{}

func (cmd *KeyringShowCmd) Run(ctx *cli.Context) error {
	connStr, err := keyring.GetConnectionString()
	if errors.Is(err, keyring.ErrNotFound) {
		return errors.New("no connection string found in keyring. Use 'daystreak keyring set' to store one")
	}
	if err != nil {
		return err
	}
	ctx.Printf("%s\n", MaskPassword(connStr))
	return nil
}

type KeyringDeleteCmd struct{}

func (cmd *KeyringDeleteCmd) Run(ctx *cli.Context) error {
	err := keyring.DeleteConnectionString()
	if errors.Is(err, keyring.ErrNotFound) {
		return errors.New("no connection string found in keyring")
	}
	if err != nil {
		return err
	}
	ctx.Printf("Removed connection string from OS keyring\n")
	return nil
}

// MaskPassword hides the password of a URL-style connection string
func MaskPassword(connStr string) string {
	u, err := url.Parse(connStr)
	if err != nil || u.User == nil {
		return connStr
	}
	if _, ok := u.User.Password(); !ok {
		return connStr
	}
	u.User = url.UserPassword(u.User.Username(), "****")
	return u.String()
}
