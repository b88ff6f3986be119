package backups

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/julianstephens/daystreak/internal/backup"
	"github.com/julianstephens/daystreak/internal/cli"
	"github.com/julianstephens/daystreak/internal/config"
	"github.com/julianstephens/daystreak/internal/constants"
	"github.com/julianstephens/daystreak/internal/docstore/sqlite"
)

type BackupCmd struct {
	Create  BackupCreateCmd  `cmd:"" help:"Create a backup." default:"1"`
	List    BackupListCmd    `cmd:"" help:"List available backups."`
	Restore BackupRestoreCmd `cmd:"" help:"Restore from a backup."`
}

var errNotSQLite = errors.New("backups are only supported for the SQLite store")

func sqlitePath(ctx *cli.Context) (string, error) {
	t, err := ctx.Target()
	if err != nil {
		return "", err
	}
	if t.Backend != config.BackendSQLite {
		return "", errNotSQLite
	}
	return t.DSN, nil
}

type BackupCreateCmd struct{}

func (c *BackupCreateCmd) Run(ctx *cli.Context) error {
	if _, err := sqlitePath(ctx); err != nil {
		return err
	}
	docs, err := ctx.Store(context.Background())
	if err != nil {
		return err
	}
	lite, ok := docs.(*sqlite.Store)
	if !ok {
		return errNotSQLite
	}
	path, err := backup.ForStore(lite).Create(context.Background())
	if err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}
	ctx.Printf("Backup created: %s\n", filepath.Base(path))
	return nil
}

type BackupListCmd struct{}

func (c *BackupListCmd) Run(ctx *cli.Context) error {
	dbPath, err := sqlitePath(ctx)
	if err != nil {
		return err
	}
	mgr := backup.NewManager(dbPath)
	backups, err := mgr.List()
	if err != nil {
		return err
	}
	if len(backups) == 0 {
		ctx.Printf("No backups found in %s\n", mgr.Dir())
		return nil
	}
	ctx.Printf("Available backups (%d total, keeping most recent %d):\n\n", len(backups), constants.MaxBackups)
	for _, b := range backups {
		ctx.Printf("  %s  %s  (%.1f KB)\n", b.Timestamp.Format("2006-01-02 15:04:05"), filepath.Base(b.Path), float64(b.Size)/1024.0)
	}
	ctx.Printf("\nBackup directory: %s\n", mgr.Dir())
	return nil
}

type BackupRestoreCmd struct {
	BackupFile string `arg:"" help:"Path or file name of the backup to restore."`
}

func (c *BackupRestoreCmd) Run(ctx *cli.Context) error {
	dbPath, err := sqlitePath(ctx)
	if err != nil {
		return err
	}
	mgr := backup.NewManager(dbPath)

	path := c.BackupFile
	if _, err := os.Stat(path); err != nil {
		path = filepath.Join(mgr.Dir(), filepath.Base(c.BackupFile))
	}
	if err := mgr.Restore(context.Background(), path); err != nil {
		return err
	}
	ctx.Printf("Restored %s from %s\n", dbPath, filepath.Base(path))
	return nil
}
