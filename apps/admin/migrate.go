package main

import "context"

func (cli *commandLine) migrate(ctx context.Context, args []string) error {
	if cli.db == nil {
		return errNoMigrations
	}
	return migrateFunc(ctx, args[0], cli.db, args[1:]...)
}
