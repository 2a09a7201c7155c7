package main

import (
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/storage/database"
)

var runMigrationsFunc = database.RunMigrations // mockable

func (cli *commandLine) migrate(args []string) error {
	if cli.db == nil {
		return errors.New("migrations need a database")
	}
	return runMigrationsFunc(cli.db, args[0], args[1:]...)
}
