package main

import (
	"fmt"
	"os"

	"github.com/trezcool/ratiba/apps/container"
	"github.com/trezcool/ratiba/core"
	logsvc "github.com/trezcool/ratiba/services/logger"
)

func main() {
	conf := core.NewConfig()

	prefix := logsvc.AdminPrefix
	if len(os.Args) > 1 && os.Args[1] == "send-attendance" {
		prefix = logsvc.JobPrefix
	}
	logger := logsvc.NewRollbarLogger(logsvc.NewStdLogger(prefix), conf)
	logger.Enable(!conf.Debug)

	deps, err := container.New(conf, logger, container.Options{SkipMigrations: true})
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up dependencies: %v", err), err)
	}

	cli := commandLine{
		db:            deps.SQL,
		logger:        logger,
		usrRepo:       deps.UserRepo,
		notifications: deps.Notifications,
	}
	err = cli.run(os.Args)
	if err != nil && err != errHelp {
		logger.Error(fmt.Sprintf("error: %v", err), err)
	}

	_ = deps.Close()
	logger.Close()
	if err != nil {
		os.Exit(1)
	}
}
