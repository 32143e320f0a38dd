package main

import (
	"context"
	"log"
	"os"

	"github.com/trezcool/propdesk/core"
	"github.com/trezcool/propdesk/storage/database"
	inmemdb "github.com/trezcool/propdesk/storage/database/inmem"
	pgrepos "github.com/trezcool/propdesk/storage/database/postgres"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	conf := core.NewConfig()
	ctx := context.Background()

	var cli commandLine
	if conf.Database.InMemory {
		db := inmemdb.Open()
		errAndDie(inmemdb.SeedSuperAdmin(ctx, db))
		cli.usrRepo = inmemdb.NewUserRepository(db)
	} else {
		db, err := database.Open(conf)
		errAndDie(err)
		defer db.Close()
		errAndDie(database.Ping(ctx, db))

		cli.db = db.DB
		cli.usrRepo = pgrepos.NewUserRepository(db)
	}

	if err := cli.run(ctx, os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
