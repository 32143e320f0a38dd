package main

import (
	"context"
	"expvar"
	"fmt"
	"io"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	echoapi "github.com/trezcool/propdesk/apps/api/echo"
	"github.com/trezcool/propdesk/core"
	"github.com/trezcool/propdesk/core/class"
	"github.com/trezcool/propdesk/core/prop"
	"github.com/trezcool/propdesk/core/session"
	"github.com/trezcool/propdesk/core/user"
	logsvc "github.com/trezcool/propdesk/services/logger"
	objectsvc "github.com/trezcool/propdesk/services/objectstore"
	"github.com/trezcool/propdesk/storage/database"
	inmemdb "github.com/trezcool/propdesk/storage/database/inmem"
	pgrepos "github.com/trezcool/propdesk/storage/database/postgres"
	redisstore "github.com/trezcool/propdesk/storage/redis"
)

type stores struct {
	users    user.Repository
	props    prop.Repository
	classes  class.Repository
	sessions session.Store
	closers  []io.Closer
}

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()
	ctx := context.Background()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)
	defer logger.Close()

	// set up record store & sessions
	st, err := setUpStores(ctx, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up stores: %v", err), err)
	}
	defer func() {
		for _, c := range st.closers {
			if err := c.Close(); err != nil {
				logger.Error("failed to close store", err)
			}
		}
	}()

	objects, err := objectsvc.New(ctx, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up object store: %v", err), err)
	}
	var mediaRoot string
	if disk, ok := objects.(*objectsvc.DiskStore); ok {
		mediaRoot = disk.Root()
	}

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	sessionSvc := session.NewService(st.sessions, conf.Server.SessionTTL)
	usrSvc := user.NewService(st.users, sessionSvc, validate)
	propSvc := prop.NewService(st.props, validate)
	classSvc := class.NewService(st.classes, st.users, st.props, objects, validate, logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:       conf,
			Logger:     logger,
			UserSvc:    usrSvc,
			SessionSvc: sessionSvc,
			ClassSvc:   classSvc,
			PropSvc:    propSvc,
			Validate:   validate,
			Translator: translator,
			MediaRoot:  mediaRoot,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

// setUpStores opens Postgres and Redis, or a seeded in-memory store when Database.InMemory is set.
func setUpStores(ctx context.Context, conf *core.Config) (*stores, error) {
	if conf.Database.InMemory {
		db := inmemdb.Open()
		if err := inmemdb.SeedSuperAdmin(ctx, db); err != nil {
			return nil, errors.Wrap(err, "seeding super admin")
		}
		return &stores{
			users:    inmemdb.NewUserRepository(db),
			props:    inmemdb.NewPropRepository(db),
			classes:  inmemdb.NewClassRepository(db),
			sessions: inmemdb.NewSessionStore(db),
		}, nil
	}

	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, err
	}
	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}
	if err = database.Migrate(ctx, db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}

	client, err := redisstore.NewClient(ctx, conf)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &stores{
		users:    pgrepos.NewUserRepository(db),
		props:    pgrepos.NewPropRepository(db),
		classes:  pgrepos.NewClassRepository(db),
		sessions: redisstore.NewSessionStore(client),
		closers:  []io.Closer{db, client},
	}, nil
}
