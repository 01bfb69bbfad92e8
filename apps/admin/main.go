package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/user"
	emailsvc "github.com/trezcool/darasa/services/email"
	logsvc "github.com/trezcool/darasa/services/logger"
	"github.com/trezcool/darasa/storage/database"
	"github.com/trezcool/darasa/storage/database/boltdb"
	"github.com/trezcool/darasa/storage/database/postgres"
)

var logger core.Logger

func main() {
	conf := core.NewConfig()
	l := logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)
	l.Enable(!conf.Debug)
	logger = l

	errAndDie(core.ParseEmailTemplates(conf, logger))
	user.LoadCommonPasswords(logger)

	cli, db, err := newCommandLine(conf)
	errAndDie(err)

	err = cli.run(context.Background(), os.Args)
	if cerr := db.Close(); cerr != nil {
		logger.Error(fmt.Sprintf("closing database: %v", cerr), cerr)
	}
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("\nerror: %s\n", err), err)
		}
		os.Exit(1)
	}
}

// newCommandLine opens the configured database and returns it alongside the CLI using it.
func newCommandLine(conf *core.Config) (*commandLine, io.Closer, error) {
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	cli := &commandLine{validate: validate}

	switch conf.Database.Engine {
	case core.EngineBolt:
		db, err := boltdb.Open(conf.Database.Path)
		if err != nil {
			return nil, nil, errors.Wrap(err, "opening bolt database")
		}
		// profile images are not managed from here
		cli.usrSvc = user.NewService(boltdb.NewUserRepository(db), mailSvc, nil)
		return cli, db, nil

	case core.EnginePostgres:
		db, err := database.Open(conf)
		if err != nil {
			return nil, nil, errors.Wrap(err, "opening postgres database")
		}
		if err = db.Ping(); err != nil {
			_ = db.Close()
			return nil, nil, errors.Wrap(err, "connecting to postgres")
		}
		cli.db = db
		cli.usrSvc = user.NewService(postgres.NewUserRepository(db), mailSvc, nil)
		return cli, db, nil
	}

	return nil, nil, errors.Errorf("unknown database engine %q", conf.Database.Engine)
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
