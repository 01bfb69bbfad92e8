package dig_container

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/darasa/apps/api/echo"
	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/announcement"
	"github.com/trezcool/darasa/core/assignment"
	"github.com/trezcool/darasa/core/authz"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/user"
	emailsvc "github.com/trezcool/darasa/services/email"
	"github.com/trezcool/darasa/services/filestore"
	logsvc "github.com/trezcool/darasa/services/logger"
	"github.com/trezcool/darasa/services/tokenstore"
	"github.com/trezcool/darasa/storage/database"
	"github.com/trezcool/darasa/storage/database/boltdb"
	"github.com/trezcool/darasa/storage/database/postgres"
)

const setUpTimeout = 30 * time.Second

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	// Repositories are the stores of the configured database engine.
	Repositories struct {
		dig.Out
		Users         user.Repository
		Courses       course.Repository
		Announcements announcement.Repository
		Assignments   assignment.Repository
		DB            io.Closer `name:"db"`
	}

	DBParam struct {
		dig.In
		DB io.Closer `name:"db"`
	}

	serverParams struct {
		dig.In
		Conf            *core.Config
		Logger          core.Logger
		Validate        *validator.Validate
		Translator      ut.Translator
		Engine          *authz.Engine
		Tokens          core.TokenStore
		UserSvc         *user.Service
		CourseSvc       *course.Service
		AnnouncementSvc *announcement.Service
		AssignmentSvc   *assignment.Service
	}
)

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newRepositories(conf *core.Config, loggerParam DBLoggerParam) Repositories {
	switch conf.Database.Engine {
	case core.EngineBolt:
		db, err := boltdb.Open(conf.Database.Path)
		if err != nil {
			loggerParam.Logger.Fatal(fmt.Sprintf("opening bolt database: %v", err), err)
		}
		return Repositories{
			Users:         boltdb.NewUserRepository(db),
			Courses:       boltdb.NewCourseRepository(db),
			Announcements: boltdb.NewAnnouncementRepository(db),
			Assignments:   boltdb.NewAssignmentRepository(db),
			DB:            db,
		}

	case core.EnginePostgres:
		ctx, cancel := context.WithTimeout(context.Background(), setUpTimeout)
		defer cancel()

		setUp := func() (*sqlx.DB, error) {
			if err := database.CreateIfNotExist(ctx, conf); err != nil {
				return nil, err
			}
			db, err := database.Open(conf)
			if err != nil {
				return nil, err
			}
			if err = database.Migrate(ctx, db); err != nil {
				_ = db.Close()
				return nil, err
			}
			return db, nil
		}
		db, err := setUp()
		if err != nil {
			loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
		}
		return Repositories{
			Users:         postgres.NewUserRepository(db),
			Courses:       postgres.NewCourseRepository(db),
			Announcements: postgres.NewAnnouncementRepository(db),
			Assignments:   postgres.NewAssignmentRepository(db),
			DB:            db,
		}
	}

	loggerParam.Logger.Fatal(fmt.Sprintf("unknown database engine %q", conf.Database.Engine))
	return Repositories{}
}

func newFileStorage(conf *core.Config) (core.FileStorage, error) {
	switch conf.Uploads.Backend {
	case core.UploadsDisk:
		return filestore.NewDiskStorage(conf.Uploads.Dir)
	case core.UploadsMinio:
		ctx, cancel := context.WithTimeout(context.Background(), setUpTimeout)
		defer cancel()
		return filestore.NewMinioStorage(ctx, conf.Uploads.Minio)
	}
	return nil, errors.Errorf("unknown uploads backend %q", conf.Uploads.Backend)
}

// newTokenStore shares revocations through redis when configured.
func newTokenStore(conf *core.Config) (core.TokenStore, error) {
	if conf.Redis.Address == "" {
		return tokenstore.NewMemoryStore(), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), setUpTimeout)
	defer cancel()
	return tokenstore.NewRedisStore(ctx, conf.Redis)
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func newValidate(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate
}

func newEngine(conf *core.Config) *authz.Engine {
	return authz.NewEngine(conf.Server.PublicCatalog)
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(p.Conf, p.Logger, echoapi.Deps{
		Validate:        p.Validate,
		Translator:      p.Translator,
		Engine:          p.Engine,
		Tokens:          p.Tokens,
		UserSvc:         p.UserSvc,
		CourseSvc:       p.CourseSvc,
		AnnouncementSvc: p.AnnouncementSvc,
		AssignmentSvc:   p.AssignmentSvc,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newRepositories))
	must(c.Provide(newFileStorage))
	must(c.Provide(newTokenStore))
	must(c.Provide(newEmailService))
	must(c.Provide(newTranslator))
	must(c.Provide(newValidate))
	must(c.Provide(newEngine))
	must(c.Provide(user.NewService))
	must(c.Provide(course.NewService))
	must(c.Provide(announcement.NewService))
	must(c.Provide(assignment.NewService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
