package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/authz"
	"github.com/trezcool/darasa/core/user"
	emailsvc "github.com/trezcool/darasa/services/email"
	logsvc "github.com/trezcool/darasa/services/logger"
	"github.com/trezcool/darasa/storage/database/boltdb"
	"github.com/trezcool/darasa/testutil"
)

const validPassword = "Pa$$w0rd!Xy"

var testConf *core.Config

func TestMain(m *testing.M) {
	testConf = core.NewConfig()
	testConf.TestMode = true
	l := logsvc.NewRollbarLogger(log.New(io.Discard, "TEST : ", 0), testConf)
	l.Enable(false)
	logger = l
	if err := core.ParseEmailTemplates(testConf, logger); err != nil {
		log.Fatalf("ParseEmailTemplates() failed: %v", err)
	}
	user.LoadCommonPasswords(logger)

	os.Exit(m.Run())
}

func setup(t *testing.T) (*commandLine, user.Repository) {
	t.Helper()
	usrRepo := boltdb.NewUserRepository(testutil.OpenDB(t))

	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	emailsvc.ResetSentMessages()
	return &commandLine{
		usrSvc:   user.NewService(usrRepo, emailsvc.NewConsoleServiceMock(testConf, logger), nil),
		validate: validate,
	}, usrRepo
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	wantAnyErr bool
	extra      interface{}
}

// mockPasswords makes readPasswordFunc return pwds in turn.
func mockPasswords(t *testing.T, pwds ...string) {
	t.Helper()
	orig := readPasswordFunc
	t.Cleanup(func() { readPasswordFunc = orig })

	i := 0
	readPasswordFunc = func(fd int) ([]byte, error) {
		if i >= len(pwds) {
			return nil, nil
		}
		pwd := pwds[i]
		i++
		return []byte(pwd), nil
	}
}

func checkErr(t *testing.T, tt cliTest, err error) {
	t.Helper()
	switch {
	case tt.wantErr != nil:
		assert.Equal(t, tt.wantErr, errors.Cause(err))
	case tt.wantErrStr != "":
		if assert.Error(t, err) {
			assert.Equal(t, tt.wantErrStr, err.Error())
		}
	case tt.wantAnyErr:
		assert.Error(t, err)
	default:
		assert.NoError(t, err)
	}
}

func Test_commandLine_run(t *testing.T) {
	cli, _ := setup(t)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "migrate: no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "migrate: bolt engine", args: []string{"migrate", "up"}, wantErr: errNoMigrations},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkErr(t, tt, cli.run(context.Background(), append([]string{"admin"}, tt.args...)))
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)
	cli.db = sqlx.NewDb(new(sql.DB), "postgres")

	var ran []string
	orig := migrateFunc
	t.Cleanup(func() { migrateFunc = orig })
	migrateFunc = func(ctx context.Context, command string, db *sqlx.DB, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		ran = append(ran, command)
		return nil
	}

	tests := []cliTest{
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: create NAME [go|sql]"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "grades", "sql"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkErr(t, tt, cli.run(context.Background(), append([]string{"admin"}, tt.args...)))
		})
	}
	assert.Equal(t, []string{"up", "up-to", "down-to", "status", "create"}, ran)
}

func Test_commandLine_addUser(t *testing.T) {
	cli, usrRepo := setup(t)
	testutil.CreateTeacher(t, usrRepo, "Existing", "existing@test.cd", validPassword)

	type extra struct {
		pwds []string
	}
	base := []string{"adduser", "-first", "Ada", "-last", "Lovelace"}
	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "missing names", args: []string{"adduser", "-email", "ada@test.cd"}, wantErr: errHelp},
		{name: "empty password", args: append(base, "-email", "ada@test.cd"), wantErr: errEmptyPassword},
		{
			name:    "password mismatch",
			args:    append(base, "-email", "ada@test.cd"),
			extra:   extra{pwds: []string{validPassword, "nope"}},
			wantErr: errPwdMismatch,
		},
		{
			name:       "weak password",
			args:       append(base, "-email", "ada@test.cd"),
			extra:      extra{pwds: []string{"password", "password"}},
			wantAnyErr: true,
		},
		{
			name:       "email exists",
			args:       append(base, "-email", "existing@test.cd"),
			extra:      extra{pwds: []string{validPassword, validPassword}},
			wantAnyErr: true,
		},
		{
			name:       "student without cohort",
			args:       append(base, "-email", "ada@test.cd", "-role", "student"),
			extra:      extra{pwds: []string{validPassword, validPassword}},
			wantAnyErr: true,
		},
		{
			name:  "teacher",
			args:  append(base, "-email", "Ada@Test.cd"),
			extra: extra{pwds: []string{validPassword, validPassword}},
		},
		{
			name: "student",
			args: append(
				[]string{"adduser", "-first", "Alan", "-last", "Turing", "-email", "alan@test.cd", "-role", "student"},
				"-level", "master", "-year", "1", "-major", "telecom", "-group", "B2",
			),
			extra: extra{pwds: []string{validPassword, validPassword}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var pwds []string
			if ex, ok := tt.extra.(extra); ok {
				pwds = ex.pwds
			}
			mockPasswords(t, pwds...)

			checkErr(t, tt, cli.run(context.Background(), append([]string{"admin"}, tt.args...)))
		})
	}

	ada, err := usrRepo.GetUserByEmail(context.Background(), "ada@test.cd")
	require.NoError(t, err)
	assert.Equal(t, user.RoleTeacher, ada.Role)
	assert.Equal(t, "Ada Lovelace", ada.FullName())
	assert.NoError(t, ada.CheckPassword(validPassword))

	alan, err := usrRepo.GetUserByEmail(context.Background(), "alan@test.cd")
	require.NoError(t, err)
	assert.Equal(t, user.RoleStudent, alan.Role)
	assert.Equal(t, authz.Cohort{AcademicLevel: "master", AcademicYear: 1, Major: "telecom"}, alan.Cohort())
	assert.Equal(t, "B2", alan.Group)

	assert.Len(t, emailsvc.Sent(), 2)
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, usrRepo := setup(t)
	usr := testutil.CreateTeacher(t, usrRepo, "User", "awe@test.cd", validPassword)

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "email but no password", args: []string{"resetpassword", "-email", "awe@test.cd"}, wantErr: errEmptyPassword},
		{name: "user not found", args: []string{"resetpassword", "-email", "lol@test.cd"}, extra: extra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "reset", args: []string{"resetpassword", "-email", "AWE@test.cd"}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if ex, ok := tt.extra.(extra); ok {
				mockPasswords(t, ex.pwd)
			} else {
				mockPasswords(t)
			}
			checkErr(t, tt, cli.run(context.Background(), append([]string{"admin"}, tt.args...)))
		})
	}

	refreshed, err := usrRepo.GetUser(context.Background(), usr.ID)
	require.NoError(t, err)
	assert.False(t, bytes.Equal(usr.PasswordHash, refreshed.PasswordHash))
	assert.NoError(t, refreshed.CheckPassword("lmao"))
}
