package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword       // mockable
	migrateFunc      = database.RunMigrations // mockable

	errHelp          = errors.New("help provided")
	errNoMigrations  = errors.New("migrations only apply to the postgres engine")
	errPwdMismatch   = errors.New("passwords do not match")
	errEmptyPassword = errors.New("password cannot be empty")
)

type commandLine struct {
	db       *sqlx.DB // nil with the bolt engine
	usrSvc   *user.Service
	validate *validator.Validate
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS]                 - run a goose command (up, down, status, redo, ...) on the postgres database")
	fmt.Println("  adduser -email EMAIL -first NAME -last NAME [-role student|teacher] [-level LEVEL -year YEAR -major MAJOR -group GROUP]")
	fmt.Println("                                         - create a user; the password will be prompted next")
	fmt.Println("  resetpassword -email EMAIL             - reset user's password; the password will be prompted next")
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ExitOnError)
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserFirst := addUserCmd.String("first", "", "The user's first name.")
	addUserLast := addUserCmd.String("last", "", "The user's last name.")
	addUserRole := addUserCmd.String("role", user.RoleTeacher, "The user's role: student or teacher.")
	addUserLevel := addUserCmd.String("level", "", "Student only: academic level, bachelor or master.")
	addUserYear := addUserCmd.Int("year", 0, "Student only: academic year.")
	addUserMajor := addUserCmd.String("major", "", "Student only: major, required for master students.")
	addUserGroup := addUserCmd.String("group", "", "Student only: group.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The user's email.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(ctx, args[2:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserEmail == "" || *addUserFirst == "" || *addUserLast == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword(true)
		if err != nil {
			return err
		}
		return cli.addUser(ctx, user.NewUser{
			FirstName:       *addUserFirst,
			LastName:        *addUserLast,
			Email:           *addUserEmail,
			Password:        pwd,
			PasswordConfirm: pwd,
			Role:            *addUserRole,
			AcademicLevel:   *addUserLevel,
			AcademicYear:    *addUserYear,
			Major:           *addUserMajor,
			Group:           *addUserGroup,
		})

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword(false)
		if err != nil {
			return err
		}
		return cli.resetPassword(ctx, *resetPasswordEmail, pwd)

	default:
		cli.printUsage()
		return errHelp
	}
}

// promptPassword reads a password from the terminal, twice when confirm is set.
func promptPassword(confirm bool) (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		return "", errEmptyPassword
	}
	if !confirm {
		return string(pwd), nil
	}

	fmt.Print("Confirm password:")
	pwd2, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	if string(pwd) != string(pwd2) {
		return "", errPwdMismatch
	}
	return string(pwd), nil
}
