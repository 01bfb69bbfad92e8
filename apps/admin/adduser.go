package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/user"
)

// addUser registers a user after the same checks as the API registration.
func (cli *commandLine) addUser(ctx context.Context, nu user.NewUser) error {
	if err := nu.Validate(cli.validate, cli.usrSvc); err != nil {
		return err
	}
	usr, err := cli.usrSvc.Register(ctx, nu)
	if err != nil {
		return errors.Wrap(err, "registering user")
	}
	fmt.Printf("%s %q created with ID %s\n", usr.Role, usr.Email, usr.ID)
	return nil
}
