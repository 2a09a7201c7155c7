package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/user"
)

type newUserArgs struct {
	name      string
	username  string
	email     string
	password  string
	isAdmin   bool
	isTeacher bool
}

// addUser updates or creates an active user.User. Roles are only ever added.
func (cli *commandLine) addUser(args newUserArgs) error {
	ctx := context.Background()
	uname := core.CleanString(args.username, true /* lower */)
	email := core.CleanString(args.email, true /* lower */)
	now := core.NowFunc().UTC()

	usr, err := cli.findUser(ctx, uname, email)
	exists := err == nil
	if err != nil {
		if !core.IsNotFound(err) {
			return err
		}
		usr = user.User{Username: uname, Email: email, CreatedAt: now}
	}

	if args.name != "" {
		usr.Name = core.CleanString(args.name)
	} else if usr.Name == "" {
		usr.Name = uname
	}
	if args.isAdmin {
		usr.Roles = addRoles(usr.Roles, user.AdminRoles...)
	}
	if args.isTeacher {
		usr.Roles = addRoles(usr.Roles, user.RoleTeacher)
	}
	usr.IsActive = true
	usr.UpdatedAt = now
	if err = usr.SetPassword(args.password); err != nil {
		return err
	}

	if exists {
		_, err = cli.usrRepo.UpdateUser(ctx, usr)
	} else {
		if err = cli.usrRepo.CheckUniqueness(ctx, uname, email, nil); err != nil {
			return err
		}
		_, err = cli.usrRepo.CreateUser(ctx, usr)
	}
	if err != nil {
		return errors.Wrap(err, "saving user")
	}
	cli.logger.Info("user saved: " + usr.Username)
	return nil
}

func (cli *commandLine) findUser(ctx context.Context, uname, email string) (user.User, error) {
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: uname})
	if core.IsNotFound(err) {
		return cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: email})
	}
	return usr, err
}

func addRoles(roles []string, added ...string) []string {
	for _, role := range added {
		found := false
		for _, r := range roles {
			if r == role {
				found = true
				break
			}
		}
		if !found {
			roles = append(roles, role)
		}
	}
	return roles
}
