package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	goAuthClient "github.com/MrEthical07/goAuthClient"
)

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func (c *cli) printNav(nav goAuthClient.Navigation) {
	if nav.Target != goAuthClient.NavNone {
		fmt.Fprintf(c.stdout, "next: %s\n", nav.Path)
	}
}

func (c *cli) printUser(user *goAuthClient.User) error {
	if c.json {
		enc := json.NewEncoder(c.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(user)
	}
	fmt.Fprintf(c.stdout, "id:       %s\n", user.ID)
	fmt.Fprintf(c.stdout, "email:    %s (verified: %t)\n", user.Email, user.EmailVerified)
	if user.Name != "" {
		fmt.Fprintf(c.stdout, "name:     %s\n", user.Name)
	}
	if user.Role != "" {
		fmt.Fprintf(c.stdout, "role:     %s\n", user.Role)
	}
	if user.Status != "" {
		fmt.Fprintf(c.stdout, "status:   %s\n", user.Status)
	}
	return nil
}

func cmdLogin(ctx context.Context, c *cli, args []string) error {
	fs := newFlagSet("login")
	email := fs.String("email", "", "account email")
	pw := fs.String("password", "", "password (read from stdin when empty)")
	if err := fs.Parse(args); err != nil {
		return usageError(err)
	}
	if *email == "" {
		return usageError(fmt.Errorf("-email is required"))
	}
	secret, err := c.secret("Password", *pw)
	if err != nil {
		return err
	}

	nav, err := c.m.Login(ctx, goAuthClient.Credentials{Identifier: *email, Secret: secret})
	if err != nil {
		return err
	}
	snap := c.m.Snapshot()
	fmt.Fprintf(c.stdout, "signed in as %s\n", snap.User.Email)
	c.printNav(nav)
	return nil
}

func cmdLogout(ctx context.Context, c *cli, _ []string) error {
	nav, err := c.m.Logout(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, "signed out")
	c.printNav(nav)
	return nil
}

func cmdWhoami(_ context.Context, c *cli, _ []string) error {
	snap := c.m.Snapshot()
	if !snap.Authenticated() {
		return goAuthClient.ErrNotAuthenticated
	}
	return c.printUser(snap.User)
}

func cmdRefresh(ctx context.Context, c *cli, _ []string) error {
	if err := c.m.Refresh(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, "session refreshed")
	return nil
}

func cmdProfile(ctx context.Context, c *cli, args []string) error {
	fs := newFlagSet("profile")
	name := fs.String("name", "", "new display name")
	email := fs.String("email", "", "new email")
	if err := fs.Parse(args); err != nil {
		return usageError(err)
	}

	var update goAuthClient.ProfileUpdate
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			update.Name = name
		case "email":
			update.Email = email
		}
	})
	if update.Name == nil && update.Email == nil {
		return usageError(fmt.Errorf("set -name and/or -email"))
	}

	user, err := c.m.UpdateProfile(ctx, update)
	if err != nil {
		return err
	}
	return c.printUser(&user)
}

func cmdPasswd(ctx context.Context, c *cli, args []string) error {
	fs := newFlagSet("passwd")
	current := fs.String("current", "", "current password (read from stdin when empty)")
	next := fs.String("new", "", "new password (read from stdin when empty)")
	if err := fs.Parse(args); err != nil {
		return usageError(err)
	}
	cur, err := c.secret("Current password", *current)
	if err != nil {
		return err
	}
	nw, err := c.secret("New password", *next)
	if err != nil {
		return err
	}

	if err := c.m.ChangePassword(ctx, goAuthClient.ChangePasswordRequest{CurrentPassword: cur, NewPassword: nw}); err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, "password changed")
	return nil
}

func cmdRegister(ctx context.Context, c *cli, args []string) error {
	fs := newFlagSet("register")
	email := fs.String("email", "", "account email")
	name := fs.String("name", "", "display name")
	pw := fs.String("password", "", "password (read from stdin when empty)")
	if err := fs.Parse(args); err != nil {
		return usageError(err)
	}
	if *email == "" {
		return usageError(fmt.Errorf("-email is required"))
	}
	secret, err := c.secret("Password", *pw)
	if err != nil {
		return err
	}

	nav, err := c.m.Register(ctx, goAuthClient.RegisterRequest{Email: *email, Password: secret, Name: *name})
	if err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, "account created; check your email to verify it")
	c.printNav(nav)
	return nil
}

func cmdVerify(ctx context.Context, c *cli, args []string) error {
	token, err := singleToken("verify", args)
	if err != nil {
		return err
	}
	nav, err := c.m.VerifyEmail(ctx, token)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, "email verified")
	c.printNav(nav)
	return nil
}

func cmdForgot(ctx context.Context, c *cli, args []string) error {
	fs := newFlagSet("forgot")
	email := fs.String("email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return usageError(err)
	}
	if *email == "" {
		return usageError(fmt.Errorf("-email is required"))
	}
	if err := c.m.RequestPasswordReset(ctx, *email); err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, "if the account exists, a reset email is on its way")
	return nil
}

func cmdReset(ctx context.Context, c *cli, args []string) error {
	fs := newFlagSet("reset")
	token := fs.String("token", "", "reset token")
	pw := fs.String("password", "", "new password (read from stdin when empty)")
	if err := fs.Parse(args); err != nil {
		return usageError(err)
	}
	if *token == "" {
		return usageError(fmt.Errorf("-token is required"))
	}
	secret, err := c.secret("New password", *pw)
	if err != nil {
		return err
	}

	nav, err := c.m.ResetPassword(ctx, *token, secret)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, "password reset; sign in with the new password")
	c.printNav(nav)
	return nil
}

func singleToken(name string, args []string) (string, error) {
	fs := newFlagSet(name)
	token := fs.String("token", "", "token from the email")
	if err := fs.Parse(args); err != nil {
		return "", usageError(err)
	}
	if *token == "" {
		return "", usageError(fmt.Errorf("-token is required"))
	}
	return *token, nil
}

func usageError(err error) error {
	return &goAuthClient.Error{Kind: goAuthClient.ErrValidation, Message: err.Error(), Err: err}
}
