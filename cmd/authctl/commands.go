package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/opticavillalba/authcore/internal/auth/service"
	"github.com/opticavillalba/authcore/pkg/cryptox"
)

var errUsage = errors.New("invalid usage")

var stdin = bufio.NewReader(os.Stdin)

// promptFunc reads a secret after showing label.
type promptFunc func(label string) (string, error)

type cli struct {
	users  *service.UserService
	out    io.Writer
	prompt promptFunc
}

func (c *cli) run(ctx context.Context, args []string) error {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "create-user":
		return c.createUser(ctx, rest)
	case "set-password":
		return c.setPassword(ctx, rest)
	case "reset-mfa":
		return c.withUsername(rest, func(username string) error {
			if err := c.users.ResetMFA(ctx, username); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "MFA reset for %s; they will enroll again at next login\n", username)
			return nil
		})
	case "disable", "enable":
		active := cmd == "enable"
		return c.withUsername(rest, func(username string) error {
			if err := c.users.SetActive(ctx, username, active); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%s %sd\n", username, cmd)
			return nil
		})
	case "users":
		return c.listUsers(ctx)
	case "logs":
		return c.logs(ctx, rest)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func (c *cli) createUser(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	username := fs.String("username", "", "Login name")
	email := fs.String("email", "", "Contact address")
	generate := fs.Bool("generate", false, "Generate a random password and print it")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" {
		return fmt.Errorf("%w: -username is required", errUsage)
	}

	password, err := c.newPassword(*generate)
	if err != nil {
		return err
	}

	user, err := c.users.CreateUser(ctx, *username, *email, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "created %s (%s)\n", user.Username, user.ID)
	if *generate {
		fmt.Fprintf(c.out, "password: %s\n", password)
	}
	return nil
}

func (c *cli) setPassword(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("set-password", flag.ContinueOnError)
	username := fs.String("username", "", "Login name")
	generate := fs.Bool("generate", false, "Generate a random password and print it")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" {
		return fmt.Errorf("%w: -username is required", errUsage)
	}

	password, err := c.newPassword(*generate)
	if err != nil {
		return err
	}
	if err := c.users.SetPassword(ctx, *username, password); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "password updated for %s\n", *username)
	if *generate {
		fmt.Fprintf(c.out, "password: %s\n", password)
	}
	return nil
}

func (c *cli) listUsers(ctx context.Context) error {
	users, err := c.users.ListUsers(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USERNAME\tEMAIL\tMFA\tACTIVE\tLAST LOGIN")
	for _, u := range users {
		last := "-"
		if u.LastLogin != nil {
			last = u.LastLogin.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%t\t%s\n", u.Username, u.Email, u.MFAEnabled, u.IsActive, last)
	}
	return tw.Flush()
}

func (c *cli) logs(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("logs", flag.ContinueOnError)
	limit := fs.Int("limit", service.DefaultLogLimit, "Number of records")
	if err := fs.Parse(args); err != nil {
		return err
	}

	attempts, err := c.users.LoginAttempts(ctx, *limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tUSERNAME\tFROM\tEVENT\tRESULT")
	for _, a := range attempts {
		result := "ok"
		if !a.Success {
			result = a.Reason
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			a.CreatedAt.Format(time.RFC3339), a.Username, a.Identifier, a.Event, result)
	}
	return tw.Flush()
}

func (c *cli) withUsername(args []string, fn func(username string) error) error {
	fs := flag.NewFlagSet("account", flag.ContinueOnError)
	username := fs.String("username", "", "Login name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" {
		return fmt.Errorf("%w: -username is required", errUsage)
	}
	return fn(*username)
}

func (c *cli) newPassword(generate bool) (string, error) {
	if generate {
		return cryptox.GeneratePassword()
	}
	password, err := c.prompt("New password: ")
	if err != nil {
		return "", err
	}
	confirm, err := c.prompt("Repeat password: ")
	if err != nil {
		return "", err
	}
	if password != confirm {
		return "", errors.New("passwords do not match")
	}
	return password, nil
}

// terminalPrompt reads without echo on a terminal, and a plain line when
// stdin is piped.
func terminalPrompt(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := stdin.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(os.Stderr, label)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}
