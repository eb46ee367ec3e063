// Command authctl administers accounts directly against the auth database.
// It is meant for operators on the host running the service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/opticavillalba/authcore/internal/auth/app"
	"github.com/opticavillalba/authcore/internal/auth/service"
	"github.com/opticavillalba/authcore/pkg/slogx"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Global flags default to the service's environment.
	dbPath := flag.String("db", cfg.DatabaseFile, "Path to the auth database")
	pepperPath := flag.String("pepper", cfg.PepperFile, "Path to the password pepper")
	masterKey := flag.String("master-key", cfg.MasterKeyPath, "Path to the MFA master key")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}

	cfg.DatabaseFile = *dbPath
	cfg.PepperFile = *pepperPath
	cfg.MasterKeyPath = *masterKey

	logger := slogx.New(slogx.Config{
		Service: "authctl",
		Version: app.BuildVersion,
		Env:     cfg.Env,
		Level:   "warn",
		Format:  "text",
		Output:  os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	hasher, err := app.LoadHasher(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	db, err := app.OpenStore(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	c := &cli{
		users:  &service.UserService{Store: db, Hasher: hasher},
		out:    os.Stdout,
		prompt: terminalPrompt,
	}
	if err := c.run(ctx, args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: authctl [global flags] <command> [flags]

Commands:
  create-user   -username NAME [-email ADDR] [-generate]
  set-password  -username NAME [-generate]
  reset-mfa     -username NAME
  disable       -username NAME
  enable        -username NAME
  users
  logs          [-limit N]

Global flags:
`)
	flag.PrintDefaults()
}
