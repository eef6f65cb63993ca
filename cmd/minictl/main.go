// main.go - Admin control tool for Minilytics
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"minilytics/internal"
	"minilytics/internal/domains"
	"minilytics/internal/settings"
)

// Command defines the interface for all command implementations
type Command interface {
	Name() string
	Description() string
	Execute(ctx context.Context, app *internal.Application, args []string) error
}

var commands = []Command{
	&AdminPasswordCommand{},
	&DomainsCommand{},
	&MigrateCommand{},
	&HelpCommand{},
}

func main() {
	flag.Parse()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v, initiating cleanup...", sig)
		cancel()
	}()

	cmdName, args := parseArgs()

	cmd := findCommand(cmdName)
	if cmd == nil {
		showUsageAndExit()
	}

	app, err := internal.NewApp()
	if err != nil {
		log.Fatalf("Failed to initialize app: %v", err)
	}

	defer func() {
		if err := app.DBManager.Close(); err != nil {
			log.Printf("Warning: Cleanup error: %v", err)
		}
	}()

	if err := cmd.Execute(ctx, app, args); err != nil {
		log.Fatalf("Command failed: %v", err)
	}

	log.Printf("Command %s completed successfully", cmd.Name())
}

func parseArgs() (string, []string) {
	args := flag.Args()
	if len(args) == 0 {
		return "help", nil
	}
	return args[0], args[1:]
}

func findCommand(name string) Command {
	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd
		}
	}
	return nil
}

func showUsageAndExit() {
	fmt.Println("Usage: minictl <command> [arguments]")
	fmt.Println()
	fmt.Println("Available commands:")
	for _, cmd := range commands {
		fmt.Printf("  %-16s %s\n", cmd.Name(), cmd.Description())
	}
	os.Exit(1)
}

// AdminPasswordCommand sets the dashboard admin password.
type AdminPasswordCommand struct{}

func (c *AdminPasswordCommand) Name() string { return "admin-password" }

func (c *AdminPasswordCommand) Description() string {
	return "Sets the admin password used for dashboard access"
}

func (c *AdminPasswordCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	password, err := promptPassword()
	if err != nil {
		return err
	}

	if err := settings.SetAdminPassword(app.DBManager.GetConnection(), password); err != nil {
		return fmt.Errorf("failed to store admin password: %w", err)
	}

	fmt.Println("Admin password updated")
	return nil
}

func promptPassword() (string, error) {
	for {
		fmt.Print("Enter new admin password (minimum 8 characters): ")
		passBytes, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Println()

		password := strings.TrimSpace(string(passBytes))
		if len(password) < 8 {
			fmt.Println("Error: password must be at least 8 characters")
			continue
		}

		fmt.Print("Confirm new admin password: ")
		confirmBytes, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Println()

		if password != strings.TrimSpace(string(confirmBytes)) {
			fmt.Println("Error: passwords do not match")
			continue
		}

		return password, nil
	}
}

// DomainsCommand manages the tracking allowlist.
type DomainsCommand struct{}

func (c *DomainsCommand) Name() string { return "domains" }

func (c *DomainsCommand) Description() string {
	return "Manages the tracking allowlist: domains add|remove|list [domain]"
}

func (c *DomainsCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: minictl domains add|remove|list [domain]")
	}

	db := app.DBManager.GetConnection()

	switch args[0] {
	case "add":
		if len(args) < 2 {
			return errors.New("usage: minictl domains add <domain>")
		}
		if err := domains.Register(db, args[1]); err != nil {
			return err
		}
		fmt.Printf("Added %s\n", domains.Normalize(args[1]))
		return nil

	case "remove":
		if len(args) < 2 {
			return errors.New("usage: minictl domains remove <domain>")
		}
		if err := domains.Remove(db, args[1]); err != nil {
			return err
		}
		fmt.Printf("Removed %s\n", domains.Normalize(args[1]))
		return nil

	case "list":
		names, err := domains.List(db)
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Println("No domains registered")
			return nil
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil

	default:
		return fmt.Errorf("unknown domains subcommand: %s", args[0])
	}
}

// MigrateCommand runs the database migrations.
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string { return "migrate" }

func (c *MigrateCommand) Description() string {
	return "Runs database migrations"
}

func (c *MigrateCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	return app.DBManager.MigrateDatabase()
}

// HelpCommand prints usage.
type HelpCommand struct{}

func (c *HelpCommand) Name() string { return "help" }

func (c *HelpCommand) Description() string {
	return "Shows this help"
}

func (c *HelpCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	showUsageAndExit()
	return nil
}
