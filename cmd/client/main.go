package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/iudanet/tabsync/internal/client/api"
	"github.com/iudanet/tabsync/internal/client/cli"
	"github.com/iudanet/tabsync/internal/client/storage/boltdb"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Глобальные флаги
	showVersion := flag.Bool("version", false, "Show version information")
	serverURL := flag.String("server", "http://localhost:8080", "Server URL")
	dbPath := flag.String("db", "tabsync-client.db", "Path to local database")

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		cli.PrintUsage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	ctx := context.Background()

	boltStorage, err := boltdb.New(ctx, *dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := boltStorage.Close(); err != nil {
			slog.Error("failed to close database", "error", err)
		}
	}()

	apiClient := api.NewClient(*serverURL)

	switch command {
	case "register":
		err = cli.RunRegister(ctx, cmdArgs, apiClient)
	case "login":
		err = cli.RunLogin(ctx, cmdArgs, apiClient, boltStorage)
	case "logout":
		err = cli.RunLogout(ctx, boltStorage)
	case "create":
		err = cli.RunCreate(ctx, cmdArgs, apiClient, boltStorage)
	case "fetch":
		err = cli.RunFetch(ctx, cmdArgs, apiClient, boltStorage)
	case "push":
		err = cli.RunPush(ctx, cmdArgs, apiClient, boltStorage)
	case "status":
		err = cli.RunStatus(ctx, apiClient, boltStorage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		cli.PrintUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("tabsync client\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
