package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/google/uuid"

	clientapi "github.com/iudanet/tabsync/internal/client/api"
	"github.com/iudanet/tabsync/internal/client/storage"
	clientsync "github.com/iudanet/tabsync/internal/client/sync"
	"github.com/iudanet/tabsync/pkg/api"
)

func parseTournamentFlag(fs *flag.FlagSet, args []string) (uuid.UUID, error) {
	tournament := fs.String("tournament", "", "Tournament UUID")
	if err := fs.Parse(args); err != nil {
		return uuid.Nil, err
	}
	if *tournament == "" {
		return uuid.Nil, fmt.Errorf("-tournament is required")
	}
	tid, err := uuid.Parse(*tournament)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid tournament id: %w", err)
	}
	return tid, nil
}

// RunCreate создает турнир на сервере.
func RunCreate(ctx context.Context, args []string, client *clientapi.Client, store storage.Store) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	name := fs.String("name", "", "Tournament name")
	tournament := fs.String("tournament", "", "Tournament UUID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" || *tournament == "" {
		return fmt.Errorf("-tournament and -name are required")
	}
	tid, err := uuid.Parse(*tournament)
	if err != nil {
		return fmt.Errorf("invalid tournament id: %w", err)
	}

	if _, err := withSession(ctx, client, store); err != nil {
		return err
	}

	resp, err := client.CreateTournament(ctx, tid, api.CreateTournamentRequest{Name: *name})
	if err != nil {
		return err
	}

	fmt.Printf("Created tournament %s, log head %s\n", resp.TournamentID, resp.LogHead)
	return nil
}

// RunFetch выкачивает изменения турнира в локальное зеркало.
func RunFetch(ctx context.Context, args []string, client *clientapi.Client, store storage.Store) error {
	tid, err := parseTournamentFlag(flag.NewFlagSet("fetch", flag.ContinueOnError), args)
	if err != nil {
		return err
	}

	if _, err := withSession(ctx, client, store); err != nil {
		return err
	}

	service := clientsync.NewService(client, store)
	result, err := service.Fetch(ctx, tid)
	if err != nil {
		return err
	}

	fmt.Printf("Fetched %d log entries, %d entities updated\n", result.Entries, result.Entities)
	if result.NewCursor != nil {
		fmt.Printf("Cursor: %s\n", result.NewCursor)
	}
	return nil
}

// RunPush отправляет FatLog из JSON-файла с сохраненным курсором в роли
// общего предка.
func RunPush(ctx context.Context, args []string, client *clientapi.Client, store storage.Store) error {
	fs := flag.NewFlagSet("push", flag.ContinueOnError)
	file := fs.String("file", "", "Path to a fat log JSON file")
	tournament := fs.String("tournament", "", "Tournament UUID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *tournament == "" || *file == "" {
		return fmt.Errorf("-tournament and -file are required")
	}
	tid, err := uuid.Parse(*tournament)
	if err != nil {
		return fmt.Errorf("invalid tournament id: %w", err)
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		return fmt.Errorf("failed to read fat log file: %w", err)
	}
	var fat api.FatLog
	if err := json.Unmarshal(data, &fat); err != nil {
		return fmt.Errorf("failed to parse fat log file: %w", err)
	}

	if _, err := withSession(ctx, client, store); err != nil {
		return err
	}

	service := clientsync.NewService(client, store)
	resp, err := service.Push(ctx, tid, fat)
	if err != nil {
		return err
	}

	fmt.Printf("Push outcome: %s\n", resp.Outcome)
	switch resp.Outcome {
	case api.OutcomeSuccess:
		fmt.Printf("New cursor: %s\n", resp.NewLastCommonAncestor)
	case api.OutcomeRejected:
		fmt.Println("Server has newer changes, run fetch and push again")
	case api.OutcomeAmbiguousAncestor:
		fmt.Println("No common ancestor known, run fetch first")
	}
	return nil
}

// RunStatus печатает состояние локального зеркала.
func RunStatus(ctx context.Context, client *clientapi.Client, store storage.Store) error {
	session, err := store.GetSession(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotAuthenticated) {
			fmt.Println("Not logged in")
		} else {
			return err
		}
	} else {
		fmt.Printf("Logged in as %s\n", session.Username)
	}

	service := clientsync.NewService(client, store)
	statuses, err := service.Status(ctx)
	if err != nil {
		return err
	}
	if len(statuses) == 0 {
		fmt.Println("No tournaments fetched yet")
		return nil
	}

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].TournamentID.String() < statuses[j].TournamentID.String()
	})

	for _, st := range statuses {
		fmt.Printf("Tournament %s (cursor %s)\n", st.TournamentID, st.Cursor)
		kinds := make([]string, 0, len(st.EntityCounts))
		for kind := range st.EntityCounts {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			fmt.Printf("  %-15s %d\n", kind, st.EntityCounts[kind])
		}
	}
	return nil
}
