// Package cli реализует команды операторского клиента tabsync.
package cli

import (
	"context"
	"fmt"
	"os"

	clientapi "github.com/iudanet/tabsync/internal/client/api"
	"github.com/iudanet/tabsync/internal/client/storage"
)

// PrintUsage выводит справку по командам
func PrintUsage() {
	fmt.Fprintln(os.Stderr, `Usage: tabsync-client [flags] <command> [args]

Commands:
  register  -username <name>                 register a new user, print access key
  login     -username <name> -key <key>      exchange access key for a session
  logout                                     drop the local session
  create    -tournament <uuid> -name <name>  create a tournament
  fetch     -tournament <uuid>               pull changes into the local mirror
  push      -tournament <uuid> -file <path>  push a fat log from a JSON file
  status                                     show local mirror state

Flags:
  -server <url>  server base URL (default http://localhost:8080)
  -db <path>     local database path (default tabsync-client.db)`)
}

// withSession загружает сессию и настраивает bearer token клиента.
func withSession(ctx context.Context, client *clientapi.Client, store storage.Store) (*storage.Session, error) {
	session, err := store.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	client.SetToken(session.AccessToken)
	return session, nil
}
