package cli

import (
	"context"
	"flag"
	"fmt"

	clientapi "github.com/iudanet/tabsync/internal/client/api"
	"github.com/iudanet/tabsync/internal/client/storage"
	"github.com/iudanet/tabsync/pkg/api"
)

// RunRegister регистрирует нового пользователя и печатает выданный ключ
// доступа. Ключ показывается один раз, сервер хранит только хеш.
func RunRegister(ctx context.Context, args []string, client *clientapi.Client) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	username := fs.String("username", "", "Username to register")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" {
		return fmt.Errorf("-username is required")
	}

	resp, err := client.Register(ctx, api.RegisterRequest{Username: *username})
	if err != nil {
		return err
	}

	fmt.Printf("Registered %s (user id %s)\n", *username, resp.UserID)
	fmt.Printf("Access key (store it, it is shown only once): %s\n", resp.AccessKey)
	return nil
}

// RunLogin обменивает ключ доступа на токен и сохраняет сессию локально.
func RunLogin(ctx context.Context, args []string, client *clientapi.Client, store storage.Store) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	username := fs.String("username", "", "Username")
	key := fs.String("key", "", "Access key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" || *key == "" {
		return fmt.Errorf("-username and -key are required")
	}

	resp, err := client.Login(ctx, api.LoginRequest{Username: *username, AccessKey: *key})
	if err != nil {
		return err
	}

	session := &storage.Session{
		Username:    *username,
		AccessToken: resp.AccessToken,
	}
	if err := store.SaveSession(ctx, session); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	fmt.Printf("Logged in as %s (token expires in %ds)\n", *username, resp.ExpiresIn)
	return nil
}

// RunLogout удаляет локальную сессию.
func RunLogout(ctx context.Context, store storage.Store) error {
	if err := store.ClearSession(ctx); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	fmt.Println("Logged out")
	return nil
}
