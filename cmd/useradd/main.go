// Command useradd creates a chat account in the configured database.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/Tyrowin/chatroom/internal/auth"
	"github.com/Tyrowin/chatroom/internal/common"
	"github.com/Tyrowin/chatroom/internal/config"
	"github.com/Tyrowin/chatroom/internal/store"
)

func main() {
	configPath := flag.String("config", os.Getenv("CHAT_CONFIG"), "path to a TOML or YAML config file")
	username := flag.String("username", "", "account name")
	password := flag.String("password", os.Getenv("CHAT_PASSWORD"), "account password (defaults to $CHAT_PASSWORD)")
	flag.Parse()

	if err := run(context.Background(), *configPath, *username, *password); err != nil {
		fmt.Fprintln(os.Stderr, "useradd:", err)
		if errors.Is(err, common.ErrAlreadyExists) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, username, password string) error {
	if username == "" || password == "" {
		return errors.New("-username and -password are required")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	st, err := store.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer st.Close()

	id, err := auth.NewAuthenticator(st).CreateUser(ctx, username, password)
	if err != nil {
		return err
	}

	fmt.Printf("created user %q with id %d\n", username, id)
	return nil
}
