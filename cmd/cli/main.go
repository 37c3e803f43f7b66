package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"arena/internal/cli/command"
	"arena/internal/cli/config"
	httpclient "arena/internal/cli/http"
	"arena/internal/cli/repl"
	"arena/internal/cli/state"
)

const defaultConfigPath = "configs/cli.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	baseURL := flag.String("base", "", "Override base URL")
	timeout := flag.Duration("timeout", 0, "Override HTTP timeout (e.g. 10s)")
	actor := flag.String("actor", "", "Override actor name")
	admin := flag.Bool("admin", false, "Act as an organizer")
	statePath := flag.String("state", "", "Override identity state path")
	pretty := flag.Bool("pretty", false, "Pretty print JSON response")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		return
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}
	if *statePath != "" {
		cfg.StatePath = *statePath
	}
	if *pretty {
		trueValue := true
		cfg.PrettyJSON = &trueValue
	}

	identity, err := state.Load(cfg.StatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load identity state failed: %v\n", err)
		return
	}
	if *actor != "" {
		identity.Actor = *actor
	}
	if *admin {
		identity.Admin = true
	}

	client := httpclient.New(cfg.BaseURL, cfg.Timeout, func() (string, bool) {
		return identity.Actor, identity.Admin
	})

	commands := command.Registry()
	session, err := repl.New(client, commands, &identity, cfg.StatePath, cfg.HistoryPath, cfg.PrettyJSON != nil && *cfg.PrettyJSON)
	if err != nil {
		fmt.Fprintf(os.Stderr, "start session failed: %v\n", err)
		return
	}
	session.Run(context.Background())
}
