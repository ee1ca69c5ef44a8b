package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/ganban/internal"
	pkgconfig "github.com/starford/ganban/pkg/config"
)

// loadConfig reads the config file when it exists and applies the board
// flags on top.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	configPath := cmd.String("config")
	found, err := pkgconfig.LoadIfExists(configPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if !found && cmd.IsSet("config") {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}
	if cmd.IsSet("repo") {
		cfg.Board.RepoPath = cmd.String("repo")
	}
	if cmd.IsSet("branch") {
		cfg.Board.Branch = cmd.String("branch")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func stderrLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func mcpServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, internal.WithConfig(cfg))
}

func initBoard(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	res, err := internal.InitBoard(ctx, cfg.Board, cmd.String("title"), stderrLogger())
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return printJSON(res)
	}
	if res.Created {
		fmt.Printf("Initialized ganban board at %s\n", res.RepoPath)
		fmt.Printf("Columns: %s\n", strings.Join(res.Columns, ", "))
	} else {
		fmt.Printf("Board already initialized at %s\n", res.RepoPath)
	}
	return nil
}

func syncBoard(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := stderrLogger()

	if cmd.Bool("daemon") {
		ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return internal.SyncDaemon(ctx, cfg.Board, int(cmd.Int("interval")), logger)
	}

	res := internal.SyncBoard(ctx, cfg.Board, logger)
	if cmd.Bool("json") {
		if err := printJSON(res); err != nil {
			return err
		}
	} else {
		if len(res.Fetched) > 0 {
			fmt.Printf("fetched: %s\n", strings.Join(res.Fetched, ", "))
		}
		if len(res.Merged) > 0 {
			fmt.Printf("merged: %s\n", strings.Join(res.Merged, ", "))
		}
		if res.Pushed != nil {
			fmt.Printf("pushed: %s\n", *res.Pushed)
		}
		if res.Error != nil {
			fmt.Fprintf(os.Stderr, "error: %s\n", *res.Error)
		}
		if len(res.Fetched) == 0 && len(res.Merged) == 0 && res.Pushed == nil && res.Error == nil {
			fmt.Println("nothing to do")
		}
	}
	if !res.OK() {
		return cli.Exit("", 1)
	}
	return nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func main() {
	boardFlags := []cli.Flag{
		&cli.StringFlag{
			Name:    "repo",
			Usage:   "Path to the git repository",
			Value:   ".",
			Sources: cli.EnvVars("GANBAN_REPO"),
		},
		&cli.StringFlag{
			Name:    "branch",
			Usage:   "Branch the board is stored on",
			Value:   "ganban",
			Sources: cli.EnvVars("GANBAN_BRANCH"),
		},
	}
	jsonFlag := &cli.BoolFlag{Name: "json", Usage: "Machine-readable JSON output"}

	cmd := &cli.Command{
		Name:  "ganban",
		Usage: "Kanban board stored on a git branch, synced between clones",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Serve the board over HTTP with live updates",
				Flags:  boardFlags,
				Action: serve,
			},
			{
				Name:   "init",
				Usage:  "Initialize a board in the repository",
				Flags:  append(boardFlags, jsonFlag, &cli.StringFlag{Name: "title", Usage: "Board title", Value: "ganban"}),
				Action: initBoard,
			},
			{
				Name:  "sync",
				Usage: "Fetch, merge and push the board branch",
				Flags: append(boardFlags, jsonFlag,
					&cli.BoolFlag{Name: "daemon", Aliases: []string{"d"}, Usage: "Keep syncing until interrupted"},
					&cli.IntFlag{Name: "interval", Usage: "Seconds between daemon cycles (default: ganban.sync-interval)"},
				),
				Action: syncBoard,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the board over MCP on stdin/stdout",
				Flags:  boardFlags,
				Action: mcpServe,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
