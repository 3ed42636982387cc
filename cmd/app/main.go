package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/dagaz/internal"
	pkgconfig "github.com/starford/dagaz/pkg/config"
)

func run(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	loaded, err := pkgconfig.LoadOptional(configPath, cfg)
	if err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if !loaded {
		slog.Warn("config file not found, using defaults", slog.String("path", configPath))
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
	}

	if cmd.Bool("mcp") {
		opts = append(opts, internal.WithMCP())
	}
	if manifest := cmd.String("batch"); manifest != "" {
		opts = append(opts, internal.WithBatch(manifest, cmd.String("out")))
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:   "dagaz",
		Usage:  "Advisory document platform with a Markdown vault, JSON registry, transactional storage, full-text search, and MCP tools",
		Action: run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.BoolFlag{
				Name:  "mcp",
				Usage: "Run the stdio MCP server instead of the HTTP server",
			},
			&cli.StringFlag{
				Name:  "batch",
				Usage: "Process the given TSV manifest and exit",
			},
			&cli.StringFlag{
				Name:  "out",
				Usage: "Results TSV path for batch mode (defaults to stdout)",
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
