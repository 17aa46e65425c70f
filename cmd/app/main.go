package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/glamour"
	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/prose/internal"
	"github.com/starford/prose/internal/markdown"
	pkgconfig "github.com/starford/prose/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.Root().String("config")

	cfg := internal.NewDefaultConfig()
	found, err := pkgconfig.LoadOptional(configPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if !found {
		slog.Debug("config file not found, using defaults", slog.String("path", configPath))
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
		return fmt.Errorf("mcp run error: %w", err)
	}
	return nil
}

// readSource reads the file named by the first argument, or stdin for "-".
func readSource(cmd *cli.Command) (string, error) {
	name := cmd.Args().First()
	if name == "" {
		return "", fmt.Errorf("a markdown file is required (use - for stdin)")
	}
	var data []byte
	var err error
	if name == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(name)
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return string(data), nil
}

func render(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	engine := cmd.String("engine")
	if engine == "" {
		engine = cfg.Editor.Renderer
	}
	r, err := markdown.New(engine)
	if err != nil {
		return err
	}
	src, err := readSource(cmd)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, r.Render(src))
	return err
}

func preview(_ context.Context, cmd *cli.Command) error {
	src, err := readSource(cmd)
	if err != nil {
		return err
	}

	style := glamour.WithAutoStyle()
	if s := cmd.String("style"); s != "" && s != "auto" {
		style = glamour.WithStandardStyle(s)
	}
	tr, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(int(cmd.Int("width"))))
	if err != nil {
		return fmt.Errorf("init terminal renderer: %w", err)
	}
	out, err := tr.Render(src)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	_, err = fmt.Fprint(os.Stdout, out)
	return err
}

func main() {
	cmd := &cli.Command{
		Name:    "prose",
		Usage:   "Markdown reader and editor with live preview, tabs and folder navigation",
		Version: version,
		Action:  serve,
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
				Usage:  "Run the HTTP server (default)",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the markdown tools over MCP stdio",
				Action: serveMCP,
			},
			{
				Name:      "render",
				Usage:     "Print the HTML preview of a markdown file",
				ArgsUsage: "<file|->",
				Action:    render,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "engine",
						Usage: "Renderer engine (builtin or goldmark)",
					},
				},
			},
			{
				Name:      "preview",
				Usage:     "Render a markdown file for the terminal",
				ArgsUsage: "<file|->",
				Action:    preview,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "style",
						Usage: "Glamour style (auto, dark, light, dracula, notty)",
						Value: "auto",
					},
					&cli.IntFlag{
						Name:  "width",
						Usage: "Word wrap width",
						Value: 100,
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
