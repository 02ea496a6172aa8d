package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"sdserver/internal/config"
	"sdserver/internal/registry"
	"sdserver/internal/sampler"
)

type serveFlags struct {
	configPath     string
	host           string
	device         string
	workerURL      string
	workerCommand  string
	workerArgs     string
	outputDir      string
	maxModels      int
	maxWaitSeconds int
	strict         bool
	embedMetadata  bool
	logLevel       string
	logFormat      string
	logFile        string
}

func newRootCmd() *cobra.Command {
	var f serveFlags
	root := &cobra.Command{
		Use:   "sdserver <secret> [port] [storage-dir]",
		Short: "Text-to-image HTTP server",
		Long: `sdserver serves text-to-image generation over HTTP.

The shared secret is compared against the Authorization header of every
generation request. Port defaults to 5000. The storage directory holds
converted checkpoints, adapter weights and the worker's model cache.`,
		Args:          cobra.MaximumNArgs(3),
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, f, args)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	fl := root.Flags()
	fl.StringVarP(&f.configPath, "config", "c", "", "Config file (.yaml, .json or .toml)")
	fl.StringVar(&f.host, "host", "", "Listen host (default "+config.DefaultHost+")")
	fl.StringVar(&f.device, "device", "", "Device pipelines are placed on (default "+config.DefaultDevice+")")
	fl.StringVar(&f.workerURL, "worker-url", "", "Base URL of a running diffusion worker")
	fl.StringVar(&f.workerCommand, "worker-command", "", "Command that starts a diffusion worker")
	fl.StringVar(&f.workerArgs, "worker-args", "", "Comma separated arguments for --worker-command")
	fl.StringVar(&f.outputDir, "output-dir", "", "Also save every image under this directory")
	fl.IntVar(&f.maxModels, "max-models", 0, "Maximum cached pipelines (0 = unbounded)")
	fl.IntVar(&f.maxWaitSeconds, "max-wait", 0, "Seconds to wait for the device before 429 (0 = forever)")
	fl.BoolVar(&f.strict, "strict-schedulers", false, "Reject unknown scheduler names")
	fl.BoolVar(&f.embedMetadata, "embed-metadata", false, "Embed generation info in returned PNGs")
	fl.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fl.StringVar(&f.logFormat, "log-format", "", "Log format: console or json")
	fl.StringVar(&f.logFile, "log-file", "", "Also write logs to this file, rotated")

	root.AddCommand(newSchedulersCmd(), newModelsCmd(), newVersionCmd())
	return root
}

// resolveConfig layers file, environment, positional arguments and flags, in
// increasing precedence, then applies defaults.
func resolveConfig(cmd *cobra.Command, f serveFlags, args []string) (config.Config, error) {
	var cfg config.Config
	if f.configPath != "" {
		c, err := config.Load(f.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		cfg = c
	}
	cfg = cfg.ApplyEnv()

	if len(args) > 0 {
		cfg.AuthKey = args[0]
	}
	if len(args) > 1 {
		port, err := strconv.Atoi(args[1])
		if err != nil || port <= 0 || port > 65535 {
			return cfg, fmt.Errorf("invalid port %q", args[1])
		}
		cfg.Port = port
	}
	if len(args) > 2 {
		cfg.StorageDir = args[2]
	}

	changed := cmd.Flags().Changed
	if changed("host") {
		cfg.Host = f.host
	}
	if changed("device") {
		cfg.Device = f.device
	}
	if changed("worker-url") {
		cfg.WorkerURL = f.workerURL
	}
	if changed("worker-command") {
		cfg.WorkerCommand = f.workerCommand
	}
	if changed("worker-args") {
		cfg.WorkerArgs = splitCSV(f.workerArgs)
	}
	if changed("output-dir") {
		cfg.OutputDir = f.outputDir
	}
	if changed("max-models") {
		cfg.MaxModels = f.maxModels
	}
	if changed("max-wait") {
		cfg.MaxWaitSeconds = f.maxWaitSeconds
	}
	if changed("strict-schedulers") {
		cfg.StrictSamplers = f.strict
	}
	if changed("embed-metadata") {
		cfg.EmbedMetadata = f.embedMetadata
	}
	if changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if changed("log-format") {
		cfg.LogFormat = f.logFormat
	}
	if changed("log-file") {
		cfg.LogFile = f.logFile
	}

	cfg = cfg.WithDefaults()
	if cfg.AuthKey == "" {
		return cfg, fmt.Errorf("a shared secret is required: pass it as the first argument or set SDSERVER_AUTH_KEY")
	}
	return cfg, nil
}

func newSchedulersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedulers",
		Short: "List selectable schedulers",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			list := sampler.List()
			names := make([]string, 0, len(list))
			for k := range list {
				names = append(names, k)
			}
			sort.Strings(names)
			for _, n := range names {
				desc := strings.ReplaceAll(list[n].Description, "\n", "; ")
				fmt.Fprintf(cmd.OutOrStdout(), "%-22s %s: %s\n", n, list[n].Name, desc)
			}
		},
	}
}

func newModelsCmd() *cobra.Command {
	storage := config.DefaultStorageDir
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List converted checkpoints and adapters under the storage directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Config{StorageDir: storage}.WithDefaults()
			resp, err := registry.LoadDir(cfg.CheckpointsDir(), cfg.LorasDir())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, m := range resp.Checkpoints {
				fmt.Fprintf(out, "checkpoint  %-9s %s\n", m.Kind, m.Path)
			}
			for _, m := range resp.Loras {
				fmt.Fprintf(out, "lora        %-9s %s\n", m.Kind, m.Path)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&storage, "storage-dir", storage, "Base storage directory")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

// splitCSV splits a comma-separated string and trims spaces; empty items are dropped.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
