package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/brettbedarf/h5browse"
	"github.com/brettbedarf/h5browse/browser"
	"github.com/brettbedarf/h5browse/config"
	"github.com/brettbedarf/h5browse/internal/tree"
	"github.com/brettbedarf/h5browse/internal/util"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Version is the current h5browse CLI version
var Version = "0.1.0"

var (
	filePath   string
	configPath string
	openMode   string
	storeType  string
	verbose    int

	treeDepth    int
	treeMatch    string
	treeTooltips bool

	umount bool
)

var rootCmd = &cobra.Command{
	Use:   "h5browse",
	Short: "Browse HDF5 container files as a lazily expanded tree",
	Long: `h5browse opens an HDF5 file (or a YAML/JSON layout, or either over http)
and lists its groups and datasets, expanding groups only when they are visited.
Without a subcommand it prints the tree, like "h5browse tree".`,
	Version:      Version,
	SilenceUsage: true,
	RunE:         runTree,
}

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Print the tree down to --depth levels",
	Args:  cobra.NoArgs,
	RunE:  runTree,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <path>",
	Short: "Print the metadata of one group or dataset as YAML",
	Long: `Print the metadata of the node at an absolute container path, for example
"h5browse -f sim.h5 inspect /15/temperature". Dataset values are never read.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

var mountCmd = &cobra.Command{
	Use:   "mount <mountpoint>",
	Short: "Mount the tree as a read-only filesystem",
	Long: `Mount the container at mountpoint. Groups are directories and datasets are
files holding their metadata document. Runs until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runMount,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&filePath, "file", "f", "", "Container to open: an .h5/.hdf5 file, a .yaml/.json layout or an http(s) URL")
	pf.StringVarP(&configPath, "config", "c", "", "Path to a YAML or JSON config file")
	pf.StringVar(&openMode, "mode", "r", "Open mode: r or rw")
	pf.StringVar(&storeType, "type", "", "Store type (hdf5, memory, http); detected from the file when empty")
	pf.IntVarP(&verbose, "verbose", "v", config.InfoVerbose, "Log verbosity level between 1 (error) and 5 (trace)")

	for _, cmd := range []*cobra.Command{rootCmd, treeCmd} {
		cmd.Flags().IntVar(&treeDepth, "depth", 1, "Expand groups down to this many levels; -1 expands everything")
		cmd.Flags().StringVar(&treeMatch, "match", "", `Only show paths matching this glob, e.g. "**/temp*"`)
		cmd.Flags().BoolVar(&treeTooltips, "tooltips", false, "Show group tooltips")
	}

	mountCmd.Flags().BoolVarP(&umount, "umount", "u", false,
		"Unmount the mountpoint first if needed. Useful for debuggers that don't exit properly.")

	rootCmd.AddCommand(treeCmd, inspectCmd, mountCmd)
}

// loadConfig builds the session config from --config with the command line
// flags that were set explicitly layered on top
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewDefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = config.NewConfigFromFile(configPath); err != nil {
			return nil, err
		}
	}

	override := &config.ConfigOverride{}
	flags := cmd.Flags()
	if flags.Changed("file") {
		override.FilePath = &filePath
	}
	if flags.Changed("mode") {
		override.Mode = &openMode
	}
	if flags.Changed("type") {
		override.StoreType = &storeType
	}
	if flags.Changed("verbose") || configPath == "" {
		override.LogLvl = &verbose
	}
	if err := cfg.Merge(override); err != nil {
		return nil, err
	}
	util.InitializeLogger(cfg.LogLvl)
	return cfg, nil
}

func openBrowser(cmd *cobra.Command) (*browser.Browser, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return browser.Open(cfg)
}

func runTree(cmd *cobra.Command, _ []string) error {
	b, err := openBrowser(cmd)
	if err != nil {
		return err
	}
	defer b.Close()

	// Walk only materializes; Print renders whatever got expanded
	visit := func(h5browse.NodeInfo, int) error { return nil }
	if err := b.Walk(cmd.Context(), treeDepth, visit); err != nil {
		return err
	}
	return b.Print(cmd.OutOrStdout(), tree.PrintOptions{Match: treeMatch, Tooltips: treeTooltips})
}

func runInspect(cmd *cobra.Command, args []string) error {
	b, err := openBrowser(cmd)
	if err != nil {
		return err
	}
	defer b.Close()

	d, err := b.InspectPath(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(d)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}

func runMount(cmd *cobra.Command, args []string) error {
	mnt := args[0]
	if umount {
		// ignore the error if it was not mounted
		_ = exec.Command("fusermount", "-u", mnt).Run()
	}

	b, err := openBrowser(cmd)
	if err != nil {
		return err
	}
	defer b.Close()
	logger := util.GetLogger("main")

	if err := b.Mount(mnt); err != nil {
		return fmt.Errorf("failed to mount filesystem: %w", err)
	}
	logger.Info().Str("mountpoint", mnt).Str("file", b.Config().FilePath).Msg("Filesystem mounted successfully")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()
	unmounted := make(chan struct{})
	go func() {
		b.Wait()
		close(unmounted)
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("Received signal, unmounting filesystem")
		if err := b.Unmount(); err != nil {
			logger.Error().Err(err).Msg("Failed to unmount filesystem")
			return err
		}
		logger.Info().Msg("Filesystem unmounted successfully")
	case <-unmounted:
		logger.Info().Msg("Filesystem was unmounted externally")
	}
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
