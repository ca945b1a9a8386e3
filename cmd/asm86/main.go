// asm86 assembles Intel 8086 assembly source into a flat binary.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/skarsol/asm86/assembler"
	"github.com/skarsol/asm86/diag"
	"github.com/skarsol/asm86/parser"
)

// fileConfig mirrors the optional TOML config file. Explicit flags win over
// file values.
type fileConfig struct {
	Origin       string   `toml:"origin"`
	IncludePaths []string `toml:"include_paths"`
	Warnings     *bool    `toml:"warnings"`
}

type options struct {
	output       string
	origin       string
	includePaths []string
	listing      bool
	symbols      bool
	noWarnings   bool
	configPath   string
	verbose      bool
}

func main() {
	opts := &options{}

	root := &cobra.Command{
		Use:           "asm86 [flags] <input.asm>",
		Short:         "Intel 8086 assembler producing flat binaries",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Flags(), opts, args[0])
		},
	}

	flags := root.Flags()
	flags.StringVarP(&opts.output, "output", "o", "", "output binary path (default: input stem + .bin)")
	flags.StringVar(&opts.origin, "org", "", "load origin address (e.g. 0x7C00)")
	flags.StringArrayVarP(&opts.includePaths, "include", "I", nil, "add an %include search directory (repeatable)")
	flags.BoolVarP(&opts.listing, "listing", "l", false, "print the listing to stdout")
	flags.BoolVarP(&opts.symbols, "symbols", "s", false, "print the symbol map to stdout")
	flags.BoolVarP(&opts.noWarnings, "no-warnings", "W", false, "suppress warnings")
	flags.StringVar(&opts.configPath, "config", "", "TOML config file (default: $HOME/.asm86.toml if present)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	if err := root.Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}

func run(flags *pflag.FlagSet, opts *options, input string) error {
	logrus.SetOutput(os.Stderr)
	if opts.verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}

	asm := assembler.New()

	// File config first, explicit flags on top.
	if cfg != nil {
		if cfg.Origin != "" && !flags.Changed("org") {
			opts.origin = cfg.Origin
		}
		if len(cfg.IncludePaths) > 0 {
			opts.includePaths = append(cfg.IncludePaths, opts.includePaths...)
		}
		if cfg.Warnings != nil && !flags.Changed("no-warnings") {
			opts.noWarnings = !*cfg.Warnings
		}
	}

	if opts.origin != "" {
		origin, err := parser.ParseNumber(opts.origin)
		if err != nil || origin < 0 {
			return fmt.Errorf("invalid origin %q", opts.origin)
		}
		asm.SetOrigin(uint64(origin))
	}
	asm.SetIncludePaths(opts.includePaths)
	asm.EnableWarnings(!opts.noWarnings)

	result := asm.AssembleFile(input)

	for _, rec := range result.Diagnostics {
		if rec.Severity == diag.Warning {
			logrus.Warn(rec.Format())
		} else {
			fmt.Fprintln(os.Stderr, rec.Format())
		}
	}

	if opts.listing {
		fmt.Print(result.ListingText())
	}
	if opts.symbols {
		printSymbols(result.Symbols)
	}

	if !result.Success {
		return fmt.Errorf("assembly of %s failed", input)
	}

	output := opts.output
	if output == "" {
		output = strings.TrimSuffix(input, filepath.Ext(input)) + ".bin"
	}
	if err := result.WriteBinary(output); err != nil {
		return fmt.Errorf("writing %s: %w", output, err)
	}

	logrus.Debugf("wrote %d bytes to %s (origin %#04x)",
		len(result.Binary), output, result.Origin)
	return nil
}

func loadConfig(path string) (*fileConfig, error) {
	explicit := path != ""
	if !explicit {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, nil
		}
		path = filepath.Join(home, ".asm86.toml")
	}

	var cfg fileConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if !explicit && os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	logrus.Debugf("loaded config from %s", path)
	return &cfg, nil
}

func printSymbols(symbols map[string]uint64) {
	names := make([]string, 0, len(symbols))
	for name := range symbols {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%04X  %s\n", symbols[name], name)
	}
}
