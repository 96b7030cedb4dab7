package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	humanize "github.com/dustin/go-humanize"
	"github.com/karrick/godirwalk"
	"github.com/lkarlslund/strpool"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Longest input line the intern command accepts
const maxLineLength = 16 << 20

// CLIOptions are the settings shared by all commands after flags, environment
// and config file have been merged by viper
type CLIOptions struct {
	SetCapacity    int
	LoadFactor     float64
	CellarRatio    float64
	BufferCapacity int
	Hash           string
	MemoryLimit    string

	JSONOutputEnabled bool

	// Verbosity 0 only logs warnings, 1 adds info and extended stats, 2 logs every
	// rehash and buffer growth
	Verbosity int
}

func (c CLIOptions) logLevel() slog.Level {
	switch {
	case c.Verbosity > 1:
		return slog.LevelDebug
	case c.Verbosity == 1:
		return slog.LevelInfo
	}
	return slog.LevelWarn
}

// ToOptions converts the CLI settings into pool options
func (c CLIOptions) ToOptions(logger *strpool.Logger) ([]strpool.Option, error) {
	hash, err := strpool.HashFuncByName(c.Hash)
	if err != nil {
		return nil, err
	}
	opts := []strpool.Option{
		strpool.WithSetCapacity(c.SetCapacity),
		strpool.WithLoadFactor(c.LoadFactor),
		strpool.WithCellarRatio(c.CellarRatio),
		strpool.WithBufferCapacity(c.BufferCapacity),
		strpool.WithHashFunc(hash),
		strpool.WithLogger(logger),
	}
	if c.MemoryLimit != "" {
		limit, err := humanize.ParseBytes(c.MemoryLimit)
		if err != nil {
			return nil, fmt.Errorf("memory-limit %q: %w", c.MemoryLimit, err)
		}
		opts = append(opts, strpool.WithMemoryBudget(strpool.NewMemoryBudget(int64(limit))))
	}
	return opts, nil
}

type app struct {
	v       *viper.Viper
	cfgFile string
	co      CLIOptions
	logger  *strpool.Logger
}

// NewRootCmd builds the strpool command tree. Each call gets its own viper instance.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "strpool",
		Short: "Intern strings into a compact pool and report the savings",
		Long: `strpool stores every distinct string once in a single growable buffer,
indexed by a coalesced hash set, and reports how much memory deduplication saves.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.initConfig,
	}

	flg := rootCmd.PersistentFlags()
	flg.StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.strpool.yaml)")
	flg.Int("set-capacity", strpool.DefaultSetCapacity, "Initial number of set slots")
	flg.Float64("load-factor", strpool.DefaultLoadFactor, "Occupancy above which the set doubles")
	flg.Float64("cellar-ratio", strpool.DefaultCellarRatio, "Fraction of slots reserved as cellar")
	flg.Int("buffer-capacity", strpool.DefaultBufferCapacity, "Initial buffer size in bytes")
	flg.String("hash", "xxhash", "Hash function: xxhash, xxhash64 or djb2")
	flg.String("memory-limit", "", "Cap on pool storage, e.g. 64MiB (default unlimited)")
	flg.Bool("json", false, "Output results as JSON")
	flg.CountP("verbose", "v", "``Increase verbosity level (up to 2 times)")
	flg.SortFlags = false

	rootCmd.AddCommand(a.internCmd(), a.walkCmd())
	return rootCmd
}

// Execute runs the root command. This is called by main.main().
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// initConfig reads in config file and ENV variables, then merges them with the flags
func (a *app) initConfig(cmd *cobra.Command, _ []string) error {
	v := a.v
	if a.cfgFile != "" {
		// Use config file from the flag.
		v.SetConfigFile(a.cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			return err
		}

		// Search config in home directory with name ".strpool" (without extension).
		v.AddConfigPath(home)
		v.SetConfigName(".strpool")
	}

	v.SetEnvPrefix("strpool")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv() // read in environment variables that match

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if a.cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("reading config: %w", err)
		}
	}

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" || bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(f.Name, f)
	})
	if bindErr != nil {
		return bindErr
	}

	a.co = CLIOptions{
		SetCapacity:       v.GetInt("set-capacity"),
		LoadFactor:        v.GetFloat64("load-factor"),
		CellarRatio:       v.GetFloat64("cellar-ratio"),
		BufferCapacity:    v.GetInt("buffer-capacity"),
		Hash:              v.GetString("hash"),
		MemoryLimit:       v.GetString("memory-limit"),
		JSONOutputEnabled: v.GetBool("json"),
		Verbosity:         v.GetInt("verbose"),
	}
	a.logger = strpool.NewLogger(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: a.co.logLevel(),
	}))
	if used := v.ConfigFileUsed(); used != "" && a.co.Verbosity > 0 {
		a.logger.Info("using config file", "path", used)
	}
	return nil
}

// Report is the result of one run over one pool
type Report struct {
	Name        string             `json:"name,omitempty"`
	Inputs      int64              `json:"inputs"`
	InputBytes  uint64             `json:"input_bytes"`
	Distinct    int                `json:"distinct"`
	MemoryUsage int                `json:"memory_usage"`
	Statistics  strpool.Statistics `json:"statistics"`
}

func (a *app) internCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "intern [FILE...]",
		Short: "Intern every line of the given files (or stdin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := a.co.ToOptions(a.logger.WithPool("lines"))
			if err != nil {
				return err
			}
			p, err := strpool.New(opts...)
			if err != nil {
				return err
			}
			defer p.Close()

			r := Report{}
			if len(args) == 0 {
				err = a.internLines(cmd.Context(), p, cmd.InOrStdin(), &r)
			}
			for _, name := range args {
				if err != nil {
					break
				}
				err = a.internFile(cmd.Context(), p, name, &r)
			}
			if err != nil {
				return err
			}

			r.Distinct = p.Size()
			r.MemoryUsage = p.MemoryUsage()
			r.Statistics = p.Stats()
			return a.output(cmd.OutOrStdout(), []Report{r})
		},
	}
}

func (a *app) internFile(ctx context.Context, p *strpool.Pool, name string, r *Report) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()
	return a.internLines(ctx, p, f, r)
}

func (a *app) internLines(ctx context.Context, p *strpool.Pool, in io.Reader, r *Report) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	for scanner.Scan() {
		line := scanner.Bytes()
		if _, err := p.InternBytes(line); err != nil {
			a.logger.LogIntern(ctx, len(line), err)
			return err
		}
		r.Inputs++
		r.InputBytes += uint64(len(line))
	}
	return scanner.Err()
}

// Pools used by the walk command, one per path component
var walkPools = []string{"folder", "basename", "extension"}

func (a *app) walkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "walk DIR...",
		Short: "Intern folder, base name and extension of every file below DIR",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := a.co.ToOptions(a.logger)
			if err != nil {
				return err
			}
			reg := strpool.NewRegistry(opts...)
			defer reg.Flush()

			reports := make(map[string]*Report, len(walkPools))
			pools := make([]*strpool.SyncPool, len(walkPools))
			for i, name := range walkPools {
				if pools[i], err = reg.Pool(name); err != nil {
					return err
				}
				reports[name] = &Report{Name: name}
			}

			for _, dir := range args {
				err := godirwalk.Walk(dir, &godirwalk.Options{
					Unsorted: true,
					Callback: func(osPathname string, de *godirwalk.Dirent) error {
						if de.IsDir() {
							return nil
						}
						extension := filepath.Ext(osPathname)
						basename := filepath.Base(osPathname)
						parts := []string{
							filepath.Dir(osPathname),
							basename[:len(basename)-len(extension)],
							extension,
						}
						for i, s := range parts {
							if _, err := pools[i].S(s); err != nil {
								a.logger.LogIntern(cmd.Context(), len(s), err)
								return err
							}
							r := reports[walkPools[i]]
							r.Inputs++
							r.InputBytes += uint64(len(s))
						}
						return nil
					},
					ErrorCallback: func(osPathname string, err error) godirwalk.ErrorAction {
						if osPathname == dir {
							return godirwalk.Halt
						}
						a.logger.Warn("skipping", "path", osPathname, "error", err)
						return godirwalk.SkipNode
					},
				})
				if err != nil {
					return err
				}
			}

			stats := reg.Statistics()
			out := make([]Report, 0, len(walkPools))
			for i, name := range walkPools {
				r := reports[name]
				r.Distinct = pools[i].Size()
				r.MemoryUsage = pools[i].MemoryUsage()
				r.Statistics = stats[name]
				out = append(out, *r)
			}
			return a.output(cmd.OutOrStdout(), out)
		},
	}
}

func (a *app) output(w io.Writer, reports []Report) error {
	if a.co.JSONOutputEnabled {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}
	for _, r := range reports {
		if r.Name != "" {
			fmt.Fprintf(w, "[%s]\n", r.Name)
		}
		fmt.Fprintf(w, "Strings processed:  %s\n", humanize.Comma(r.Inputs))
		fmt.Fprintf(w, "Distinct strings:   %s\n", humanize.Comma(int64(r.Distinct)))
		fmt.Fprintf(w, "Input bytes:        %s\n", humanize.Bytes(r.InputBytes))
		fmt.Fprintf(w, "Pool memory:        %s\n", humanize.Bytes(uint64(r.MemoryUsage)))
		fmt.Fprintf(w, "Bytes saved:        %s\n", humanize.Bytes(uint64(r.Statistics.BytesSaved)))
		if a.co.Verbosity > 0 {
			st := r.Statistics
			fmt.Fprintf(w, "Set capacity:       %d (%d table, %d cellar, %d cellar free)\n",
				st.SetCapacity, st.TableCapacity, st.CellarCapacity, st.CellarFree)
			fmt.Fprintf(w, "Buffer:             %s of %s\n",
				humanize.Bytes(uint64(st.BufferSize)), humanize.Bytes(uint64(st.BufferCapacity)))
			fmt.Fprintf(w, "Rehashes:           %d\n", st.Rehashes)
			fmt.Fprintf(w, "Buffer growths:     %d\n", st.BufferGrowths)
			fmt.Fprintf(w, "Collisions:         %d (%d cellar, %d probed)\n",
				st.Collisions, st.CellarPlacements, st.ProbePlacements)
		}
	}
	return nil
}
