package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"ytcatalog/internal/catalog"
	"ytcatalog/internal/log"
	"ytcatalog/internal/shell"
)

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "ytcatalog",
		Short: "Keep a catalog of YouTube videos",
		Long: "ytcatalog keeps a list of YouTube videos (title, duration, URL) in a JSON file.\n" +
			"Run without a subcommand for the interactive menu.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), flags, cmd.ErrOrStderr(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			sh := shell.New(a.session, cmd.InOrStdin(), cmd.OutOrStdout(),
				shell.WithLogger(log.WithComponent("shell")))
			return sh.Run(cmd.Context())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (default: ./ytcatalog.yaml or ~/.config/ytcatalog/ytcatalog.yaml)")
	pf.StringVar(&flags.catalogPath, "catalog", "", "catalog file (default: youtube.txt)")
	pf.StringVar(&flags.backend, "backend", "", "metadata backend: ytdlp, native or api")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&flags.logFormat, "log-format", "", "log format: auto, console or json")

	root.AddCommand(
		newListCmd(flags),
		newAddCmd(flags),
		newUpdateCmd(flags),
		newDeleteCmd(flags),
		newDownloadCmd(flags),
		newImportCmd(flags),
		newConfigCmd(flags),
	)
	return root
}

// runOnce opens the catalog, runs fn under an interrupt-aware context and
// closes the catalog again.
func runOnce(cmd *cobra.Command, flags *globalFlags, fn func(ctx context.Context, a *app, out io.Writer) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := openApp(ctx, flags, cmd.ErrOrStderr(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a, cmd.OutOrStdout())
}

func parsePosition(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid position %q: must be a number", arg)
	}
	return n, nil
}

func newListCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all videos",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd, flags, func(_ context.Context, a *app, out io.Writer) error {
				listings := a.session.List()
				if len(listings) == 0 {
					fmt.Fprintln(out, "No videos in the catalog.")
					return nil
				}
				for _, l := range listings {
					fmt.Fprintln(out, shell.FormatListing(l))
				}
				return nil
			})
		},
	}
}

func newAddCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "add <url>",
		Short: "Add a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, flags, func(ctx context.Context, a *app, out io.Writer) error {
				l, err := a.session.Add(ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to fetch video details: %w", err)
				}
				fmt.Fprintf(out, "Added: %s (%s)\n", l.Video.Name, l.Video.Time)
				return nil
			})
		},
	}
}

func newUpdateCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "update <position> <url>",
		Short: "Replace the video at a position",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			position, err := parsePosition(args[0])
			if err != nil {
				return err
			}
			return runOnce(cmd, flags, func(ctx context.Context, a *app, out io.Writer) error {
				l, err := a.session.Update(ctx, position, args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Updated: %s (%s)\n", l.Video.Name, l.Video.Time)
				return nil
			})
		},
	}
}

func newDeleteCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <position>",
		Aliases: []string{"rm"},
		Short:   "Delete the video at a position",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			position, err := parsePosition(args[0])
			if err != nil {
				return err
			}
			return runOnce(cmd, flags, func(ctx context.Context, a *app, out io.Writer) error {
				v, err := a.session.Delete(ctx, position)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Deleted: %s\n", v.Name)
				return nil
			})
		},
	}
}

func newDownloadCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download <position>",
		Short: "Download the video at a position with yt-dlp",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			position, err := parsePosition(args[0])
			if err != nil {
				return err
			}
			return runOnce(cmd, flags, func(ctx context.Context, a *app, out io.Writer) error {
				l, err := a.session.Get(position)
				if err != nil {
					return err
				}
				result, err := a.session.Download(ctx, position)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Video downloaded from: %s\n", l.Video.URL)
				if result.Path != "" {
					fmt.Fprintf(out, "Saved to %s (%s in %s)\n", result.Path,
						humanize.Bytes(uint64(result.Size)), result.Elapsed.Round(time.Millisecond))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&flags.downloadDir, "dir", "", "output directory (default: downloads)")
	cmd.Flags().StringVarP(&flags.downloadFormat, "format", "f", "", "yt-dlp format selector (default: best)")
	return cmd
}

func newImportCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "import <playlist-url>",
		Aliases: []string{"playlist"},
		Short:   "Append every video of a playlist",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, flags, func(ctx context.Context, a *app, out io.Writer) error {
				result, err := a.session.ImportPlaylist(ctx, args[0])
				if err != nil {
					return err
				}
				printImport(out, result)
				return nil
			})
		},
	}
}

func printImport(out io.Writer, result *catalog.ImportResult) {
	fmt.Fprintf(out, "Processing playlist: %s\n", result.Title)
	for _, l := range result.Added {
		fmt.Fprintln(out, shell.FormatListing(l))
	}
	fmt.Fprintf(out, "Added all videos from playlist: %s (%s added", result.Title, humanize.Comma(int64(len(result.Added))))
	if result.Skipped > 0 {
		fmt.Fprintf(out, ", %d unavailable skipped", result.Skipped)
	}
	if result.Duplicates > 0 {
		fmt.Fprintf(out, ", %d already in catalog", result.Duplicates)
	}
	fmt.Fprintln(out, ")")
}

func newConfigCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			if cfg.APIKey != "" {
				cfg.APIKey = "***"
			}

			out := cmd.OutOrStdout()
			if cfg.Source != "" {
				fmt.Fprintf(out, "# loaded from %s\n", cfg.Source)
			}
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
