// Package shell implements the interactive seven-action catalog menu.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"ytcatalog/internal/catalog"
	"ytcatalog/internal/storage"
	"ytcatalog/internal/youtube"
)

// Catalog is the set of operations the menu dispatches to.
// *catalog.Manager satisfies it.
type Catalog interface {
	List() []catalog.Listing
	Get(position int) (catalog.Listing, error)
	Add(ctx context.Context, url string) (catalog.Listing, error)
	Update(ctx context.Context, position int, url string) (catalog.Listing, error)
	Delete(ctx context.Context, position int) (storage.Video, error)
	Download(ctx context.Context, position int) (*youtube.DownloadResult, error)
	ImportPlaylist(ctx context.Context, url string) (*catalog.ImportResult, error)
}

// menu lists the actions in display order; the number is the choice.
var menu = []string{
	"List all videos",
	"Add a video",
	"Update previous video",
	"Delete video",
	"Download video",
	"Process playlist",
	"Exit",
}

// Shell reads menu choices from in and writes results to out.
type Shell struct {
	cat    Catalog
	in     *bufio.Scanner
	out    io.Writer
	styles styles
	logger zerolog.Logger

	// opContext derives the context of one operation. The default cancels
	// it on SIGINT so an interrupt abandons only the running operation.
	opContext func(context.Context) (context.Context, context.CancelFunc)
}

// Option configures a Shell.
type Option func(*Shell)

// WithLogger sets the shell logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Shell) { s.logger = l }
}

// WithOperationContext replaces the per-operation context factory.
func WithOperationContext(fn func(context.Context) (context.Context, context.CancelFunc)) Option {
	return func(s *Shell) { s.opContext = fn }
}

// New creates a shell over cat.
func New(cat Catalog, in io.Reader, out io.Writer, opts ...Option) *Shell {
	s := &Shell{
		cat:    cat,
		in:     bufio.NewScanner(in),
		out:    out,
		styles: newStyles(out),
		logger: zerolog.Nop(),
		opContext: func(ctx context.Context) (context.Context, context.CancelFunc) {
			return signal.NotifyContext(ctx, os.Interrupt)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// errExit ends the loop without error.
var errExit = errors.New("exit")

// Run shows the menu until the user exits, input ends or ctx is done.
func (s *Shell) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.printMenu()

		choice, ok := s.prompt("Enter your choice: ")
		if !ok {
			s.println("")
			return s.in.Err()
		}

		err := s.dispatch(ctx, choice)
		if errors.Is(err, errExit) {
			return nil
		}
		if errors.Is(err, io.EOF) {
			s.println("")
			return s.in.Err()
		}
	}
}

func (s *Shell) dispatch(ctx context.Context, choice string) error {
	switch choice {
	case "1":
		s.listAll()
	case "2":
		return s.addVideo(ctx)
	case "3":
		return s.updateVideo(ctx)
	case "4":
		return s.deleteVideo(ctx)
	case "5":
		return s.downloadVideo(ctx)
	case "6":
		return s.processPlaylist(ctx)
	case "7":
		return errExit
	default:
		s.println(s.styles.err.Render("Invalid choice!"))
	}
	return nil
}

func (s *Shell) printMenu() {
	s.println("")
	s.println(s.styles.title.Render("Youtube Manager | Choose an option"))
	for i, item := range menu {
		s.println(fmt.Sprintf("%d. %s", i+1, item))
	}
}

func (s *Shell) listAll() {
	listings := s.cat.List()
	if len(listings) == 0 {
		s.println(s.styles.dim.Render("No videos in the catalog."))
		return
	}
	for _, l := range listings {
		s.println(FormatListing(l))
	}
}

// FormatListing renders one catalog line.
func FormatListing(l catalog.Listing) string {
	return fmt.Sprintf("%d. Name: %s, Duration: %s", l.Position, l.Video.Name, l.Video.Time)
}

func (s *Shell) addVideo(ctx context.Context) error {
	url, ok := s.prompt("Enter YouTube video link: ")
	if !ok {
		return io.EOF
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	l, err := s.cat.Add(opCtx, url)
	if err != nil {
		s.reportFetch("Failed to fetch video details", err)
		return nil
	}
	s.println(s.styles.ok.Render(fmt.Sprintf("Added: %s (%s)", l.Video.Name, l.Video.Time)))
	return nil
}

func (s *Shell) updateVideo(ctx context.Context) error {
	s.listAll()
	target, ok, err := s.promptPosition("Enter video number to update: ")
	if err != nil || !ok {
		return err
	}

	url, more := s.prompt("Enter new YouTube video link: ")
	if !more {
		return io.EOF
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	l, err := s.cat.Update(opCtx, target.Position, url)
	if err != nil {
		if errors.Is(err, catalog.ErrIndexOutOfRange) {
			s.println(s.styles.err.Render("Invalid index selected"))
			return nil
		}
		s.reportFetch("Error", err)
		return nil
	}
	s.println(s.styles.ok.Render(fmt.Sprintf("Updated: %s (%s)", l.Video.Name, l.Video.Time)))
	return nil
}

func (s *Shell) deleteVideo(ctx context.Context) error {
	s.listAll()
	target, ok, err := s.promptPosition("Enter video number to delete: ")
	if err != nil || !ok {
		return err
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	if _, err := s.cat.Delete(opCtx, target.Position); err != nil {
		s.println(s.styles.err.Render("Error: " + err.Error()))
		return nil
	}
	s.println(s.styles.ok.Render("Video deleted successfully."))
	return nil
}

func (s *Shell) downloadVideo(ctx context.Context) error {
	s.listAll()
	target, ok, err := s.promptPosition("Enter video number to download: ")
	if err != nil || !ok {
		return err
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	result, err := s.cat.Download(opCtx, target.Position)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.println(s.styles.dim.Render("Download interrupted."))
			return nil
		}
		s.println(s.styles.err.Render("Error: " + err.Error()))
		return nil
	}
	s.println(s.styles.ok.Render("Video downloaded from: " + target.Video.URL))
	if result.Path != "" {
		s.println(s.styles.dim.Render(fmt.Sprintf("Saved to %s (%s)", result.Path, humanize.Bytes(uint64(result.Size)))))
	}
	return nil
}

func (s *Shell) processPlaylist(ctx context.Context) error {
	url, ok := s.prompt("Enter YouTube playlist link: ")
	if !ok {
		return io.EOF
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	result, err := s.cat.ImportPlaylist(opCtx, url)
	if err != nil {
		if errors.Is(err, youtube.ErrNotAPlaylist) {
			s.println(s.styles.err.Render("Error: Provided URL is not a playlist."))
			return nil
		}
		s.reportFetch("Error", err)
		return nil
	}

	s.println(fmt.Sprintf("Processing playlist: %s", result.Title))
	for _, l := range result.Added {
		s.println(s.styles.dim.Render(FormatListing(l)))
	}
	count := humanize.Comma(int64(len(result.Added)))
	s.println(s.styles.ok.Render(fmt.Sprintf("Added all videos from playlist: %s (%s %s)",
		result.Title, count, plural(len(result.Added), "video", "videos"))))
	if result.Skipped > 0 {
		s.println(s.styles.dim.Render(fmt.Sprintf("Skipped %d unavailable %s.", result.Skipped, plural(result.Skipped, "entry", "entries"))))
	}
	if result.Duplicates > 0 {
		s.println(s.styles.dim.Render(fmt.Sprintf("%d %s already in the catalog.", result.Duplicates, plural(result.Duplicates, "video was", "videos were"))))
	}
	return nil
}

func (s *Shell) reportFetch(prefix string, err error) {
	if errors.Is(err, context.Canceled) {
		s.println(s.styles.dim.Render("Interrupted, catalog unchanged."))
		return
	}
	s.logger.Debug().Err(err).Msg("operation failed")
	s.println(s.styles.err.Render(prefix + ": " + err.Error()))
}

// prompt prints label and reads one trimmed line. ok is false at end of input.
func (s *Shell) prompt(label string) (string, bool) {
	fmt.Fprint(s.out, label)
	if !s.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(s.in.Text()), true
}

// promptPosition reads a position and returns the listing there. A
// non-numeric or out-of-range answer is reported and ok is false; err is
// io.EOF at end of input.
func (s *Shell) promptPosition(label string) (listing catalog.Listing, ok bool, err error) {
	answer, more := s.prompt(label)
	if !more {
		return catalog.Listing{}, false, io.EOF
	}
	n, convErr := strconv.Atoi(answer)
	if convErr != nil {
		s.println(s.styles.err.Render(fmt.Sprintf("Invalid number: %q", answer)))
		return catalog.Listing{}, false, nil
	}
	listing, getErr := s.cat.Get(n)
	if getErr != nil {
		s.println(s.styles.err.Render("Invalid index selected"))
		return catalog.Listing{}, false, nil
	}
	return listing, true, nil
}

func (s *Shell) println(line string) {
	fmt.Fprintln(s.out, line)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

type styles struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	dim   lipgloss.Style
}

// newStyles binds the styles to out so colors are only emitted on terminals.
func newStyles(out io.Writer) styles {
	r := lipgloss.NewRenderer(out)
	return styles{
		title: r.NewStyle().Bold(true).Foreground(lipgloss.Color("62")),
		ok:    r.NewStyle().Foreground(lipgloss.Color("10")),
		err:   r.NewStyle().Foreground(lipgloss.Color("9")),
		dim:   r.NewStyle().Foreground(lipgloss.Color("240")),
	}
}
