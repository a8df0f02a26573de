package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/PBH-BTN/pbh-adapter-deluge/internal/panel"
	"go.uber.org/zap"
)

var errQuit = errors.New("quit")

const helpText = `commands:
  refresh            click "Update Block list"
  edit <row> <ip>    change the IP cell of a row (local only)
  show               redraw the page
  help               this text
  quit               leave
`

// LineReader yields one input line per call.
type LineReader interface {
	Readline() (string, error)
}

// Console drives the blocklist page from typed commands.
type Console struct {
	prefs *Preferences
	out   io.Writer
}

func NewConsole(prefs *Preferences, out io.Writer) *Console {
	return &Console{prefs: prefs, out: out}
}

// Run reads commands until quit, EOF or ctx is done.
func (c *Console) Run(ctx context.Context, in LineReader) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := in.Readline()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if err := c.Exec(line); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
	}
}

func (c *Console) page() (*panel.Panel, error) {
	page, ok := c.prefs.Page(panel.PageTitle).(*panel.Panel)
	if !ok || page == nil {
		return nil, fmt.Errorf("page %q is not mounted", panel.PageTitle)
	}
	return page, nil
}

// Exec runs a single command line.
func (c *Console) Exec(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	switch strings.ToLower(fields[0]) {
	case "refresh", "r":
		p, err := c.page()
		if err != nil {
			return err
		}
		req := p.Refresh()
		zap.L().Debug("Manual refresh requested", zap.Uint64("generation", req.Generation))
		return nil
	case "edit", "e":
		if len(fields) != 3 {
			return errors.New("usage: edit <row> <ip>")
		}
		row, err := strconv.Atoi(fields[1])
		if err != nil {
			return fmt.Errorf("invalid row %q", fields[1])
		}
		p, err := c.page()
		if err != nil {
			return err
		}
		return p.Edit(row, fields[2])
	case "show", "s":
		return c.prefs.Show(panel.PageTitle)
	case "help", "h", "?":
		_, err := io.WriteString(c.out, helpText)
		return err
	case "quit", "exit", "q":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q, try help", fields[0])
	}
}
