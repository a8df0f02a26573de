package ui

import (
	"fmt"
	"io"
	"sync"

	"github.com/PBH-BTN/pbh-adapter-deluge/internal/plugin"
	"go.uber.org/zap"
)

// Preferences is a terminal preferences surface. Every mounted page gets its
// own TableView writing to out.
type Preferences struct {
	out io.Writer

	mu    sync.Mutex
	pages []plugin.Page
}

func NewPreferences(out io.Writer) *Preferences {
	return &Preferences{out: out}
}

func (p *Preferences) AddPage(page plugin.Page) plugin.Page {
	page.Attach(NewTableView(p.out))

	p.mu.Lock()
	p.pages = append(p.pages, page)
	p.mu.Unlock()

	zap.L().Debug("Preferences page added", zap.String("title", page.Title()))
	return page
}

func (p *Preferences) RemovePage(page plugin.Page) {
	p.mu.Lock()
	for i, existing := range p.pages {
		if existing == page {
			p.pages = append(p.pages[:i], p.pages[i+1:]...)
			break
		}
	}
	p.mu.Unlock()

	page.Detach()
	zap.L().Debug("Preferences page removed", zap.String("title", page.Title()))
}

// Page returns the mounted page with title, or nil.
func (p *Preferences) Page(title string) plugin.Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, page := range p.pages {
		if page.Title() == title {
			return page
		}
	}
	return nil
}

func (p *Preferences) Titles() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	titles := make([]string, len(p.pages))
	for i, page := range p.pages {
		titles[i] = page.Title()
	}
	return titles
}

// Show lays out the page with title, which draws it.
func (p *Preferences) Show(title string) error {
	page := p.Page(title)
	if page == nil {
		return fmt.Errorf("no preferences page %q", title)
	}

	page.Layout()
	return nil
}

// Host exposes a Preferences to the plugin manager.
type Host struct {
	Prefs *Preferences
}

func (h Host) Preferences() plugin.Preferences {
	return h.Prefs
}
