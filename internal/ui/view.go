package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PBH-BTN/pbh-adapter-deluge/internal/panel"
	"github.com/fatih/color"
)

// TableView draws a panel page as text.
type TableView struct {
	mu  sync.Mutex
	out io.Writer

	title  *color.Color
	header *color.Color
	faint  *color.Color
}

func NewTableView(out io.Writer) *TableView {
	return &TableView{
		out:    out,
		title:  color.New(color.Bold, color.FgCyan),
		header: color.New(color.Bold),
		faint:  color.New(color.Faint),
	}
}

func (v *TableView) Render(vm panel.ViewModel) {
	v.mu.Lock()
	defer v.mu.Unlock()

	var b strings.Builder
	v.title.Fprintf(&b, "== %s ==\n", vm.Title)
	fmt.Fprintf(&b, "[%s]\n", vm.Fieldset)

	headers := make([]string, 0, len(vm.Columns)+1)
	headers = append(headers, fmt.Sprintf("%4s", "#"))
	for _, c := range vm.Columns {
		h := c.Header
		if c.Editable {
			h += "*"
		}
		headers = append(headers, h)
	}
	v.header.Fprintln(&b, strings.Join(headers, "  "))

	if len(vm.Rows) == 0 {
		v.faint.Fprintf(&b, "      %s\n", vm.EmptyText)
	}
	for i, row := range vm.Rows {
		fmt.Fprintf(&b, "%4d  %s\n", i, row.IP)
	}

	fmt.Fprintf(&b, "[ %s ]\n", vm.ButtonText)
	_, _ = io.WriteString(v.out, b.String())
}
