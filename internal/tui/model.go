package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/zotsweep/zotsweep/internal/reconcile"
)

// bucketFilter selects which classification bucket is shown.
type bucketFilter int

const (
	showAll bucketFilter = iota
	showLinked
	showUnlinked
	showAmbiguous
)

func (b bucketFilter) String() string {
	switch b {
	case showLinked:
		return "linked"
	case showUnlinked:
		return "unlinked"
	case showAmbiguous:
		return "ambiguous"
	default:
		return "all"
	}
}

// Model holds the review TUI state. The classification it displays is
// immutable; the TUI is strictly read-only on the filesystem.
type Model struct {
	root   string
	result *reconcile.Result

	rows         []reconcile.Classified
	cursor       int
	offset       int
	bucket       bucketFilter
	width        int
	height       int
	filter       string
	filterActive bool
}

// NewModel creates a review model over one classification result.
func NewModel(root string, result *reconcile.Result) *Model {
	m := &Model{
		root:   root,
		result: result,
		bucket: showUnlinked,
	}
	m.applyFilter()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

func (m *Model) helpLine() string {
	if m.filterActive {
		return "Type to filter | Enter: apply | Esc: clear | q: quit"
	}
	return "↑/↓ move | u/l/a/t: bucket | /: filter | q: quit"
}

func (m *Model) applyFilter() {
	m.rows = m.rows[:0]
	needle := strings.ToLower(m.filter)
	for _, f := range m.result.Files {
		switch m.bucket {
		case showLinked:
			if f.Class != reconcile.Linked {
				continue
			}
		case showUnlinked:
			if f.Class != reconcile.Unlinked {
				continue
			}
		case showAmbiguous:
			if f.Class != reconcile.Ambiguous {
				continue
			}
		}
		if needle != "" && !strings.Contains(strings.ToLower(f.File.Path), needle) {
			continue
		}
		m.rows = append(m.rows, f)
	}
	m.cursor = 0
	m.offset = 0
}

func (m *Model) counts() (linked, unlinked, ambiguous int64) {
	for _, f := range m.result.Files {
		switch f.Class {
		case reconcile.Linked:
			linked++
		case reconcile.Unlinked:
			unlinked++
		default:
			ambiguous++
		}
	}
	return
}
