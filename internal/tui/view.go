package tui

import (
	"fmt"
	"strings"

	"github.com/zotsweep/zotsweep/internal/pathutil"
	"github.com/zotsweep/zotsweep/internal/reconcile"
)

// View implements tea.Model.
func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("zotsweep - Attachment Review"))
	b.WriteString("\n")

	linked, unlinked, ambiguous := m.counts()
	info := fmt.Sprintf("Root: %s | Linked: %s | Unlinked: %s | Ambiguous: %s | Empty dirs: %s",
		m.root,
		FormatCount(linked),
		FormatCount(unlinked),
		FormatCount(ambiguous),
		FormatCount(int64(len(m.result.EmptyDirs))),
	)
	b.WriteString(statsStyle.Render(info))
	b.WriteString("\n")

	status := fmt.Sprintf("Bucket: %s | Items: %s", m.bucket, FormatCount(int64(len(m.rows))))
	if m.filter != "" {
		status += filterStyle.Render(fmt.Sprintf(" | Filter: %s", m.filter))
	}
	if m.filterActive {
		status += filterStyle.Render("▌")
	}
	b.WriteString(statsStyle.Render(status))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render(fmt.Sprintf("%-10s %10s  %s", "CLASS", "SIZE", "PATH")))
	b.WriteString("\n")

	page := m.pageSize()
	end := m.offset + page
	if end > len(m.rows) {
		end = len(m.rows)
	}
	for i := m.offset; i < end; i++ {
		b.WriteString(m.renderRow(i))
		b.WriteString("\n")
	}
	if len(m.rows) == 0 {
		b.WriteString(statsStyle.Render("  (nothing in this bucket)"))
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render(m.helpLine()))
	return b.String()
}

func (m *Model) renderRow(i int) string {
	row := m.rows[i]

	var classStr string
	switch row.Class {
	case reconcile.Linked:
		classStr = linkedStyle.Render(fmt.Sprintf("%-10s", "linked"))
	case reconcile.Unlinked:
		classStr = unlinkedStyle.Render(fmt.Sprintf("%-10s", "unlinked"))
	default:
		classStr = ambiguousStyle.Render(fmt.Sprintf("%-10s", "ambiguous"))
	}

	pathWidth := m.width - 26
	if pathWidth < 20 {
		pathWidth = 60
	}
	path := truncateMiddle(pathutil.RelativeTo(m.root, row.File.Path), pathWidth)
	if row.Reason != "" {
		path += "  (" + row.Reason + ")"
	}

	line := fmt.Sprintf("%s %s  %s", classStr, sizeStyle.Render(FormatSize(row.File.Size)), path)
	if i == m.cursor {
		return selectedStyle.Render("▶ ") + line
	}
	return "  " + line
}

func truncateMiddle(s string, width int) string {
	if len(s) <= width || width < 5 {
		return s
	}
	half := (width - 3) / 2
	return s[:half] + "..." + s[len(s)-half:]
}
