package console

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

//go:embed templates/page.html
var templateFS embed.FS

var pageTemplate = template.Must(template.New("page.html").Funcs(template.FuncMap{
	"deref": func(id *int) string {
		if id == nil {
			return ""
		}
		return fmt.Sprint(*id)
	},
}).ParseFS(templateFS, "templates/page.html"))

type pageData struct {
	Title         string
	ParsedHeaders []string
	RawHeaders    []string
	Snapshot
}

// RenderPage writes the console page for snap
func RenderPage(w io.Writer, title string, snap Snapshot) error {
	return pageTemplate.Execute(w, pageData{
		Title:         title,
		ParsedHeaders: ParsedHeaders,
		RawHeaders:    RawHeaders,
		Snapshot:      snap,
	})
}

var (
	noticeStyles = map[Level]lipgloss.Style{
		LevelInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		LevelSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		LevelWarning: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		LevelDanger:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	}
	titleStyle  = lipgloss.NewStyle().Bold(true).MarginTop(1)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	linkStyle   = cellStyle.Foreground(lipgloss.Color("39")).Underline(true)
	naStyle     = cellStyle.Foreground(lipgloss.Color("245"))
)

// RenderNotice formats the notice for a terminal
func RenderNotice(n *Notice) string {
	if n == nil {
		return ""
	}
	style, ok := noticeStyles[n.Level]
	if !ok {
		style = lipgloss.NewStyle()
	}
	return style.Render(fmt.Sprintf("[%s] %s", n.Level, n.Text))
}

// RenderTerminal writes both tables as terminal tables. Link cells show their target
// anchor so cross references stay resolvable by eye.
func RenderTerminal(w io.Writer, snap Snapshot) error {
	var b strings.Builder
	if n := RenderNotice(snap.Notice); n != "" {
		b.WriteString(n)
		b.WriteString("\n")
	}
	b.WriteString(titleStyle.Render("Parsed Emails"))
	b.WriteString("\n")
	b.WriteString(terminalTable(ParsedHeaders, snap.ParsedRows).Render())
	b.WriteString("\n")
	b.WriteString(titleStyle.Render("Raw Emails"))
	b.WriteString("\n")
	b.WriteString(terminalTable(RawHeaders, snap.RawRows).Render())
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func terminalTable(headers []string, rows []Row) *table.Table {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...)

	for _, r := range rows {
		cells := make([]string, 0, len(r.Cells))
		for _, c := range r.Cells {
			cells = append(cells, terminalCell(c))
		}
		t.Row(cells...)
	}

	t.StyleFunc(func(row, col int) lipgloss.Style {
		if row == table.HeaderRow {
			return headerStyle
		}
		if row < 0 || row >= len(rows) || col >= len(rows[row].Cells) {
			return cellStyle
		}
		switch rows[row].Cells[col].Kind {
		case CellLink:
			return linkStyle
		case CellPlaceholder:
			return naStyle
		}
		return cellStyle
	})
	return t
}

func terminalCell(c Cell) string {
	switch c.Kind {
	case CellLink:
		return c.Text + " → #" + c.Target
	case CellDelete:
		return fmt.Sprintf("delete %d", c.ID)
	}
	return strings.ReplaceAll(c.Text, "\n", " ")
}
