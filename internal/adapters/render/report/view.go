package report

import (
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/livingpark/ppmi-downloader/internal/application"
	"github.com/livingpark/ppmi-downloader/internal/domain"
)

var ErrUnexpectedRenderModel = errors.New("unexpected final bubbletea model type")

// Report is what one command produced. Empty sections are not rendered.
type Report struct {
	Title    string
	Files    []string
	Imaging  *domain.ImagingResult
	Tables   []domain.CatalogEntry
	Criteria []domain.SearchCriterion
	Grid     []application.EndpointHealth
}

type RenderOptions struct {
	// Dir shortens file paths below it.
	Dir string
	// MaxIDs caps how many subject IDs are listed per line.
	MaxIDs int
}

// Render lays the report out section by section in a one-shot bubbletea
// program and returns the final view.
func Render(report Report, opts RenderOptions) (string, error) {
	p := tea.NewProgram(
		newRenderModel(report, opts),
		tea.WithInput(nil),
		tea.WithOutput(io.Discard),
	)

	finalModel, err := p.Run()
	if err != nil {
		return "", err
	}

	rendered, ok := finalModel.(renderModel)
	if !ok {
		return "", ErrUnexpectedRenderModel
	}
	return rendered.View(), nil
}

// sectionMsg asks the model to render the section at that index.
type sectionMsg int

type renderModel struct {
	styles   styles
	title    string
	sections []func() string
	rendered []string
}

func newRenderModel(report Report, opts RenderOptions) renderModel {
	s := newStyles()
	m := renderModel{styles: s, title: report.Title}

	if len(report.Files) > 0 {
		m.sections = append(m.sections, func() string { return renderFiles(report.Files, opts, s) })
	}
	if report.Imaging != nil {
		m.sections = append(m.sections, func() string { return renderImaging(report.Imaging, opts, s) })
	}
	if len(report.Tables) > 0 {
		m.sections = append(m.sections, func() string { return renderTables(report.Tables, s) })
	}
	if len(report.Criteria) > 0 {
		m.sections = append(m.sections, func() string { return renderCriteria(report.Criteria, s) })
	}
	if len(report.Grid) > 0 {
		m.sections = append(m.sections, func() string { return renderGrid(report.Grid, s) })
	}
	return m
}

func (m renderModel) Init() tea.Cmd {
	if len(m.sections) == 0 {
		return tea.Quit
	}
	return renderSection(0)
}

func (m renderModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	i, ok := msg.(sectionMsg)
	if !ok || int(i) >= len(m.sections) {
		return m, nil
	}

	m.rendered = append(m.rendered, m.styles.section.Render(m.sections[i]()))
	if int(i)+1 == len(m.sections) {
		return m, tea.Quit
	}
	return m, renderSection(int(i) + 1)
}

func (m renderModel) View() string {
	lines := []string{m.styles.title.Render(m.title)}
	if len(m.sections) == 0 {
		lines = append(lines, m.styles.empty.Render("Nothing to report."))
	}
	lines = append(lines, m.rendered...)
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderSection(i int) tea.Cmd {
	return func() tea.Msg { return sectionMsg(i) }
}

func renderFiles(files []string, opts RenderOptions, s styles) string {
	parts := []string{s.header.Render(fmt.Sprintf("files: %d", len(files)))}
	for _, file := range files {
		parts = append(parts, s.item.Render(displayPath(file, opts.Dir)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func renderImaging(result *domain.ImagingResult, opts RenderOptions, s styles) string {
	requested := len(result.Covered) + len(result.Missing)
	percent := 0.0
	if requested > 0 {
		percent = 100 * float64(len(result.Covered)) / float64(requested)
	}

	coverage := lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.detail.Render("subjects:"),
		" ",
		renderProgressBar(percent, 24, s),
		" ",
		s.detail.Render(fmt.Sprintf("%d/%d with images", len(result.Covered), requested)),
	)
	parts := []string{coverage}

	if len(result.Missing) > 0 {
		parts = append(parts, s.warning.Render("missing: "+formatIDs(result.Missing, opts.MaxIDs)))
	}
	for _, archive := range result.Archives {
		parts = append(parts, s.item.Render(displayPath(archive, opts.Dir)))
	}
	for _, part := range result.Failed {
		parts = append(parts, s.warning.Render(fmt.Sprintf("part %d failed: %v", part.Index, part.Err)))
	}
	if result.Complete() {
		parts = append(parts, s.ok.Render("complete"))
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func renderTables(tables []domain.CatalogEntry, s styles) string {
	width := 0
	for _, table := range tables {
		width = max(width, len(table.Name))
	}

	parts := []string{s.header.Render(fmt.Sprintf("tables: %d", len(tables)))}
	for _, table := range tables {
		line := s.item.Render(fmt.Sprintf("%-*s", width, table.Name)) + "  " + s.detail.Render(table.CheckboxID)
		if table.RealName != "" && table.RealName != table.Name {
			line += " " + s.header.Render("-> "+table.RealName)
		}
		parts = append(parts, line)
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func renderCriteria(criteria []domain.SearchCriterion, s styles) string {
	width := 0
	for _, criterion := range criteria {
		width = max(width, len(criterion.Name))
	}

	parts := []string{s.header.Render(fmt.Sprintf("search criteria: %d", len(criteria)))}
	for _, criterion := range criteria {
		parts = append(parts, s.item.Render(fmt.Sprintf("%-*s", width, criterion.Name))+"  "+s.detail.Render(criterion.CheckboxID))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func renderGrid(grid []application.EndpointHealth, s styles) string {
	parts := []string{s.header.Render(fmt.Sprintf("endpoints: %d", len(grid)))}
	for _, endpoint := range grid {
		state := s.ok.Render("ok")
		if endpoint.Err != nil {
			state = s.warning.Render("unreachable: " + endpoint.Err.Error())
		}
		parts = append(parts, s.item.Render(endpoint.Address)+" "+state)
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func renderProgressBar(percent float64, width int, s styles) string {
	if width <= 0 {
		return ""
	}

	filled := int(math.Round(float64(width) * clampPercent(percent) / 100))
	filled = min(max(filled, 0), width)

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.barBracket.Render("["),
		s.barFill.Render(strings.Repeat("=", filled)),
		s.barEmpty.Render(strings.Repeat("-", width-filled)),
		s.barBracket.Render("]"),
	)
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func formatIDs(ids []int, limit int) string {
	shown := ids
	if limit > 0 && len(ids) > limit {
		shown = ids[:limit]
	}
	parts := make([]string, 0, len(shown)+1)
	for _, id := range shown {
		parts = append(parts, strconv.Itoa(id))
	}
	if len(shown) < len(ids) {
		parts = append(parts, fmt.Sprintf("(+%d more)", len(ids)-len(shown)))
	}
	return strings.Join(parts, ", ")
}

func displayPath(path, dir string) string {
	if dir == "" {
		return path
	}
	rel, err := filepath.Rel(dir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}
