package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Yates-Labs/vecview/internal/catalog"
	"github.com/Yates-Labs/vecview/internal/console"
)

// Console is the part of console.Console the browser drives.
type Console interface {
	ListCollections(ctx context.Context) ([]string, error)
	RefreshFiles(ctx context.Context, force bool) ([]string, catalog.Summary, error)
	Filenames() []string
	CollectionsByFilename(filename string) []string
	ViewCollection(ctx context.Context, name string) (*console.View, error)
	DeleteFile(ctx context.Context, filename string) (console.DeleteResult, error)
	Progress() catalog.Progress
}

const (
	sidebarWidth = 40
	progressTick = 200 * time.Millisecond
)

type focus int

const (
	focusFiles focus = iota
	focusCollections
	focusContent
)

type tab int

const (
	tabInfo tab = iota
	tabRaw
)

type filesLoadedMsg struct {
	files   []string
	summary catalog.Summary
	err     error
}

type collectionsLoadedMsg struct {
	names []string
	err   error
}

type viewLoadedMsg struct {
	collection string
	view       *console.View
	err        error
}

type deletedMsg struct {
	result console.DeleteResult
	err    error
}

type progressTickMsg struct{}

type fileItem struct {
	name        string
	collections int
}

func (i fileItem) Title() string       { return i.name }
func (i fileItem) Description() string { return fmt.Sprintf("%d collections", i.collections) }
func (i fileItem) FilterValue() string { return i.name }

type collectionItem string

func (i collectionItem) Title() string       { return string(i) }
func (i collectionItem) Description() string { return "" }
func (i collectionItem) FilterValue() string { return string(i) }

// Model is the bubbletea model of the interactive browser.
type Model struct {
	ctx     context.Context
	console Console
	styles  Styles

	files       list.Model
	collections list.Model
	content     viewport.Model

	focus      focus
	tab        tab
	all        bool
	view       *console.View
	confirming string
	loading    bool
	status     string
	failed     bool

	width  int
	height int
}

// NewModel creates a browser over c. The file list loads when the program
// starts.
func NewModel(ctx context.Context, c Console) Model {
	s := DefaultStyles()

	fileDelegate := list.NewDefaultDelegate()
	files := list.New(nil, fileDelegate, sidebarWidth, 10)
	files.Title = "Files"
	files.SetShowHelp(false)
	files.Styles.Title = s.Header

	collDelegate := list.NewDefaultDelegate()
	collDelegate.ShowDescription = false
	collDelegate.SetSpacing(0)
	collections := list.New(nil, collDelegate, sidebarWidth, 6)
	collections.Title = "Collections"
	collections.SetShowHelp(false)
	collections.SetFilteringEnabled(false)
	collections.Styles.Title = s.Header

	return Model{
		ctx:         ctx,
		console:     c,
		styles:      s,
		files:       files,
		collections: collections,
		content:     viewport.New(60, 20),
		loading:     true,
		status:      "loading file list...",
	}
}

// Browse runs the interactive browser until the user quits.
func Browse(ctx context.Context, c Console) error {
	p := tea.NewProgram(NewModel(ctx, c), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadFiles(false), tickProgress())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		return m, nil

	case filesLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.setError(fmt.Sprintf("error loading files: %v", msg.err))
			return m, nil
		}
		m.setStatus(msg.summary.String())
		return m, tea.Batch(m.setFiles(msg.files), m.selectFile())

	case collectionsLoadedMsg:
		if !m.all {
			return m, nil
		}
		if msg.err != nil {
			m.setError(fmt.Sprintf("error listing collections: %v", msg.err))
			return m, nil
		}
		if !m.loading {
			m.setStatus(fmt.Sprintf("%d collections", len(msg.names)))
		}
		return m, m.setCollections(msg.names)

	case viewLoadedMsg:
		if sel := m.selectedCollection(); sel != "" && sel != msg.collection {
			return m, nil
		}
		if msg.err != nil {
			m.view = nil
			m.renderContent()
			m.setError(fmt.Sprintf("error loading %s: %v", msg.collection, msg.err))
			return m, nil
		}
		m.view = msg.view
		m.renderContent()
		return m, nil

	case deletedMsg:
		m.loading = false
		if msg.err != nil {
			m.setError(fmt.Sprintf("error deleting: %v", msg.err))
			return m, nil
		}
		status := fmt.Sprintf("%s: %s", msg.result.Filename, msg.result.Message())
		if len(msg.result.Failed) > 0 {
			m.setError(status)
		} else {
			m.setStatus(status)
		}
		return m, tea.Batch(m.setFiles(m.console.Filenames()), m.selectFile(), m.loadCollections())

	case progressTickMsg:
		if !m.loading {
			return m, nil
		}
		if p := m.console.Progress(); p.Status != "" {
			m.setStatus(p.Status)
		}
		return m, tickProgress()
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.files, cmd = m.files.Update(msg)
	cmds = append(cmds, cmd)
	m.collections, cmd = m.collections.Update(msg)
	cmds = append(cmds, cmd)
	m.content, cmd = m.content.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.confirming != "" {
		switch msg.String() {
		case "y", "Y":
			name := m.confirming
			m.confirming = ""
			m.loading = true
			m.setStatus(fmt.Sprintf("deleting collections of %s...", name))
			return m, m.deleteFile(name)
		case "n", "N", "esc":
			m.confirming = ""
			m.setStatus("delete cancelled")
		case "ctrl+c":
			return m, tea.Quit
		}
		return m, nil
	}

	if m.files.FilterState() == list.Filtering {
		var cmd tea.Cmd
		prev := m.selectedFile()
		m.files, cmd = m.files.Update(msg)
		if m.selectedFile() != prev {
			return m, tea.Batch(cmd, m.selectFile())
		}
		return m, cmd
	}

	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "tab":
		m.focus = (m.focus + 1) % 3
		return m, nil
	case "shift+tab":
		m.focus = (m.focus + 2) % 3
		return m, nil
	case "1":
		m.tab = tabInfo
		m.renderContent()
		return m, nil
	case "2":
		m.tab = tabRaw
		m.renderContent()
		return m, nil
	case "a":
		m.all = !m.all
		if m.all {
			m.collections.Title = "All collections"
			return m, m.loadCollections()
		}
		m.collections.Title = "Collections"
		return m, m.selectFile()
	case "r":
		if m.loading {
			return m, nil
		}
		m.loading = true
		m.setStatus("refreshing file list...")
		return m, tea.Batch(m.loadFiles(true), m.loadCollections(), tickProgress())
	case "d":
		if m.loading {
			return m, nil
		}
		name := m.selectedFile()
		if name == "" {
			m.setError(console.ErrNoFilename.Error())
			return m, nil
		}
		m.confirming = name
		m.setStatus(fmt.Sprintf("delete all %d collections of %s? (y/n)",
			len(m.console.CollectionsByFilename(name)), name))
		return m, nil
	}

	var cmd tea.Cmd
	switch m.focus {
	case focusFiles:
		prev := m.selectedFile()
		m.files, cmd = m.files.Update(msg)
		if m.selectedFile() != prev {
			return m, tea.Batch(cmd, m.selectFile())
		}
	case focusCollections:
		prev := m.selectedCollection()
		m.collections, cmd = m.collections.Update(msg)
		if name := m.selectedCollection(); name != "" && name != prev {
			return m, tea.Batch(cmd, m.loadView(name))
		}
	case focusContent:
		m.content, cmd = m.content.Update(msg)
	}
	return m, cmd
}

// View implements tea.Model.
func (m Model) View() string {
	panel := func(active bool) lipgloss.Style {
		if active {
			return m.styles.ActivePanel
		}
		return m.styles.Panel
	}

	sidebar := lipgloss.JoinVertical(lipgloss.Left,
		panel(m.focus == focusFiles).Render(m.files.View()),
		panel(m.focus == focusCollections).Render(m.collections.View()),
	)
	body := panel(m.focus == focusContent).Render(
		lipgloss.JoinVertical(lipgloss.Left, m.tabsView(), m.content.View()),
	)

	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top, sidebar, body),
		m.statusView(),
		m.styles.Dim.Render(" tab focus • 1 info • 2 raw • a all collections • / filter • r refresh • d delete • q quit"),
	)
}

// Status returns the current status line text.
func (m Model) Status() string {
	return m.status
}

func (m Model) tabsView() string {
	info, raw := m.styles.Tab, m.styles.Tab
	if m.tab == tabInfo {
		info = m.styles.ActiveTab
	} else {
		raw = m.styles.ActiveTab
	}
	title := "no collection selected"
	if m.view != nil {
		title = m.view.Collection
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		info.Render("Info"),
		raw.Render("Raw content"),
		m.styles.Dim.Render("  "+title),
	)
}

func (m Model) statusView() string {
	if m.failed {
		return m.styles.Error.Padding(0, 1).Render(m.status)
	}
	return m.styles.Status.Render(m.status)
}

func (m *Model) resize() {
	// Two rows for status and help, two per panel for borders.
	avail := max(m.height-2, 8)
	filesHeight := (avail-4)*2/3
	m.files.SetSize(sidebarWidth, filesHeight)
	m.collections.SetSize(sidebarWidth, avail-4-filesHeight)

	m.content.Width = max(m.width-sidebarWidth-4, 20)
	m.content.Height = max(avail-3, 3)
}

func (m *Model) setStatus(s string) {
	m.status = s
	m.failed = false
}

func (m *Model) setError(s string) {
	m.status = s
	m.failed = true
}

func (m *Model) setFiles(names []string) tea.Cmd {
	items := make([]list.Item, len(names))
	for i, name := range names {
		items[i] = fileItem{name: name, collections: len(m.console.CollectionsByFilename(name))}
	}
	idx := m.files.Index()
	cmd := m.files.SetItems(items)
	if len(items) > 0 {
		m.files.Select(min(idx, len(items)-1))
	}
	return cmd
}

// selectFile shows the collections of the selected file and loads the first.
// It leaves the list alone while every collection is shown.
func (m *Model) selectFile() tea.Cmd {
	if m.all {
		return nil
	}
	name := m.selectedFile()
	var colls []string
	if name != "" {
		colls = m.console.CollectionsByFilename(name)
	}
	return m.setCollections(colls)
}

func (m *Model) setCollections(colls []string) tea.Cmd {
	items := make([]list.Item, len(colls))
	for i, c := range colls {
		items[i] = collectionItem(c)
	}
	cmd := m.collections.SetItems(items)
	m.collections.Select(0)

	if len(colls) == 0 {
		m.view = nil
		m.renderContent()
		return cmd
	}
	return tea.Batch(cmd, m.loadView(colls[0]))
}

func (m Model) selectedFile() string {
	if item, ok := m.files.SelectedItem().(fileItem); ok {
		return item.name
	}
	return ""
}

func (m Model) selectedCollection() string {
	if item, ok := m.collections.SelectedItem().(collectionItem); ok {
		return string(item)
	}
	return ""
}

func (m *Model) renderContent() {
	switch {
	case m.view == nil:
		m.content.SetContent(m.styles.Dim.Render("no collection selected"))
	case m.tab == tabRaw:
		m.content.SetContent(m.view.Raw)
	default:
		m.content.SetContent(m.view.Text)
	}
	m.content.GotoTop()
}

func (m Model) loadFiles(force bool) tea.Cmd {
	return func() tea.Msg {
		files, summary, err := m.console.RefreshFiles(m.ctx, force)
		return filesLoadedMsg{files: files, summary: summary, err: err}
	}
}

// loadCollections lists every collection when the browser shows them all.
func (m Model) loadCollections() tea.Cmd {
	if !m.all {
		return nil
	}
	return func() tea.Msg {
		names, err := m.console.ListCollections(m.ctx)
		return collectionsLoadedMsg{names: names, err: err}
	}
}

func (m Model) loadView(collection string) tea.Cmd {
	return func() tea.Msg {
		view, err := m.console.ViewCollection(m.ctx, collection)
		return viewLoadedMsg{collection: collection, view: view, err: err}
	}
}

func (m Model) deleteFile(filename string) tea.Cmd {
	return func() tea.Msg {
		result, err := m.console.DeleteFile(m.ctx, filename)
		return deletedMsg{result: result, err: err}
	}
}

func tickProgress() tea.Cmd {
	return tea.Tick(progressTick, func(time.Time) tea.Msg {
		return progressTickMsg{}
	})
}
