// Package tui is the interactive viewer for run directories written by the
// trace recorder.
package tui

import (
	"fmt"
	"strings"

	"droidpilot/internal/trace"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// PanelID 标识当前活跃面板
// PanelID identifies the active panel
type PanelID int

const (
	PanelPlanner PanelID = iota
	PanelExecutor
	PanelTimeline
	panelCount
)

func (p PanelID) String() string {
	switch p {
	case PanelPlanner:
		return "Planner"
	case PanelExecutor:
		return "Executor"
	case PanelTimeline:
		return "Timeline"
	default:
		return "?"
	}
}

// --- Tea 消息类型 / Tea message types ---

// RunLoadedMsg carries a freshly read run directory.
type RunLoadedMsg struct {
	Run *trace.Run
}

// LoadErrorMsg reports a failed reload.
type LoadErrorMsg struct {
	Err error
}

// App 是 TUI 主模型
// App is the main viewer model
type App struct {
	width  int
	height int

	activePanel PanelID
	views       [panelCount]viewport.Model

	run       *trace.Run
	dir       string
	lastError string

	// 配置 / Config
	theme Theme
	keys  KeyMap
	help  help.Model
}

// NewApp builds a viewer for run. dir is where Reload reads from; it defaults
// to run.Dir.
func NewApp(run *trace.Run) App {
	a := App{
		activePanel: PanelPlanner,
		run:         run,
		theme:       DarkTheme(),
		keys:        DefaultKeyMap(),
		help:        help.New(),
	}
	if run != nil {
		a.dir = run.Dir
	}
	return a
}

func (a App) Init() tea.Cmd {
	return nil
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		view := &a.views[a.activePanel]
		switch {
		case key.Matches(msg, a.keys.Quit):
			return a, tea.Quit
		case key.Matches(msg, a.keys.NextPanel):
			a.activePanel = (a.activePanel + 1) % panelCount
		case key.Matches(msg, a.keys.PrevPanel):
			a.activePanel = (a.activePanel + panelCount - 1) % panelCount
		case key.Matches(msg, a.keys.Reload):
			return a, loadRun(a.dir)
		case key.Matches(msg, a.keys.ScrollUp):
			view.ScrollUp(1)
		case key.Matches(msg, a.keys.ScrollDown):
			view.ScrollDown(1)
		case key.Matches(msg, a.keys.PageUp):
			view.PageUp()
		case key.Matches(msg, a.keys.PageDown):
			view.PageDown()
		case key.Matches(msg, a.keys.Top):
			view.GotoTop()
		case key.Matches(msg, a.keys.Bottom):
			view.GotoBottom()
		}
		return a, nil

	case tea.MouseMsg:
		var cmd tea.Cmd
		a.views[a.activePanel], cmd = a.views[a.activePanel].Update(msg)
		return a, cmd

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.relayout()
		return a, nil

	case RunLoadedMsg:
		a.run = msg.Run
		a.lastError = ""
		a.refresh()
		return a, nil

	case LoadErrorMsg:
		a.lastError = msg.Err.Error()
		return a, nil
	}
	return a, nil
}

func (a App) View() string {
	if a.width == 0 || a.height == 0 {
		return "Initializing..."
	}

	sidebarWidth := a.sidebarWidth()
	mainWidth := a.mainWidth()
	panelHeight := a.panelHeight()

	// 构建各部分 / Build components
	tabs := a.renderTabs(mainWidth)
	panel := lipgloss.NewStyle().Width(mainWidth).Height(panelHeight).Render(a.views[a.activePanel].View())
	statusBar := a.renderStatusBar(a.width)

	main := lipgloss.JoinVertical(lipgloss.Left, tabs, panel)
	if sidebarWidth > 0 {
		sidebar := a.renderSidebar(sidebarWidth, a.height-1)
		main = lipgloss.JoinHorizontal(lipgloss.Top, main, sidebar)
	}
	return lipgloss.JoinVertical(lipgloss.Left, main, statusBar)
}

// --- 内部方法 / Internal methods ---

func (a App) sidebarWidth() int {
	if a.width < 80 {
		return 0
	}
	w := a.width * 30 / 100
	if w < 24 {
		w = 24
	}
	if w > 44 {
		w = 44
	}
	return w
}

func (a App) mainWidth() int {
	w := a.width
	if sw := a.sidebarWidth(); sw > 0 {
		w -= sw + 1 // border
	}
	return w
}

func (a App) panelHeight() int {
	h := a.height - 2 // tabs + status bar
	if h < 3 {
		h = 3
	}
	return h
}

func (a *App) relayout() {
	for i := range a.views {
		a.views[i] = viewport.New(a.mainWidth(), a.panelHeight())
	}
	a.refresh()
}

// refresh re-renders every panel from the current run, keeping scroll
// positions where the content still reaches.
func (a *App) refresh() {
	width := a.mainWidth()
	contents := [panelCount]string{
		PanelPlanner:  plannerContent(a.run, a.theme, width),
		PanelExecutor: executorContent(a.run, a.theme, width),
		PanelTimeline: timelineContent(a.run, a.theme, width),
	}
	for i := range a.views {
		offset := a.views[i].YOffset
		a.views[i].SetContent(contents[i])
		a.views[i].SetYOffset(offset)
	}
}

func loadRun(dir string) tea.Cmd {
	return func() tea.Msg {
		run, err := trace.Load(dir)
		if err != nil {
			return LoadErrorMsg{Err: err}
		}
		return RunLoadedMsg{Run: run}
	}
}

// --- 渲染方法 / Render methods ---

func (a App) renderTabs(width int) string {
	parts := make([]string, 0, panelCount)
	for id := PanelPlanner; id < panelCount; id++ {
		style := a.theme.InactiveTabStyle
		if id == a.activePanel {
			style = a.theme.ActiveTabStyle
		}
		parts = append(parts, style.Render(id.String()))
	}
	return lipgloss.NewStyle().MaxWidth(width).Render(lipgloss.JoinHorizontal(lipgloss.Top, parts...))
}

func (a App) renderSidebar(width, height int) string {
	var parts []string
	parts = append(parts, a.theme.TitleStyle.Render(" droidpilot"))
	parts = append(parts, "")

	if a.run == nil {
		parts = append(parts, a.theme.MutedStyle.Render("  no run loaded"))
	} else {
		meta := a.run.Metadata
		section := func(title string, lines ...string) {
			parts = append(parts, a.theme.TitleStyle.Render(" "+title))
			for _, line := range lines {
				parts = append(parts, "  "+line)
			}
			parts = append(parts, "")
		}
		section("Goal", strings.Split(wrap(meta.Goal, width-4), "\n")...)

		status := meta.FinalStatus
		if status == "" {
			status = "in_progress"
		}
		result := a.theme.StatusStyle(status).Render(status)
		if meta.Success != nil {
			result += fmt.Sprintf(" (success=%t)", *meta.Success)
		}
		statusLines := []string{result}
		if meta.SuccessReason != "" {
			statusLines = append(statusLines, strings.Split(wrap(meta.SuccessReason, width-4), "\n")...)
		}
		section("Status", statusLines...)

		section("Models",
			"planner  "+meta.ModelConfig.PlannerModel,
			"executor "+meta.ModelConfig.ExecutorModel)
		section("Steps",
			fmt.Sprintf("planner  %d", meta.TotalPlannerSteps),
			fmt.Sprintf("executor %d", meta.TotalExecutorSteps))
		section("Screen",
			fmt.Sprintf("%dx%d @ %g", meta.LogicalScreenSize[0], meta.LogicalScreenSize[1], meta.ScaleFactor))

		if n := len(a.run.Planner); n > 0 {
			items := a.run.Planner[n-1].TodoListState
			if len(items) > 0 {
				lines := make([]string, 0, len(items))
				for _, item := range items {
					lines = append(lines, trace.Truncate(todoMarker(item.Status)+" "+item.Content, width-4))
				}
				section("Todo", lines...)
			}
		}
	}
	if a.lastError != "" {
		parts = append(parts, a.theme.ErrorStyle.Render(" "+trace.Truncate(a.lastError, width-2)))
	}

	style := a.theme.SidebarStyle.
		Width(width).
		Height(height)
	return style.Render(strings.Join(parts, "\n"))
}

func (a App) renderStatusBar(width int) string {
	runID := "-"
	if a.run != nil && a.run.Metadata.RunID != "" {
		runID = a.run.Metadata.RunID
	}
	left := fmt.Sprintf(" %s · %s · %3.f%%", runID, a.activePanel, a.views[a.activePanel].ScrollPercent()*100)
	right := a.help.ShortHelpView(a.keys.ShortHelp()) + " "

	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}
	return a.theme.StatusBarStyle.Width(width).Render(left + strings.Repeat(" ", gap) + right)
}

// Run 启动 Bubble Tea TUI
// Run loads dir and starts the viewer.
func Run(dir string) error {
	run, err := trace.Load(dir)
	if err != nil {
		return fmt.Errorf("load run %s: %w", dir, err)
	}
	p := tea.NewProgram(NewApp(run), tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err = p.Run()
	return err
}
