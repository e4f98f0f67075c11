package console

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// App is one SSH session's terminal UI: a group-status table and a
// pipeline-health panel, with keybindings invoking the ControlSurface.
type App struct {
	tv     *tview.Application
	cs     ControlSurface
	table  *tview.Table
	health *tview.TextView

	onDisconnect func()
}

// NewApp builds an App bound to screen (one per SSH session) and cs (the
// shared engine control surface).
func NewApp(screen tcell.Screen, cs ControlSurface) *App {
	a := &App{cs: cs}

	a.table = tview.NewTable().SetBorders(false).SetSelectable(true, false)
	a.table.SetBorder(true).SetTitle(" Polling Groups (s=start x=stop r=restart t=trigger q=quit) ")

	a.health = tview.NewTextView().SetDynamicColors(false)
	a.health.SetBorder(true).SetTitle(" Pipeline Health ")

	flex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.table, 0, 3, true).
		AddItem(a.health, 6, 1, false)

	app := tview.NewApplication()
	if screen != nil {
		app.SetScreen(screen)
	}
	app.SetRoot(flex, true).SetFocus(a.table)
	app.SetInputCapture(a.handleKey)
	a.tv = app

	a.refresh()
	return a
}

// SetOnDisconnect registers a callback invoked when the operator quits.
func (a *App) SetOnDisconnect(fn func()) { a.onDisconnect = fn }

// Run blocks until the session ends.
func (a *App) Run() error { return a.tv.Run() }

// Shutdown stops the underlying tview application.
func (a *App) Shutdown() { a.tv.Stop() }

func (a *App) handleKey(event *tcell.EventKey) *tcell.EventKey {
	row, _ := a.table.GetSelection()
	groupID := a.groupIDAt(row)

	switch event.Rune() {
	case 'q', 'Q':
		if a.onDisconnect != nil {
			a.onDisconnect()
		}
		a.tv.Stop()
		return nil
	case 's', 'S':
		if groupID != "" {
			if cfg, ok := a.cs.Config(groupID); ok {
				a.cs.StartGroup(cfg)
			}
		}
		a.refresh()
		return nil
	case 'x', 'X':
		if groupID != "" {
			a.cs.StopGroup(groupID)
		}
		a.refresh()
		return nil
	case 'r', 'R':
		if groupID != "" {
			RestartGroup(a.cs, groupID)
		}
		a.refresh()
		return nil
	case 't', 'T':
		if groupID != "" {
			a.cs.TriggerHandshake(groupID)
		}
		a.refresh()
		return nil
	}
	return event
}

func (a *App) groupIDAt(row int) string {
	if row <= 0 {
		return ""
	}
	cell := a.table.GetCell(row, 0)
	if cell == nil {
		return ""
	}
	return cell.Text
}

// refresh repaints the table and health panel from the current
// ControlSurface snapshot. It does not block on any engine I/O.
func (a *App) refresh() {
	a.renderTable()
	a.renderHealth()
}

func (a *App) renderTable() {
	a.table.Clear()
	headers := []string{"Group", "State", "Last Poll", "Polls", "Errors", "Last Error"}
	for col, h := range headers {
		a.table.SetCell(0, col, tview.NewTableCell(h).SetSelectable(false).SetTextColor(tcell.ColorYellow))
	}

	statuses := a.cs.GetAllStatus()
	for i, st := range statuses {
		row := i + 1
		a.table.SetCell(row, 0, tview.NewTableCell(st.GroupID))
		a.table.SetCell(row, 1, tview.NewTableCell(st.State.String()))
		a.table.SetCell(row, 2, tview.NewTableCell(st.LastPoll.Format("15:04:05")))
		a.table.SetCell(row, 3, tview.NewTableCell(fmt.Sprintf("%d", st.PollCount)))
		a.table.SetCell(row, 4, tview.NewTableCell(fmt.Sprintf("%d", st.ErrorCount)))
		a.table.SetCell(row, 5, tview.NewTableCell(st.LastError))
	}
}

func (a *App) renderHealth() {
	h := a.cs.Health()
	a.health.SetText(fmt.Sprintf(
		"buffer: %d/%d (overflow=%d)   writer success: %.1f%%   avg batch: %.1f   backups: %d   plcs: %d/%d connected   monitors: %d",
		h.BufferSize, h.BufferCapacity, h.BufferOverflowCount,
		h.WriterSuccessRatePct, h.WriterAvgBatchSize, h.BackupFileCount,
		h.ConnectedPLCs, h.TotalPLCs, h.MonitorClients))
}
