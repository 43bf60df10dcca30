package ui

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"

	"github.com/glebovdev/rtap/internal/player"
	"github.com/glebovdev/rtap/internal/service"
)

const maxNameWidth = 35

func (ui *UI) headerCell(text string) *tview.TableCell {
	return tview.NewTableCell(text).
		SetTextColor(ui.colors.stationListHeaderForeground).
		SetBackgroundColor(ui.colors.stationListHeaderBackground).
		SetSelectable(false)
}

func (ui *UI) createStationListTable() *tview.Table {
	table := tview.NewTable().
		SetBorders(false).
		SetSeparator(' ').
		SetSelectable(true, false).
		SetFixed(1, 0)

	table.SetBorder(true).
		SetTitle(ui.stationListTitle()).
		SetBorderColor(ui.colors.borders).
		SetTitleColor(ui.colors.foreground).
		SetBackgroundColor(ui.colors.background).
		SetBorderPadding(1, 0, 1, 1)

	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(ui.colors.background).
		Background(ui.colors.highlight))

	table.SetCell(0, 0, ui.headerCell(" ").SetMaxWidth(2))
	table.SetCell(0, 1, ui.headerCell(" ").SetMaxWidth(2))
	table.SetCell(0, 2, ui.headerCell("Name").SetExpansion(1))
	table.SetCell(0, 3, ui.headerCell("Country"))
	table.SetCell(0, 4, ui.headerCell("Codec"))
	table.SetCell(0, 5, ui.headerCell("Bitrate").SetAlign(tview.AlignRight))

	stationCount := ui.stationService.StationCount()
	for i := 0; i < stationCount; i++ {
		ui.setStationRow(table, i+1, i)
	}

	// Track selected station URL for preserving selection after refresh
	table.SetSelectionChangedFunc(func(row, column int) {
		if s := ui.stationService.GetStation(row - 1); s != nil {
			ui.selectedStationURL = s.URL
		}
	})

	return table
}

func (ui *UI) stationListTitle() string {
	title := fmt.Sprintf("%s (%d)", ui.stationService.Source(), ui.stationService.StationCount())
	if q := ui.stationService.Query(); q != "" {
		title += fmt.Sprintf(" matching %q", q)
	}
	if ui.stationService.Stale() {
		title += " [offline]"
	}
	return title
}

func (ui *UI) setStationRow(table *tview.Table, row int, stationIndex int) {
	s := ui.stationService.GetStation(stationIndex)
	if s == nil {
		return
	}

	savedIcon := " "
	if ui.stationService.IsSaved(s.URL) {
		savedIcon = "★"
	}
	table.SetCell(row, 0, tview.NewTableCell(savedIcon).
		SetTextColor(ui.colors.foreground).
		SetMaxWidth(2))

	table.SetCell(row, 1, tview.NewTableCell(ui.playIcon(s.URL)).
		SetTextColor(ui.colors.foreground).
		SetMaxWidth(2))

	table.SetCell(row, 2, tview.NewTableCell(s.DisplayName()).
		SetTextColor(ui.colors.foreground).
		SetMaxWidth(maxNameWidth).
		SetExpansion(2))

	table.SetCell(row, 3, tview.NewTableCell(s.Country).
		SetTextColor(ui.colors.foreground).
		SetMaxWidth(12))

	table.SetCell(row, 4, tview.NewTableCell(s.Codec).
		SetTextColor(ui.colors.foreground).
		SetMaxWidth(6))

	bitrate := ""
	if s.Bitrate > 0 {
		bitrate = fmt.Sprintf("%dk", s.Bitrate)
	}
	table.SetCell(row, 5, tview.NewTableCell(bitrate).
		SetTextColor(ui.colors.foreground).
		SetAlign(tview.AlignRight))
}

func (ui *UI) playIcon(url string) string {
	if url == "" || url != ui.playingURL {
		return " "
	}
	switch ui.statusRenderer.status.State {
	case player.StatePaused:
		return PauseIcon
	case player.StateFailed:
		return "✗"
	case player.StateIdle, player.StateStopping:
		return " "
	default:
		return "➤"
	}
}

func (ui *UI) selectedIndex() int {
	row, _ := ui.stationList.GetSelection()
	return row - 1
}

func (ui *UI) nextStation() {
	stationCount := ui.stationService.StationCount()
	if stationCount == 0 {
		return
	}

	nextIndex := (ui.selectedIndex() + 1) % stationCount
	ui.stationList.Select(nextIndex+1, 0)
	ui.onStationSelected(nextIndex)
}

func (ui *UI) prevStation() {
	stationCount := ui.stationService.StationCount()
	if stationCount == 0 {
		return
	}

	prevIndex := ui.selectedIndex() - 1
	if prevIndex < 0 {
		prevIndex = stationCount - 1
	}
	ui.stationList.Select(prevIndex+1, 0)
	ui.onStationSelected(prevIndex)
}

func (ui *UI) randomStation() {
	stationCount := ui.stationService.StationCount()
	if stationCount == 0 {
		return
	}

	randomIndex := rand.IntN(stationCount)
	ui.stationList.Select(randomIndex+1, 0)
	ui.onStationSelected(randomIndex)
}

func (ui *UI) selectAndShowStation(index int) {
	s := ui.stationService.GetStation(index)
	if s == nil {
		return
	}

	ui.currentStation = s
	ui.stationList.Select(index+1, 0)
	ui.updatePlayerPanel()

	log.Debug().Msgf("Showing station info (without playing): %s", s.DisplayName())
}

func (ui *UI) selectAndShowStationByURL(url string) bool {
	index := ui.stationService.FindIndexByURL(url)
	if index < 0 {
		log.Debug().Msgf("Station '%s' not found in station list", url)
		return false
	}

	ui.selectAndShowStation(index)
	return true
}

func (ui *UI) saveSelected() {
	s := ui.stationService.GetStation(ui.selectedIndex())
	if s == nil {
		return
	}

	go func() {
		if err := ui.stationService.Save(*s); err != nil {
			log.Error().Err(err).Msg("Failed to save station")
			ui.app.QueueUpdateDraw(func() {
				ui.showInfoModal("Library", fmt.Sprintf("Could not save %s:\n%v", s.DisplayName(), err))
			})
			return
		}
		ui.app.QueueUpdateDraw(ui.refreshStationTable)
	}()
}

func (ui *UI) removeSelected() {
	s := ui.stationService.GetStation(ui.selectedIndex())
	if s == nil || !ui.stationService.IsSaved(s.URL) {
		return
	}

	go func() {
		if err := ui.stationService.Remove(s.URL); err != nil {
			log.Error().Err(err).Msg("Failed to remove station")
			return
		}
		ui.app.QueueUpdateDraw(ui.refreshStationTable)
	}()
}

func (ui *UI) switchSource() {
	next := service.SourceDirectory
	if ui.stationService.Source() == service.SourceDirectory {
		next = service.SourceLibrary
	}
	ui.stationService.SetSource(next)
	ui.stationService.SetQuery("")
	ui.updateSourceTabs()
	ui.reloadStations()
}

func (ui *UI) applyQuery(query string) {
	ui.stationService.SetQuery(query)
	ui.reloadStations()
}

// reloadStations fetches the active source off the UI goroutine.
func (ui *UI) reloadStations() {
	ui.stationList.SetTitle(fmt.Sprintf("%s (loading...)", ui.stationService.Source()))

	go func() {
		if _, err := ui.stationService.GetStations(context.Background()); err != nil {
			log.Error().Err(err).Msg("Failed to load stations")
			ui.app.QueueUpdateDraw(func() {
				ui.stationList.SetTitle(ui.stationListTitle())
				ui.showInfoModal("Stations", friendlyLoadError(err.Error()))
			})
			return
		}
		ui.app.QueueUpdateDraw(func() {
			ui.refreshStationTable()
			if ui.stationService.FindIndexByURL(ui.selectedStationURL) < 0 {
				ui.stationList.Select(1, 0)
				ui.stationList.ScrollToBeginning()
			}
		})
	}()
}

func (ui *UI) refreshStationTable() {
	stationCount := ui.stationService.StationCount()

	for i := 0; i < stationCount; i++ {
		ui.setStationRow(ui.stationList, i+1, i)
	}
	for ui.stationList.GetRowCount() > stationCount+1 {
		ui.stationList.RemoveRow(ui.stationList.GetRowCount() - 1)
	}

	if ui.selectedStationURL != "" {
		if newIndex := ui.stationService.FindIndexByURL(ui.selectedStationURL); newIndex >= 0 {
			ui.stationList.Select(newIndex+1, 0)
		}
	}

	ui.stationList.SetTitle(ui.stationListTitle())
	ui.updateStationListPlayingIndicator()

	log.Debug().Int("count", stationCount).Msg("Station table refreshed")
}

func (ui *UI) updateStationListPlayingIndicator() {
	index := ui.stationService.FindIndexByURL(ui.playingURL)
	if index < 0 {
		return
	}

	row := index + 1
	s := ui.stationService.GetStation(index)
	if s == nil {
		return
	}

	if playCell := ui.stationList.GetCell(row, 1); playCell != nil {
		playCell.SetText(ui.playIcon(s.URL))
	}

	nameCell := ui.stationList.GetCell(row, 2)
	if nameCell == nil {
		return
	}

	name := []rune(s.DisplayName())
	if !ui.statusRenderer.status.State.Active() {
		nameCell.SetText(string(name))
		return
	}

	indicator := ui.getPlayingIndicator()
	maxLen := maxNameWidth - len([]rune(indicator)) - 1
	if len(name) > maxLen {
		name = append(name[:maxLen-3], []rune("...")...)
	}
	nameCell.SetText(string(name) + " " + indicator)
}
