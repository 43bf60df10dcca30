package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"

	"github.com/glebovdev/rtap/internal/config"
)

func (ui *UI) buildVolumeBar(container *tview.Flex) {
	const barHeight = 10

	// muting keeps the level, so the bar still shows it struck through
	displayVolume := ui.player.Volume()
	isMuted := ui.player.Muted()

	filledLines := (displayVolume * barHeight) / 100
	emptyLines := barHeight - filledLines

	createText := func(text string, color tcell.Color) *tview.TextView {
		tv := tview.NewTextView()
		tv.SetText(text)
		tv.SetTextAlign(tview.AlignRight)
		tv.SetTextColor(color)
		tv.SetBackgroundColor(ui.colors.background)
		return tv
	}

	createBarLine := func(barText string, barColor tcell.Color, showPercent bool) *tview.Flex {
		line := tview.NewFlex().SetDirection(tview.FlexColumn)
		line.SetBackgroundColor(ui.colors.background)

		if showPercent {
			percentText := fmt.Sprintf("%d%%", displayVolume)

			var percentColor tcell.Color
			if isMuted {
				percentColor = config.GetColor(ui.config.Theme.MutedVolume)
			} else {
				percentColor = ui.colors.highlight
			}

			percentView := createText(percentText, percentColor)
			percentView.SetTextAlign(tview.AlignRight)

			if isMuted {
				percentView.SetTextStyle(tcell.StyleDefault.
					Foreground(percentColor).
					Background(ui.colors.background).
					Attributes(tcell.AttrStrikeThrough))
			}

			line.AddItem(percentView, 4, 0, false)
		} else {
			line.AddItem(createText("    ", ui.colors.foreground), 4, 0, false)
		}

		line.AddItem(createText(barText, barColor), 0, 1, false)

		return line
	}

	container.AddItem(createText("   max", ui.colors.foreground), 1, 0, false)

	for i := 0; i < emptyLines; i++ {
		container.AddItem(createBarLine(" ░░", ui.colors.foreground, false), 1, 0, false)
	}

	barColor := ui.colors.highlight
	if isMuted {
		barColor = config.GetColor(ui.config.Theme.MutedVolume)
	}
	for i := 0; i < filledLines; i++ {
		showPercent := (i == 0)
		container.AddItem(createBarLine(" ██", barColor, showPercent), 1, 0, false)
	}

	container.AddItem(createText("   min", ui.colors.foreground), 1, 0, false)

	container.AddItem(nil, 0, 1, false)
}

func (ui *UI) createGraphicalVolumeBar() *tview.Flex {
	volumeContainer := tview.NewFlex().SetDirection(tview.FlexRow)
	volumeContainer.SetBackgroundColor(ui.colors.background)
	ui.buildVolumeBar(volumeContainer)
	return volumeContainer
}

func (ui *UI) updateVolumeDisplay() {
	if ui.volumeView != nil {
		ui.volumeView.Clear()
		ui.buildVolumeBar(ui.volumeView)
	}
}

func (ui *UI) adjustVolume(delta int) {
	if ui.player.Muted() {
		ui.setMuted(false)
		log.Debug().Msgf("Auto-unmuted, restored volume to %d%%", ui.player.Volume())
		return
	}

	ui.player.SetVolume(ui.player.Volume() + delta)
	ui.updateVolumeDisplay()
	ui.SaveConfig()
	log.Debug().Msgf("Volume adjusted to %d%%", ui.player.Volume())
}

func (ui *UI) toggleMute() {
	muted := !ui.player.Muted()
	if !muted && ui.player.Volume() == 0 {
		ui.player.SetVolume(config.DefaultVolume)
	}
	ui.setMuted(muted)
	log.Debug().Msgf("Muted: %v, volume %d%%", muted, ui.player.Volume())
}

func (ui *UI) setMuted(muted bool) {
	ui.player.SetMuted(muted)
	ui.statusRenderer.SetMuted(muted)
	ui.updateVolumeDisplay()
	ui.SaveConfig()
}
