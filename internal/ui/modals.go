package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"

	"github.com/glebovdev/rtap/internal/config"
	"github.com/glebovdev/rtap/internal/player"
	"github.com/glebovdev/rtap/internal/stream"
)

// friendlyLoadError turns a station loading error into a short message.
func friendlyLoadError(errStr string) string {
	if strings.Contains(errStr, "no such host") {
		return "Unable to connect to server.\nPlease check your internet connection."
	}
	if strings.Contains(errStr, "connection refused") {
		return "Connection refused by server.\nThe service may be temporarily unavailable."
	}
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return "Connection timed out.\nPlease check your internet connection."
	}
	if strings.Contains(errStr, "network is unreachable") {
		return "Network is unreachable.\nPlease check your internet connection."
	}

	if idx := strings.Index(errStr, ": dial"); idx > 0 {
		return errStr[:idx]
	}
	if len(errStr) > 100 {
		return errStr[:100] + "..."
	}
	return errStr
}

// friendlyErrorMessage explains a playback failure.
func friendlyErrorMessage(f *player.Failure) string {
	if f == nil {
		return "Playback stopped unexpectedly."
	}

	var statusErr *stream.HTTPStatusError
	if errors.As(f.Err, &statusErr) {
		switch statusErr.StatusCode {
		case 401:
			return "Stream access denied (401)."
		case 403:
			return "Stream access forbidden (403)."
		case 404, 410:
			return fmt.Sprintf("Stream not found (%d).\nThe station may have moved.", statusErr.StatusCode)
		}
	}

	switch f.Reason {
	case player.ConnectFailure:
		if errors.Is(f.Err, stream.ErrBadURL) {
			return "The station URL is not valid."
		}
		return "Unable to connect to the station.\n" + friendlyLoadError(f.Err.Error())
	case player.StreamInterrupted:
		return "The stream was interrupted and could not be resumed."
	case player.UnsupportedFormat:
		if errors.Is(f.Err, stream.ErrUnsupportedPlaylist) {
			return "This station uses HLS playlists,\nwhich are not supported."
		}
		return "This stream uses an audio format\nthat cannot be played."
	case player.DecodeStalled:
		return "The stream is sending corrupt audio."
	case player.DeviceUnavailable:
		return "No audio output device is available.\nCheck your sound settings."
	case player.Timeout:
		return "The station took too long to start playing."
	}
	return friendlyLoadError(f.Error())
}

func (ui *UI) showError(f *player.Failure) {
	ui.showPlaybackErrorModal(friendlyErrorMessage(f))
}

// hint is the dimmed key reminder at the bottom of a modal.
func (ui *UI) hint(text string) *tview.TextView {
	hintView := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true).
		SetText("[::d]" + text + "[::-]")
	hintView.SetTextColor(tcell.ColorDarkGray)
	hintView.SetBackgroundColor(ui.colors.modalBackground)
	return hintView
}

func (ui *UI) modalFrame(content tview.Primitive, title string, border tcell.Color) *tview.Frame {
	frame := tview.NewFrame(content)
	frame.SetBorder(true).
		SetBorderColor(border).
		SetBackgroundColor(ui.colors.modalBackground).
		SetTitle(" " + title + " ").
		SetTitleColor(ui.colors.highlight).
		SetTitleAlign(tview.AlignCenter)
	return frame
}

// centered places p in the middle of the screen at a fixed size.
func (ui *UI) centered(p tview.Primitive, width, height int) *tview.Flex {
	modal := tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(p, height, 0, true).
			AddItem(nil, 0, 1, false),
			width, 0, true).
		AddItem(nil, 0, 1, false)
	modal.SetBackgroundColor(ui.colors.background)
	return modal
}

func (ui *UI) dismiss(page string) {
	ui.pages.RemovePage(page)
	ui.app.SetFocus(ui.stationList)
}

func (ui *UI) showPlaybackErrorModal(message string) {
	messageView := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true).
		SetText(fmt.Sprintf("\n[::b]Playback Error[::-]\n\n%s", tview.Escape(message)))
	messageView.SetTextColor(ui.colors.foreground)
	messageView.SetBackgroundColor(ui.colors.modalBackground)

	content := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(messageView, 0, 1, false).
		AddItem(ui.hint("Press [::b]R[::d] to retry  •  Press [::b]Esc[::d] to dismiss"), 1, 0, false).
		AddItem(nil, 1, 0, false)
	content.SetBackgroundColor(ui.colors.modalBackground)

	frame := ui.modalFrame(content, "Error", ui.colors.highlight).
		SetBorders(0, 0, 1, 1, 1, 1)

	// two message lines fit the base height
	modalHeight := min(10+max(strings.Count(message, "\n")-1, 0), 15)
	modal := ui.centered(frame, 50, modalHeight)

	modal.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEscape, tcell.KeyEnter:
			ui.dismiss("error-modal")
			return nil
		case tcell.KeyRune:
			if event.Rune() == 'r' || event.Rune() == 'R' {
				ui.dismiss("error-modal")
				ui.do(func() {
					if err := ui.player.Restart(); err != nil {
						log.Debug().Err(err).Msg("Retry failed")
					}
				})
				return nil
			}
		}
		return event
	})

	ui.pages.AddPage("error-modal", modal, true, true)
	ui.app.SetFocus(modal)
}

func (ui *UI) showHelpModal() {
	keyColor := ui.colors.helpHotkey.String()

	configPath, _ := config.GetConfigPath()

	helpText := fmt.Sprintf(`[::b]KEYBOARD SHORTCUTS[::-]

[%[1]s]PLAYBACK[-]
  [%[1]s]Enter[-]      Play selected station
  [%[1]s]Space[-]      Pause / Resume
  [%[1]s]s[-]          Stop
  [%[1]s]<[-] / [%[1]s]>[-]      Previous / Next station
  [%[1]s]r[-]          Random station

[%[1]s]VOLUME[-]
  [%[1]s]+[-] / [%[1]s]-[-]      Volume up / down
  [%[1]s]←[-] / [%[1]s]→[-]      Volume down / up
  [%[1]s]m[-]          Mute / Unmute

[%[1]s]STATIONS[-]
  [%[1]s]↑[-] / [%[1]s]↓[-]      Navigate list
  [%[1]s]Tab[-]        Library / Directory
  [%[1]s]/[-]          Search by name
  [%[1]s]w[-]          Save to library
  [%[1]s]d[-]          Remove from library

[%[1]s]APPLICATION[-]
  [%[1]s]?[-]          Show this help
  [%[1]s]a[-]          About %[2]s
  [%[1]s]q[-] / [%[1]s]Esc[-]    Quit

[%[1]s]CONFIG[-]: %[3]s`,
		keyColor, config.AppName, configPath)

	ui.showInfoModal("Help", helpText)
}

func (ui *UI) showAboutModal() {
	linkColor := "skyblue"
	dimColor := "gray"

	aboutText := fmt.Sprintf(`[::b]%s[::-]
[%s]%s[-]

Version: %s
Author:  %s ([%s:::%s]%s[-:::-])
Project: [%s:::%s]%s[-:::-]
License: MIT

───────────────────────────────────────────

[%s]Station directory by[-] [::b]Radio Browser[::-]
Community-maintained • [%s:::%s]%s[-:::-]`,
		config.AppName,
		dimColor, config.AppTagline,
		config.AppVersion,
		config.AppAuthor, linkColor, config.AppAuthorURL, config.AppAuthorURLShort,
		linkColor, config.AppProjectURL, config.AppProjectShort,
		dimColor,
		linkColor, config.DirectoryURL, config.DirectoryShort)

	ui.showTextModal("About", "\n"+aboutText, 50, 20)
}

func (ui *UI) showInfoModal(title, message string) {
	lines := strings.Count(message, "\n") + 1
	ui.showTextModal(title, "\n"+message, 45, min(lines+10, 38))
}

// showTextModal shows read-only text that any key closes.
func (ui *UI) showTextModal(title, text string, width, height int) {
	messageView := tview.NewTextView().
		SetTextAlign(tview.AlignLeft).
		SetDynamicColors(true).
		SetWordWrap(true).
		SetText(text)
	messageView.SetTextColor(ui.colors.foreground)
	messageView.SetBackgroundColor(ui.colors.modalBackground)

	content := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(messageView, 0, 1, false).
		AddItem(nil, 2, 0, false).
		AddItem(ui.hint("Press any key to close"), 1, 0, false).
		AddItem(nil, 1, 0, false)
	content.SetBackgroundColor(ui.colors.modalBackground)

	frame := ui.modalFrame(content, title, ui.colors.borders).
		SetBorders(1, 0, 1, 1, 2, 2)
	modal := ui.centered(frame, width, height)

	modal.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		ui.dismiss("modal")
		return nil
	})

	ui.pages.AddPage("modal", modal, true, true)
	ui.app.SetFocus(modal)
}

func (ui *UI) showInitialErrorScreen(title, message string, onRetry, onQuit func()) {
	content := fmt.Sprintf("[::b]%s[::-]\n\n%s", title, message)

	textView := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true).
		SetText(content)
	textView.SetTextColor(ui.colors.foreground)
	textView.SetBackgroundColor(ui.colors.modalBackground)

	helpText := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true).
		SetText("[::d]Press [::b]R[::d] to retry  •  Press [::b]Q[::d] to quit[::-]")
	helpText.SetTextColor(ui.colors.foreground)
	helpText.SetBackgroundColor(ui.colors.background)

	frame := tview.NewFrame(textView).
		SetBorders(2, 2, 2, 2, 2, 2)
	frame.SetBorder(true).
		SetBorderColor(ui.colors.highlight).
		SetBackgroundColor(ui.colors.modalBackground).
		SetTitle(" Connection Error ").
		SetTitleColor(ui.colors.highlight)

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().
			AddItem(nil, 0, 1, false).
			AddItem(frame, 60, 1, true).
			AddItem(nil, 0, 1, false), 10, 1, true).
		AddItem(helpText, 2, 0, false).
		AddItem(nil, 0, 1, false)
	layout.SetBackgroundColor(ui.colors.background)

	layout.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyRune:
			switch event.Rune() {
			case 'r', 'R':
				if onRetry != nil {
					onRetry()
				}
				return nil
			case 'q', 'Q':
				if onQuit != nil {
					onQuit()
				}
				return nil
			}
		case tcell.KeyEscape:
			if onQuit != nil {
				onQuit()
			}
			return nil
		}
		return event
	})

	ui.app.SetRoot(layout, true)
	ui.app.SetFocus(layout)
}

func (ui *UI) handleInitialError(err error) {
	friendlyMsg := friendlyLoadError(err.Error())

	ui.showInitialErrorScreen(
		"Unable to Load Stations",
		friendlyMsg,
		func() { // onRetry
			ui.app.SetRoot(ui.loadingScreen, true)
			go func() {
				if err := ui.fetchStationsAndInitUI(); err != nil {
					ui.app.QueueUpdateDraw(func() {
						ui.handleInitialError(err)
					})
				}
			}()
		},
		func() { // onQuit
			ui.app.Stop()
		},
	)
}

func (ui *UI) showSearchModal() {
	input := tview.NewInputField().
		SetLabel(" Name: ").
		SetText(ui.stationService.Query()).
		SetFieldWidth(0)
	input.SetLabelColor(ui.colors.highlight).
		SetFieldBackgroundColor(ui.colors.background).
		SetFieldTextColor(ui.colors.foreground).
		SetBackgroundColor(ui.colors.modalBackground)

	input.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			query := strings.TrimSpace(input.GetText())
			ui.dismiss("modal")
			ui.applyQuery(query)
		case tcell.KeyEscape:
			ui.dismiss("modal")
		}
	})

	content := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(nil, 1, 0, false).
		AddItem(input, 1, 0, true).
		AddItem(nil, 1, 0, false).
		AddItem(ui.hint("Enter to search  •  empty clears  •  Esc to cancel"), 1, 0, false)
	content.SetBackgroundColor(ui.colors.modalBackground)

	title := fmt.Sprintf("Search %s", ui.stationService.Source())
	frame := ui.modalFrame(content, title, ui.colors.borders).
		SetBorders(0, 0, 0, 0, 1, 1)

	ui.pages.AddPage("modal", ui.centered(frame, 50, 6), true, true)
	ui.app.SetFocus(input)
}
