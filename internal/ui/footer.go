package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/glebovdev/rtap/internal/player"
)

// StatusRenderer formats the footer status line from the latest player
// snapshot. It is only touched from the UI goroutine.
type StatusRenderer struct {
	status        player.Status
	isMuted       bool
	animFrame     int
	maxAnimFrame  int
	tickCount     int
	ticksPerFrame int

	primaryColor string
}

func NewStatusRenderer() *StatusRenderer {
	return &StatusRenderer{
		status:        player.Status{State: player.StateIdle},
		maxAnimFrame:  4,
		ticksPerFrame: 8, // Slow down animation (8 ticks per frame)
	}
}

func (s *StatusRenderer) SetStatus(st player.Status) {
	s.status = st
}

func (s *StatusRenderer) SetMuted(muted bool) {
	s.isMuted = muted
}

func (s *StatusRenderer) SetPrimaryColor(color string) {
	s.primaryColor = color
}

func (s *StatusRenderer) AdvanceAnimation() {
	s.tickCount++
	if s.tickCount >= s.ticksPerFrame {
		s.tickCount = 0
		s.animFrame = (s.animFrame + 1) % s.maxAnimFrame
	}
}

func (s *StatusRenderer) Render() string {
	switch s.status.State {
	case player.StateConnecting:
		return s.renderConnecting()
	case player.StateBuffering:
		return s.renderBuffering()
	case player.StatePlaying:
		return s.renderPlaying()
	case player.StatePaused:
		return s.renderPaused()
	case player.StateStopping:
		return "◌ STOPPING"
	case player.StateFailed:
		return s.renderError()
	default:
		return s.renderIdle()
	}
}

func (s *StatusRenderer) renderIdle() string {
	if s.isMuted {
		return "○ IDLE │ [red]MUTED[-] │ Select a station"
	}
	return "○ IDLE │ Select a station"
}

func (s *StatusRenderer) renderConnecting() string {
	arrows := []string{"◜", "◝", "◞", "◟"}
	if s.status.Retry > 0 {
		return fmt.Sprintf("↻ RETRY %d/%d", s.status.Retry, s.status.MaxRetries)
	}
	return fmt.Sprintf("%s CONNECTING", arrows[s.animFrame])
}

func (s *StatusRenderer) renderBuffering() string {
	circles := []string{"◐", "◓", "◑", "◒"}
	parts := []string{fmt.Sprintf("%s BUFFERING %d%%", circles[s.animFrame], s.status.Fill)}
	if s.status.Retry > 0 {
		parts = append(parts, fmt.Sprintf("↻ %d/%d", s.status.Retry, s.status.MaxRetries))
	}
	return joinParts(parts)
}

func (s *StatusRenderer) renderPlaying() string {
	dots := []string{"●", "◉", "○", "◉"}
	dot := dots[s.animFrame]

	if s.primaryColor != "" {
		dot = fmt.Sprintf("[%s]%s[-]", s.primaryColor, dot)
	}

	parts := []string{dot + " LIVE"}
	if s.status.Delay > 0 {
		parts[0] = fmt.Sprintf("%s -%s", parts[0], formatDuration(s.status.Delay))
	}

	if s.isMuted {
		parts = append(parts, "[red]MUTED[-]")
	}

	if info := streamInfo(s.status); info != "" {
		parts = append(parts, info)
	}

	health := s.formatBufferHealth(s.status.Fill)
	if s.status.Dropped > 0 {
		health += fmt.Sprintf(" %d dropped", s.status.Dropped)
	}
	parts = append(parts, health)

	return joinParts(parts)
}

func (s *StatusRenderer) renderPaused() string {
	parts := []string{PauseIcon + " PAUSED"}

	if s.isMuted {
		parts = append(parts, "[red]MUTED[-]")
	}

	if info := streamInfo(s.status); info != "" {
		parts = append(parts, info)
	}

	return joinParts(parts)
}

func (s *StatusRenderer) renderError() string {
	if s.status.Failure == nil {
		return "✗ ERROR"
	}
	return fmt.Sprintf("✗ %s", strings.ToUpper(s.status.Failure.Reason.String()))
}

// streamInfo describes the codec and format, e.g. "MP3 HQ 128k 44.1kHz stereo".
func streamInfo(st player.Status) string {
	if st.Codec == "" {
		return ""
	}
	parts := []string{st.Codec}
	if q := qualityShort(st.Quality()); q != "" {
		parts = append(parts, q)
	}
	if st.Bitrate > 0 {
		parts = append(parts, fmt.Sprintf("%dk", st.Bitrate))
	}
	if st.Format.Valid() {
		parts = append(parts, st.Format.String())
	}
	return strings.Join(parts, " ")
}

func (s *StatusRenderer) formatBufferHealth(percent int) string {
	signalBars := []string{"▁", "▂", "▃", "▅", "▇"}
	const numBars = 5

	filled := (percent * numBars) / 100
	if filled > numBars {
		filled = numBars
	}

	bar := ""
	for i := 0; i < numBars; i++ {
		if i < filled {
			bar += signalBars[i]
		} else {
			bar += "▁"
		}
	}

	return bar
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d >= time.Hour {
		return fmt.Sprintf("%d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
	}
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func qualityShort(quality string) string {
	switch quality {
	case "highest", "high":
		return "HQ"
	case "medium":
		return "MQ"
	case "low":
		return "LQ"
	default:
		return ""
	}
}

func joinParts(parts []string) string {
	return strings.Join(parts, " │ ")
}

func (ui *UI) getPlaybackHint(keyColor string) string {
	switch ui.statusRenderer.status.State {
	case player.StatePaused:
		return fmt.Sprintf("[%s]Enter[-] play  [%s]Space[-] resume  [%s]s[-] stop", keyColor, keyColor, keyColor)
	case player.StatePlaying, player.StateBuffering, player.StateConnecting:
		return fmt.Sprintf("[%s]Enter[-] play  [%s]Space[-] pause  [%s]s[-] stop", keyColor, keyColor, keyColor)
	default:
		return fmt.Sprintf("[%s]Space[-] play", keyColor)
	}
}

func (ui *UI) getHelpText() string {
	keyColor := ui.colors.helpHotkey.String()
	playbackHint := ui.getPlaybackHint(keyColor)

	muteText := "mute"
	if ui.player.Muted() {
		muteText = "unmute"
	}

	return fmt.Sprintf(" %s  [%s]Tab[-] source  [%s]+/-[-] vol  [%s]m[-] %s  [%s]?[-] help  [%s]q[-] quit ",
		playbackHint, keyColor, keyColor, keyColor, muteText, keyColor, keyColor)
}

func (ui *UI) handleFooterResize(width int) {
	isWide := width >= FooterBreakpoint
	wasWide := ui.lastFooterWidth >= FooterBreakpoint

	if ui.lastFooterWidth > 0 && isWide != wasWide && ui.contentLayout != nil {
		newHeight := FooterHeightWide
		if !isWide {
			newHeight = FooterHeightNarrow
		}
		ui.contentLayout.ResizeItem(ui.helpPanel, newHeight, 0)
	}
	ui.lastFooterWidth = width
}

func (ui *UI) fillRect(screen tcell.Screen, x, y, width, height int, bg tcell.Color) {
	style := tcell.StyleDefault.Background(bg)
	for row := y; row < y+height; row++ {
		for col := x; col < x+width; col++ {
			screen.SetContent(col, row, ' ', nil, style)
		}
	}
}

func (ui *UI) drawWideFooter(screen tcell.Screen, x, y, width, height int, helpText, statusText string) {
	helpWidth := width / 2
	statusWidth := width - helpWidth

	ui.fillRect(screen, x, y, helpWidth, height, ui.colors.helpBackground)
	ui.fillRect(screen, x+helpWidth, y, statusWidth, height, ui.colors.background)

	centerY := y + height/2
	tview.Print(screen, helpText, x, centerY, helpWidth, tview.AlignCenter, ui.colors.helpForeground)
	tview.Print(screen, statusText, x+helpWidth, centerY, statusWidth-2, tview.AlignRight, ui.colors.foreground)
}

func (ui *UI) drawNarrowFooter(screen tcell.Screen, x, y, width, height int, helpText, statusText string) {
	helpHeight := max(height/2, 1)
	statusHeight := height - helpHeight
	helpBoxEnd := y + helpHeight

	ui.fillRect(screen, x, y, width, helpHeight, ui.colors.helpBackground)
	ui.fillRect(screen, x, helpBoxEnd, width, statusHeight, ui.colors.background)

	tview.Print(screen, helpText, x, y+helpHeight/2, width, tview.AlignCenter, ui.colors.helpForeground)

	if statusHeight > 0 {
		statusTextY := helpBoxEnd + statusHeight/2
		tview.Print(screen, statusText, x, statusTextY, width-2, tview.AlignRight, ui.colors.foreground)
	}
}

func (ui *UI) createFooter() *tview.Box {
	box := tview.NewBox().SetBackgroundColor(ui.colors.background)

	box.SetDrawFunc(func(screen tcell.Screen, x, y, width, height int) (int, int, int, int) {
		ui.handleFooterResize(width)

		helpText := ui.getHelpText()
		statusText := " " + ui.statusRenderer.Render() + " "

		isWide := width >= FooterBreakpoint
		if isWide {
			ui.drawWideFooter(screen, x, y, width, min(height, FooterHeightWide), helpText, statusText)
		} else {
			ui.drawNarrowFooter(screen, x, y, width, height, helpText, statusText)
		}

		return x, y, width, height
	})

	return box
}
