package ui

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"

	"github.com/glebovdev/rtap/internal/config"
	"github.com/glebovdev/rtap/internal/player"
	"github.com/glebovdev/rtap/internal/service"
	"github.com/glebovdev/rtap/internal/station"
)

const (
	VolumeStep            = 5
	HeaderHeight          = 3
	FooterHeightWide      = 3 // Wide: 1 row with padding (top + text + bottom)
	FooterHeightNarrow    = 6 // Narrow: 2 rows × 3 lines each
	PlayerPanelHeight     = 12
	FooterBreakpoint      = 130 // Width threshold for responsive footer
	MinLoadingDisplayTime = 1200 * time.Millisecond
	MinStatusDisplayTime  = 300 * time.Millisecond
	RefreshInterval       = 10 * time.Minute
	commandQueueSize      = 16
)

// PauseIcon uses platform-specific character (Windows renders ⏸ as emoji)
var PauseIcon = func() string {
	if runtime.GOOS == "windows" {
		return "❚❚"
	}
	return "⏸"
}()

type UI struct {
	app                *tview.Application
	stationService     *service.StationService
	player             *player.Controller
	currentStation     *station.Station
	stationList        *tview.Table
	helpPanel          *tview.Box
	contentLayout      *tview.Flex
	playerPanel        *tview.Flex
	currentTrackView   *tview.TextView
	sourceTabs         *tview.TextView
	streamInfoView     *tview.TextView
	volumeView         *tview.Flex
	mainLayout         *tview.Flex
	loadingScreen      *tview.Flex
	loadingText        *tview.TextView
	progressBar        *tview.TextView
	pages              *tview.Pages
	done               chan struct{}
	stopOnce           sync.Once
	commands           chan func()
	playingURL         string
	selectedStationURL string
	config             *config.Config
	startRandom        bool
	lastFooterWidth    int // Track width to detect layout changes
	mu                 sync.Mutex
	animationFrame     int
	playingSpinner     *PlayingSpinner
	statusRenderer     *StatusRenderer
	colors             struct {
		background                  tcell.Color
		foreground                  tcell.Color
		borders                     tcell.Color
		highlight                   tcell.Color
		headerBackground            tcell.Color
		stationListHeaderBackground tcell.Color
		stationListHeaderForeground tcell.Color
		helpBackground              tcell.Color
		helpForeground              tcell.Color
		helpHotkey                  tcell.Color
		genreTagBackground          tcell.Color
		modalBackground             tcell.Color
	}
}

func NewUI(controller *player.Controller, stationService *service.StationService, cfg *config.Config, startRandom bool) *UI {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	ui := &UI{
		app:            tview.NewApplication(),
		player:         controller,
		stationService: stationService,
		done:           make(chan struct{}),
		commands:       make(chan func(), commandQueueSize),
		config:         cfg,
		startRandom:    startRandom,
		playingSpinner: NewPlayingSpinner(),
	}

	ui.colors.background = config.GetColor(cfg.Theme.Background)
	ui.colors.foreground = config.GetColor(cfg.Theme.Foreground)
	ui.colors.borders = config.GetColor(cfg.Theme.Borders)
	ui.colors.highlight = config.GetColor(cfg.Theme.Highlight)
	ui.colors.headerBackground = config.GetColor(cfg.Theme.HeaderBackground)
	ui.colors.stationListHeaderBackground = config.GetColor(cfg.Theme.StationListHeaderBackground)
	ui.colors.stationListHeaderForeground = config.GetColor(cfg.Theme.StationListHeaderForeground)
	ui.colors.helpBackground = config.GetColor(cfg.Theme.HelpBackground)
	ui.colors.helpForeground = config.GetColor(cfg.Theme.HelpForeground)
	ui.colors.helpHotkey = config.GetColor(cfg.Theme.HelpHotkey)
	ui.colors.genreTagBackground = config.GetColor(cfg.Theme.GenreTagBackground)
	ui.colors.modalBackground = config.GetColor(cfg.Theme.ModalBackground)

	controller.SetVolume(cfg.Volume)
	log.Debug().Msgf("Loaded volume from config: %d%%", cfg.Volume)

	ui.statusRenderer = NewStatusRenderer()
	ui.statusRenderer.SetPrimaryColor(ui.colors.highlight.String())

	return ui
}

func (ui *UI) SaveConfig() {
	ui.mu.Lock()
	ui.config.Volume = ui.player.Volume()
	if ui.currentStation != nil {
		ui.config.LastStation = ui.currentStation.URL
	}
	ui.mu.Unlock()

	if err := ui.config.Save(); err != nil {
		log.Error().Err(err).Msg("Failed to save config")
	}
}

// do queues a player command. Commands run one at a time, in order, off the
// UI goroutine because they block while a session tears down.
func (ui *UI) do(fn func()) {
	select {
	case ui.commands <- fn:
	default:
		log.Warn().Msg("Command queue full, dropping command")
	}
}

func (ui *UI) runCommands() {
	for {
		select {
		case <-ui.done:
			return
		case fn := <-ui.commands:
			fn()
		}
	}
}

// watchStatus redraws on every player update and raises the error modal
// when a session fails.
func (ui *UI) watchStatus() {
	prev := player.StateIdle
	for {
		select {
		case <-ui.done:
			return
		case st := <-ui.player.Updates():
			failed := st.State == player.StateFailed && prev != player.StateFailed
			prev = st.State
			ui.app.QueueUpdateDraw(func() {
				ui.applyStatus(st)
				if failed {
					ui.showError(st.Failure)
				}
			})
		}
	}
}

func (ui *UI) applyStatus(st player.Status) {
	ui.statusRenderer.SetStatus(st)

	playing := ""
	if st.State != player.StateIdle {
		playing = st.Station.URL
	}
	if playing != ui.playingURL {
		previous := ui.playingURL
		ui.playingURL = playing
		if index := ui.stationService.FindIndexByURL(previous); index >= 0 && ui.stationList != nil {
			ui.setStationRow(ui.stationList, index+1, index)
		}
	}
	if ui.stationList != nil {
		ui.updateStationListPlayingIndicator()
	}
	ui.updateTrackInfo(st)
}

func (ui *UI) stop() {
	ui.stopOnce.Do(func() {
		ui.stationService.StopPeriodicRefresh()
		close(ui.done)
		ui.app.Stop()
	})
}

// Shutdown stops the UI gracefully from external callers (e.g., signal handlers).
func (ui *UI) Shutdown() {
	ui.app.QueueUpdateDraw(func() {
		ui.stop()
	})
}

func (ui *UI) Run() error {
	ui.setupLoadingScreen()
	ui.app.SetRoot(ui.loadingScreen, true)
	ui.configureScreen()

	go ui.runCommands()
	go ui.watchStatus()
	go ui.initAsync()

	return ui.app.Run()
}

func (ui *UI) configureScreen() {
	bgStyle := tcell.StyleDefault.Background(ui.colors.background)
	ui.app.SetBeforeDrawFunc(func(screen tcell.Screen) bool {
		screen.SetStyle(bgStyle)
		screen.Clear()
		return false
	})

	var titleSet sync.Once
	ui.app.SetAfterDrawFunc(func(screen tcell.Screen) {
		titleSet.Do(func() { screen.SetTitle(config.AppName) })
	})
}

func (ui *UI) initAsync() {
	if err := ui.fetchStationsAndInitUI(); err != nil {
		ui.app.QueueUpdateDraw(func() {
			ui.handleInitialError(err)
		})
	}
}

func (ui *UI) setupLoadingScreen() {
	ui.loadingText = tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetText("Loading stations... (1/3)")
	ui.loadingText.SetTextColor(ui.colors.foreground).
		SetBackgroundColor(ui.colors.background)

	ui.progressBar = tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetText(ui.renderProgressBar(0))
	ui.progressBar.SetTextColor(ui.colors.highlight).
		SetBackgroundColor(ui.colors.background)

	content := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(ui.loadingText, 1, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.progressBar, 1, 0, false)
	content.SetBackgroundColor(ui.colors.background)

	ui.loadingScreen = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(content, 3, 0, false).
		AddItem(nil, 0, 1, false)

	ui.loadingScreen.SetBackgroundColor(ui.colors.background)
}

func (ui *UI) renderProgressBar(percent int) string {
	const width = 30
	filled := (percent * width) / 100
	empty := width - filled
	return strings.Repeat("█", filled) + strings.Repeat("░", empty)
}

func (ui *UI) animateProgress(fromPercent, toPercent int, duration time.Duration) {
	steps := toPercent - fromPercent
	if steps <= 0 {
		return
	}
	stepDuration := duration / time.Duration(steps)
	lastBar := ui.renderProgressBar(fromPercent)

	for p := fromPercent + 1; p <= toPercent; p++ {
		time.Sleep(stepDuration)
		if bar := ui.renderProgressBar(p); bar != lastBar {
			ui.app.QueueUpdateDraw(func() {
				ui.progressBar.SetText(bar)
			})
			lastBar = bar
		}
	}
}

// pickSource starts in the library when it has stations and falls back to
// the directory otherwise.
func (ui *UI) pickSource(ctx context.Context) error {
	ui.stationService.SetSource(service.SourceLibrary)
	if _, err := ui.stationService.GetStations(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to read library")
	}
	if ui.stationService.StationCount() > 0 {
		return nil
	}

	ui.stationService.SetSource(service.SourceDirectory)
	_, err := ui.stationService.GetStations(ctx)
	return err
}

func (ui *UI) fetchStationsAndInitUI() error {
	const totalStages = 3
	stagePercent := func(stage int) int { return (stage * 100) / totalStages }

	startTime := time.Now()

	animDone := make(chan struct{})
	go func() {
		ui.animateProgress(stagePercent(0), stagePercent(1), MinStatusDisplayTime)
		close(animDone)
	}()

	if err := ui.pickSource(context.Background()); err != nil {
		<-animDone
		return fmt.Errorf("failed to fetch stations: %w", err)
	}
	log.Debug().Msgf("Loaded %d stations from %s in %v", ui.stationService.StationCount(), ui.stationService.Source(), time.Since(startTime))

	<-animDone

	ui.app.QueueUpdateDraw(func() {
		ui.loadingText.SetText("Loading configuration... (2/3)")
	})

	ui.SaveConfig()

	ui.animateProgress(stagePercent(1), stagePercent(2), MinStatusDisplayTime)

	ui.app.QueueUpdateDraw(func() {
		ui.loadingText.SetText("Building interface... (3/3)")
	})

	ready := make(chan struct{})
	ui.app.QueueUpdateDraw(func() {
		ui.setupUI()
		close(ready)
	})
	<-ready
	ui.stationService.StartPeriodicRefresh(RefreshInterval, ui.onStationsRefreshed)
	ui.startPlayingAnimation()

	ui.animateProgress(stagePercent(2), stagePercent(3), MinStatusDisplayTime)

	// Floor, not ceiling: wait only if real work finished early.
	if elapsed := time.Since(startTime); elapsed < MinLoadingDisplayTime {
		time.Sleep(MinLoadingDisplayTime - elapsed)
	}
	log.Debug().Msgf("Total loading time: %v", time.Since(startTime))

	ui.app.QueueUpdateDraw(func() {
		ui.app.SetRoot(ui.pages, true).EnableMouse(true)
		ui.app.SetFocus(ui.stationList)

		if ui.startRandom {
			ui.randomStation()
			return
		}

		if ui.config.LastStation == "" {
			ui.selectAndShowStation(0)
			return
		}

		index := ui.stationService.FindIndexByURL(ui.config.LastStation)
		if index < 0 {
			log.Debug().Msgf("Last station '%s' not found, showing first station", ui.config.LastStation)
			ui.selectAndShowStation(0)
			return
		}

		if ui.config.Autostart {
			log.Debug().Msgf("Autostart enabled, playing last station: %s", ui.config.LastStation)
			ui.stationList.Select(index+1, 0)
			ui.onStationSelected(index)
		} else {
			ui.selectAndShowStation(index)
		}
	})

	return nil
}

func (ui *UI) setupUI() {
	header := ui.createHeader()

	ui.playerPanel = tview.NewFlex().SetDirection(tview.FlexRow)
	ui.playerPanel.SetBackgroundColor(ui.colors.background)

	ui.stationList = ui.createStationListTable()

	ui.helpPanel = ui.createFooter()

	ui.contentLayout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(header, HeaderHeight, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.playerPanel, PlayerPanelHeight, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.stationList, 0, 1, true).
		AddItem(ui.helpPanel, FooterHeightWide, 0, false)
	ui.contentLayout.SetBackgroundColor(ui.colors.background)

	wrapper := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(nil, 3, 0, false).
		AddItem(ui.contentLayout, 0, 1, true).
		AddItem(nil, 3, 0, false)
	wrapper.SetBackgroundColor(ui.colors.background)

	ui.mainLayout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(nil, 1, 0, false).
		AddItem(wrapper, 0, 1, true).
		AddItem(nil, 1, 0, false)
	ui.mainLayout.SetBackgroundColor(ui.colors.background)

	ui.pages = tview.NewPages().
		AddPage("main", ui.mainLayout, true, true)
	ui.pages.SetBackgroundColor(ui.colors.background)

	ui.updatePlayerPanel()

	ui.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if ui.pages.HasPage("modal") || ui.pages.HasPage("error-modal") {
			return event
		}
		return ui.globalInputHandler(event)
	})
}

func (ui *UI) createHeader() tview.Primitive {
	titleView := tview.NewTextView()
	titleView.SetText(" " + config.AppName)
	titleView.SetTextAlign(tview.AlignLeft)
	titleView.SetTextColor(ui.colors.foreground)
	titleView.SetBackgroundColor(ui.colors.headerBackground)

	ui.sourceTabs = tview.NewTextView()
	ui.sourceTabs.SetDynamicColors(true)
	ui.sourceTabs.SetTextAlign(tview.AlignCenter)
	ui.sourceTabs.SetTextColor(ui.colors.foreground)
	ui.sourceTabs.SetBackgroundColor(ui.colors.headerBackground)
	ui.updateSourceTabs()

	versionView := tview.NewTextView()
	versionView.SetText("v" + config.AppVersion + " ")
	versionView.SetTextAlign(tview.AlignRight)
	versionView.SetTextColor(ui.colors.foreground)
	versionView.SetBackgroundColor(ui.colors.headerBackground)

	textFlex := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(titleView, 10, 0, false).
		AddItem(ui.sourceTabs, 0, 1, false).
		AddItem(versionView, 10, 0, false)
	textFlex.SetBackgroundColor(ui.colors.headerBackground)

	topSpacer := tview.NewBox().SetBackgroundColor(ui.colors.headerBackground)
	bottomSpacer := tview.NewBox().SetBackgroundColor(ui.colors.headerBackground)
	leftSpacer := tview.NewBox().SetBackgroundColor(ui.colors.headerBackground)
	rightSpacer := tview.NewBox().SetBackgroundColor(ui.colors.headerBackground)

	textWithPadding := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(leftSpacer, 1, 0, false).
		AddItem(textFlex, 0, 1, false).
		AddItem(rightSpacer, 1, 0, false)
	textWithPadding.SetBackgroundColor(ui.colors.headerBackground)

	headerFlex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(topSpacer, 1, 0, false).
		AddItem(textWithPadding, 1, 0, false).
		AddItem(bottomSpacer, 1, 0, false)
	headerFlex.SetBackgroundColor(ui.colors.headerBackground)

	return headerFlex
}

func (ui *UI) updateSourceTabs() {
	if ui.sourceTabs != nil {
		ui.sourceTabs.SetText(sourceTabs(ui.stationService.Source(), ui.colors.highlight.String()))
	}
}

// sourceTabs renders the source switcher with the active source marked.
func sourceTabs(active service.Source, color string) string {
	tabs := make([]string, 0, 2)
	for _, src := range []service.Source{service.SourceLibrary, service.SourceDirectory} {
		if src == active {
			tabs = append(tabs, fmt.Sprintf("[%s::b]▸ %s[-::-]", color, src))
		} else {
			tabs = append(tabs, "  "+src.String())
		}
	}
	return strings.Join(tabs, "   ")
}

func (ui *UI) onStationSelected(index int) {
	s := ui.stationService.GetStation(index)
	if s == nil {
		return
	}

	if s.URL == ui.playingURL && ui.statusRenderer.status.State.Active() {
		return
	}

	ui.currentStation = s
	ui.selectedStationURL = s.URL
	ui.updatePlayerPanel()
	ui.SaveConfig()

	ref := s.Ref()
	log.Info().Msgf("Starting playback for station: %s", s.DisplayName())
	ui.do(func() {
		if err := ui.player.Select(ref); err != nil {
			log.Error().Err(err).Msg("Failed to play station")
		}
	})
}

func (ui *UI) playSelected() {
	if index := ui.selectedIndex(); index >= 0 {
		ui.onStationSelected(index)
	}
}

func (ui *UI) createGenreTags(tags station.Tags) *tview.Flex {
	container := tview.NewFlex().SetDirection(tview.FlexColumn)
	container.SetBackgroundColor(ui.colors.background)

	container.AddItem(tview.NewBox().SetBackgroundColor(ui.colors.background), 1, 0, false)

	if len(tags) == 0 {
		noGenre := tview.NewTextView()
		noGenre.SetText("N/A")
		noGenre.SetTextColor(ui.colors.foreground)
		noGenre.SetBackgroundColor(ui.colors.background)
		container.AddItem(noGenre, 3, 0, false)
		return container
	}

	for i, g := range tags {
		tag := tview.NewTextView()
		tag.SetText(" " + g + " ")
		tag.SetTextColor(ui.colors.foreground)
		tag.SetBackgroundColor(ui.colors.genreTagBackground)
		tag.SetTextAlign(tview.AlignCenter)

		tagWidth := tview.TaggedStringWidth(g) + 2
		container.AddItem(tag, tagWidth, 0, false)

		if i < len(tags)-1 {
			spacer := tview.NewBox().SetBackgroundColor(ui.colors.background)
			container.AddItem(spacer, 1, 0, false)
		}
	}

	container.AddItem(tview.NewBox().SetBackgroundColor(ui.colors.background), 0, 1, false)

	return container
}

func (ui *UI) label(text string) *tview.TextView {
	tv := tview.NewTextView()
	tv.SetText(text)
	tv.SetTextColor(ui.colors.foreground)
	tv.SetBackgroundColor(ui.colors.background)
	tv.SetWrap(false)
	return tv
}

func (ui *UI) highlighted(text string, wrap bool) *tview.TextView {
	tv := tview.NewTextView()
	tv.SetDynamicColors(true)
	tv.SetText(fmt.Sprintf(" [%s]%s[-]", ui.colors.highlight.String(), tview.Escape(text)))
	tv.SetTextColor(ui.colors.highlight)
	tv.SetBackgroundColor(ui.colors.background)
	tv.SetWrap(wrap)
	tv.SetTextStyle(tcell.StyleDefault.Background(ui.colors.background).Attributes(tcell.AttrBold))
	return tv
}

func (ui *UI) updatePlayerPanel() {
	if ui.playerPanel == nil {
		return
	}
	ui.playerPanel.Clear()
	ui.playerPanel.AddItem(ui.createContentPanel(), 0, 1, false)
	ui.updateTrackInfo(ui.statusRenderer.status)
}

func (ui *UI) createContentPanel() *tview.Flex {
	name, tags, details := "No station selected", station.Tags(nil), ""
	if s := ui.currentStation; s != nil {
		name = s.DisplayName()
		tags = s.Tags
		details = stationDetails(s)
	}

	ui.currentTrackView = ui.highlighted("", true)
	ui.streamInfoView = ui.label(" " + details)

	infoContent := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(ui.label(" Station:"), 1, 0, false).
		AddItem(ui.highlighted(name, false), 1, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.label(" Playing:"), 1, 0, false).
		AddItem(ui.currentTrackView, 1, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.label(" Tags:"), 1, 0, false).
		AddItem(ui.createGenreTags(tags), 1, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.label(" Stream:"), 1, 0, false).
		AddItem(ui.streamInfoView, 1, 0, false).
		AddItem(nil, 0, 1, false)
	infoContent.SetBackgroundColor(ui.colors.background)

	ui.volumeView = ui.createGraphicalVolumeBar()

	contentFlex := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(infoContent, 0, 1, false).
		AddItem(ui.volumeView, 7, 0, false)
	contentFlex.SetBackgroundColor(ui.colors.background)

	contentWithPadding := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(nil, 4, 0, false).
		AddItem(contentFlex, 0, 1, false).
		AddItem(nil, 4, 0, false)
	contentWithPadding.SetBackgroundColor(ui.colors.background)

	return contentWithPadding
}

// stationDetails describes what a station advertises before it is played.
func stationDetails(s *station.Station) string {
	var parts []string
	if s.Codec != "" {
		parts = append(parts, strings.ToUpper(s.Codec))
	}
	if s.Bitrate > 0 {
		parts = append(parts, fmt.Sprintf("%dk", s.Bitrate))
	}
	if s.Country != "" {
		parts = append(parts, s.Country)
	}
	if len(parts) == 0 {
		return "N/A"
	}
	return strings.Join(parts, " · ")
}

// trackText picks what to show under "Playing:" for a status snapshot.
func trackText(st player.Status) string {
	switch st.State {
	case player.StateConnecting:
		return "Connecting..."
	case player.StateBuffering:
		if st.Title == "" {
			return "Buffering..."
		}
	case player.StateFailed:
		return friendlyErrorMessage(st.Failure)
	case player.StateIdle, player.StateStopping:
		return ""
	}
	if st.Title != "" {
		return st.Title
	}
	return st.StreamName
}

func (ui *UI) updateTrackInfo(st player.Status) {
	if ui.currentTrackView == nil || ui.currentStation == nil {
		return
	}
	if st.Station.URL != ui.currentStation.URL {
		ui.currentTrackView.SetText("")
		return
	}

	ui.currentTrackView.SetText(fmt.Sprintf(" [%s]%s[-]",
		ui.colors.highlight.String(),
		tview.Escape(strings.ReplaceAll(trackText(st), "\n", " "))))

	if info := streamInfo(st); info != "" && ui.streamInfoView != nil {
		ui.streamInfoView.SetText(" " + info)
	}
}

type PlayingSpinner struct {
	Frames []string
	FPS    time.Duration
}

func NewPlayingSpinner() *PlayingSpinner {
	return &PlayingSpinner{
		Frames: []string{"⣾ ", "⣽ ", "⣻ ", "⢿ ", "⡿ ", "⣟ ", "⣯ ", "⣷ "},
		FPS:    time.Second / 10,
	}
}

// Frame returns the spinner frame for a tick count.
func (p *PlayingSpinner) Frame(n int) string {
	return p.Frames[n%len(p.Frames)]
}

func (ui *UI) getPlayingIndicator() string {
	return ui.playingSpinner.Frame(ui.animationFrame)
}

func (ui *UI) startPlayingAnimation() {
	go func() {
		animationTicker := time.NewTicker(ui.playingSpinner.FPS)
		defer animationTicker.Stop()

		for {
			select {
			case <-ui.done:
				return
			case <-animationTicker.C:
				ui.app.QueueUpdateDraw(func() {
					ui.animationFrame++
					ui.statusRenderer.AdvanceAnimation()
					if ui.statusRenderer.status.State.Active() {
						ui.updateStationListPlayingIndicator()
					}
				})
			}
		}
	}()
}

func (ui *UI) onStationsRefreshed(stations []station.Station) {
	ui.app.QueueUpdateDraw(func() {
		ui.refreshStationTable()
	})
}

// Play, Pause, PlayPause, Stop, Next and Previous serve desktop media keys.

func (ui *UI) Play() {
	ui.app.QueueUpdateDraw(func() {
		switch ui.statusRenderer.status.State {
		case player.StatePaused:
			ui.do(ui.player.Resume)
		case player.StateIdle, player.StateFailed:
			ui.playSelected()
		}
	})
}

func (ui *UI) Pause() {
	ui.do(ui.player.Pause)
}

func (ui *UI) PlayPause() {
	ui.app.QueueUpdateDraw(ui.togglePlayback)
}

func (ui *UI) Stop() {
	ui.do(ui.player.Stop)
}

func (ui *UI) Next() {
	ui.app.QueueUpdateDraw(ui.nextStation)
}

func (ui *UI) Previous() {
	ui.app.QueueUpdateDraw(ui.prevStation)
}

func (ui *UI) togglePlayback() {
	if ui.statusRenderer.status.State.Active() {
		ui.do(ui.player.TogglePause)
		return
	}
	ui.playSelected()
}

func (ui *UI) globalInputHandler(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyRune:
		switch event.Rune() {
		case 'q', 'Q':
			ui.stop()
			return nil
		case ' ':
			ui.togglePlayback()
			return nil
		case 's', 'S':
			ui.do(ui.player.Stop)
			return nil
		case '>':
			ui.nextStation()
			return nil
		case '<':
			ui.prevStation()
			return nil
		case 'r', 'R':
			ui.randomStation()
			return nil
		case 'w', 'W':
			ui.saveSelected()
			return nil
		case 'd', 'D':
			ui.removeSelected()
			return nil
		case '/':
			ui.showSearchModal()
			return nil
		case '+', '=':
			ui.adjustVolume(VolumeStep)
			return nil
		case '-', '_':
			ui.adjustVolume(-VolumeStep)
			return nil
		case 'm', 'M':
			ui.toggleMute()
			return nil
		case '?':
			ui.showHelpModal()
			return nil
		case 'a', 'A':
			ui.showAboutModal()
			return nil
		}
	case tcell.KeyTab:
		ui.switchSource()
		return nil
	case tcell.KeyEnter:
		ui.playSelected()
		return nil
	case tcell.KeyEscape:
		ui.stop()
		return nil
	case tcell.KeyRight:
		// Right arrow - volume up (hidden shortcut)
		ui.adjustVolume(VolumeStep)
		return nil
	case tcell.KeyLeft:
		// Left arrow - volume down (hidden shortcut)
		ui.adjustVolume(-VolumeStep)
		return nil
	}
	return event
}
