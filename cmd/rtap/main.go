package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/glebovdev/rtap/internal/api"
	"github.com/glebovdev/rtap/internal/cache"
	"github.com/glebovdev/rtap/internal/catalog"
	"github.com/glebovdev/rtap/internal/config"
	"github.com/glebovdev/rtap/internal/mpris"
	"github.com/glebovdev/rtap/internal/player"
	"github.com/glebovdev/rtap/internal/service"
	"github.com/glebovdev/rtap/internal/sink"
	"github.com/glebovdev/rtap/internal/stream"
	"github.com/glebovdev/rtap/internal/ui"
)

var (
	versionFlag      = flag.Bool("version", false, "Show version information")
	debugFlag        = flag.Bool("debug", false, "Enable debug logging")
	logFileFlag      = flag.String("log-file", "", "Write the debug log to this file (implies -debug)")
	randomFlag       = flag.Bool("random", false, "Start with a random station")
	noAudioFlag      = flag.Bool("no-audio", false, "Decode streams without opening an audio device")
	directoryURLFlag = flag.String("directory-url", "", "Radio Browser API base URL")
	dbFlag           = flag.String("db", "", "Station library: SQLite file or postgres:// URL")
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s v%s - %s\n\n", config.AppName, config.AppVersion, config.AppDescription)
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()

		configPath, err := config.GetConfigPath()
		if err == nil {
			if _, statErr := os.Stat(configPath); statErr == nil {
				fmt.Fprintf(os.Stderr, "\nConfig file: %s\n", configPath)
			} else {
				fmt.Fprintf(os.Stderr, "\nConfig file will be created on first use.\n")
			}
		}
	}
}

// setupLogging keeps log output off the terminal the UI draws on.
func setupLogging(debug bool, logPath string) {
	if !debug {
		// Avoid TUI corruption by only logging errors to /dev/null
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
		logFile, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0644)
		if err == nil {
			log.Logger = log.Output(logFile)
		}
		return
	}

	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	if logPath == "" {
		cacheDir, err := cache.GetCacheDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not get cache dir: %v\n", err)
			cacheDir = os.TempDir()
		}
		logPath = filepath.Join(cacheDir, "debug.log")
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log dir: %v\n", err)
	}

	var out io.Writer
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log file: %v\n", err)
		out = os.Stderr
	} else {
		out = logFile
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: out, NoColor: true, TimeFormat: "15:04:05.000"})
	fmt.Printf("Debug log: %s\n", logPath)
	log.Info().Msgf("Starting %s v%s (debug mode)", config.AppName, config.AppVersion)
}

func libraryDSN(cfg *config.Config) (string, error) {
	if *dbFlag != "" {
		return *dbFlag, nil
	}
	if cfg.Catalog.DSN != "" {
		return cfg.Catalog.DSN, nil
	}
	return config.GetLibraryPath()
}

func newDevice(cfg *config.Config) (sink.Device, func()) {
	if *noAudioFlag {
		log.Info().Msg("Audio output disabled")
		return sink.NewNull(sink.NullConfig{}), func() {}
	}
	speaker := sink.NewSpeaker(sink.SpeakerConfigFromPlayback(cfg.Playback))
	return speaker, speaker.Close
}

func main() {
	flag.Parse()

	if *versionFlag {
		fmt.Printf("%s v%s\n", config.AppName, config.AppVersion)
		fmt.Println(config.AppDescription)
		os.Exit(0)
	}

	os.Exit(run())
}

// run wires the application together and returns the process exit code.
// Every resource it opens is released by a deferred call before it returns.
func run() int {
	debug := *debugFlag || *logFileFlag != ""
	setupLogging(debug, *logFileFlag)

	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
	}
	if *directoryURLFlag != "" {
		cfg.Directory.BaseURL = *directoryURLFlag
	}

	if debug {
		if configPath, err := config.GetConfigPath(); err == nil {
			log.Debug().Msgf("Config: %s", configPath)
		}
		if cacheDir, err := cache.GetCacheDir(); err == nil {
			log.Debug().Msgf("Cache: %s", cacheDir)
		}
	}

	dsn, err := libraryDSN(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	library, err := catalog.Open(dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not open station library: %v\n", err)
		return 1
	}
	defer library.Close()

	results, err := cache.NewCache(time.Duration(cfg.Directory.CacheTTLMinutes) * time.Minute)
	if err != nil {
		log.Warn().Err(err).Msg("Directory cache unavailable")
		results = nil
	}

	directory := api.NewRadioBrowserClient(cfg.Directory.BaseURL, cfg.Directory.Order)
	stationService := service.NewStationService(library, directory, results, cfg.Directory.PageSize)

	device, closeDevice := newDevice(cfg)
	defer closeDevice()
	opener := stream.NewOpener(stream.ConfigFromPlayback(cfg.Playback))
	controller := player.New(opener, device, player.PolicyFromConfig(cfg.Playback))
	// Release the device before the process exits
	defer controller.Close()

	tui := ui.NewUI(controller, stationService, cfg, *randomFlag)
	defer tui.SaveConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bridge, err := mpris.New(tui)
	if err != nil {
		log.Warn().Err(err).Msg("Media key integration unavailable")
	} else {
		defer bridge.Close()
		go bridge.Watch(ctx, controller)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			log.Info().Msg("Received shutdown signal, cleaning up...")
			tui.Shutdown()
		case <-ctx.Done():
		}
	}()

	log.Info().Msg("Starting UI...")

	if err := tui.Run(); err != nil {
		log.Error().Err(err).Msg("Error running UI")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	log.Info().Msgf("%s stopped", config.AppName)
	return 0
}
