// Package service provides the business logic layer for managing station data.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/glebovdev/rtap/internal/cache"
	"github.com/glebovdev/rtap/internal/catalog"
	"github.com/glebovdev/rtap/internal/station"
)

const fetchTimeout = 30 * time.Second

// Source selects where the station list comes from.
type Source int

const (
	SourceLibrary Source = iota
	SourceDirectory
)

func (s Source) String() string {
	if s == SourceDirectory {
		return "Directory"
	}
	return "Library"
}

// Directory is a remote station directory.
type Directory interface {
	Name() string
	Search(ctx context.Context, filter station.Filter) ([]station.Station, error)
}

// Library is the local store of saved stations.
type Library interface {
	Search(filter station.Filter) ([]station.Station, error)
	Create(st station.Station) (station.Station, error)
	FindByURL(url string) (station.Station, error)
	Delete(id int64) error
}

// StationService manages the station list of the active source, the saved
// markers, and periodic refresh.
type StationService struct {
	library   Library
	directory Directory
	results   *cache.Cache
	pageSize  int

	mu       sync.RWMutex
	source   Source
	query    string
	stations []station.Station
	saved    map[string]bool
	stale    bool

	refreshTicker *time.Ticker
	stopRefresh   chan struct{}
	onRefresh     func([]station.Station)
}

// NewStationService creates a service. Any of library, directory and
// results may be nil.
func NewStationService(library Library, directory Directory, results *cache.Cache, pageSize int) *StationService {
	if results != nil {
		go func() {
			if err := results.CleanExpired(); err != nil {
				log.Debug().Err(err).Msg("Failed to clean expired cache")
			}
		}()
	}

	return &StationService{
		library:   library,
		directory: directory,
		results:   results,
		pageSize:  pageSize,
		saved:     make(map[string]bool),
	}
}

func (s *StationService) Source() Source {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

// SetSource switches the active source. Call GetStations to load it.
func (s *StationService) SetSource(src Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = src
}

func (s *StationService) Query() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.query
}

// SetQuery sets the name filter applied by the next load.
func (s *StationService) SetQuery(query string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.query = query
}

// Stale reports whether the current list came from an expired cache entry
// because the directory could not be reached.
func (s *StationService) Stale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stale
}

// GetStations loads the active source and makes it the current list.
func (s *StationService) GetStations(ctx context.Context) ([]station.Station, error) {
	s.mu.RLock()
	src, query := s.source, s.query
	s.mu.RUnlock()

	stations, stale, err := s.fetch(ctx, src, query)
	if err != nil {
		return nil, err
	}
	saved := s.loadSaved()

	s.mu.Lock()
	if s.source == src && s.query == query {
		s.stations = stations
		s.stale = stale
	}
	if saved != nil {
		s.saved = saved
	}
	s.mu.Unlock()

	return stations, nil
}

func (s *StationService) fetch(ctx context.Context, src Source, query string) ([]station.Station, bool, error) {
	if src == SourceLibrary {
		if s.library == nil {
			return []station.Station{}, false, nil
		}
		stations, err := s.library.Search(station.Filter{Query: query, OrderBy: station.OrderByName})
		return stations, false, err
	}

	if s.directory == nil {
		return nil, false, errors.New("no station directory configured")
	}

	filter := station.Filter{Query: query, Limit: s.pageSize}
	key := fmt.Sprintf("%s|q=%s|limit=%d", s.directory.Name(), query, s.pageSize)
	if s.results != nil {
		if stations, ok := s.results.Get(key); ok {
			log.Debug().Str("key", key).Int("count", len(stations)).Msg("Directory result loaded from cache")
			return stations, false, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	stations, err := s.directory.Search(ctx, filter)
	if err != nil {
		if s.results != nil {
			if cached, savedAt, ok := s.results.GetStale(key); ok {
				log.Warn().Err(err).Time("saved_at", savedAt).Msg("Directory unreachable, using cached stations")
				return cached, true, nil
			}
		}
		return nil, false, err
	}

	if s.results != nil {
		if err := s.results.Save(key, stations); err != nil {
			log.Debug().Err(err).Str("key", key).Msg("Failed to cache directory result")
		}
	}
	return stations, false, nil
}

// loadSaved returns the set of saved station URLs, or nil when the library
// could not be read.
func (s *StationService) loadSaved() map[string]bool {
	saved := make(map[string]bool)
	if s.library == nil {
		return saved
	}
	stations, err := s.library.Search(station.Filter{})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read library")
		return nil
	}
	for _, st := range stations {
		saved[st.URL] = true
	}
	return saved
}

func (s *StationService) GetCachedStations() []station.Station {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]station.Station, len(s.stations))
	copy(result, s.stations)
	return result
}

// IsSaved reports whether the station with url is in the library.
func (s *StationService) IsSaved(url string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saved[url]
}

// Save adds st to the library. Saving a station twice is not an error.
func (s *StationService) Save(st station.Station) error {
	if s.library == nil {
		return errors.New("no library configured")
	}
	st.ID = 0
	if _, err := s.library.Create(st); err != nil && !errors.Is(err, catalog.ErrDuplicate) {
		return err
	}

	s.mu.Lock()
	s.saved[st.URL] = true
	s.mu.Unlock()

	log.Info().Str("url", st.URL).Msgf("Saved %s to library", st.DisplayName())
	return nil
}

// Remove deletes the station with url from the library. In the Library
// source it also leaves the current list.
func (s *StationService) Remove(url string) error {
	if s.library == nil {
		return errors.New("no library configured")
	}
	st, err := s.library.FindByURL(url)
	if err != nil {
		return err
	}
	if err := s.library.Delete(st.ID); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.saved, url)
	if s.source == SourceLibrary {
		kept := s.stations[:0:0]
		for _, existing := range s.stations {
			if existing.URL != url {
				kept = append(kept, existing)
			}
		}
		s.stations = kept
	}
	s.mu.Unlock()

	log.Info().Str("url", url).Msgf("Removed %s from library", st.DisplayName())
	return nil
}

func (s *StationService) FindIndexByURL(url string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i, st := range s.stations {
		if st.URL == url {
			return i
		}
	}
	return -1
}

func (s *StationService) StationCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.stations)
}

// GetStation returns a copy of the station at the given index.
// Returns nil if the index is out of bounds.
// The returned station is a copy to prevent invalidation when the internal slice is refreshed.
func (s *StationService) GetStation(index int) *station.Station {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if index < 0 || index >= len(s.stations) {
		return nil
	}
	st := s.stations[index]
	return &st
}

func (s *StationService) StartPeriodicRefresh(interval time.Duration, callback func([]station.Station)) {
	s.StopPeriodicRefresh()

	s.mu.Lock()
	s.onRefresh = callback
	s.stopRefresh = make(chan struct{})
	s.refreshTicker = time.NewTicker(interval)
	ticker := s.refreshTicker
	stopCh := s.stopRefresh
	s.mu.Unlock()

	go func() {
		for {
			select {
			case <-ticker.C:
				s.refreshStationsInBackground()
			case <-stopCh:
				ticker.Stop()
				return
			}
		}
	}()

	log.Debug().Dur("interval", interval).Msg("Started periodic station refresh")
}

func (s *StationService) StopPeriodicRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopRefresh != nil {
		close(s.stopRefresh)
		s.stopRefresh = nil
		log.Debug().Msg("Stopped periodic station refresh")
	}
}

// refreshStationsInBackground reloads the directory source. The library
// only changes through this service, so it is never polled.
func (s *StationService) refreshStationsInBackground() {
	if s.Source() != SourceDirectory {
		return
	}

	newStations, err := s.GetStations(context.Background())
	if err != nil {
		log.Warn().Err(err).Msg("Background refresh failed, keeping cached data")
		return
	}

	s.mu.RLock()
	callback := s.onRefresh
	s.mu.RUnlock()

	if callback != nil {
		callback(newStations)
	}

	log.Debug().Int("count", len(newStations)).Msg("Station data refreshed in background")
}
