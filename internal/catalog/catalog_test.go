package catalog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glebovdev/rtap/internal/station"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "library.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func jazz() station.Station {
	return station.Station{
		Provider:   "radio-browser",
		ProviderID: "a1",
		Name:       "Jazz FM",
		URL:        "http://example.com/jazz",
		Codec:      "MP3",
		Bitrate:    128,
		Tags:       station.Tags{"jazz", "smooth"},
		Country:    "GB",
	}
}

func TestDriverFor(t *testing.T) {
	tests := []struct {
		dsn    string
		driver string
		source string
	}{
		{"postgres://u:p@localhost/rtap", driverPostgres, "postgres://u:p@localhost/rtap"},
		{"PostgreSQL://localhost/rtap?sslmode=disable", driverPostgres, "PostgreSQL://localhost/rtap?sslmode=disable"},
		{"/home/me/.config/rtap/library.db", driverSQLite, "/home/me/.config/rtap/library.db?_busy_timeout=5000"},
		{"file:lib.db?cache=shared", driverSQLite, "file:lib.db?cache=shared"},
		{":memory:", driverSQLite, ":memory:"},
	}

	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			driver, source := driverFor(tt.dsn)
			assert.Equal(t, tt.driver, driver)
			assert.Equal(t, tt.source, source)
		})
	}
}

func TestCreateAndFind(t *testing.T) {
	store := openTestStore(t)

	before := time.Now().UTC()
	created, err := store.Create(jazz())
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.False(t, created.CreatedAt.Before(before.Add(-time.Second)))

	found, err := store.FindByURL("http://example.com/jazz")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, "Jazz FM", found.Name)
	assert.Equal(t, "radio-browser", found.Provider)
	assert.Equal(t, "a1", found.ProviderID)
	assert.Equal(t, "MP3", found.Codec)
	assert.Equal(t, 128, found.Bitrate)
	assert.Equal(t, station.Tags{"jazz", "smooth"}, found.Tags)
	assert.Equal(t, "GB", found.Country)
	assert.WithinDuration(t, created.CreatedAt, found.CreatedAt, time.Second)

	n, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCreateRejectsDuplicateURL(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Create(jazz())
	require.NoError(t, err)

	_, err = store.Create(jazz())
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestCreateRequiresURL(t *testing.T) {
	store := openTestStore(t)

	st := jazz()
	st.URL = "  "
	_, err := store.Create(st)
	assert.Error(t, err)
}

func TestFindByURLNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.FindByURL("http://example.com/missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSearch(t *testing.T) {
	store := openTestStore(t)

	for _, st := range []station.Station{
		{Name: "Drone Zone", URL: "http://example.com/drone", Tags: station.Tags{"ambient"}},
		jazz(),
		{Name: "ambient sleep", URL: "http://example.com/sleep"},
		{Name: "Bossa Beyond", URL: "http://example.com/bossa", Tags: station.Tags{"latin", "Jazz"}},
	} {
		_, err := store.Create(st)
		require.NoError(t, err)
	}

	all, err := store.Search(station.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"ambient sleep", "Bossa Beyond", "Drone Zone", "Jazz FM"}, names(all))

	byQuery, err := store.Search(station.Filter{Query: "JAZZ"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bossa Beyond", "Jazz FM"}, names(byQuery))

	byTag, err := store.Search(station.Filter{Query: "ambient"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ambient sleep", "Drone Zone"}, names(byTag))

	page, err := store.Search(station.Filter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bossa Beyond", "Drone Zone"}, names(page))

	tail, err := store.Search(station.Filter{Offset: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"Jazz FM"}, names(tail))

	newest, err := store.Search(station.Filter{OrderBy: station.OrderByCreated, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bossa Beyond"}, names(newest))
}

func TestSearchEmpty(t *testing.T) {
	store := openTestStore(t)

	got, err := store.Search(station.Filter{Query: "anything"})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestUpdate(t *testing.T) {
	store := openTestStore(t)

	created, err := store.Create(jazz())
	require.NoError(t, err)

	created.Name = "Jazz FM London"
	created.Bitrate = 320
	created.Tags = nil
	updated, err := store.Update(created)
	require.NoError(t, err)
	assert.False(t, updated.UpdatedAt.Before(created.UpdatedAt))

	found, err := store.FindByURL(created.URL)
	require.NoError(t, err)
	assert.Equal(t, "Jazz FM London", found.Name)
	assert.Equal(t, 320, found.Bitrate)
	assert.Empty(t, found.Tags)
}

func TestUpdateMissing(t *testing.T) {
	store := openTestStore(t)

	st := jazz()
	st.ID = 42
	_, err := store.Update(st)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateToExistingURL(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Create(jazz())
	require.NoError(t, err)
	other, err := store.Create(station.Station{Name: "Other", URL: "http://example.com/other"})
	require.NoError(t, err)

	other.URL = jazz().URL
	_, err = store.Update(other)
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestDelete(t *testing.T) {
	store := openTestStore(t)

	created, err := store.Create(jazz())
	require.NoError(t, err)

	require.NoError(t, store.Delete(created.ID))
	assert.ErrorIs(t, store.Delete(created.ID), ErrNotFound)

	_, err = store.FindByURL(created.URL)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReopenKeepsStations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library.db")

	store, err := Open(path)
	require.NoError(t, err)
	_, err = store.Create(jazz())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()

	n, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func names(stations []station.Station) []string {
	out := make([]string, len(stations))
	for i, st := range stations {
		out[i] = st.Name
	}
	return out
}
