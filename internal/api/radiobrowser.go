// Package api provides the HTTP client for the radio-browser.info directory.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/glebovdev/rtap/internal/config"
	"github.com/glebovdev/rtap/internal/decoder"
	"github.com/glebovdev/rtap/internal/station"
)

const (
	ProviderName   = "radio-browser"
	searchPath     = "/json/stations/search"
	requestTimeout = 30 * time.Second
)

// RadioBrowserClient searches the radio-browser.info station directory.
type RadioBrowserClient struct {
	client *resty.Client
	order  string
}

// NewRadioBrowserClient creates a client for baseURL. An empty order keeps
// the directory's default ordering.
func NewRadioBrowserClient(baseURL, order string) *RadioBrowserClient {
	if baseURL == "" {
		baseURL = config.DefaultDirectoryBaseURL
	}
	return &RadioBrowserClient{
		client: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(requestTimeout).
			SetHeader("User-Agent", fmt.Sprintf("%s/%s", config.AppName, config.AppVersion)).
			SetHeader("Accept", "application/json"),
		order: order,
	}
}

func (c *RadioBrowserClient) Name() string {
	return ProviderName
}

type radioStation struct {
	UUID        string `json:"stationuuid"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	URLResolved string `json:"url_resolved"`
	Codec       string `json:"codec"`
	Bitrate     int    `json:"bitrate"`
	Tags        string `json:"tags"`
	Country     string `json:"country"`
	CountryCode string `json:"countrycode"`
	Votes       int    `json:"votes"`
}

func (r radioStation) toStation() station.Station {
	streamURL := r.URLResolved
	if streamURL == "" {
		streamURL = r.URL
	}
	country := r.CountryCode
	if country == "" {
		country = r.Country
	}
	return station.Station{
		Provider:   ProviderName,
		ProviderID: r.UUID,
		Name:       strings.TrimSpace(r.Name),
		URL:        streamURL,
		Codec:      strings.ToUpper(r.Codec),
		Bitrate:    r.Bitrate,
		Tags:       station.ParseTags(r.Tags),
		Country:    country,
		Votes:      r.Votes,
	}
}

// searchParams builds the query for filter.
func (c *RadioBrowserClient) searchParams(filter station.Filter) url.Values {
	params := url.Values{}
	params.Set("hidebroken", "true")
	if filter.Limit > 0 {
		params.Set("limit", strconv.Itoa(filter.Limit))
	}
	if filter.Offset > 0 {
		params.Set("offset", strconv.Itoa(filter.Offset))
	}

	order := c.order
	switch filter.OrderBy {
	case station.OrderByName:
		order = "name"
	case station.OrderByVotes:
		order = "votes"
	case station.OrderByCreated:
		order = "changetimestamp"
	}
	if order != "" {
		params.Set("order", order)
		if order == "votes" || order == "changetimestamp" {
			params.Set("reverse", "true")
		}
	}

	if q := strings.TrimSpace(filter.Query); q != "" {
		params.Set("name", q)
	}
	return params
}

// Search returns the directory stations matching filter whose codec can be
// played.
func (c *RadioBrowserClient) Search(ctx context.Context, filter station.Filter) ([]station.Station, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParamsFromValues(c.searchParams(filter)).
		Get(searchPath)
	if err != nil {
		return nil, fmt.Errorf("failed to search stations: %w", err)
	}

	if !resp.IsSuccess() {
		return nil, fmt.Errorf("api returned status %d: %s", resp.StatusCode(), resp.Status())
	}

	var response []radioStation
	if err := json.Unmarshal(resp.Body(), &response); err != nil {
		return nil, fmt.Errorf("failed to parse stations response: %w", err)
	}

	stations := make([]station.Station, 0, len(response))
	skipped := 0
	for _, rs := range response {
		if rs.URL == "" && rs.URLResolved == "" {
			skipped++
			continue
		}
		if !decoder.Supported(rs.Codec) {
			skipped++
			continue
		}
		stations = append(stations, rs.toStation())
	}
	log.Debug().Int("stations", len(stations)).Int("skipped", skipped).Msg("Directory search complete")

	return stations, nil
}
