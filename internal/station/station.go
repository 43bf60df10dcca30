// Package station defines radio station records shared by the directory
// client, the local library and the player.
package station

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// Station is a radio station as stored in the library or returned by a
// directory provider.
type Station struct {
	ID         int64     `db:"id" json:"id"`
	Provider   string    `db:"provider" json:"provider"`
	ProviderID string    `db:"provider_id" json:"provider_id"`
	Name       string    `db:"name" json:"name"`
	URL        string    `db:"url" json:"url"`
	Codec      string    `db:"codec" json:"codec"`
	Bitrate    int       `db:"bitrate" json:"bitrate"`
	Tags       Tags      `db:"tags" json:"tags"`
	Country    string    `db:"country" json:"country"`
	Votes      int       `db:"-" json:"votes,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at,omitempty"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// Ref is the playable identity of a station handed to the player.
type Ref struct {
	URL       string
	CodecHint string
	Bitrate   int
	Name      string
}

func (s *Station) Ref() Ref {
	return Ref{
		URL:       s.URL,
		CodecHint: s.Codec,
		Bitrate:   s.Bitrate,
		Name:      s.Name,
	}
}

// DisplayName falls back to the URL for unnamed stations.
func (s *Station) DisplayName() string {
	if name := strings.TrimSpace(s.Name); name != "" {
		return name
	}
	return s.URL
}

// Quality describes the advertised bitrate.
func (s *Station) Quality() string {
	return QualityFor(s.Bitrate)
}

func QualityFor(bitrate int) string {
	switch {
	case bitrate >= 256:
		return "highest"
	case bitrate >= 128:
		return "high"
	case bitrate >= 64:
		return "medium"
	case bitrate > 0:
		return "low"
	default:
		return ""
	}
}

// Tags is a tag list stored as comma-separated text.
type Tags []string

// ParseTags splits a comma-separated list, dropping blanks.
func ParseTags(csv string) Tags {
	var tags Tags
	for _, t := range strings.Split(csv, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func (t Tags) String() string {
	return strings.Join(t, ",")
}

func (t Tags) Value() (driver.Value, error) {
	return t.String(), nil
}

func (t *Tags) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*t = nil
	case string:
		*t = ParseTags(v)
	case []byte:
		*t = ParseTags(string(v))
	default:
		return fmt.Errorf("cannot scan %T into Tags", src)
	}
	return nil
}

type OrderBy string

const (
	OrderByName    OrderBy = "name"
	OrderByCreated OrderBy = "created"
	OrderByVotes   OrderBy = "votes"
)

// Filter selects a page of stations.
type Filter struct {
	Query   string
	OrderBy OrderBy
	Limit   int
	Offset  int
}
