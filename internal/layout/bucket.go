// Package layout parses and formats the paths under which node backups are
// stored in the archive.
//
// A backup of a replica node lives at
//
//	<base>/<store>/<shard>/<node>/<bucket>/<file>
//
// and a backup of an admin node at
//
//	<base>/<store>/admin<id>/<bucket>/<file>
//
// where bucket is a time key with day (YYYYMMDD) or hour (YYYYMMDDHH)
// granularity.
package layout

import (
	"time"

	"github.com/restic/kvrecover/internal/errors"
)

// Granularity is the length of the time span a bucket covers.
type Granularity int

const (
	Day Granularity = iota
	Hour
)

const (
	dayFormat  = "20060102"
	hourFormat = "2006010215"
)

func (g Granularity) String() string {
	switch g {
	case Day:
		return "day"
	case Hour:
		return "hour"
	}
	return "unknown"
}

// Bucket is a coarse time key grouping backups.
type Bucket struct {
	Key         string
	Start       time.Time
	Granularity Granularity
}

// ParseBucket parses a bucket key of the form YYYYMMDD or YYYYMMDDHH.
func ParseBucket(key string) (Bucket, error) {
	var layout string
	var g Granularity

	switch len(key) {
	case len(dayFormat):
		layout, g = dayFormat, Day
	case len(hourFormat):
		layout, g = hourFormat, Hour
	default:
		return Bucket{}, errors.Errorf("invalid bucket key %q: want YYYYMMDD or YYYYMMDDHH", key)
	}

	for _, c := range key {
		if c < '0' || c > '9' {
			return Bucket{}, errors.Errorf("invalid bucket key %q: not a number", key)
		}
	}

	start, err := time.ParseInLocation(layout, key, time.UTC)
	if err != nil {
		return Bucket{}, errors.Wrapf(err, "invalid bucket key %q", key)
	}

	return Bucket{Key: key, Start: start, Granularity: g}, nil
}

// End returns the first instant after the bucket.
func (b Bucket) End() time.Time {
	if b.Granularity == Hour {
		return b.Start.Add(time.Hour)
	}
	return b.Start.AddDate(0, 0, 1)
}

// NotAfter returns true if b starts before the end of target. A day target
// admits every hour bucket of that day.
func (b Bucket) NotAfter(target Bucket) bool {
	return b.Start.Before(target.End())
}

// Newer orders buckets newest first. Buckets with the same start are ordered
// by their key, descending, so the order is total.
func (b Bucket) Newer(other Bucket) bool {
	if !b.Start.Equal(other.Start) {
		return b.Start.After(other.Start)
	}
	return b.Key > other.Key
}

func (b Bucket) String() string {
	return b.Key
}
