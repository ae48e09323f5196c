package models

import (
	"fmt"
	"strings"
	"time"
)

// FetchPolicy decides whether a resolution may be served from the cache.
// The set of implementations is closed; see the isFetchPolicy marker.
type FetchPolicy interface {
	isFetchPolicy()
	String() string
}

// ReloadRevalidatingCacheData always goes to the network.
type ReloadRevalidatingCacheData struct{}

// ReturnCacheDataElseLoad serves any cached value regardless of age.
type ReturnCacheDataElseLoad struct{}

// ReturnCacheDataIfNotExpiredElseLoad serves a cached value only when
// now - SnapshotAt <= MaxAge.
type ReturnCacheDataIfNotExpiredElseLoad struct {
	MaxAge time.Duration
}

func (ReloadRevalidatingCacheData) isFetchPolicy()         {}
func (ReturnCacheDataElseLoad) isFetchPolicy()             {}
func (ReturnCacheDataIfNotExpiredElseLoad) isFetchPolicy() {}

func (ReloadRevalidatingCacheData) String() string { return "reload" }
func (ReturnCacheDataElseLoad) String() string     { return "cache" }
func (p ReturnCacheDataIfNotExpiredElseLoad) String() string {
	return "cache_if_fresh:" + p.MaxAge.String()
}

// DefaultFetchPolicy is used when a caller does not pick one.
func DefaultFetchPolicy() FetchPolicy {
	return ReloadRevalidatingCacheData{}
}

// ParseFetchPolicy reads the textual form produced by String.
func ParseFetchPolicy(raw string) (FetchPolicy, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "" || raw == "reload":
		return ReloadRevalidatingCacheData{}, nil
	case raw == "cache":
		return ReturnCacheDataElseLoad{}, nil
	case strings.HasPrefix(raw, "cache_if_fresh:"):
		d, err := time.ParseDuration(strings.TrimPrefix(raw, "cache_if_fresh:"))
		if err != nil {
			return nil, fmt.Errorf("parse max age: %w", err)
		}
		if d < 0 {
			return nil, fmt.Errorf("max age must not be negative")
		}
		return ReturnCacheDataIfNotExpiredElseLoad{MaxAge: d}, nil
	default:
		return nil, fmt.Errorf("unknown fetch policy %q", raw)
	}
}
