// Package replay resolves source file locations for UFS replay output.
//
// Replay NetCDF files are grouped by DA cycle under
// {root}/{YYYY}/{MM}/{YYYYMMDDHH}/ and named
// {prefix}{YYYYMMDDHH}_fhr{FH}_control, where prefix selects the file family
// (bfg_ physics, sfg_ dynamics) and FH is the forecast lead hour. The
// canonical public archive lives at s3://noaa-ufs-gefsv13replay-pds.
package replay

import (
	"fmt"
	"strings"
	"time"
)

// DefaultBucket is the public 1-degree replay archive.
const DefaultBucket = "s3://noaa-ufs-gefsv13replay-pds/1deg"

// CachePrefix marks a URI for read-through local caching. The wrapped URI is
// untouched; fsio strips the prefix and caches the fetched object.
const CachePrefix = "simplecache::"

// CycleToken formats a cycle timestamp as the fixed-width YYYYMMDDHH token
// used in directory and file names.
func CycleToken(cycle time.Time) string {
	return cycle.UTC().Format("2006010215")
}

// Resolver generates source paths for one archive root.
type Resolver struct {
	// Root is the directory or bucket URI the cycle tree lives under.
	Root string
}

// Paths returns the source URIs for one cycle, prefix-major and lead-minor.
// It is a pure function of its inputs: len(result) == len(prefixes)*len(fhrs).
func (r Resolver) Paths(cycle time.Time, fhrs []int, prefixes []string) []string {
	token := CycleToken(cycle)
	dir := strings.TrimSuffix(r.Root, "/") + "/" + cycle.UTC().Format("2006/01") + "/" + token

	out := make([]string, 0, len(prefixes)*len(fhrs))
	for _, prefix := range prefixes {
		for _, fhr := range fhrs {
			out = append(out, fmt.Sprintf("%s/%s%s_fhr%02d_control", dir, prefix, token, fhr))
		}
	}
	return out
}

// CachedPaths is Paths with every URI wrapped for read-through caching.
func (r Resolver) CachedPaths(cycle time.Time, fhrs []int, prefixes []string) []string {
	paths := r.Paths(cycle, fhrs, prefixes)
	for i, p := range paths {
		paths[i] = WithCache(p)
	}
	return paths
}

// WithCache wraps a URI with the caching token. Already-wrapped URIs are
// returned unchanged.
func WithCache(uri string) string {
	if strings.HasPrefix(uri, CachePrefix) {
		return uri
	}
	return CachePrefix + uri
}

// SplitCache strips the caching token, reporting whether it was present.
func SplitCache(uri string) (string, bool) {
	if rest, ok := strings.CutPrefix(uri, CachePrefix); ok {
		return rest, true
	}
	return uri, false
}
