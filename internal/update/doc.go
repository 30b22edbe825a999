// Package update checks the release feed for new plugin versions and installs
// them.
//
// This package handles:
//   - Querying the release API for the latest release, cached in a cache.Store
//   - Comparing release tags against the installed version
//   - Scoping the bearer token to the configured repository's API paths
//   - Downloading, extracting and moving release packages into place
//
// Fetch failures never surface as errors from Checker: they are written to the
// debug log and reported as "no release". Only Updater returns errors.
//
// Example usage:
//
//	checker, err := update.NewChecker(update.DefaultRepository,
//	    update.WithToken(token), update.WithCache(store))
//	if err != nil {
//	    // bad configuration
//	}
//	rel, ok := checker.Latest(ctx, false)
//	if ok && update.IsNewer(rel.TagName, installed) {
//	    // offer the update
//	}
package update
