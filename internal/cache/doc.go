// Package cache persists stage results keyed by item key and stage name.
//
// Entries live at <root>/<stage>/<key>.json and are written through a unique
// temp file followed by a rename, so readers never observe partial data. A
// go-cache memory layer answers repeat lookups inside one process. Each entry
// records the producer version that created it; lookups that expect another
// version treat the entry as absent.
//
// Get never returns errors: unreadable or corrupt entries are logged and
// reported as misses so a damaged cache cannot stop a run. Load exposes the
// typed failure for callers that need it.
package cache
