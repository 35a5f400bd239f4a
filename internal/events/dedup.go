package events

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/seleknir/webrecorder/api/schemas"
)

// Path segments shaped like identifiers are collapsed so that repeated calls
// to the same logical endpoint collide: 24-char lowercase-hex object IDs
// first, then 8-char alphanumeric short IDs.
var (
	hexIDSegment   = regexp.MustCompile(`^[a-f0-9]{24}$`)
	shortIDSegment = regexp.MustCompile(`^[a-zA-Z0-9]{8}$`)
)

// NormalizePath rewrites a URL path into its endpoint pattern: ID-shaped
// segments become placeholders, everything else is untouched. Any query
// string is discarded.
func NormalizePath(path string) string {
	path = strings.SplitN(path, "?", 2)[0]
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		switch {
		case hexIDSegment.MatchString(seg):
			segments[i] = "{id}"
		case shortIDSegment.MatchString(seg):
			segments[i] = "{shortId}"
		}
	}
	return strings.Join(segments, "/")
}

// PatternKey computes the dedup key for a raw URL: scheme, host, and the
// normalized path, with the query string discarded. Unparseable URLs fall
// back to the raw string so they still dedup against exact repeats.
func PatternKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return strings.SplitN(rawURL, "?", 2)[0]
	}
	return u.Scheme + "://" + u.Host + NormalizePath(u.Path)
}

// Reduce collapses the event log to one representative per logical endpoint.
// Order is first-seen order; on a pattern collision the earlier event wins.
// The reduction is idempotent: Reduce(Reduce(e)) == Reduce(e).
func Reduce(events []schemas.NetworkEvent) []schemas.NetworkEvent {
	seen := make(map[string]struct{}, len(events))
	unique := make([]schemas.NetworkEvent, 0, len(events))

	for _, ev := range events {
		key := PatternKey(ev.URL)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, ev)
	}
	return unique
}
