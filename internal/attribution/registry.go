// Package attribution maps content ids to static license and source
// metadata by id-prefix convention.
package attribution

import (
	"strings"

	"github.com/packrat-app/packrat/internal/domain"
)

type entry struct {
	prefix string
	record domain.Attribution
}

// Longest prefixes first so more specific sources win.
var entries = []entry{
	{
		prefix: "wiki-",
		record: domain.Attribution{
			Source:          "Wikipedia",
			License:         "CC BY-SA 4.0",
			AttributionText: "Content adapted from Wikipedia, licensed under CC BY-SA 4.0.",
			Link:            "https://creativecommons.org/licenses/by-sa/4.0/",
		},
	},
	{
		prefix: "health-",
		record: domain.Attribution{
			Source:          "World Health Organization",
			License:         "CC BY-NC-SA 3.0 IGO",
			AttributionText: "Health guidance adapted from WHO publications.",
			Link:            "https://www.who.int/about/policies/publishing/copyright",
		},
	},
	{
		prefix: "survival-",
		record: domain.Attribution{
			Source:          "US Army Field Manuals",
			License:         "Public Domain",
			AttributionText: "Survival content adapted from public-domain US Army field manuals.",
		},
	},
	{
		prefix: "law-",
		record: domain.Attribution{
			Source:          "legislation.gov.uk",
			License:         "Open Government Licence v3.0",
			AttributionText: "Contains public sector information licensed under the Open Government Licence v3.0.",
			Link:            "https://www.nationalarchives.gov.uk/doc/open-government-licence/version/3/",
		},
	},
}

var defaultRecord = domain.Attribution{
	Source:          "Mixed/various",
	License:         "See individual items",
	AttributionText: "Content compiled from multiple openly licensed sources.",
}

// For returns the attribution record for a content id. Always returns a
// record; unmatched prefixes get the generic mixed/various entry.
func For(contentID string) domain.Attribution {
	for _, e := range entries {
		if strings.HasPrefix(contentID, e.prefix) {
			return e.record
		}
	}
	return defaultRecord
}
