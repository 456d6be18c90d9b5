package attribution

import "testing"

func TestFor_KnownPrefixes(t *testing.T) {
	tests := []struct {
		contentID string
		source    string
	}{
		{"wiki-hypothermia", "Wikipedia"},
		{"health-burns", "World Health Organization"},
		{"survival-shelter", "US Army Field Manuals"},
		{"law-right-to-roam", "legislation.gov.uk"},
	}

	for _, tt := range tests {
		record := For(tt.contentID)
		if record.Source != tt.source {
			t.Errorf("For(%s): expected source %s, got %s", tt.contentID, tt.source, record.Source)
		}
		if record.License == "" || record.AttributionText == "" {
			t.Errorf("For(%s): incomplete record %+v", tt.contentID, record)
		}
	}
}

func TestFor_UnknownFallsBack(t *testing.T) {
	for _, id := range []string{"custom-notes", "", "healthless"} {
		record := For(id)
		if record.Source != defaultRecord.Source {
			t.Errorf("For(%q): expected fallback record, got %+v", id, record)
		}
	}
}
