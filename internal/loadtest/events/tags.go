package events

import (
	"encoding/json"
)

// TaxonomyRecord is one row for the taxonomy table.
type TaxonomyRecord struct {
	ID   int
	Name string
}

// TagRecord is one row for the tag table. Hierarchy is the JSON list of
// ancestor values, highest parent first, the way Studio publishes it.
type TagRecord struct {
	TagID       int
	TaxonomyID  int
	Value       string
	ExternalID  string
	ParentTagID int
	Hierarchy   string
}

// ObjectTagRecord is one tag applied to one block.
type ObjectTagRecord struct {
	ObjectID   string
	TaxonomyID int
	TagID      int
	Value      string
	Hierarchy  string
}

// seedTag is a fixture entry for the built-in sample taxonomy. Parents sort
// before children so the hierarchy can be resolved in one pass.
type seedTag struct {
	id     string
	parent string
	value  string
}

// A small genre tree standing in for a real imported taxonomy.
var musicTags = []seedTag{
	{"music-classical", "", "Classical"},
	{"music-jazz", "", "Jazz"},
	{"music-rock", "", "Rock"},
	{"music-electronic", "", "Electronic"},
	{"music-folk", "", "Folk"},
	{"music-baroque", "music-classical", "Baroque"},
	{"music-romantic", "music-classical", "Romantic"},
	{"music-opera", "music-classical", "Opera"},
	{"music-bebop", "music-jazz", "Bebop"},
	{"music-swing", "music-jazz", "Swing"},
	{"music-fusion", "music-jazz", "Fusion"},
	{"music-blues-rock", "music-rock", "Blues Rock"},
	{"music-punk", "music-rock", "Punk"},
	{"music-metal", "music-rock", "Metal"},
	{"music-house", "music-electronic", "House"},
	{"music-techno", "music-electronic", "Techno"},
	{"music-ambient", "music-electronic", "Ambient"},
	{"music-bluegrass", "music-folk", "Bluegrass"},
	{"music-celtic", "music-folk", "Celtic"},
	{"music-hardcore-punk", "music-punk", "Hardcore Punk"},
	{"music-thrash-metal", "music-metal", "Thrash Metal"},
	{"music-deep-house", "music-house", "Deep House"},
	{"music-chamber", "music-baroque", "Chamber"},
	{"music-cool-jazz", "music-bebop", "Cool Jazz"},
}

// buildTaxonomies expands the seed fixture into taxonomy and tag rows with
// resolved integer ids and ancestor hierarchies.
func buildTaxonomies() ([]TaxonomyRecord, []TagRecord) {
	taxonomies := []TaxonomyRecord{{ID: 1, Name: "Music"}}

	type resolved struct {
		tagID     int
		value     string
		parent    string
		hierarchy []string
	}
	byExternalID := map[string]resolved{}

	tags := make([]TagRecord, 0, len(musicTags))
	for i, seed := range musicTags {
		tagID := i + 1

		hierarchy := []string{}
		parentTagID := 0
		if parent, ok := byExternalID[seed.parent]; ok {
			parentTagID = parent.tagID
			hierarchy = append(append(hierarchy, parent.hierarchy...), parent.value)
		}
		hierarchyJSON, _ := json.Marshal(hierarchy)

		byExternalID[seed.id] = resolved{
			tagID:     tagID,
			value:     seed.value,
			parent:    seed.parent,
			hierarchy: hierarchy,
		}
		tags = append(tags, TagRecord{
			TagID:       tagID,
			TaxonomyID:  1,
			Value:       seed.value,
			ExternalID:  seed.id,
			ParentTagID: parentTagID,
			Hierarchy:   string(hierarchyJSON),
		})
	}
	return taxonomies, tags
}
