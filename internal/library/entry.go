// Package library models the content manifest: episodes carrying
// recommendations, each of which becomes one catalog ContentEntry.
package library

// ContentEntry is one recommendation in the content library. ID is shared
// with the vector index key.
type ContentEntry struct {
	ID               string   `json:"id"`
	Title            string   `json:"title"`
	ShortDescription string   `json:"shortDescription"`
	Detail           string   `json:"detail,omitempty"`
	Tags             []string `json:"tags,omitempty"`
	EstimatedTimeSec int      `json:"estimatedTimeSec,omitempty"`
	Difficulty       string   `json:"difficulty,omitempty"`
	Category         string   `json:"category,omitempty"`
	SourceURL        string   `json:"sourceURL,omitempty"`
	EvidenceBadge    string   `json:"evidenceBadge,omitempty"`
	CooldownSec      int      `json:"cooldownSec,omitempty"`
}

// Episode groups recommendations in the manifest.
type Episode struct {
	ID              string         `json:"id,omitempty"`
	Title           string         `json:"title,omitempty"`
	Recommendations []ContentEntry `json:"recommendations"`
}
