package library

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"strings"
)

// Checksum returns the hex-encoded SHA-256 of the raw manifest bytes.
func Checksum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Parse decodes a manifest into content entries. Recommendations sharing an
// id collapse to the last occurrence, kept at the position of the first.
func Parse(data []byte) ([]ContentEntry, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ParseError{Episode: -1, Recommendation: -1, Msg: "empty document"}
	}
	var episodes []Episode
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&episodes); err != nil {
		return nil, &ParseError{Episode: -1, Recommendation: -1, Msg: "cannot decode episodes", Err: err}
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &ParseError{Episode: -1, Recommendation: -1, Msg: "trailing data after episodes array"}
	}

	var out []ContentEntry
	pos := make(map[string]int)
	for ei, ep := range episodes {
		if ep.Recommendations == nil {
			return nil, &ParseError{Episode: ei, Recommendation: -1, Msg: "missing recommendations"}
		}
		for ri, rec := range ep.Recommendations {
			rec.ID = strings.TrimSpace(rec.ID)
			switch {
			case rec.ID == "":
				return nil, &ParseError{Episode: ei, Recommendation: ri, Msg: "missing id"}
			case strings.TrimSpace(rec.Title) == "":
				return nil, &ParseError{Episode: ei, Recommendation: ri, Msg: "missing title for " + rec.ID}
			case rec.EstimatedTimeSec < 0 || rec.CooldownSec < 0:
				return nil, &ParseError{Episode: ei, Recommendation: ri, Msg: "negative duration for " + rec.ID}
			}
			if i, ok := pos[rec.ID]; ok {
				out[i] = rec
				continue
			}
			pos[rec.ID] = len(out)
			out = append(out, rec)
		}
	}
	return out, nil
}
