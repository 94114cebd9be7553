package history

import (
	"encoding/json"
	"fmt"
	"time"
)

// MetaFile is the metadata file written next to the snapshot blobs.
const MetaFile = "snapshot.json"

// Meta records where and when a snapshot was captured.
type Meta struct {
	CapturedAt  time.Time      `json:"captured_at"`
	BaseURL     string         `json:"base_url"`
	ToolVersion string         `json:"tool_version"`
	Counts      map[string]int `json:"counts"`
}

// Marshal renders the metadata as indented JSON with a trailing newline.
func (m *Meta) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", MetaFile, err)
	}
	return append(data, '\n'), nil
}

// ReadMeta loads the metadata stored in commit c.
func (r *Repo) ReadMeta(c Commit) (*Meta, error) {
	data, err := r.ReadBlob(c, MetaFile)
	if err != nil {
		return nil, err
	}
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing %s at %s: %w", MetaFile, c.Short(), err)
	}
	return &m, nil
}
