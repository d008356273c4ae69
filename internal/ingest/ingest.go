// Package ingest discovers report files on the local filesystem.
package ingest

import "time"

// File is one discovered report.
type File struct {
	Path    string
	Ext     string // lowercased, without '.'
	Format  string // constants.PDF | IMAGE | HTML | TXT
	Size    int64
	HashHex string // sha256 of the content
	ModTime time.Time
}

// Failure records a path that could not be read.
type Failure struct {
	Path string
	Err  string
}

// DirStats summarizes a directory walk.
type DirStats struct {
	Scanned uint32
	Matched uint32
	Skipped uint32
	Failed  uint32
}
