// Package manifest contains the self-description nodes write next to their
// backups and the documents handed from the recovery point search to the
// recovery executors.
package manifest

import (
	"encoding/json"

	"github.com/restic/kvrecover/internal/errors"
)

// DescriptorName is the base name of the manifest descriptor a node writes
// into every bucket it backs up to.
const DescriptorName = "manifest.json"

// LogFileEntry describes one log segment of a node's backup.
type LogFileEntry struct {
	FileName       string `json:"fileName"`
	FilePath       string `json:"filePath"`
	Checksum       string `json:"checksum"`
	ChecksumAlg    string `json:"checksumAlg"`
	EncryptionAlg  string `json:"encryptionAlg"`
	CompressionAlg string `json:"compressionAlg"`
}

// Record is a node's description of one backup attempt.
type Record struct {
	NodeName              string         `json:"nodeName"`
	IsComplete            bool           `json:"isComplete"`
	SequenceNumber        int64          `json:"sequenceNumber"`
	IsMaster              bool           `json:"isMaster"`
	ChecksumFormatVersion int            `json:"checksumFormatVersion"`
	Entries               []LogFileEntry `json:"jdbFilesList"`
}

// WinnerSelection is the node elected for a shard and the log segments to
// restore from it.
type WinnerSelection struct {
	WinnerNode string         `json:"winnerNode"`
	Entries    []LogFileEntry `json:"jdbFilesList"`
}

// NewWinnerSelection returns the selection for the winning record rec.
func NewWinnerSelection(rec Record) WinnerSelection {
	entries := rec.Entries
	if entries == nil {
		entries = []LogFileEntry{}
	}
	return WinnerSelection{WinnerNode: rec.NodeName, Entries: entries}
}

// RequiredFiles maps the shards of one store to their winners.
type RequiredFiles map[string]WinnerSelection

// ARTRecord holds the chosen recovery point.
type ARTRecord struct {
	ARTValue string `json:"ARTValue"`
}

// Decode parses a manifest descriptor.
func Decode(data []byte) (Record, error) {
	var rec Record
	err := json.Unmarshal(data, &rec)
	if err != nil {
		return Record{}, errors.Wrap(err, "decode manifest")
	}

	for i, e := range rec.Entries {
		if e.FilePath == "" {
			return Record{}, errors.Errorf("decode manifest: entry %d (%q) has no file path", i, e.FileName)
		}
	}

	return rec, nil
}

// DecodeRequiredFiles parses a per-store RequiredFiles document.
func DecodeRequiredFiles(data []byte) (RequiredFiles, error) {
	var rf RequiredFiles
	err := json.Unmarshal(data, &rf)
	if err != nil {
		return nil, errors.Wrap(err, "decode required files")
	}

	for shard, sel := range rf {
		if sel.WinnerNode == "" {
			return nil, errors.Errorf("decode required files: shard %q has no winner node", shard)
		}
	}

	return rf, nil
}

// Encode returns the canonical encoding of rf. Shards are sorted, so equal
// values always encode to the same bytes.
func (rf RequiredFiles) Encode() ([]byte, error) {
	buf, err := json.MarshalIndent(rf, "", "  ")
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return append(buf, '\n'), nil
}
