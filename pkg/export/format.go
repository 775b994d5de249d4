package export

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Magic number for export files: "PVLT_EXP"
var MagicNumber = [8]byte{'P', 'V', 'L', 'T', '_', 'E', 'X', 'P'}

// Current export format version.
const FormatVersion = 1

// Header contains export file metadata. It travels in the clear; entry
// names and bodies never appear in it.
type Header struct {
	Version       int       `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	SchemaVersion int       `json:"schema_version"`
	EntryCount    int       `json:"entry_count"`
	Salt          []byte    `json:"salt"`
	ChecksumAlgo  string    `json:"checksum_algorithm"`
}

// Record is one exported entry inside the encrypted payload.
type Record struct {
	Name       string     `json:"name"`
	Body       []byte     `json:"body"`
	Pinned     bool       `json:"pinned,omitempty"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// WriteHeader writes the magic number and header to the writer.
func WriteHeader(w io.Writer, header *Header) error {
	if _, err := w.Write(MagicNumber[:]); err != nil {
		return fmt.Errorf("export: failed to write magic number: %w", err)
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("export: failed to marshal header: %w", err)
	}

	if err := binary.Write(w, binary.BigEndian, uint32(len(headerJSON))); err != nil {
		return fmt.Errorf("export: failed to write header length: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("export: failed to write header: %w", err)
	}
	return nil
}

// ReadHeader reads and validates the magic number and header.
func ReadHeader(r io.Reader) (*Header, error) {
	var magic [8]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("export: failed to read magic number: %w", err)
	}
	if magic != MagicNumber {
		return nil, ErrInvalidMagic
	}

	var headerLen uint32
	if err := binary.Read(r, binary.BigEndian, &headerLen); err != nil {
		return nil, fmt.Errorf("export: failed to read header length: %w", err)
	}
	// Sanity bound; a real header is a few hundred bytes.
	if headerLen > 1024*1024 {
		return nil, fmt.Errorf("export: header too large: %d bytes", headerLen)
	}

	headerJSON := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return nil, fmt.Errorf("export: failed to read header: %w", err)
	}

	var header Header
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, fmt.Errorf("export: failed to unmarshal header: %w", err)
	}
	if header.Version > FormatVersion {
		return nil, fmt.Errorf("%w: got %d, max supported %d",
			ErrUnsupportedVersion, header.Version, FormatVersion)
	}
	return &header, nil
}

// headerBytes returns the serialized header for MAC computation. The
// same bytes must be produced on both sides, so the MAC always covers
// the re-marshaled form rather than raw file bytes.
func headerBytes(header *Header) ([]byte, error) {
	return json.Marshal(header)
}
