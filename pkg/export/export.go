// Package export moves a vault's entries in and out of a portable
// encrypted file, so a vault can be backed up or carried to another
// machine without exposing its contents.
//
// The file is keyed by a passphrase independent of the vault secret: a
// fresh salt is generated per export and Argon2id-derived keys split
// via HKDF into an encryption key and a MAC key. The MAC covers header
// and ciphertext, so truncation and tampering are detected before any
// decryption is attempted.
package export

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/kesuzuki/pinvault/pkg/crypto"
	"github.com/kesuzuki/pinvault/pkg/store"
)

// HKDF info strings separating the file keys from each other and from
// anything derived inside a vault.
const (
	infoEncryption = "pinvault-export-encryption-v1"
	infoMAC        = "pinvault-export-mac-v1"
)

const macLength = 32

// ConflictMode specifies how Import handles an entry name that already
// exists in the target vault.
type ConflictMode int

const (
	// ConflictError aborts the import on the first existing name.
	ConflictError ConflictMode = iota
	// ConflictSkip keeps the vault's version and skips the imported one.
	ConflictSkip
	// ConflictOverwrite replaces the vault's version.
	ConflictOverwrite
)

// ImportResult reports what an import did.
type ImportResult struct {
	Imported int // Entries written to the vault
	Skipped  int // Entries skipped due to conflicts
}

// deriveFileKeys expands a passphrase and salt into the encryption and
// MAC keys for one export file.
func deriveFileKeys(passphrase, salt []byte) (encKey, macKey []byte, err error) {
	if len(passphrase) == 0 {
		return nil, nil, ErrEmptyPassphrase
	}

	master := crypto.DeriveKey(passphrase, salt)
	defer crypto.SecureWipe(master)

	encKey, err = crypto.DeriveSubkey(master, infoEncryption)
	if err != nil {
		return nil, nil, fmt.Errorf("export: failed to derive encryption key: %w", err)
	}
	macKey, err = crypto.DeriveSubkey(master, infoMAC)
	if err != nil {
		crypto.SecureWipe(encKey)
		return nil, nil, fmt.Errorf("export: failed to derive mac key: %w", err)
	}
	return encKey, macKey, nil
}

// Export writes all entries of the open vault s to w, encrypted under
// passphrase. Archived entries are included; an export is a full copy.
func Export(s *store.Store, w io.Writer, passphrase []byte) error {
	records, err := collectRecords(s)
	if err != nil {
		return err
	}

	salt, err := crypto.NewSalt()
	if err != nil {
		return fmt.Errorf("export: failed to generate salt: %w", err)
	}

	encKey, macKey, err := deriveFileKeys(passphrase, salt)
	if err != nil {
		return err
	}
	defer crypto.SecureWipe(encKey)
	defer crypto.SecureWipe(macKey)

	plaintext, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("export: failed to marshal records: %w", err)
	}
	defer crypto.SecureWipe(plaintext)

	ciphertext, nonce, err := crypto.Encrypt(encKey, plaintext)
	if err != nil {
		return fmt.Errorf("export: encryption failed: %w", err)
	}
	sealed := append(nonce, ciphertext...)

	version, err := s.Version()
	if err != nil {
		return fmt.Errorf("export: failed to read schema version: %w", err)
	}
	header := &Header{
		Version:       FormatVersion,
		CreatedAt:     time.Now().UTC(),
		SchemaVersion: version,
		EntryCount:    len(records),
		Salt:          salt,
		ChecksumAlgo:  "hmac-sha256",
	}

	if err := WriteHeader(w, header); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(sealed))); err != nil {
		return fmt.Errorf("export: failed to write payload length: %w", err)
	}
	if _, err := w.Write(sealed); err != nil {
		return fmt.Errorf("export: failed to write payload: %w", err)
	}

	hb, err := headerBytes(header)
	if err != nil {
		return fmt.Errorf("export: failed to serialize header for mac: %w", err)
	}
	mac := computeMAC(hb, sealed, macKey)
	if _, err := w.Write(mac); err != nil {
		return fmt.Errorf("export: failed to write mac: %w", err)
	}
	return nil
}

// Import reads an export file from r and writes its entries into the
// open vault s. The integrity check runs before any decryption or vault
// write; a corrupt or mis-keyed file leaves the vault untouched.
func Import(s *store.Store, r io.Reader, passphrase []byte, mode ConflictMode) (*ImportResult, error) {
	header, sealed, mac, err := readFile(r)
	if err != nil {
		return nil, err
	}

	encKey, macKey, err := deriveFileKeys(passphrase, header.Salt)
	if err != nil {
		return nil, err
	}
	defer crypto.SecureWipe(encKey)
	defer crypto.SecureWipe(macKey)

	hb, err := headerBytes(header)
	if err != nil {
		return nil, fmt.Errorf("export: failed to serialize header for mac: %w", err)
	}
	if !hmac.Equal(computeMAC(hb, sealed, macKey), mac) {
		return nil, ErrIntegrityFailed
	}

	if len(sealed) < crypto.NonceLength {
		return nil, ErrDecryptionFailed
	}
	plaintext, err := crypto.Decrypt(encKey, sealed[crypto.NonceLength:], sealed[:crypto.NonceLength])
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	defer crypto.SecureWipe(plaintext)

	var records []Record
	if err := json.Unmarshal(plaintext, &records); err != nil {
		return nil, fmt.Errorf("export: failed to unmarshal records: %w", err)
	}

	result := &ImportResult{}
	for _, rec := range records {
		_, err := s.GetEntry(rec.Name)
		switch {
		case err == nil:
			switch mode {
			case ConflictError:
				return result, fmt.Errorf("%w: %s", ErrEntryExists, rec.Name)
			case ConflictSkip:
				result.Skipped++
				continue
			case ConflictOverwrite:
				// Fall through to the write below.
			}
		case err != store.ErrEntryNotFound:
			return result, fmt.Errorf("export: failed to check entry %q: %w", rec.Name, err)
		}

		entry := &store.Entry{
			Name:       rec.Name,
			Body:       rec.Body,
			Pinned:     rec.Pinned,
			ArchivedAt: rec.ArchivedAt,
		}
		if err := s.PutEntry(entry); err != nil {
			return result, fmt.Errorf("export: failed to import entry %q: %w", rec.Name, err)
		}
		result.Imported++
	}
	return result, nil
}

// Verify checks an export file's integrity and passphrase without
// touching any vault.
func Verify(r io.Reader, passphrase []byte) (*Header, error) {
	header, sealed, mac, err := readFile(r)
	if err != nil {
		return nil, err
	}

	encKey, macKey, err := deriveFileKeys(passphrase, header.Salt)
	if err != nil {
		return nil, err
	}
	defer crypto.SecureWipe(encKey)
	defer crypto.SecureWipe(macKey)

	hb, err := headerBytes(header)
	if err != nil {
		return nil, fmt.Errorf("export: failed to serialize header for mac: %w", err)
	}
	if !hmac.Equal(computeMAC(hb, sealed, macKey), mac) {
		return nil, ErrIntegrityFailed
	}
	return header, nil
}

// collectRecords reads every entry with its body from the vault.
func collectRecords(s *store.Store) ([]Record, error) {
	entries, err := s.ListEntries()
	if err != nil {
		return nil, fmt.Errorf("export: failed to list entries: %w", err)
	}

	records := make([]Record, 0, len(entries))
	for _, e := range entries {
		full, err := s.GetEntry(e.Name)
		if err != nil {
			return nil, fmt.Errorf("export: failed to read entry %q: %w", e.Name, err)
		}
		records = append(records, Record{
			Name:       full.Name,
			Body:       full.Body,
			Pinned:     full.Pinned,
			ArchivedAt: full.ArchivedAt,
			CreatedAt:  full.CreatedAt,
			UpdatedAt:  full.UpdatedAt,
		})
	}
	return records, nil
}

// readFile splits an export stream into header, sealed payload, and
// trailing MAC.
func readFile(r io.Reader) (*Header, []byte, []byte, error) {
	header, err := ReadHeader(r)
	if err != nil {
		return nil, nil, nil, err
	}

	var sealedLen uint32
	if err := binary.Read(r, binary.BigEndian, &sealedLen); err != nil {
		return nil, nil, nil, fmt.Errorf("export: failed to read payload length: %w", err)
	}

	rest, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("export: failed to read payload: %w", err)
	}
	if len(rest) != int(sealedLen)+macLength {
		return nil, nil, nil, ErrIntegrityFailed
	}
	return header, rest[:sealedLen], rest[sealedLen:], nil
}

func computeMAC(header, sealed, key []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(header)
	h.Write(sealed)
	return h.Sum(nil)
}
