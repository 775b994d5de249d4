package export

import "errors"

// Errors
var (
	// ErrInvalidMagic indicates the input is not a pinvault export file.
	ErrInvalidMagic = errors.New("export: not a pinvault export file")

	// ErrUnsupportedVersion indicates the export format version is newer
	// than this build understands.
	ErrUnsupportedVersion = errors.New("export: unsupported format version")

	// ErrIntegrityFailed indicates the integrity check failed. The file
	// was truncated or tampered with, or the passphrase is wrong.
	ErrIntegrityFailed = errors.New("export: integrity verification failed")

	// ErrDecryptionFailed indicates the payload could not be decrypted.
	ErrDecryptionFailed = errors.New("export: decryption failed")

	// ErrEmptyPassphrase indicates no passphrase was supplied.
	ErrEmptyPassphrase = errors.New("export: passphrase must not be empty")

	// ErrEntryExists indicates an import conflict under ConflictError.
	ErrEntryExists = errors.New("export: entry already exists in vault")
)
