package export

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/kesuzuki/pinvault/pkg/store"
)

func openVault(t *testing.T, secret string) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vault.db")
	s, err := store.OpenOrCreate(path, secret)
	if err != nil {
		t.Fatalf("OpenOrCreate failed: %v", err)
	}
	if err := s.Probe(); err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if err := s.Migrate(); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedEntries(t *testing.T, s *store.Store) {
	t.Helper()
	archived := time.Now().UTC()
	entries := []*store.Entry{
		{Name: "alpha", Body: []byte("first body")},
		{Name: "beta", Body: []byte("second body"), Pinned: true},
		{Name: "gamma", Body: []byte("third body"), ArchivedAt: &archived},
	}
	for _, e := range entries {
		if err := s.PutEntry(e); err != nil {
			t.Fatalf("PutEntry(%s) failed: %v", e.Name, err)
		}
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	src := openVault(t, "src-secret")
	seedEntries(t, src)

	var buf bytes.Buffer
	if err := Export(src, &buf, []byte("export-pass")); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	dst := openVault(t, "dst-secret")
	result, err := Import(dst, &buf, []byte("export-pass"), ConflictError)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if result.Imported != 3 || result.Skipped != 0 {
		t.Errorf("expected 3 imported 0 skipped, got %d/%d", result.Imported, result.Skipped)
	}

	entry, err := dst.GetEntry("alpha")
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if !bytes.Equal(entry.Body, []byte("first body")) {
		t.Errorf("body mismatch: %q", entry.Body)
	}

	pinned, err := dst.GetEntry("beta")
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if !pinned.Pinned {
		t.Error("pinned flag lost across export")
	}

	archived, err := dst.GetEntry("gamma")
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if archived.ArchivedAt == nil {
		t.Error("archived flag lost across export")
	}
}

func TestImportWrongPassphrase(t *testing.T) {
	src := openVault(t, "src-secret")
	seedEntries(t, src)

	var buf bytes.Buffer
	if err := Export(src, &buf, []byte("right")); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	dst := openVault(t, "dst-secret")
	_, err := Import(dst, &buf, []byte("wrong"), ConflictError)
	if !errors.Is(err, ErrIntegrityFailed) {
		t.Fatalf("expected ErrIntegrityFailed, got %v", err)
	}

	// The vault is untouched.
	entries, err := dst.ListEntries()
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("failed import wrote %d entries", len(entries))
	}
}

func TestImportTamperedFile(t *testing.T) {
	src := openVault(t, "src-secret")
	seedEntries(t, src)

	var buf bytes.Buffer
	if err := Export(src, &buf, []byte("pass")); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	data := buf.Bytes()
	data[len(data)-macLength-1] ^= 0xff // flip a ciphertext byte

	dst := openVault(t, "dst-secret")
	if _, err := Import(dst, bytes.NewReader(data), []byte("pass"), ConflictError); !errors.Is(err, ErrIntegrityFailed) {
		t.Errorf("expected ErrIntegrityFailed, got %v", err)
	}
}

func TestImportTruncatedFile(t *testing.T) {
	src := openVault(t, "src-secret")
	seedEntries(t, src)

	var buf bytes.Buffer
	if err := Export(src, &buf, []byte("pass")); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	data := buf.Bytes()[:buf.Len()-10]

	dst := openVault(t, "dst-secret")
	if _, err := Import(dst, bytes.NewReader(data), []byte("pass"), ConflictError); !errors.Is(err, ErrIntegrityFailed) {
		t.Errorf("expected ErrIntegrityFailed, got %v", err)
	}
}

func TestImportRejectsGarbage(t *testing.T) {
	dst := openVault(t, "dst-secret")
	if _, err := Import(dst, bytes.NewReader([]byte("not an export file at all")), []byte("pass"), ConflictError); !errors.Is(err, ErrInvalidMagic) {
		t.Errorf("expected ErrInvalidMagic, got %v", err)
	}
}

func TestImportConflictModes(t *testing.T) {
	src := openVault(t, "src-secret")
	if err := src.PutEntry(&store.Entry{Name: "shared", Body: []byte("from export")}); err != nil {
		t.Fatalf("PutEntry failed: %v", err)
	}

	var buf bytes.Buffer
	if err := Export(src, &buf, []byte("pass")); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	exported := buf.Bytes()

	// ConflictError aborts.
	dst := openVault(t, "dst-secret")
	if err := dst.PutEntry(&store.Entry{Name: "shared", Body: []byte("local")}); err != nil {
		t.Fatalf("PutEntry failed: %v", err)
	}
	if _, err := Import(dst, bytes.NewReader(exported), []byte("pass"), ConflictError); !errors.Is(err, ErrEntryExists) {
		t.Fatalf("expected ErrEntryExists, got %v", err)
	}

	// ConflictSkip keeps the local version.
	result, err := Import(dst, bytes.NewReader(exported), []byte("pass"), ConflictSkip)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if result.Skipped != 1 || result.Imported != 0 {
		t.Errorf("expected 0 imported 1 skipped, got %d/%d", result.Imported, result.Skipped)
	}
	entry, _ := dst.GetEntry("shared")
	if !bytes.Equal(entry.Body, []byte("local")) {
		t.Errorf("skip mode replaced local body: %q", entry.Body)
	}

	// ConflictOverwrite replaces it.
	result, err = Import(dst, bytes.NewReader(exported), []byte("pass"), ConflictOverwrite)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if result.Imported != 1 {
		t.Errorf("expected 1 imported, got %d", result.Imported)
	}
	entry, _ = dst.GetEntry("shared")
	if !bytes.Equal(entry.Body, []byte("from export")) {
		t.Errorf("overwrite mode kept local body: %q", entry.Body)
	}
}

func TestVerify(t *testing.T) {
	src := openVault(t, "src-secret")
	seedEntries(t, src)

	var buf bytes.Buffer
	if err := Export(src, &buf, []byte("pass")); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	exported := buf.Bytes()

	header, err := Verify(bytes.NewReader(exported), []byte("pass"))
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if header.EntryCount != 3 {
		t.Errorf("expected 3 entries in header, got %d", header.EntryCount)
	}
	if header.Version != FormatVersion {
		t.Errorf("expected version %d, got %d", FormatVersion, header.Version)
	}

	if _, err := Verify(bytes.NewReader(exported), []byte("wrong")); !errors.Is(err, ErrIntegrityFailed) {
		t.Errorf("expected ErrIntegrityFailed for wrong passphrase, got %v", err)
	}
}

func TestExportEmptyPassphrase(t *testing.T) {
	src := openVault(t, "src-secret")
	var buf bytes.Buffer
	if err := Export(src, &buf, nil); !errors.Is(err, ErrEmptyPassphrase) {
		t.Errorf("expected ErrEmptyPassphrase, got %v", err)
	}
}
