// Package resolver defines the narrow "content resolver" collaborator
// interface. The content resolver itself — the TACT-style virtual
// filesystem and archive-decryption library — is an external
// collaborator; this package only defines the boundary this repository's
// ingestion pipeline programs against, plus KeyRequiredError, a typed
// error that callers classify with AsKeyRequired. There is no separate
// tagged result type: resolver methods return ordinary (value, error)
// pairs.
package resolver

import (
	"context"
	"io"

	"github.com/jimbomcb/wow-minimaps/digest"
	"github.com/jimbomcb/wow-minimaps/errs"
)

// KeyRequiredError is returned (wrapped) when an operation needs a TACT
// decryption key this process does not have installed. Name carries the
// key name as it must be recorded verbatim on the scan row.
type KeyRequiredError struct {
	Name string
}

func (e *KeyRequiredError) Error() string { return "resolver: key required: " + e.Name }

// AsKeyRequired unwraps err looking for a KeyRequiredError, the
// replacement for source-style exception-type switches.
func AsKeyRequired(err error) (*KeyRequiredError, bool) {
	var kr *KeyRequiredError
	if errs.As(err, &kr) {
		return kr, true
	}
	return nil, false
}

// SourceConfig names one observed (build,cdn,product) config triple for a
// product.
type SourceConfig struct {
	ProductName  string
	ConfigBuild  string
	ConfigCDN    string
	ConfigProduct string
}

// FileDescriptor is an opaque resolver-assigned locator for one locale
// variant of a file_id.
type FileDescriptor struct {
	FileID uint32
	Locale string
	opaque interface{}
}

// Filesystem is the resolved virtual filesystem for one (product, source
// config) pair.
type Filesystem interface {
	// ContentKeyForFileID returns the content hash of file_id's bytes, or
	// ok=false if the file has no registered content key.
	ContentKeyForFileID(ctx context.Context, fileID uint32) (hash digest.Digest, ok bool, err error)

	// OpenFileID resolves file_id to its locale-specific descriptors.
	OpenFileID(ctx context.Context, fileID uint32, locale string) ([]FileDescriptor, error)

	// OpenStream opens the byte stream for a descriptor. validate, when
	// true, asks the resolver to verify BLTE frame checksums while
	// decoding. May fail with KeyRequiredError if the descriptor's content
	// is BLTE-encrypted under an uninstalled key.
	OpenStream(ctx context.Context, desc FileDescriptor, validate bool) (io.ReadCloser, error)

	// CompressionSpec returns the BLTE decoding spec for an encoding key.
	// Exposed for resolver implementations that need it to plan a
	// streaming decode; this pipeline otherwise treats BLTE expansion as
	// internal to OpenStream.
	CompressionSpec(ctx context.Context, encodingKey digest.Digest) (interface{}, error)
}

// Resolver is the top-level collaborator: it installs keys and resolves
// filesystems for (product, source config) pairs.
type Resolver interface {
	// InstallKey installs a TACT key into process-global key-service
	// state. Re-installing the same name is a no-op.
	InstallKey(ctx context.Context, keyName, keyValue string) error

	// ResolveFilesystem resolves a virtual filesystem handle. Returns a
	// KeyRequiredError (wrapped) if the build-wide key is missing.
	ResolveFilesystem(ctx context.Context, cfg SourceConfig) (Filesystem, error)

	// OpenMapDatabase opens the canonical map catalogue table for an
	// already-resolved filesystem. Returns a KeyRequiredError (wrapped)
	// if the catalogue itself is encrypted.
	OpenMapDatabase(ctx context.Context, fs Filesystem) (MapDatabase, error)
}

// MapDatabaseRow is a single row of the map catalogue.
type MapDatabaseRow struct {
	ID        int
	Name      string
	Directory string
	// WdtFileDataID is present only for releases >= MapAddWdtFileID.
	WdtFileDataID *uint32
	// RawJSON is the verbatim JSON rendering of the entire row, stored
	// unparsed.
	RawJSON []byte
}

// MapDatabase iterates the rows of the map catalogue.
type MapDatabase interface {
	Rows(ctx context.Context) ([]MapDatabaseRow, error)
}

// MAIDEntry is one sparse grid cell from a WDT's minimap-tile ("MAID")
// chunk. Parsing the chunk out of the raw WDT stream is this pipeline's
// own responsibility, not the resolver's; see buildscan.ParseMAID.
type MAIDEntry struct {
	X, Y   int16
	FileID uint32
}

// drivers holds registered Resolver constructors, keyed by driver name,
// the same registration pattern database/sql uses to keep a concrete
// backend out of the package that only defines the interface: a
// resolver implementation calls Register from its own init(), and
// callers open it by name without this package importing it.
var drivers = map[string]func(cfg map[string]string) (Resolver, error){}

// Register makes a named Resolver constructor available to Open. Called
// from a driver package's init(); panics on a duplicate name, the same
// contract sql.Register uses.
func Register(name string, factory func(cfg map[string]string) (Resolver, error)) {
	if _, dup := drivers[name]; dup {
		panic("resolver: Register called twice for driver " + name)
	}
	drivers[name] = factory
}

// Open constructs the named driver's Resolver with cfg.
func Open(name string, cfg map[string]string) (Resolver, error) {
	factory, ok := drivers[name]
	if !ok {
		return nil, errs.Fmt("resolver: no driver registered for %q (forgot a blank import?)", name)
	}
	return factory(cfg)
}

// OpenFile is a convenience wrapper around OpenFileID+OpenStream for the
// common case of a single-locale file (WDTs and the map database table
// are both locale-agnostic). Returns a KeyRequiredError (wrapped) if the
// resolver reports the file's content is encrypted under an uninstalled
// key.
func OpenFile(ctx context.Context, fs Filesystem, fileID uint32, validate bool) (io.ReadCloser, error) {
	descs, err := fs.OpenFileID(ctx, fileID, "")
	if err != nil {
		return nil, errs.WrapFmt(err, "resolver: resolving descriptors for file id %d", fileID)
	}
	if len(descs) == 0 {
		return nil, errs.Fmt("resolver: file id %d has no descriptors", fileID)
	}
	stream, err := fs.OpenStream(ctx, descs[0], validate)
	if err != nil {
		return nil, errs.WrapFmt(err, "resolver: opening stream for file id %d", fileID)
	}
	return stream, nil
}
