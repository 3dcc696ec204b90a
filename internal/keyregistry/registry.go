// Package keyregistry resolves the public keys currently bound to a thing in
// the device identity registry. The directory-backed implementation mirrors
// the registry's certificate store: one subdirectory per thing, one PEM file
// per active certificate.
package keyregistry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/voltbridge/battery-relay/pkg/file"
)

// DirectoryRegistry resolves keys from <root>/<thingName>/*.pem.
type DirectoryRegistry struct {
	root       string
	fileClient file.FileOperations
	logger     zerolog.Logger
}

// NewDirectoryRegistry creates a registry rooted at the given directory.
func NewDirectoryRegistry(root string, fileClient file.FileOperations, logger zerolog.Logger) *DirectoryRegistry {
	return &DirectoryRegistry{
		root:       root,
		fileClient: fileClient,
		logger:     logger,
	}
}

// PublicKeysForThing returns the PEM contents of every certificate bound to
// the thing. An unknown thing yields an empty slice, not an error; the
// verifier turns that into its no-certificates failure.
func (r *DirectoryRegistry) PublicKeysForThing(ctx context.Context, thingName string) ([][]byte, error) {
	// Thing names are opaque identifiers; refuse anything that would escape
	// the registry root.
	if strings.ContainsAny(thingName, `/\`) || thingName == ".." {
		return nil, fmt.Errorf("invalid thing name %q", thingName)
	}

	thingDir := filepath.Join(r.root, thingName)

	entries, err := os.ReadDir(thingDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read certificate directory for %s: %w", thingName, err)
	}

	var keys [][]byte
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".pem") {
			continue
		}

		pemBytes, err := r.fileClient.ReadFileRaw(filepath.Join(thingDir, entry.Name()))
		if err != nil {
			r.logger.Warn().Err(err).Str("file", entry.Name()).Msg("Skipping unreadable certificate")
			continue
		}

		keys = append(keys, pemBytes)
	}

	return keys, nil
}
