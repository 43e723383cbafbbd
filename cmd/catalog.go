package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/damage-vis/internal/catalog"
)

// openCatalog opens and migrates the run catalog at path.
func openCatalog(ctx context.Context, path string) (*catalog.Catalog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "catalog dir %s", dir)
		}
	}
	cat, err := catalog.Open(path)
	if err != nil {
		return nil, err
	}
	if err := cat.Migrate(ctx); err != nil {
		cat.Close() //nolint:errcheck
		return nil, err
	}
	return cat, nil
}
