package rollup

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"

	"github.com/kacper-wojtaszczyk/jackfruit/rollup-go/internal/config"
)

// IDFunc returns the unique identifier embedded in a published key for the
// local file at path.
type IDFunc func(path string) (string, error)

// contentNamespace scopes content-derived ids to this job.
var contentNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/kacper-wojtaszczyk/jackfruit/rollup-go"))

// RandomID returns a fresh UUIDv4. Re-running a roll-up publishes new keys.
func RandomID(string) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// ContentID returns a UUIDv5 derived from the file's SHA-256, so identical
// output overwrites the same key.
func ContentID(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return uuid.NewSHA1(contentNamespace, h.Sum(nil)).String(), nil
}

func idFuncFor(naming string) (IDFunc, error) {
	switch naming {
	case "", config.NamingRandom:
		return RandomID, nil
	case config.NamingContent:
		return ContentID, nil
	default:
		return nil, fmt.Errorf("unknown naming scheme %q", naming)
	}
}
