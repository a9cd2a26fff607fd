package snapshot

import (
	"encoding/gob"
	"os"

	"github.com/cockroachdb/errors"
)

// Load reads a snapshot. A missing file is not an error: it returns
// ok == false.
func Load(path string) (v View, ok bool, err error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return View{}, false, nil
	}
	if err != nil {
		return View{}, false, err
	}
	defer f.Close()

	if err := gob.NewDecoder(f).Decode(&v); err != nil {
		return View{}, false, errors.Wrapf(err, "decode snapshot %s", path)
	}
	return v, true, nil
}
