package fsys

import (
	"errors"
	"fmt"
	"io/fs"
)

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func notFound(loc string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, loc)
}

func alreadyExists(loc string) error {
	return fmt.Errorf("%w: %s", ErrExist, loc)
}

// mapOSError translates os/syscall errors into the package sentinels while
// keeping the original error text.
func mapOSError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, fs.ErrExist):
		return fmt.Errorf("%w: %v", ErrExist, err)
	}
	return err
}
