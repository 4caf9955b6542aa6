// Package env loads a local KEY=VALUE credentials file into the process
// environment before the rest of the program reads from it.
package env

import (
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Load reads the file at path and sets each KEY=VALUE pair in the process
// environment, overwriting values that are already set. Blank lines and
// #-comments are ignored. A missing or unreadable file is an error the
// caller is expected to downgrade to a warning: required variables may
// already be present in the environment.
func Load(path string) error {
	if err := godotenv.Overload(path); err != nil {
		return errors.Wrapf(err, "could not load %s", path)
	}
	return nil
}
