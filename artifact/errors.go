package artifact

import "errors"

var (
	// ErrNotFound is returned when no artifact exists for the run and name.
	ErrNotFound = errors.New("artifact not found")
	// ErrInvalidName is returned for empty names and names that would escape
	// the run's scope, such as "../x" or "a/b".
	ErrInvalidName = errors.New("invalid artifact name")
)

func validName(name string) error {
	if name == "" || name == "." || name == ".." {
		return ErrInvalidName
	}
	for _, r := range name {
		if r == '/' || r == '\\' {
			return ErrInvalidName
		}
	}
	return nil
}
