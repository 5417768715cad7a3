package schema

import "errors"

var (
	// ErrSchemaFileNotFound is returned when an explicitly-named sidecar
	// file does not exist.
	ErrSchemaFileNotFound = errors.New("schema: file not found")

	// ErrSchemaInvalid is returned for a sidecar file that fails to
	// parse as HuJSON or does not match the expected shape.
	ErrSchemaInvalid = errors.New("schema: invalid")
)
