package loader

import "errors"

// Sentinel errors for malformed graph-definition documents. These are
// loader-level concerns (document shape) distinct from the graph-level
// errors in pkg/types/errors.go (construction/mutation semantics), which
// New still surfaces once the document has been decoded into a
// types.GraphDefinition.
var (
	ErrMissingName        = errors.New("graph definition missing required \"name\" field")
	ErrMissingNodes       = errors.New("graph definition missing required \"nodes\" field")
	ErrMalformedPort      = errors.New("malformed \"node:port\" identifier")
	ErrMalformedConnection = errors.New("connection entry must be a two-element array")
	ErrSchemaValidation   = errors.New("node settings failed schema validation")
	ErrUnknownSchemaType  = errors.New("no schema registered for node type")
)
