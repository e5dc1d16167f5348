package httpserver

const (
	ErrInvalidJSON      = "invalid json"
	ErrInvalidSignature = "invalid signature"
	ErrMissingID        = "missing id"
	ErrDependency       = "dependency error"
	ErrNotFound         = "not found"
)
