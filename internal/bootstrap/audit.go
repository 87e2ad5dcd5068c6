package bootstrap

import "context"

// AuditLog is a lifecycle audit entry, written at server start/stop so
// operators can line up report artifacts with process history.
type AuditLog struct {
	Action  string
	Message string
	Meta    map[string]any
}

type AuditLogger interface {
	Log(ctx context.Context, entry AuditLog)
}
