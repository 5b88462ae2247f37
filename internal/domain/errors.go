package domain

import "errors"

// Stage failure classes. Each is fatal for the whole run: the orchestrator
// stops at the first one, broadcasts it, and the process exits non-zero.
// They exist so call sites and tests can classify a failure with errors.Is;
// nothing structured leaves the process, only the wrapped text.
var (
	ErrBackendPrereq         = errors.New("backend prerequisite missing")
	ErrHostIdentityUntrusted = errors.New("host identity untrusted")
	ErrTransportConnect      = errors.New("transport connect failure")
	ErrDumpProcess           = errors.New("dump process failure")
	ErrArchiveSource         = errors.New("archive source missing")
	ErrUpload                = errors.New("upload failure")
)
