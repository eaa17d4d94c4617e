package supervisor

import "errors"

var (
	// ErrResolutionFailed means the sidecar executable path could not be determined.
	ErrResolutionFailed = errors.New("sidecar path resolution failed")
	// ErrLaunchFailed means the OS refused to start the sidecar.
	ErrLaunchFailed = errors.New("sidecar launch failed")
	// ErrNotRunning is returned by Shutdown when no sidecar is held.
	ErrNotRunning = errors.New("sidecar not running")
	// ErrKillFailed means the OS rejected the termination request.
	ErrKillFailed = errors.New("sidecar kill failed")
	// ErrExitTimeout is returned by Stop when the killed sidecar was not reaped in time.
	ErrExitTimeout = errors.New("sidecar did not exit in time")
	// ErrClosed is returned by Start once the supervisor was closed for exit.
	ErrClosed = errors.New("supervisor closed")
)
