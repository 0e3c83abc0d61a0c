package engine

import "fmt"

// ErrSharedWorkspaceRequiresPerSession is returned when a caller requests
// workspaceSharing=shared on anything but a PER_SESSION session (I5).
var ErrSharedWorkspaceRequiresPerSession = fmt.Errorf("engine: shared workspace sharing requires PER_SESSION placement strategy")

// ErrRunAppMountMissing is returned when options.runApp.cwd does not match
// any mount target on the session's container config.
var ErrRunAppMountMissing = fmt.Errorf("engine: runApp.cwd does not match any configured mount target")

// ErrUnsupportedStrategy is returned for an unrecognized placement strategy.
var ErrUnsupportedStrategy = fmt.Errorf("engine: unsupported placement strategy")

// ErrTimeout is returned when options.timeout expires during exec.
var ErrTimeout = fmt.Errorf("engine: execution timed out")
