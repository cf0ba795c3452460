package mailbox

import "github.com/btcsuite/btclog/v2"

// log is the package-level logger for the mailbox package. It defaults to a
// disabled logger so library consumers who never call UseLogger incur no
// logging overhead.
var log btclog.Logger = btclog.Disabled

// UseLogger sets the package-level logger used by the mailbox package. This
// follows the same subsystem-logger convention as the rest of the teacher
// codebase (internal/build, internal/baselib/actor): the package is silent
// until the host application wires in a concrete logger.
func UseLogger(logger btclog.Logger) {
	log = logger
}
