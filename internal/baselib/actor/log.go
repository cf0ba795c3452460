package actor

import "github.com/btcsuite/btclog/v2"

// log is the package-level logger for the actor runtime. It is disabled by
// default; callers wire in a real logger via UseLogger.
var log btclog.Logger = btclog.Disabled

// UseLogger sets the package-level logger used by the actor runtime.
func UseLogger(logger btclog.Logger) {
	log = logger
}
