// control/logger.go
// Author: momentics <momentics@gmail.com>
//
// hclog.Logger constructors shared across subsystems, so every package's
// default logger is named consistently under the snio.* hierarchy.
package control

import (
	"os"

	"github.com/hashicorp/go-hclog"
)

// NewLogger returns a named, leveled logger writing to stderr, the
// hierarchy root for a subsystem's own named loggers
// (snio.pool, snio.channel.tcp, ...).
func NewLogger(name string) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   name,
		Level:  hclog.Info,
		Output: os.Stderr,
	})
}
