// Command gerber runs the media server's autoscan/watching subsystem: it
// loads configuration and the persisted autoscan list, then keeps the
// content database synchronized with the filesystem via inotify until
// terminated.
package main

import (
	"github.com/wanman/gerber/internal/cmdutil"
)

func main() {
	cmdutil.Mainify(rootCommand.Execute)
}
