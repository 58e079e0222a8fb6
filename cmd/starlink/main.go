// Command starlink locates the Sun, Moon and Mars for an observer, points a
// networked telescope mount at them, and plate-solves star-field photos
// through astrometry.net.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
