// Package topology performs the one-shot hardware topology detection
// described for component A: logical processor enumeration, P/E/VCache
// classification, and CCD (shared-L3) grouping.
package topology

import (
	"log"

	"github.com/corebalance/corebalance/internal/model"
)

// Detect enumerates the local machine's logical processors and classifies
// them. Any failure along the way is logged and treated as non-fatal: the
// caller receives model.Degraded(), and downstream rules then treat every
// core as Performance.
func Detect() model.Topology {
	top, err := detect()
	if err != nil {
		log.Printf("topology: detection failed, falling back to degraded topology: %v", err)
		return model.Degraded()
	}
	return top
}
