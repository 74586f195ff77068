// HLS wraps the audio encoder/segmenter process. Grounded on
// manager/hls.py — segment-layout/playlist generation itself is out of
// scope per spec.md §1; only the ProcessCommand shape is carried.
package stationnodes

import "station.fm/stationd/internal/procnode"

// HLS is the process node for the encoder/segmenter. It uses the
// process node's default behavior unmodified: "process started"
// readiness, no custom receive verbs.
type HLS struct {
	Deps
	procnode.Node
}

// NewHLS builds the HLS process node from its spawn command.
func NewHLS(deps Deps, command func() procnode.Command) *HLS {
	return &HLS{
		Deps: deps,
		Node: procnode.Node{Command: command},
	}
}
