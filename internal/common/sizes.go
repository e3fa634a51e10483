package common

import "github.com/dustin/go-humanize"

// HumanBytes renders a byte count the way the CLI summary lines do, e.g.
// "4.2 MB". Thin wrapper so only this file needs to know which humanize
// function we standardized on.
func HumanBytes(n uint64) string {
	return humanize.Bytes(n)
}
