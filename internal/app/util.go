package app

import (
	"strconv"
	"strings"
)

// shortAddress truncates long addresses for display and logging.
func shortAddress(addr string) string {
	if len(addr) <= 14 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-6:]
}

// formatAmount renders a token amount without trailing zero noise.
func formatAmount(v float64) string {
	s := strconv.FormatFloat(v, 'f', 4, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
