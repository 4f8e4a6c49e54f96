// Package callbacks encodes and parses inline button callback data.
package callbacks

import (
	"strings"

	"tg_airtime_bot/internal/domain"
)

// Fixed callback payloads.
const (
	Verify  = "verify_membership"
	MyStats = "my_stats"

	airtimePrefix = "airtime_"
)

// Airtime returns the payload for a network selection button.
func Airtime(network domain.Network) string {
	return airtimePrefix + string(network)
}

// ParseAirtime extracts the network from an airtime payload.
func ParseAirtime(data string) (domain.Network, bool) {
	raw, ok := strings.CutPrefix(strings.TrimSpace(data), airtimePrefix)
	if !ok {
		return "", false
	}
	return domain.ParseNetwork(raw)
}
