// Package stuncheck probes the configured STUN servers at client startup.
// Failures are warnings only; a call behind a friendly NAT can still succeed
// on host candidates alone.
package stuncheck

import (
	"fmt"
	"strings"

	"github.com/pion/stun/v3"
	"github.com/rs/zerolog/log"
)

// Probe sends a binding request to each server and logs the reflexive
// address it reports. Returns the number of reachable servers.
func Probe(servers []string) int {
	reachable := 0
	for _, s := range servers {
		addr, err := bindingRequest(s)
		if err != nil {
			log.Warn().Err(err).Str("module", "stuncheck").Str("server", s).Msg("STUN server unreachable")
			continue
		}
		log.Info().Str("module", "stuncheck").Str("server", s).Str("reflexive_addr", addr).Msg("STUN reachable")
		reachable++
	}
	if reachable == 0 && len(servers) > 0 {
		log.Warn().Str("module", "stuncheck").Msg("no STUN server reachable; connectivity limited to the local network")
	}
	return reachable
}

func bindingRequest(server string) (string, error) {
	hostport := strings.TrimPrefix(server, "stun:")

	c, err := stun.Dial("udp4", hostport)
	if err != nil {
		return "", fmt.Errorf("dial: %w", err)
	}
	defer func() { _ = c.Close() }()

	var addr string
	msg := stun.MustBuild(stun.TransactionID, stun.BindingRequest)
	doErr := c.Do(msg, func(res stun.Event) {
		if res.Error != nil {
			err = res.Error
			return
		}
		var xorAddr stun.XORMappedAddress
		if getErr := xorAddr.GetFrom(res.Message); getErr != nil {
			err = getErr
			return
		}
		addr = xorAddr.String()
	})
	if doErr != nil {
		return "", doErr
	}
	if err != nil {
		return "", err
	}
	return addr, nil
}
