// Package turnserver runs an optional embedded TURN relay so consultations
// still connect when both participants sit behind symmetric NATs. Disabled
// by default; clinics that deploy a standalone TURN fleet leave it off.
package turnserver

import (
	"fmt"
	"net"
	"strconv"

	"github.com/pion/turn/v4"
	"github.com/rs/zerolog/log"

	"github.com/careline/telecall/internal/config"
)

type Server struct {
	inner *turn.Server
}

// Start brings up a long-term-credential TURN server on the configured UDP
// port. Returns nil when the feature is disabled.
func Start(cfg config.TURNConfig) (*Server, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.PublicIP == "" {
		return nil, fmt.Errorf("turn: public_ip is required when enabled")
	}
	relayIP := net.ParseIP(cfg.PublicIP)
	if relayIP == nil {
		return nil, fmt.Errorf("turn: public_ip %q is not an IP address", cfg.PublicIP)
	}

	udpListener, err := net.ListenPacket("udp4", "0.0.0.0:"+strconv.Itoa(cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("turn: listen udp: %w", err)
	}

	keys := make(map[string][]byte, len(cfg.Users))
	for user, pass := range cfg.Users {
		keys[user] = turn.GenerateAuthKey(user, cfg.Realm, pass)
	}

	srv, err := turn.NewServer(turn.ServerConfig{
		Realm: cfg.Realm,
		AuthHandler: func(username, realm string, srcAddr net.Addr) ([]byte, bool) {
			key, ok := keys[username]
			if !ok {
				log.Warn().Str("module", "turnserver").Str("username", username).Str("src", srcAddr.String()).Msg("auth rejected")
			}
			return key, ok
		},
		PacketConnConfigs: []turn.PacketConnConfig{
			{
				PacketConn: udpListener,
				RelayAddressGenerator: &turn.RelayAddressGeneratorStatic{
					RelayAddress: relayIP,
					Address:      "0.0.0.0",
				},
			},
		},
	})
	if err != nil {
		_ = udpListener.Close()
		return nil, fmt.Errorf("turn: start server: %w", err)
	}

	log.Info().Str("module", "turnserver").Int("port", cfg.Port).Str("realm", cfg.Realm).Msg("TURN relay listening")
	return &Server{inner: srv}, nil
}

func (s *Server) Close() {
	if s == nil {
		return
	}
	if err := s.inner.Close(); err != nil {
		log.Error().Err(err).Str("module", "turnserver").Msg("close error")
	}
}
