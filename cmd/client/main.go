package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/careline/telecall/internal/config"
	"github.com/careline/telecall/internal/core"
	"github.com/careline/telecall/internal/domain"
	"github.com/careline/telecall/internal/session"
	"github.com/careline/telecall/internal/stuncheck"
)

func main() {
	room := flag.String("room", "", "consultation room id")
	participant := flag.String("participant", "", "participant id")
	roleFlag := flag.String("role", "patient", "doctor or patient; the doctor initiates the call")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if *room == "" || *participant == "" {
		fmt.Fprintln(os.Stderr, "usage: client -room <id> -participant <id> [-role doctor|patient]")
		os.Exit(2)
	}
	role := domain.RoleResponder
	if strings.EqualFold(*roleFlag, "doctor") {
		role = domain.RoleInitiator
	}

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stuncheck.Probe(cfg.Client.STUNServers)

	src, err := session.NewCaptureSource()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up media capture")
	}

	ctl := session.New(
		session.Config{
			RoomID:             domain.RoomID(*room),
			ParticipantID:      domain.ParticipantID(*participant),
			Role:               role,
			NegotiationTimeout: cfg.Client.NegotiationTimeout,
		},
		src,
		session.NewRelayDialer(cfg.Client),
		session.NewPeerFactory(cfg.Client.STUNServers, src.PopulateEngine),
	)
	if err := ctl.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start session")
	}

	// m toggles the microphone, v the camera, q hangs up.
	go readCommands(ctl)

	select {
	case <-ctx.Done():
		ctl.Close()
		<-ctl.Done()
	case <-ctl.Done():
	}

	res := ctl.Result()
	if res == nil {
		return
	}
	if res.Err != nil {
		fmt.Fprintln(os.Stderr, core.UserMessage(res.Err))
		os.Exit(1)
	}
	fmt.Println("call ended:", res.Reason)
}

func readCommands(ctl *session.Controller) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		switch strings.TrimSpace(sc.Text()) {
		case "m":
			ctl.ToggleMute()
			fmt.Println("microphone muted:", ctl.Muted())
		case "v":
			ctl.ToggleVideo()
			fmt.Println("camera off:", ctl.VideoOff())
		case "q":
			ctl.Close()
			return
		}
	}
}
