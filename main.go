// main.go
//
// Simon Says host.
//   - Serves the game API, the daily game and the peer registry over HTTP.
//   - Optionally joins a peer session (peer.enabled) over the websocket transport,
//     using this host's registry unless peer.registry_url points elsewhere.

package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Ninjadash54/simonsays/internal/config"
	"github.com/Ninjadash54/simonsays/internal/httpserver"
	"github.com/Ninjadash54/simonsays/internal/peer"
	"github.com/Ninjadash54/simonsays/internal/peer/wsnet"
	"github.com/Ninjadash54/simonsays/internal/registry"
	"github.com/Ninjadash54/simonsays/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	loc, err := cfg.Daily.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("bad daily time zone")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mem := store.NewMemoryStore()
	go pruneSessions(ctx, mem, cfg.Server.SessionIdle)
	reg := registry.New(cfg.Registry.TTL)
	srv := httpserver.New(mem, reg, httpserver.Options{
		ClientOrigin: cfg.Server.ClientOrigin,
		Game:         cfg.Game.Engine(),
		DailySalt:    cfg.Daily.Salt,
		DailyLoc:     loc,
	})

	ln, err := net.Listen("tcp", ":"+cfg.Server.Port)
	if err != nil {
		log.Fatal().Err(err).Str("port", cfg.Server.Port).Msg("listen")
	}
	hs := &http.Server{Handler: srv.Router(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("starting simonsays")
		if err := hs.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server exited")
		}
	}()

	var mgr *peer.Manager
	if cfg.Peer.Enabled {
		if mgr, err = startPeer(ctx, cfg.Peer); err != nil {
			log.Error().Err(err).Msg("peer session not started")
		}
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")
	if mgr != nil {
		if err := mgr.Stop(); err != nil {
			log.Warn().Err(err).Msg("stop peer session")
		}
	}
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := hs.Shutdown(sctx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
}

// pruneSessions drops hosted games nobody has touched for idle.
func pruneSessions(ctx context.Context, st store.Store, idle time.Duration) {
	if idle <= 0 {
		return
	}
	tick := time.NewTicker(idle / 4)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if n := st.Prune(ctx, idle); n > 0 {
				log.Info().Int("pruned", n).Int("games", st.Len()).Msg("idle games dropped")
			}
		}
	}
}

// startPeer joins the configured service under a fresh identity and logs
// everything the session reports.
func startPeer(ctx context.Context, pc config.PeerConfig) (*peer.Manager, error) {
	secret := []byte(pc.Secret)
	tr := wsnet.New(wsnet.Config{
		RegistryURL:  pc.RegistryURL,
		ListenAddr:   pc.Listen,
		Name:         pc.Name,
		Secret:       secret,
		PollInterval: pc.PollInterval,
		InviteWait:   pc.InviteTimeout,
	})
	opts := []peer.ManagerOption{peer.WithInviteTimeout(pc.InviteTimeout)}
	if pc.RequireToken {
		if len(secret) == 0 {
			return nil, errors.New("peer.require_token needs peer.secret")
		}
		opts = append(opts,
			peer.WithInvitationContext(peer.TokenContext(secret, pc.InviteTimeout)),
			peer.WithPolicy(peer.TokenPolicy(secret)))
	}

	m := peer.NewManager(tr, opts...)
	m.Subscribe(func(u peer.Update) {
		switch u.Kind {
		case peer.UpdatePeers:
			names := make([]string, len(u.Peers))
			for i, p := range u.Peers {
				names[i] = string(p)
			}
			log.Info().Strs("peers", names).Msg("connected peers changed")
		case peer.UpdateMessage:
			log.Info().Str("from", string(u.From)).Str("message", u.Message).Msg("peer message")
		default:
			log.Warn().Err(u.Err).Str("kind", string(u.Kind)).Msg("peer discovery failed")
		}
	})
	if err := m.Start(ctx, pc.Service, peer.ID(uuid.NewString())); err != nil {
		return nil, err
	}
	return m, nil
}
