// Command tacticald is a reference long-running agent wiring the
// Version Chain Store to a bbolt-backed KV engine and a websocket
// Backend Channel, in the spirit of the teacher's cmd/turdb but for a
// sync agent instead of an interactive SQL shell.
package main

import (
	"context"
	"flag"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"tactical/internal/config"
	"tactical/internal/telemetry"
	"tactical/pkg/backend/wschannel"
	"tactical/pkg/datamanager"
	"tactical/pkg/kv/boltkv"
	"tactical/pkg/store"
)

func main() {
	dbPath := flag.String("db", "tactical.db", "bbolt database file")
	serverURL := flag.String("server", "", "backend websocket URL, e.g. wss://sync.example.com/agent")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	logger := logrus.New()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	log := telemetry.New(logger)

	if *serverURL == "" {
		log.Error("missing -server")
		os.Exit(1)
	}
	u, err := url.Parse(*serverURL)
	if err != nil {
		log.With("error", err).Error("invalid -server URL")
		os.Exit(1)
	}

	engine, err := boltkv.Open(*dbPath, log)
	if err != nil {
		log.With("error", err).Error("failed to open database")
		os.Exit(1)
	}
	defer engine.Close()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.With("error", err).Error("failed to connect to backend")
		os.Exit(1)
	}
	channel := wschannel.New(conn, log)
	defer channel.Close()

	cfg := config.Apply(config.WithDatabaseName(*dbPath))
	st := store.New(engine, store.WithLogger(log), store.WithConfig(cfg))

	outdatedCh, unsubOutdated := st.Outdated()
	defer unsubOutdated()
	go func() {
		for evt := range outdatedCh {
			log.With("chain", evt.Key.Serial()).Warn("pending mutation superseded by backend push; awaiting application resolution")
		}
	}()

	dm := datamanager.New(st, channel, log)
	defer dm.Close()

	log.Debug("tacticald ready")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()
	log.Debug("shutting down")
}
