// Command satbridge bridges local DVB tuners to the network: it enumerates
// /dev/dvb, owns one stream pipeline per frontend (tune, PID filtering,
// RTP/UDP egress), and serves health + metrics on a status listener. The
// RTSP/SAT>IP signalling front drives the stream facades; this binary hosts
// the pool.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/satbridge/satbridge/internal/config"
	"github.com/satbridge/satbridge/internal/dvb"
	"github.com/satbridge/satbridge/internal/dvb/frontend"
	"github.com/satbridge/satbridge/internal/health"
	"github.com/satbridge/satbridge/internal/sessionlog"
	"github.com/satbridge/satbridge/internal/stream"
)

func main() {
	envFile := flag.String("env-file", "", "Optional .env file loaded before other flags are read")
	dvbPath := flag.String("dvb-path", config.String("SATBRIDGE_DVB_PATH", "/dev/dvb"), "DVB device tree to enumerate")
	statusAddr := flag.String("status-addr", config.String("SATBRIDGE_STATUS_ADDR", ":9770"), "Status listener (healthz + metrics)")
	sessionDB := flag.String("session-db", config.String("SATBRIDGE_SESSION_DB", ""), "Optional sqlite path for session accounting")
	dvrBuffer := flag.Int("dvr-buffer", config.Int("SATBRIDGE_DVR_BUFFER", frontend.DefaultDVRBufferSize), "Kernel DVR buffer size in bytes")
	monitorIvl := flag.Duration("monitor-interval", config.Duration("SATBRIDGE_MONITOR_INTERVAL", 0), "Signal monitor period (0 = off)")
	flag.Parse()

	if *envFile != "" {
		if err := config.LoadEnvFile(*envFile); err != nil {
			log.Printf("main: env file %s: %v", *envFile, err)
		}
		// The flag defaults above were read before the file was loaded; apply
		// its SATBRIDGE_* values to every flag not given on the command line.
		explicit := map[string]bool{}
		flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
		for name, key := range map[string]string{
			"dvb-path": "SATBRIDGE_DVB_PATH", "status-addr": "SATBRIDGE_STATUS_ADDR",
			"session-db": "SATBRIDGE_SESSION_DB", "dvr-buffer": "SATBRIDGE_DVR_BUFFER",
			"monitor-interval": "SATBRIDGE_MONITOR_INTERVAL",
		} {
			if v := config.String(key, ""); v != "" && !explicit[name] {
				if err := flag.Set(name, v); err != nil {
					log.Printf("main: env %s: %v", key, err)
				}
			}
		}
	}

	paths, err := dvb.Enumerate(*dvbPath)
	if err != nil {
		log.Fatalf("main: enumerate %s: %v", *dvbPath, err)
	}

	var streams []*stream.Stream
	var caps frontend.Capabilities
	for i, p := range paths {
		fe := frontend.New(p)
		if err := fe.SetFrontendInfo(); err != nil {
			log.Printf("main: frontend %s unavailable, excluded: %v", p.FE, err)
			continue
		}
		fe.SetDVRBufferSize(*dvrBuffer)
		caps.Add(fe.Capabilities())
		streams = append(streams, stream.New(i, fe, nil))
	}
	log.Printf("main: frontends=%d capabilities=%s", len(streams), caps)

	var store *sessionlog.Store
	if *sessionDB != "" {
		store, err = sessionlog.Open(*sessionDB)
		if err != nil {
			log.Fatalf("main: session db: %v", err)
		}
		defer store.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	mux.Handle("/healthz", health.Handler(func() health.Status {
		running := 0
		for _, s := range streams {
			if s.State() == stream.StateRunning {
				running++
			}
		}
		return health.Status{
			Frontends:      len(streams),
			Capabilities:   caps.String(),
			StreamsRunning: running,
		}
	}))
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: *statusAddr, Handler: mux}
	go func() {
		log.Printf("main: status listening on %s", *statusAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("main: status listener: %v", err)
		}
	}()

	if *monitorIvl > 0 {
		go func() {
			t := time.NewTicker(*monitorIvl)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					for _, s := range streams {
						s.MonitorSignal(true)
					}
				}
			}
		}()
	}

	<-ctx.Done()
	log.Print("main: shutting down")

	for _, s := range streams {
		acct := s.Accounting()
		if err := s.Teardown(); err != nil {
			log.Printf("main: stream %d teardown: %v", s.ID, err)
		}
		if store != nil && acct.Packets > 0 {
			rec := sessionlog.Session{
				ID:         acct.Session,
				StreamID:   acct.StreamID,
				Client:     acct.Client,
				Started:    acct.Started,
				Ended:      time.Now(),
				Bytes:      acct.Bytes,
				Packets:    acct.Packets,
				Overwrites: acct.Overwrites,
			}
			if err := store.Record(context.Background(), rec); err != nil {
				log.Printf("main: record session: %v", err)
			}
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
