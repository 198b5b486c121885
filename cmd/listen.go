package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Skinpack/JAProxy/internal/config"
	"github.com/Skinpack/JAProxy/internal/core"
	"github.com/Skinpack/JAProxy/internal/jka"
	"github.com/Skinpack/JAProxy/internal/listener"
	"github.com/Skinpack/JAProxy/internal/log"
)

var (
	listenDevice  string
	listenAddress string
	listenPort    uint16
	listenBackend string
	listenFile    string
	statsInterval time.Duration
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Observe traffic to and from one game server",
	Long: `Observe traffic to and from one game server.

Examples:
  japroxy listen -i eth0 -a 192.168.1.10              # default port 29070
  japroxy listen -i eth0 -a 192.168.1.10 -p 29071
  japroxy listen --backend file --file match.pcap -a 192.168.1.10
  japroxy listen -c config.yml
`,
	RunE: runListen,
}

func init() {
	listenCmd.Flags().StringVarP(&listenDevice, "interface", "i", "", "network interface to capture on")
	listenCmd.Flags().StringVarP(&listenAddress, "address", "a", "", "server IPv4 address")
	listenCmd.Flags().Uint16VarP(&listenPort, "port", "p", jka.DefaultPort, "server UDP port")
	listenCmd.Flags().StringVar(&listenBackend, "backend", "", "capture backend: pcap, afpacket, file")
	listenCmd.Flags().StringVar(&listenFile, "file", "", "pcap file to replay (file backend)")
	listenCmd.Flags().DurationVar(&statsInterval, "stats-interval", 10*time.Second, "how often to log capture statistics (0 disables)")
	rootCmd.AddCommand(listenCmd)
}

// setupSignalContext cancels the returned context on the first SIGINT or
// SIGTERM and exits hard on the second.
func setupSignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		cancel()
		<-c
		os.Exit(1) // second signal: exit directly
	}()

	return ctx
}

func loadListenConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	// Flags override file values.
	if cmd.Flags().Changed("interface") {
		cfg.Device = listenDevice
	}
	if cmd.Flags().Changed("address") {
		cfg.Server.Address = listenAddress
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = listenPort
	}
	if cmd.Flags().Changed("backend") {
		cfg.Capture.Backend = listenBackend
	}
	if cmd.Flags().Changed("file") {
		cfg.Capture.File = listenFile
		if !cmd.Flags().Changed("backend") {
			cfg.Capture.Backend = "file"
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runListen(cmd *cobra.Command, args []string) error {
	cfg, err := loadListenConfig(cmd)
	if err != nil {
		return err
	}
	if err := log.Init(cfg.Log); err != nil {
		return err
	}

	server, err := cfg.Endpoint()
	if err != nil {
		return err
	}

	l, err := listener.New(server, nil, listener.Sinks{
		OnClientPacket: packetLogger(core.FromClient),
		OnServerPacket: packetLogger(core.FromServer),
	}, listener.WithCaptureOptions(cfg.CaptureOptions()))
	if err != nil {
		return err
	}
	defer l.Close()

	if err := l.Start(); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"server":  server.String(),
		"device":  cfg.Device,
		"backend": cfg.Capture.Backend,
		"filter":  listener.Filter(server),
	}).Info("capture started")

	ctx := setupSignalContext()
	go func() {
		<-ctx.Done()
		logrus.Info("shutting down")
		l.Stop()
	}()
	if statsInterval > 0 {
		go reportStats(ctx, l)
	}

	res := l.Wait()
	if !res.IsSuccess() {
		return fmt.Errorf("capture loop failed: %s", res.ErrString())
	}
	logrus.Info("capture stopped")
	return nil
}

// packetLogger is the demonstration sink: it logs each packet's envelope.
// Real deployments replace this with the protocol state reconstruction.
func packetLogger(dir core.Direction) func(core.RawPacket) {
	return func(p core.RawPacket) {
		entry := logrus.WithFields(logrus.Fields{
			"direction": dir.String(),
			"bytes":     len(p.Data),
		})
		if cmd := jka.ConnlessCommand(p.Data); cmd != "" {
			entry = entry.WithField("connless", cmd)
		}
		entry.Debug("packet")
	}
}

func reportStats(ctx context.Context, l *listener.Listener) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := l.Stats()
			if !stats.IsSuccess() {
				continue
			}
			s := stats.Value()
			logrus.WithFields(logrus.Fields{
				"received":   s.Received,
				"dropped":    s.Dropped,
				"if_dropped": s.IfDropped,
			}).Info("capture statistics")
		}
	}
}
