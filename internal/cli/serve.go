package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rudransh-shrivastava/privosend/internal/blob"
	"github.com/rudransh-shrivastava/privosend/internal/ratelimit"
	"github.com/rudransh-shrivastava/privosend/internal/relay"
	"github.com/rudransh-shrivastava/privosend/internal/server"
	"github.com/rudransh-shrivastava/privosend/internal/store"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the relay and cloud-drop server",
	Long:  `serve hosts the WebSocket signaling relay at /ws/:code and the cloud-drop API under /api`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sessions, closeSessions, err := openRegistry()
		if err != nil {
			return err
		}
		defer closeSessions()

		mem := blob.NewMemory(cfg.SessionTTL)
		key, err := encryptionKey()
		if err != nil {
			return err
		}
		blobs, err := blob.NewSealed(mem, key)
		if err != nil {
			return err
		}

		addr := cfg.Addr
		if serveAddr != "" {
			addr = serveAddr
		}

		srv := server.New(server.Options{
			Environment:     cfg.Environment,
			AllowedOrigins:  cfg.AllowedOrigins,
			Hub:             relay.NewHub(log),
			Sessions:        sessions,
			Blobs:           blobs,
			SweepBlobs:      mem.Sweep,
			UploadLimiter:   ratelimit.New(ratelimit.DefaultUploadLimit, ratelimit.DefaultWindow),
			DownloadLimiter: ratelimit.New(ratelimit.DefaultDownloadLimit, ratelimit.DefaultWindow),
			Logger:          log,
		})
		return srv.Run(ctx, addr)
	},
}

func openRegistry() (store.Registry, func(), error) {
	limits := store.Limits{TTL: cfg.SessionTTL, MaxDownloads: cfg.MaxDownloads}
	if cfg.DBPath == "" {
		log.Info("Using in-memory session registry")
		return store.NewMemoryRegistry(limits), func() {}, nil
	}

	db, err := store.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	log.Info("Using sqlite session registry", "path", cfg.DBPath)
	return store.NewSQLRegistry(db, limits), func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}, nil
}

// encryptionKey parses the configured key or generates one for this process.
// Blobs never outlive the process, so a generated key loses nothing.
func encryptionKey() ([]byte, error) {
	if cfg.EncryptionKey != "" {
		return blob.ParseKey(cfg.EncryptionKey)
	}
	log.Info("No encryption key configured, generating one for this run")
	return blob.GenerateKey()
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from PRIVOSEND_ADDR)")
}
