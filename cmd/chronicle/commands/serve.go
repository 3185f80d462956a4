package commands

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/chronicle/pkg/cli"
	"github.com/haivivi/chronicle/pkg/session"
)

var serveFlags struct {
	sessionFlags
	addr string
	path string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Host editing sessions over WebSocket",
	Long: `Host editing sessions over WebSocket, one session per connection.

Clients send JSON commands such as {"op":"generate","mode":"line"} or
{"op":"type","text":"Hello"} and receive "view" messages whenever the
document or the generation state changes. The initial document can be
passed as the "text" query parameter.

Examples:
  chronicle serve --addr :8080
  chronicle serve --store badger`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := contextDir()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		base, store, err := serveFlags.sessionConfig(ctx, dir)
		if err != nil {
			return err
		}
		defer store.Close()

		mux := http.NewServeMux()
		mux.Handle(serveFlags.path, session.NewHandler(func(r *http.Request) (session.Config, error) {
			cfg := base
			cfg.Text = r.URL.Query().Get("text")
			return cfg, nil
		}))
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("ok\n"))
		})

		srv := &http.Server{
			Addr:              serveFlags.addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			// sessions end with the command
			BaseContext: func(net.Listener) context.Context { return ctx },
		}
		errc := make(chan error, 1)
		go func() { errc <- srv.ListenAndServe() }()
		cli.PrintInfo("Serving sessions on ws://%s%s", serveFlags.addr, serveFlags.path)

		select {
		case err := <-errc:
			return err
		case <-ctx.Done():
		}
		slog.Info("chronicle: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.addr, "addr", "localhost:8080", "listen address")
	f.StringVar(&serveFlags.path, "path", "/session", "WebSocket endpoint path")
	f.StringVarP(&serveFlags.model, "model", "m", "", "model name from completion.yaml")
	f.StringVar(&serveFlags.store, "store", "", "journal store: memory, badger or badger:DIR")

	rootCmd.AddCommand(serveCmd)
}
