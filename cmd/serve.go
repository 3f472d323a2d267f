package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kiesman99/tiler/internal/merger"
	"github.com/kiesman99/tiler/internal/server"
	"github.com/kiesman99/tiler/internal/splitter"
	"github.com/kiesman99/tiler/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for the split and merge API",
	Long: `Start an HTTP server that provides a REST API for splitting images and
merging tiles. Paths in requests refer to the server's file system; use
--root to confine them to one directory.

Examples:
  # Start server on default port 8080
  tiler serve

  # Start server on custom port, serving files under /data
  tiler serve --port 3000 --root /data

  # Start server with custom bind address
  tiler serve --bind 0.0.0.0 --port 8080`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Server configuration
	serveCmd.Flags().StringP("bind", "b", "localhost", "bind address")
	serveCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	serveCmd.Flags().Duration("timeout", 5*time.Minute, "request timeout")
	serveCmd.Flags().String("root", "", "directory request paths are confined to (default: no restriction)")
	serveCmd.Flags().Bool("upload", false, "upload split results to the configured S3 bucket")

	// Bind flags to viper
	viper.BindPFlag("server.bind", serveCmd.Flags().Lookup("bind"))
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.timeout", serveCmd.Flags().Lookup("timeout"))
	viper.BindPFlag("server.root", serveCmd.Flags().Lookup("root"))
	viper.BindPFlag("server.upload", serveCmd.Flags().Lookup("upload"))
}

func runServe(cmd *cobra.Command, args []string) error {
	bind := viper.GetString("server.bind")
	port := viper.GetInt("server.port")
	timeout := viper.GetDuration("server.timeout")

	addr := fmt.Sprintf("%s:%d", bind, port)

	sel, err := newSelector()
	if err != nil {
		return err
	}
	logger := log.New(cmd.ErrOrStderr(), "", log.LstdFlags)
	p := newProvider()

	sp := splitter.New(p, sel)
	sp.Logger = logger
	m := merger.New(p, sel)
	m.Logger = logger
	if w := viper.GetInt("workers"); w > 0 {
		sp.Workers = w
		m.Workers = w
		m.Lookahead = w
	}
	if viper.GetBool("server.upload") {
		up, err := storage.New(cmd.Context(), s3Config())
		if err != nil {
			return err
		}
		up.Logger = logger
		sp.Uploader = up
	}

	apiServer := server.NewServer(version, sp, m)
	if root := viper.GetString("server.root"); root != "" {
		if apiServer.Root, err = filepath.Abs(root); err != nil {
			return err
		}
	}

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.NewRouter(apiServer, timeout),
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		fmt.Fprintf(cmd.ErrOrStderr(), "\nShutting down server...\n")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	fmt.Fprintf(cmd.ErrOrStderr(), "Starting tiler server on %s\n", addr)
	fmt.Fprintf(cmd.ErrOrStderr(), "Health check: http://%s/api/v1/health\n", addr)
	fmt.Fprintf(cmd.ErrOrStderr(), "Split endpoint: http://%s/api/v1/split\n", addr)
	fmt.Fprintf(cmd.ErrOrStderr(), "Merge endpoint: http://%s/api/v1/merge\n", addr)

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("server error: %v", err)
	}

	return nil
}
