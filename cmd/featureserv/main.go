package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ogcapi/featureserv/internal/config"
	"github.com/ogcapi/featureserv/internal/provider"
	"github.com/ogcapi/featureserv/internal/provider/mongodb"
	"github.com/ogcapi/featureserv/internal/provider/sqlite"
	"github.com/ogcapi/featureserv/internal/web"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "featureserv",
		Short: "GeoJSON feature collection server",
		RunE:  run,
	}

	f := rootCmd.Flags()
	f.Int("port", 5000, "HTTP port for the feature API")
	f.String("config", "featureserv.yml", "path to the collections config file")
	f.String("admin-secret", "", "HS256 secret for write-endpoint bearer tokens (empty disables writes)")
	f.Int("default-limit", 10, "default items page size")
	f.Int("max-limit", 1000, "maximum items page size")

	// Bind flags to viper. Viper keys use underscores (admin_secret) so
	// they match the env var suffix after stripping the FEATURESERV_ prefix.
	bindFlag := func(viperKey, flagName string) {
		_ = viper.BindPFlag(viperKey, f.Lookup(flagName))
	}
	bindFlag("port", "port")
	bindFlag("config", "config")
	bindFlag("admin_secret", "admin-secret")
	bindFlag("default_limit", "default-limit")
	bindFlag("max_limit", "max-limit")

	viper.SetEnvPrefix("FEATURESERV")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	fmt.Printf("featureserv %s starting\n", config.Version)
	fmt.Printf("  Config: %s\n", cfg.ConfigFile)
	fmt.Printf("  Port: :%d\n", cfg.Port)
	fmt.Printf("  Writes: %t\n", cfg.AdminSecret != "")
	fmt.Println()

	collections, err := config.LoadCollections(cfg.ConfigFile)
	if err != nil {
		return err
	}

	registry := provider.NewRegistry()
	registry.Register("mongodb", mongodb.New)
	registry.Register("sqlite", sqlite.New)

	// Providers connect and introspect fields before the server starts;
	// a collection that cannot be served fails startup outright.
	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startCancel()

	served := make([]*web.Collection, 0, len(collections))
	defer func() {
		for _, c := range served {
			_ = c.Provider.Close(context.Background())
		}
	}()
	for _, meta := range collections {
		p, err := registry.Open(startCtx, meta.Provider.Definition())
		if err != nil {
			return fmt.Errorf("collection %q: %w", meta.ID, err)
		}
		fields, err := p.Fields(startCtx)
		if err != nil {
			_ = p.Close(startCtx)
			return fmt.Errorf("collection %q: introspect fields: %w", meta.ID, err)
		}
		log.Printf("collection %q ready (%s, %d fields)", meta.ID, meta.Provider.Name, len(fields))
		served = append(served, &web.Collection{Meta: meta, Provider: p, Fields: fields})
	}

	srv := web.New(&cfg, served)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		log.Printf("received %s, shutting down...", sig)
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("web server: %w", err)
		}
		return nil
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("web server shutdown: %v", err)
	}
	return nil
}
