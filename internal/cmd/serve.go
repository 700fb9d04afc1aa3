package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tilecached/tilecached/internal/pipeline"
	"github.com/tilecached/tilecached/internal/server"
	"github.com/tilecached/tilecached/internal/services"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve tiles from a configured store, forwarding cache misses to an origin",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "127.0.0.1:8080", "Listen address (host:port)")
	serveCmd.Flags().String("name", "default", "Name this data source is served under (/tiles/{name}/...)")
	serveCmd.Flags().String("backend", "dir", "Store backend: dir, archive, or pg")
	serveCmd.Flags().String("path", "./tiles", "Directory or archive file path (backend dir/archive)")
	serveCmd.Flags().String("dsn", "", "Postgres connection string (backend pg)")
	serveCmd.Flags().String("scheme", "xyz", "Tile row scheme this source is requested in: xyz or tms")
	serveCmd.Flags().String("origin-url", "", "Origin URL template with {z}/{x}/{y} placeholders, for cache-miss forwarding")
	serveCmd.Flags().Int("origin-max-try", 3, "Max attempts against the origin per tile")
	serveCmd.Flags().Duration("origin-timeout", 10*time.Second, "Per-attempt origin request timeout")
	serveCmd.Flags().Bool("store-transparent", true, "Persist fully-transparent tiles instead of skipping them")
	serveCmd.Flags().String("cache-control", "no-store", "Cache-Control header for served tiles")
	serveCmd.Flags().String("styles-dir", "./assets/styles", "Directory for cached style documents")
	serveCmd.Flags().String("geojson-dir", "./assets/geojson", "Directory for cached geojson documents")
	serveCmd.Flags().String("sprites-dir", "./assets/sprites", "Directory for cached sprite sheets")
	serveCmd.Flags().String("fonts-dir", "./assets/fonts", "Directory for cached font glyph ranges")
	serveCmd.Flags().Duration("open-timeout", 5*time.Second, "Timeout for opening the store's lock/connection")

	mustBind := func(key, name string) {
		if err := viper.BindPFlag(key, serveCmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("cmd: failed to bind flag %q: %v", name, err))
		}
	}
	mustBind("serve.addr", "addr")
	mustBind("serve.name", "name")
	mustBind("serve.backend", "backend")
	mustBind("serve.path", "path")
	mustBind("serve.dsn", "dsn")
	mustBind("serve.scheme", "scheme")
	mustBind("serve.origin_url", "origin-url")
	mustBind("serve.origin_max_try", "origin-max-try")
	mustBind("serve.origin_timeout", "origin-timeout")
	mustBind("serve.store_transparent", "store-transparent")
	mustBind("serve.cache_control", "cache-control")
	mustBind("serve.styles_dir", "styles-dir")
	mustBind("serve.geojson_dir", "geojson-dir")
	mustBind("serve.sprites_dir", "sprites-dir")
	mustBind("serve.fonts_dir", "fonts-dir")
	mustBind("serve.open_timeout", "open-timeout")
}

func runServe(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	addr := viper.GetString("serve.addr")
	name := viper.GetString("serve.name")
	backend := viper.GetString("serve.backend")
	path := viper.GetString("serve.path")
	dsn := viper.GetString("serve.dsn")
	scheme := viper.GetString("serve.scheme")
	originURL := viper.GetString("serve.origin_url")
	originMaxTry := viper.GetInt("serve.origin_max_try")
	originTimeout := viper.GetDuration("serve.origin_timeout")
	storeTransparent := viper.GetBool("serve.store_transparent")
	cacheControl := viper.GetString("serve.cache_control")
	openTimeout := viper.GetDuration("serve.open_timeout")

	ctx := context.Background()
	st, err := openStore(ctx, backend, path, dsn, true, openTimeout)
	if err != nil {
		return fmt.Errorf("cmd: opening store: %w", err)
	}

	var origin *pipeline.OriginConfig
	if originURL != "" {
		origin = &pipeline.OriginConfig{
			URLTemplate:      originURL,
			Scheme:           schemeFromViper("serve"),
			Timeout:          originTimeout,
			MaxTry:           originMaxTry,
			StoreTransparent: storeTransparent,
		}
	}
	p := pipeline.New(name, st, origin, logger)

	svc := services.New(
		viper.GetString("serve.styles_dir"),
		viper.GetString("serve.geojson_dir"),
		viper.GetString("serve.sprites_dir"),
		viper.GetString("serve.fonts_dir"),
	)
	svc.RegisterData(name, &services.DataEntry{Store: st, Pipeline: p, Scheme: scheme})

	mux := server.Mux(svc, cacheControl, logger)

	logger.Info("serving tiles",
		"addr", addr,
		"name", name,
		"backend", backend,
		"path", path,
		"scheme", scheme,
		"origin_configured", origin != nil,
	)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	defer svc.Close()
	return srv.ListenAndServe()
}
