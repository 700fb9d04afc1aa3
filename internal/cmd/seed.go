package cmd

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tilecached/tilecached/internal/job"
	"github.com/tilecached/tilecached/internal/netutil"
	"github.com/tilecached/tilecached/internal/store"
	"github.com/tilecached/tilecached/internal/tilemath"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Download tiles from an origin into a store over a coverage area",
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
	addCoverageFlags(seedCmd, "seed")
	addRefreshFlag(seedCmd, "seed")

	seedCmd.Flags().String("backend", "dir", "Store backend: dir, archive, or pg")
	seedCmd.Flags().String("path", "./tiles", "Directory or archive file path (backend dir/archive)")
	seedCmd.Flags().String("dsn", "", "Postgres connection string (backend pg)")
	seedCmd.Flags().String("origin-url", "", "Origin URL template with {z}/{x}/{y} placeholders (required)")
	seedCmd.Flags().Int("max-try", 3, "Max attempts against the origin per tile")
	seedCmd.Flags().Duration("timeout", 10*time.Second, "Per-attempt origin request timeout")
	seedCmd.Flags().Bool("store-transparent", true, "Persist fully-transparent tiles instead of skipping them")

	mustBind := func(key, name string) {
		if err := viper.BindPFlag(key, seedCmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("cmd: failed to bind flag %q: %v", name, err))
		}
	}
	mustBind("seed.backend", "backend")
	mustBind("seed.path", "path")
	mustBind("seed.dsn", "dsn")
	mustBind("seed.origin_url", "origin-url")
	mustBind("seed.max_try", "max-try")
	mustBind("seed.timeout", "timeout")
	mustBind("seed.store_transparent", "store-transparent")
}

func runSeed(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	originURL := viper.GetString("seed.origin_url")
	if originURL == "" {
		return fmt.Errorf("cmd: seed requires --origin-url")
	}

	ctx := context.Background()
	st, err := openStore(ctx, viper.GetString("seed.backend"), viper.GetString("seed.path"), viper.GetString("seed.dsn"), true, 5*time.Second)
	if err != nil {
		return fmt.Errorf("cmd: opening store: %w", err)
	}
	defer st.Close()

	client := &http.Client{Timeout: viper.GetDuration("seed.timeout")}
	maxTry := viper.GetInt("seed.max_try")
	timeout := viper.GetDuration("seed.timeout")
	storeTransparent := viper.GetBool("seed.store_transparent")

	scheme := schemeFromViper("seed")
	download := func(ctx context.Context, c tilemath.Coords) error {
		return store.DownloadTile(ctx, client, st, originURL, scheme, c.Z, c.X, c.Y, maxTry, timeout, storeTransparent)
	}

	// hashOrigin supports --refresh-before=true: refetch the origin tile
	// to compare its MD5 against what's already stored, the seed-side
	// half of the hash-compare predicate (4.H step 2).
	hashOrigin := func(ctx context.Context, c tilemath.Coords) (string, error) {
		tmpY := tilemath.FlipForScheme(scheme, c.Z, c.Y)
		url := strings.NewReplacer(
			"{z}", strconv.Itoa(int(c.Z)),
			"{x}", strconv.Itoa(int(c.X)),
			"{y}", strconv.Itoa(int(tmpY)),
		).Replace(originURL)
		body, err := netutil.HTTPGet(ctx, client, url, timeout)
		if err != nil {
			return "", err
		}
		return md5Hex(body), nil
	}

	engine := job.NewEngine(st)
	spec := job.Spec{
		Coverage: coverageFromViper("seed"),
		Scheme:   scheme,
		Workers:  viper.GetInt("seed.workers"),
		Refresh:  refreshPolicyFromFlag(cmd, "seed", hashOrigin),
		Progress: viper.GetBool("seed.progress"),
	}

	stop := cancelOnInterrupt(engine)
	defer stop()

	results, err := engine.Run(ctx, spec, job.SeedRunner(st, download))
	if err != nil {
		return fmt.Errorf("cmd: seed job: %w", err)
	}
	return reportJobResults(results, job.CleanupDest(ctx, st))
}

func reportJobResults(results []job.Result, cleanupErr error) error {
	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
			logger.Error("job: tile failed", "coords", r.Task.Coords, "error", r.Err)
		}
	}
	logger.Info("job complete", "total", len(results), "failed", failed)
	if cleanupErr != nil {
		return fmt.Errorf("cmd: post-job cleanup: %w", cleanupErr)
	}
	if failed > 0 {
		return fmt.Errorf("cmd: %d of %d tiles failed", failed, len(results))
	}
	return nil
}
