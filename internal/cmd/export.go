package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tilecached/tilecached/internal/job"
	"github.com/tilecached/tilecached/internal/store"
	"github.com/tilecached/tilecached/internal/tilemath"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Copy tiles from one store into another over a coverage area",
	RunE:  runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	addCoverageFlags(exportCmd, "export")
	addRefreshFlag(exportCmd, "export")

	exportCmd.Flags().String("src-backend", "dir", "Source store backend: dir, archive, or pg")
	exportCmd.Flags().String("src-path", "./tiles", "Source directory or archive file path")
	exportCmd.Flags().String("src-dsn", "", "Source Postgres connection string")
	exportCmd.Flags().String("dst-backend", "archive", "Destination store backend: dir, archive, or pg")
	exportCmd.Flags().String("dst-path", "./export.mbtiles", "Destination directory or archive file path")
	exportCmd.Flags().String("dst-dsn", "", "Destination Postgres connection string")

	mustBind := func(key, name string) {
		if err := viper.BindPFlag(key, exportCmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("cmd: failed to bind flag %q: %v", name, err))
		}
	}
	mustBind("export.src_backend", "src-backend")
	mustBind("export.src_path", "src-path")
	mustBind("export.src_dsn", "src-dsn")
	mustBind("export.dst_backend", "dst-backend")
	mustBind("export.dst_path", "dst-path")
	mustBind("export.dst_dsn", "dst-dsn")
}

func runExport(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	ctx := context.Background()
	src, err := openStore(ctx, viper.GetString("export.src_backend"), viper.GetString("export.src_path"), viper.GetString("export.src_dsn"), false, 5*time.Second)
	if err != nil {
		return fmt.Errorf("cmd: opening source store: %w", err)
	}
	defer src.Close()

	dst, err := openStore(ctx, viper.GetString("export.dst_backend"), viper.GetString("export.dst_path"), viper.GetString("export.dst_dsn"), true, 5*time.Second)
	if err != nil {
		return fmt.Errorf("cmd: opening destination store: %w", err)
	}
	defer dst.Close()

	meta, err := src.GetMetadata(ctx)
	if err == nil {
		_ = dst.UpdateMetadata(ctx, metadataToPatch(meta))
	}

	// hashSource supports --refresh-before=true: the export-side half of
	// the hash-compare predicate reads the source store's own recorded
	// hash for the tile rather than re-reading the bytes.
	hashSource := func(ctx context.Context, c tilemath.Coords) (string, error) {
		info, err := src.TileExtraInfo(ctx, []store.RangeQuery{{Z: c.Z, XMin: c.X, XMax: c.X, YMin: c.Y, YMax: c.Y}}, store.ExtraInfoHash)
		if err != nil {
			return "", err
		}
		return info[store.TileKey{Z: c.Z, X: c.X, Y: c.Y}].Hash, nil
	}

	engine := job.NewEngine(dst)
	spec := job.Spec{
		Coverage: coverageFromViper("export"),
		Scheme:   schemeFromViper("export"),
		Workers:  viper.GetInt("export.workers"),
		Refresh:  refreshPolicyFromFlag(cmd, "export", hashSource),
		Progress: viper.GetBool("export.progress"),
	}

	stop := cancelOnInterrupt(engine)
	defer stop()

	results, err := engine.Run(ctx, spec, job.ExportRunner(src, dst))
	if err != nil {
		return fmt.Errorf("cmd: export job: %w", err)
	}
	return reportJobResults(results, job.CleanupDest(ctx, dst))
}
