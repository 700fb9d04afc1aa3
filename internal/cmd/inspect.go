package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print a store's metadata",
	RunE:  runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().String("backend", "dir", "Store backend: dir, archive, or pg")
	inspectCmd.Flags().String("path", "./tiles", "Directory or archive file path (backend dir/archive)")
	inspectCmd.Flags().String("dsn", "", "Postgres connection string (backend pg)")

	mustBind := func(key, name string) {
		if err := viper.BindPFlag(key, inspectCmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("cmd: failed to bind flag %q: %v", name, err))
		}
	}
	mustBind("inspect.backend", "backend")
	mustBind("inspect.path", "path")
	mustBind("inspect.dsn", "dsn")
}

func runInspect(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	ctx := context.Background()
	st, err := openStore(ctx, viper.GetString("inspect.backend"), viper.GetString("inspect.path"), viper.GetString("inspect.dsn"), false, 5*time.Second)
	if err != nil {
		return fmt.Errorf("cmd: opening store: %w", err)
	}
	defer st.Close()

	meta, err := st.GetMetadata(ctx)
	if err != nil {
		return fmt.Errorf("cmd: reading metadata: %w", err)
	}

	fmt.Printf("name:          %s\n", meta.Name)
	fmt.Printf("description:   %s\n", meta.Description)
	fmt.Printf("attribution:   %s\n", meta.Attribution)
	fmt.Printf("version:       %s\n", meta.Version)
	fmt.Printf("type:          %s\n", meta.Type)
	fmt.Printf("format:        %s\n", meta.Format)
	fmt.Printf("minzoom:       %d\n", meta.MinZoom)
	fmt.Printf("maxzoom:       %d\n", meta.MaxZoom)
	fmt.Printf("bounds:        %v\n", meta.Bounds)
	fmt.Printf("center:        %v\n", meta.Center)
	fmt.Printf("scheme:        %s\n", meta.Scheme)
	if meta.VectorLayers != "" {
		fmt.Printf("vector_layers: %s\n", meta.VectorLayers)
	}
	return nil
}
