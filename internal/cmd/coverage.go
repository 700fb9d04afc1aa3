package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tilecached/tilecached/internal/tilemath"
)

func addCoverageFlags(cmd *cobra.Command, prefix string) {
	cmd.Flags().Int("zoom", 0, "Zoom level to enumerate")
	cmd.Flags().Float64("min-lon", -180, "Coverage bounding box west edge")
	cmd.Flags().Float64("min-lat", -85.0511, "Coverage bounding box south edge")
	cmd.Flags().Float64("max-lon", 180, "Coverage bounding box east edge")
	cmd.Flags().Float64("max-lat", 85.0511, "Coverage bounding box north edge")
	cmd.Flags().String("scheme", "xyz", "Tile row scheme to enumerate: xyz or tms")
	cmd.Flags().Int("workers", 4, "Number of concurrent workers")
	cmd.Flags().Bool("progress", true, "Print progress to stderr")

	mustBind := func(key, name string) {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("cmd: failed to bind flag %q: %v", name, err))
		}
	}
	mustBind(prefix+".zoom", "zoom")
	mustBind(prefix+".min_lon", "min-lon")
	mustBind(prefix+".min_lat", "min-lat")
	mustBind(prefix+".max_lon", "max-lon")
	mustBind(prefix+".max_lat", "max-lat")
	mustBind(prefix+".scheme", "scheme")
	mustBind(prefix+".workers", "workers")
	mustBind(prefix+".progress", "progress")
}

func coverageFromViper(prefix string) tilemath.Coverage {
	return tilemath.Coverage{
		Zoom: int32(viper.GetInt(prefix + ".zoom")),
		BBox: tilemath.BBox{
			viper.GetFloat64(prefix + ".min_lon"),
			viper.GetFloat64(prefix + ".min_lat"),
			viper.GetFloat64(prefix + ".max_lon"),
			viper.GetFloat64(prefix + ".max_lat"),
		},
	}
}

func schemeFromViper(prefix string) tilemath.Scheme {
	if viper.GetString(prefix+".scheme") == "tms" {
		return tilemath.SchemeTMS
	}
	return tilemath.SchemeXYZ
}
