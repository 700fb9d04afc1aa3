package cmd

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tilecached/tilecached/internal/job"
	"github.com/tilecached/tilecached/internal/tilemath"
)

// addRefreshFlag adds the polymorphic --refresh-before flag shared by
// seed/export/render (4.H step 2): unsupplied means always-refresh,
// "true" means MD5 hash-compare, "false" means missing-only, an integer
// means "N days old", and anything else is parsed as an RFC3339
// timestamp.
func addRefreshFlag(cmd *cobra.Command, prefix string) {
	cmd.Flags().String("refresh-before", "", "Refresh predicate: unset=always, \"true\"=hash-compare, \"false\"=missing-only, an RFC3339 timestamp, or a number of days")
	if err := viper.BindPFlag(prefix+".refresh_before", cmd.Flags().Lookup("refresh-before")); err != nil {
		panic(fmt.Sprintf("cmd: failed to bind flag %q: %v", "refresh-before", err))
	}
}

// refreshPolicyFromFlag resolves --refresh-before for the given command
// into a job.RefreshPolicy. hashFunc, if non-nil, backs the
// CompareHash branch; a "true" value on a command with no hashFunc
// falls back to always-refresh.
func refreshPolicyFromFlag(cmd *cobra.Command, prefix string, hashFunc func(ctx context.Context, c tilemath.Coords) (string, error)) job.RefreshPolicy {
	if !cmd.Flags().Changed("refresh-before") {
		return job.RefreshPolicy{Always: true}
	}

	raw := viper.GetString(prefix + ".refresh_before")
	switch raw {
	case "true":
		if hashFunc == nil {
			return job.RefreshPolicy{Always: true}
		}
		return job.RefreshPolicy{CompareHash: true, HashFunc: hashFunc}
	case "false":
		return job.RefreshPolicy{}
	}

	if days, err := strconv.Atoi(raw); err == nil {
		return job.RefreshPolicy{MaxAge: time.Duration(days) * 24 * time.Hour}
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return job.RefreshPolicy{MinTimestamp: t.UnixMilli()}
	}

	logger.Warn("cmd: --refresh-before is neither true/false, a day count, nor an RFC3339 timestamp; defaulting to always-refresh", "value", raw)
	return job.RefreshPolicy{Always: true}
}

func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
