package cli

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Build-time variables, set by the release build.
var (
	Version   = "dev"
	Commit    = "unknown"
	Date      = "unknown"
	GoVersion = runtime.Version()
)

// MinSupportedDocumentVersion is the lowest `version:` a workflow
// document may declare; `laq run` rejects older documents before running
// them rather than attempting them with unsupported semantics.
var MinSupportedDocumentVersion = semver.MustParse("1.0.0")

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		showVersion(cmd)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

type versionInfo struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	Date      string `json:"date" yaml:"date"`
	GoVersion string `json:"go_version" yaml:"go_version"`
	Platform  string `json:"platform" yaml:"platform"`
}

func showVersion(cmd *cobra.Command) {
	info := versionInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: GoVersion,
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}

	switch viper.GetString("output") {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		_ = enc.Encode(info)
	case "yaml":
		out, _ := yaml.Marshal(info)
		fmt.Fprint(cmd.OutOrStdout(), string(out))
	default:
		fmt.Fprintf(cmd.OutOrStdout(), "laq %s (%s, built %s, %s)\n", info.Version, info.Commit, info.Date, info.GoVersion)
	}
}

// checkDocumentVersion rejects a workflow document declaring a version
// older than MinSupportedDocumentVersion.
func checkDocumentVersion(declared string) error {
	v, err := semver.NewVersion(declared)
	if err != nil {
		return fmt.Errorf("invalid version %q: %w", declared, err)
	}
	if v.LessThan(MinSupportedDocumentVersion) {
		return fmt.Errorf("workflow declares version %s, which is older than the minimum supported version %s", declared, MinSupportedDocumentVersion)
	}
	return nil
}
