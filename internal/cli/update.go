package cli

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/minio/selfupdate"
	"github.com/spf13/cobra"
)

const (
	updateCacheFile = ".laq/update_cache.json"
	cacheExpiry     = 2 * time.Hour
	githubAPIURL    = "https://api.github.com/repos/lacquerai/laqcore/releases/latest"
	checksumsAsset  = "checksums.txt"
)

// UpdateInfo is the cached result of a GitHub release check.
type UpdateInfo struct {
	LastChecked   time.Time `json:"last_checked"`
	LatestVersion string    `json:"latest_version"`
	CurrentIsOld  bool      `json:"current_is_old"`
	DownloadURL   string    `json:"download_url"`
	AssetName     string    `json:"asset_name"`
}

type githubAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

type githubRelease struct {
	TagName string        `json:"tag_name"`
	Assets  []githubAsset `json:"assets"`
}

// checksumByName looks up an asset's published checksum from a release's
// checksums.txt (the goreleaser convention: one "<hex digest>  <filename>"
// line per asset). Returns "" if no checksums asset was published at all,
// so callers can distinguish "no checksum available" from "mismatch".
func (r *githubRelease) checksumByName(assetName string) (string, error) {
	var checksumsURL string
	for _, a := range r.Assets {
		if a.Name == checksumsAsset {
			checksumsURL = a.BrowserDownloadURL
			break
		}
	}
	if checksumsURL == "" {
		return "", nil
	}

	resp, err := http.Get(checksumsURL) // #nosec G107 - URL comes from GitHub API
	if err != nil {
		return "", fmt.Errorf("failed to fetch checksums: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read checksums: %w", err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[1] == assetName {
			return fields[0], nil
		}
	}

	return "", fmt.Errorf("no checksum entry for %s", assetName)
}

func verifyChecksum(data []byte, want string) error {
	got := sha256.Sum256(data)
	gotHex := hex.EncodeToString(got[:])
	if !strings.EqualFold(gotHex, want) {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", want, gotHex)
	}
	return nil
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update laq to the latest version",
	Long: `Update laq to the latest version available on GitHub.

This command checks the latest release on GitHub, downloads the
binary for your platform, and replaces the running executable.`,
	Example: `
  laq update              # update to latest version
  laq update --check      # only check for updates
  laq update --force      # force update even if already on latest`,
	Run: func(cmd *cobra.Command, args []string) {
		checkOnly, _ := cmd.Flags().GetBool("check")
		force, _ := cmd.Flags().GetBool("force")

		if checkOnly {
			checkForUpdate(cmd, true, true)
			return
		}

		performUpdate(cmd, force)
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)

	updateCmd.Flags().Bool("check", false, "only check for updates without updating")
	updateCmd.Flags().Bool("force", false, "force update even if already on latest version")
}

func checkForUpdate(cmd *cobra.Command, verbose bool, withoutCache bool) *UpdateInfo {
	if !withoutCache {
		if info := loadUpdateCache(); info != nil && time.Since(info.LastChecked) < cacheExpiry {
			return info
		}
	}

	latest, downloadURL, assetName, _, err := fetchLatestVersion()
	if err != nil {
		if verbose {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s failed to check for updates: %s\n", errorIcon, err)
		}
		return nil
	}

	currentVersion := normalizeVersion(Version)
	latestVersion := normalizeVersion(latest)

	currentSemver, err1 := semver.NewVersion(currentVersion)
	latestSemver, err2 := semver.NewVersion(latestVersion)

	isOutdated := false
	if err1 == nil && err2 == nil {
		isOutdated = currentSemver.LessThan(latestSemver)
	} else {
		isOutdated = currentVersion != latestVersion && Version != "dev"
	}

	info := &UpdateInfo{
		LastChecked:   time.Now(),
		LatestVersion: latest,
		CurrentIsOld:  isOutdated,
		DownloadURL:   downloadURL,
		AssetName:     assetName,
	}
	saveUpdateCache(info)

	if verbose {
		if isOutdated {
			fmt.Fprintf(cmd.OutOrStdout(), "%s a newer version (%s) is available, run 'laq update' to upgrade\n", infoIcon, latest)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%s you are running the latest version (%s)\n", successIcon, Version)
		}
	}

	return info
}

func performUpdate(cmd *cobra.Command, force bool) {
	info := checkForUpdate(cmd, false, true)
	if info == nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s failed to check for updates\n", errorIcon)
		return
	}

	if !info.CurrentIsOld && !force {
		fmt.Fprintf(cmd.OutOrStdout(), "%s you are already running the latest version (%s)\n", successIcon, Version)
		return
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s downloading laq %s...\n", infoIcon, info.LatestVersion)

	// Re-resolve the checksum at download time rather than trusting the
	// cached UpdateInfo: the cache may be hours old and the release's
	// checksums.txt is cheap to re-fetch.
	_, downloadURL, _, checksum, err := fetchLatestVersion()
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s failed to resolve download: %s\n", errorIcon, err)
		return
	}

	binary, err := downloadAndExtractBinary(downloadURL, checksum)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s failed to download update: %s\n", errorIcon, err)
		return
	}

	if err := selfupdate.Apply(binary, selfupdate.Options{}); err != nil {
		if rerr := selfupdate.RollbackError(err); rerr != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s failed to rollback update: %s\n", errorIcon, rerr)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%s failed to apply update: %s\n", errorIcon, err)
		return
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s successfully updated to laq %s\n", successIcon, info.LatestVersion)
}

// fetchLatestVersion resolves the latest release's tag, the download URL
// of this platform's asset, and that asset's published checksum (empty if
// the release carries no checksums.txt).
func fetchLatestVersion() (version, downloadURL, assetName, checksum string, err error) {
	resp, err := http.Get(githubAPIURL)
	if err != nil {
		return "", "", "", "", fmt.Errorf("failed to fetch release info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", "", "", fmt.Errorf("GitHub API returned status %d", resp.StatusCode)
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return "", "", "", "", fmt.Errorf("failed to decode release info: %w", err)
	}

	platform := fmt.Sprintf("%s_%s", runtime.GOOS, runtime.GOARCH)
	for _, asset := range release.Assets {
		if !strings.Contains(strings.ToLower(asset.Name), strings.ToLower(platform)) {
			continue
		}

		sum, err := release.checksumByName(asset.Name)
		if err != nil {
			return "", "", "", "", err
		}
		return release.TagName, asset.BrowserDownloadURL, asset.Name, sum, nil
	}

	return "", "", "", "", fmt.Errorf("no binary found for platform %s/%s", runtime.GOOS, runtime.GOARCH)
}

// downloadAndExtractBinary fetches the release archive, verifies it
// against wantChecksum when one was published, and extracts the laq
// binary from it.
func downloadAndExtractBinary(url, wantChecksum string) (io.Reader, error) {
	resp, err := http.Get(url) // #nosec G107 - URL comes from GitHub API
	if err != nil {
		return nil, fmt.Errorf("failed to download archive: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if wantChecksum != "" {
		if err := verifyChecksum(data, wantChecksum); err != nil {
			return nil, err
		}
	}

	switch {
	case strings.HasSuffix(url, ".tar.gz"):
		return extractFromTarGz(bytes.NewReader(data))
	case strings.HasSuffix(url, ".zip"):
		return extractFromZip(bytes.NewReader(data), int64(len(data)))
	default:
		return nil, fmt.Errorf("unsupported archive format")
	}
}

func extractFromTarGz(r io.Reader) (io.Reader, error) {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read tar header: %w", err)
		}

		if strings.HasSuffix(header.Name, "laq") || strings.HasSuffix(header.Name, "laq.exe") {
			data, err := io.ReadAll(tr)
			if err != nil {
				return nil, fmt.Errorf("failed to read binary from tar: %w", err)
			}
			return bytes.NewReader(data), nil
		}
	}

	return nil, fmt.Errorf("laq binary not found in tar.gz archive")
}

func extractFromZip(r io.ReaderAt, size int64) (io.Reader, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to create zip reader: %w", err)
	}

	for _, file := range zr.File {
		if strings.HasSuffix(file.Name, "laq") || strings.HasSuffix(file.Name, "laq.exe") {
			rc, err := file.Open()
			if err != nil {
				return nil, fmt.Errorf("failed to open file in zip: %w", err)
			}
			defer rc.Close()

			data, err := io.ReadAll(rc)
			if err != nil {
				return nil, fmt.Errorf("failed to read binary from zip: %w", err)
			}
			return bytes.NewReader(data), nil
		}
	}

	return nil, fmt.Errorf("laq binary not found in zip archive")
}

func normalizeVersion(version string) string {
	return strings.TrimPrefix(version, "v")
}

func loadUpdateCache() *UpdateInfo {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil
	}

	data, err := os.ReadFile(filepath.Join(homeDir, updateCacheFile)) // #nosec G304 - cache path is fixed
	if err != nil {
		return nil
	}

	var info UpdateInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil
	}
	return &info
}

func saveUpdateCache(info *UpdateInfo) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return
	}

	_ = os.MkdirAll(filepath.Join(homeDir, ".laq"), 0750)

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(filepath.Join(homeDir, updateCacheFile), data, 0600)
}

// ShouldShowUpdateNotification returns the cached UpdateInfo when the cache
// is still fresh and records an available update, and nil otherwise.
func ShouldShowUpdateNotification() *UpdateInfo {
	info := loadUpdateCache()
	if info == nil || time.Since(info.LastChecked) > cacheExpiry {
		return nil
	}
	if info.CurrentIsOld {
		return info
	}
	return nil
}
