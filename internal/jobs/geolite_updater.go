package jobs

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"nighthub/internal/pkg/geoip"
	"nighthub/internal/settings"
)

const (
	// MaxMind publishes GeoLite updates weekly.
	GeoLiteUpdateInterval = 7 * 24 * time.Hour
	MaxMindDownloadURL    = "https://download.maxmind.com/app/geoip_download?edition_id=GeoLite2-Country&license_key=%s&suffix=tar.gz"
	KeyGeoLiteLastUpdate  = "geolite_last_update"
)

// GeoLiteUpdaterJob keeps the country database used at session ingest fresh.
type GeoLiteUpdaterJob struct {
	db          Connector
	logger      *slog.Logger
	licenseKey  string
	destPath    string
	downloadURL string
	client      *http.Client
	now         func() time.Time
}

func NewGeoLiteUpdaterJob(db Connector, logger *slog.Logger, licenseKey, destPath string) *GeoLiteUpdaterJob {
	if destPath == "" {
		destPath = filepath.Join("storage", "GeoLite2-Country.mmdb")
	}
	return &GeoLiteUpdaterJob{
		db:          db,
		logger:      logger,
		licenseKey:  licenseKey,
		destPath:    destPath,
		downloadURL: MaxMindDownloadURL,
		client:      &http.Client{Timeout: 2 * time.Minute},
		now:         time.Now,
	}
}

// Run downloads a new database when a license key is configured and the
// current one is older than a week.
func (j *GeoLiteUpdaterJob) Run(ctx context.Context) error {
	if j.licenseKey == "" {
		j.logger.Debug("GeoLite license key not configured, skipping update")
		return nil
	}

	lastUpdate := j.lastUpdate()
	if _, err := os.Stat(j.destPath); err == nil && j.now().Sub(lastUpdate) < GeoLiteUpdateInterval {
		j.logger.Debug("GeoLite database is up to date", slog.Time("last_update", lastUpdate))
		return nil
	}

	j.logger.Info("Starting GeoLite database update", slog.Time("last_update", lastUpdate))
	if err := j.download(ctx); err != nil {
		return fmt.Errorf("failed to update GeoLite database: %w", err)
	}
	geoip.ReloadGeoDB()

	if err := settings.CreateOrUpdateSetting(j.db.GetConnection(), KeyGeoLiteLastUpdate, j.now().UTC().Format(time.RFC3339)); err != nil {
		j.logger.Error("Failed to store GeoLite update time", slog.Any("error", err))
	}
	j.logger.Info("GeoLite database updated", slog.String("path", j.destPath))
	return nil
}

func (j *GeoLiteUpdaterJob) lastUpdate() time.Time {
	value, err := settings.GetSetting(j.db.GetConnection(), KeyGeoLiteLastUpdate)
	if err != nil || value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (j *GeoLiteUpdaterJob) download(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(j.destPath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(j.downloadURL, j.licenseKey), nil)
	if err != nil {
		return err
	}
	resp, err := j.client.Do(req)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	// Extract next to the target and rename, so readers never see a partial file.
	tmp := j.destPath + ".tmp"
	if err := extractMMDB(resp.Body, tmp); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, j.destPath)
}

// extractMMDB writes the first .mmdb entry of a tar.gz stream to destPath.
func extractMMDB(r io.Reader, destPath string) error {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return fmt.Errorf("no .mmdb file found in archive")
		}
		if err != nil {
			return fmt.Errorf("failed to read tar: %w", err)
		}
		if !strings.HasSuffix(header.Name, ".mmdb") {
			continue
		}

		out, err := os.Create(destPath)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return fmt.Errorf("failed to extract file: %w", err)
		}
		return out.Close()
	}
}
