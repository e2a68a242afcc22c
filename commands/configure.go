package commands

import (
	"log/slog"

	"hamup/internal/config"
	"hamup/internal/creds"
	"hamup/internal/scan"
)

// ConfigureOptions carries the settings to persist. Empty fields preserve
// whatever is already stored, so a key can be updated without retyping the
// rest.
type ConfigureOptions struct {
	WorkingPath string
	UploadMode  string
	SiteURL     string
	APIKey      string
	AlbumID     string
}

// Configure updates config.json and, when credential fields are given,
// creds.secret next to it.
func Configure(cfg config.Config, opts ConfigureOptions) error {
	if opts.WorkingPath != "" {
		cfg.WorkingPath = opts.WorkingPath
	}
	if opts.UploadMode != "" {
		if _, err := scan.ParseMode(opts.UploadMode); err != nil {
			return err
		}
		cfg.UploadMode = opts.UploadMode
	}
	if opts.SiteURL != "" {
		cfg.SiteURL = opts.SiteURL
	}
	if err := cfg.Save(); err != nil {
		return err
	}
	logger.Info("wrote config", slog.String("path", cfg.ConfigPath()))

	if opts.APIKey != "" || opts.AlbumID != "" {
		store := creds.NewStore(cfg.CredsPath())
		if err := store.Save(creds.Credentials{APIKey: opts.APIKey, AlbumID: opts.AlbumID}); err != nil {
			return err
		}
		logger.Info("wrote credentials", slog.String("path", cfg.CredsPath()))
	}
	return nil
}
