package storage

import (
	"os"

	"media-task-queue/internal/config"
)

// ResolveRoot picks the directory used for job records and saved artifacts.
// Order: explicit SAVE_LOCATION (live env first, then the loaded config),
// the well-known volume mount if present and writable, then the app-local
// default. It is evaluated on every call, never cached, so environment or
// mount changes take effect without a restart.
func ResolveRoot(cfg config.Config) string {
	if v := os.Getenv("SAVE_LOCATION"); v != "" {
		return v
	}
	if cfg.SaveLocation != "" {
		return cfg.SaveLocation
	}
	if cfg.MountPath != "" && dirWritable(cfg.MountPath) {
		return cfg.MountPath
	}
	return cfg.DefaultStorageDir
}

func dirWritable(dir string) bool {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false
	}
	probe, err := os.CreateTemp(dir, ".writecheck-*")
	if err != nil {
		return false
	}
	probe.Close()
	os.Remove(probe.Name())
	return true
}
