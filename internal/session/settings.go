// Settings operations (§6 "settings"): reading and updating the live
// Config, and probing free disk space ahead of an add_torrent_file /
// add_cloud_torrent call.
package session

import (
	seedcore "github.com/vinayydv3695/SeedCore"
	"github.com/vinayydv3695/SeedCore/internal/storage"
)

// GetSettings returns a copy of the running configuration (§6
// get_settings); callers never get the live pointer so they can't mutate
// engine behavior outside the command surface.
func (s *Session) GetSettings() seedcore.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.config
}

// UpdateSettings applies a new configuration, re-deriving the rate
// limiter buckets from the new ceilings and schedule rules (§6
// update_settings). Already-running engines pick up Buckets changes on
// their next read since ratelimit.Buckets is shared by pointer, but
// admission-control fields (MaxActiveDownloads et al.) only affect
// engines started after this call.
func (s *Session) UpdateSettings(cfg seedcore.Config) error {
	s.mu.Lock()
	*s.config = cfg
	s.buckets.Reconfigure(cfg.DownloadCeiling, cfg.UploadCeiling, scheduleRulesFrom(cfg.ScheduleRules))
	s.mu.Unlock()
	if s.store != nil {
		return s.store.SaveSettings("config", cfg)
	}
	return nil
}

// GetAvailableDiskSpace reports free bytes at path (§6
// get_available_disk_space).
func (s *Session) GetAvailableDiskSpace(path string) (uint64, error) {
	return storage.AvailableDiskSpace(path)
}
