// Debrid and credential-vault operations (§6 "debrid"): master-password
// lifecycle, per-provider credential storage, and direct debrid actions
// (cache probe, submit, file selection, links, listing) that don't go
// through a full P2P/Cloud engine.
package session

import (
	"bytes"
	"context"

	seedcore "github.com/vinayydv3695/SeedCore"
	"github.com/vinayydv3695/SeedCore/internal/debrid"
	"github.com/vinayydv3695/SeedCore/internal/debrid/realdebrid"
	"github.com/vinayydv3695/SeedCore/internal/debrid/torbox"
	"github.com/vinayydv3695/SeedCore/internal/errkind"
	"github.com/vinayydv3695/SeedCore/internal/vault"
	"github.com/zeebo/bencode"
)

// CheckMasterPasswordSet reports whether a master password has ever been
// configured (§6 check_master_password_set).
func (s *Session) CheckMasterPasswordSet() bool {
	return s.vault.IsConfigured()
}

// SetMasterPassword configures the vault for the first time and persists
// the resulting blob (§6 set_master_password).
func (s *Session) SetMasterPassword(password string) error {
	if err := s.vault.Set(password); err != nil {
		return err
	}
	return s.persistVault()
}

// UnlockWithMasterPassword derives and caches the vault key for this
// process (§6 unlock_with_master_password), then re-registers a live
// debrid.Client for every provider with a stored credential — the
// registry only ever holds clients built from plaintext keys, which
// don't exist until the vault is unlocked.
func (s *Session) UnlockWithMasterPassword(password string) error {
	if err := s.vault.Unlock(password); err != nil {
		return err
	}
	s.restoreDebridClients()
	return nil
}

func (s *Session) restoreDebridClients() {
	for _, rec := range s.configuredProviders() {
		apiKey, err := s.vault.Read(rec)
		if err != nil {
			continue
		}
		s.debrid.Register(newProviderClient(rec, apiKey))
	}
}

func (s *Session) configuredProviders() []string {
	var out []string
	for _, name := range []string{"real-debrid", "torbox"} {
		if s.vault.StatusFor(name).Configured {
			out = append(out, name)
		}
	}
	return out
}

// ChangeMasterPassword re-encrypts every stored credential under a new
// password (§6 change_master_password).
func (s *Session) ChangeMasterPassword(oldPassword, newPassword string) error {
	if err := s.vault.Change(oldPassword, newPassword); err != nil {
		return err
	}
	return s.persistVault()
}

// LockDebridServices zeroes the in-memory vault key (§6
// lock_debrid_services); subsequent provider calls fail until unlocked
// again.
func (s *Session) LockDebridServices() {
	s.vault.Lock()
}

func (s *Session) persistVault() error {
	if s.store == nil {
		return nil
	}
	raw, err := encodeVaultBlob(s.vault.Export())
	if err != nil {
		return errkind.Wrap(errkind.IoFailure, "encoding vault blob", err)
	}
	return s.store.SaveCredentialBlob(raw)
}

func encodeVaultBlob(b vault.Blob) ([]byte, error) {
	var buf bytes.Buffer
	if err := bencode.NewEncoder(&buf).Encode(b); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SaveDebridCredentials encrypts and stores apiKey for provider, then
// (re)registers a live debrid.Client so subsequent cloud operations can
// use it immediately (§6 save_debrid_credentials).
func (s *Session) SaveDebridCredentials(provider, apiKey string) error {
	if err := s.vault.Save(provider, apiKey); err != nil {
		return err
	}
	if err := s.persistVault(); err != nil {
		return err
	}
	s.debrid.Register(newProviderClient(provider, apiKey))
	return nil
}

func newProviderClient(provider, apiKey string) debrid.Client {
	switch provider {
	case "torbox":
		return torbox.New(apiKey)
	default:
		return realdebrid.New(apiKey)
	}
}

// GetDebridCredentialsStatus returns the publishable status for provider,
// never the key itself (§6 get_debrid_credentials_status).
func (s *Session) GetDebridCredentialsStatus(provider string) vault.Status {
	return s.vault.StatusFor(provider)
}

// DeleteDebridCredentials removes a provider's stored credential and live
// client (§6 delete_debrid_credentials).
func (s *Session) DeleteDebridCredentials(provider string) error {
	s.vault.Delete(provider)
	s.debrid.Unregister(provider)
	return s.persistVault()
}

// ValidateDebridProvider calls the provider's account-validation endpoint
// and records the outcome in the vault (§6 validate_debrid_provider).
func (s *Session) ValidateDebridProvider(ctx context.Context, provider string) (bool, error) {
	client, ok := s.debrid.Get(provider)
	if !ok {
		return false, errkind.New(errkind.InvalidInput, "debrid provider not configured: "+provider)
	}
	ok, err := client.Validate(ctx)
	if err == nil {
		s.vault.RecordValidation(provider, ok)
	}
	return ok, err
}

// CheckTorrentCache probes every registered provider for infoHash,
// returning one CacheResult per provider name (§6 check_torrent_cache).
func (s *Session) CheckTorrentCache(ctx context.Context, infoHash string) (map[string]*debrid.CacheResult, error) {
	out := make(map[string]*debrid.CacheResult)
	for _, name := range s.debrid.Providers() {
		client, _ := s.debrid.Get(name)
		res, err := client.CheckCache(ctx, infoHash)
		if err != nil {
			continue
		}
		out[name] = res
	}
	return out, nil
}

// AddMagnetToDebrid submits a magnet link directly to provider without
// creating a local engine, returning the provider's remote id (§6
// add_magnet_to_debrid).
func (s *Session) AddMagnetToDebrid(ctx context.Context, provider, magnet string) (string, error) {
	client, ok := s.debrid.Get(provider)
	if !ok {
		return "", errkind.New(errkind.InvalidInput, "debrid provider not configured: "+provider)
	}
	return client.Submit(ctx, magnet)
}

// AddTorrentFileToDebrid parses raw to recover its info-hash and submits
// that to provider (§6 add_torrent_file_to_debrid): debrid providers
// accept a magnet or hash, never a raw .torrent body.
func (s *Session) AddTorrentFileToDebrid(ctx context.Context, provider string, raw []byte) (string, error) {
	mi, err := ParseTorrentFile(raw)
	if err != nil {
		return "", err
	}
	client, ok := s.debrid.Get(provider)
	if !ok {
		return "", errkind.New(errkind.InvalidInput, "debrid provider not configured: "+provider)
	}
	return client.Submit(ctx, hexEncode20(mi.Info.Hash))
}

// SelectDebridFiles restricts which files a provider will materialize
// (§6 select_debrid_files).
func (s *Session) SelectDebridFiles(ctx context.Context, provider, remoteID string, fileIndices []int) error {
	client, ok := s.debrid.Get(provider)
	if !ok {
		return errkind.New(errkind.InvalidInput, "debrid provider not configured: "+provider)
	}
	return client.SelectFiles(ctx, remoteID, fileIndices)
}

// GetDebridDownloadLinks fetches direct HTTPS links for a materialized
// remote transfer (§6 get_debrid_download_links).
func (s *Session) GetDebridDownloadLinks(ctx context.Context, provider, remoteID string) ([]debrid.DownloadLink, error) {
	client, ok := s.debrid.Get(provider)
	if !ok {
		return nil, errkind.New(errkind.InvalidInput, "debrid provider not configured: "+provider)
	}
	return client.Links(ctx, remoteID)
}

// ListDebridTorrents lists provider's remote transfers (§6
// list_debrid_torrents).
func (s *Session) ListDebridTorrents(ctx context.Context, provider string) ([]debrid.RemoteTransfer, error) {
	client, ok := s.debrid.Get(provider)
	if !ok {
		return nil, errkind.New(errkind.InvalidInput, "debrid provider not configured: "+provider)
	}
	return client.List(ctx)
}

// DeleteDebridTorrent removes a remote transfer from provider's account
// (§6 delete_debrid_torrent).
func (s *Session) DeleteDebridTorrent(ctx context.Context, provider, remoteID string) error {
	client, ok := s.debrid.Get(provider)
	if !ok {
		return errkind.New(errkind.InvalidInput, "debrid provider not configured: "+provider)
	}
	return client.Delete(ctx, remoteID)
}

// GetDebridSettings returns the per-provider enable toggles (§6
// get_debrid_settings); the API keys themselves stay in the vault.
func (s *Session) GetDebridSettings() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool, len(s.config.DebridProviders))
	for name, p := range s.config.DebridProviders {
		out[name] = p.Enabled
	}
	return out
}

// UpdateDebridSettings toggles provider enablement (§6
// update_debrid_settings); disabling a provider unregisters its live
// client so in-flight calls fail fast instead of racing a deleted
// credential.
func (s *Session) UpdateDebridSettings(provider string, enabled bool) error {
	s.mu.Lock()
	if s.config.DebridProviders == nil {
		s.config.DebridProviders = make(map[string]seedcore.DebridProviderConfig)
	}
	s.config.DebridProviders[provider] = seedcore.DebridProviderConfig{Enabled: enabled}
	s.mu.Unlock()
	if !enabled {
		s.debrid.Unregister(provider)
	}
	if s.store != nil {
		return s.store.SaveSettings("config", *s.config)
	}
	return nil
}
