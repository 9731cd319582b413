// Package vault implements the master-password-protected credential store
// (§4.I): Argon2id key derivation, an AES-256-GCM-encrypted verifier that
// proves a password unlocks the vault, and per-provider credential
// encryption. Structurally modeled on the lock/unlock, sync.RWMutex-guarded
// manager shape of martymcquaid-omnicloud2024's AuthorizationManager
// (isAuthorized bool + mu sync.RWMutex + Start/Stop), substituting this
// spec's AES-GCM verifier scheme for that file's bearer-token scheme.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"sync"
	"time"

	"github.com/vinayydv3695/SeedCore/internal/errkind"
	"golang.org/x/crypto/argon2"
)

const (
	saltLen    = 16
	nonceLen   = 12
	keyLen     = 32
	verifierPT = "seedcore-vault-verifier-v1"
)

// Argon2Params are the key derivation parameters persisted alongside the
// salt so a changed default never breaks an existing vault.
type Argon2Params struct {
	MemoryKiB   uint32 `bencode:"memory_kib"`
	Iterations  uint32 `bencode:"iterations"`
	Parallelism uint8  `bencode:"parallelism"`
}

// DefaultArgon2Params satisfies §4.I's floor: memory >= 64 MiB, iterations
// >= 3, parallelism >= 1.
var DefaultArgon2Params = Argon2Params{MemoryKiB: 64 * 1024, Iterations: 3, Parallelism: 2}

// Entry is one provider's encrypted API key (§3 Credential entry).
type Entry struct {
	Provider         string    `bencode:"provider"`
	Ciphertext       []byte    `bencode:"ciphertext"`
	Nonce            []byte    `bencode:"nonce"`
	CreatedAt        time.Time `bencode:"created_at"`
	LastValidatedAt  time.Time `bencode:"last_validated_at"`
	LastValidityKnow bool      `bencode:"last_validity_known"`
	LastValidity     bool      `bencode:"last_validity"`
}

// Blob is the on-disk / persisted representation (§3 Master-password
// verifier + §6 credential blob layout), handed to internal/persistence to
// store and retrieve; Vault itself never touches a filesystem directly.
type Blob struct {
	Version        int              `bencode:"version"`
	Salt           []byte           `bencode:"salt"`
	Params         Argon2Params     `bencode:"params"`
	VerifierNonce  []byte           `bencode:"verifier_nonce"`
	VerifierCipher []byte           `bencode:"verifier_ct"`
	Entries        map[string]Entry `bencode:"entries"`
}

// Vault holds the in-memory derived key once unlocked and the persisted
// blob's non-secret shell. All state transitions are serialized by mu (§5
// "Credential vault state is guarded by an async lock; unlock and change
// operations are serialized").
type Vault struct {
	mu sync.RWMutex

	configured bool
	unlocked   bool
	key        []byte // zeroed on Lock; never persisted (§4.I)

	blob Blob
}

// New creates an empty, unconfigured vault.
func New() *Vault {
	return &Vault{blob: Blob{Entries: make(map[string]Entry)}}
}

// Load restores a persisted Blob (e.g. read back from internal/persistence
// at process start) without unlocking it.
func Load(b Blob) *Vault {
	if b.Entries == nil {
		b.Entries = make(map[string]Entry)
	}
	return &Vault{configured: true, blob: b}
}

// IsConfigured reports whether a master password has ever been set
// (check_master_password_set, §6).
func (v *Vault) IsConfigured() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.configured
}

// IsUnlocked reports whether the derived key is currently cached in memory.
func (v *Vault) IsUnlocked() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.unlocked
}

func deriveKey(password string, salt []byte, p Argon2Params) []byte {
	return argon2.IDKey([]byte(password), salt, p.Iterations, p.MemoryKiB, p.Parallelism, keyLen)
}

func seal(key, nonce, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return gcm.Seal(nil, nonce, plaintext, nil), nil
}

func open(key, nonce, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, nonce, ciphertext, nil)
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Set configures the vault with a new master password, generating a random
// salt and encrypting the fixed verifier string (§4.I step 1). Set fails if
// the vault is already configured; use Change instead.
func (v *Vault) Set(password string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.configured {
		return errkind.New(errkind.InvalidInput, "vault already has a master password; use change")
	}
	salt, err := randomBytes(saltLen)
	if err != nil {
		return errkind.Wrap(errkind.IoFailure, "generating vault salt", err)
	}
	nonce, err := randomBytes(nonceLen)
	if err != nil {
		return errkind.Wrap(errkind.IoFailure, "generating verifier nonce", err)
	}
	key := deriveKey(password, salt, DefaultArgon2Params)
	ct, err := seal(key, nonce, []byte(verifierPT))
	if err != nil {
		return errkind.Wrap(errkind.IoFailure, "sealing verifier", err)
	}

	v.blob = Blob{
		Version:        1,
		Salt:           salt,
		Params:         DefaultArgon2Params,
		VerifierNonce:  nonce,
		VerifierCipher: ct,
		Entries:        make(map[string]Entry),
	}
	v.configured = true
	v.unlocked = true
	v.key = key
	return nil
}

// ErrInvalidPassword is returned by Unlock/Change when the supplied
// password fails to decrypt the verifier.
var ErrInvalidPassword = errkind.New(errkind.AuthFailed, "invalid master password")

// Unlock derives the key from password and attempts to decrypt the
// verifier; on success the key is cached in memory for the process
// lifetime (§4.I step 2, invariant 4).
func (v *Vault) Unlock(password string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.configured {
		return errkind.New(errkind.InvalidInput, "vault has no master password configured")
	}
	key := deriveKey(password, v.blob.Salt, v.blob.Params)
	pt, err := open(key, v.blob.VerifierNonce, v.blob.VerifierCipher)
	if err != nil || string(pt) != verifierPT {
		return ErrInvalidPassword
	}
	v.key = key
	v.unlocked = true
	return nil
}

// Lock zeroes the in-memory key; subsequent credential reads fail with
// Locked (§4.I step 3).
func (v *Vault) Lock() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := range v.key {
		v.key[i] = 0
	}
	v.key = nil
	v.unlocked = false
}

// ErrLocked is returned by Save/Read when the vault hasn't been unlocked.
var ErrLocked = errkind.New(errkind.Locked, "vault is locked")

// Change re-encrypts the verifier and every stored credential under a new
// key derived from newPassword, after unlocking with oldPassword (§4.I
// step 4). On any failure the vault is left unmodified.
func (v *Vault) Change(oldPassword, newPassword string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	key := deriveKey(oldPassword, v.blob.Salt, v.blob.Params)
	pt, err := open(key, v.blob.VerifierNonce, v.blob.VerifierCipher)
	if err != nil || string(pt) != verifierPT {
		return ErrInvalidPassword
	}

	salt, err := randomBytes(saltLen)
	if err != nil {
		return errkind.Wrap(errkind.IoFailure, "generating vault salt", err)
	}
	newKey := deriveKey(newPassword, salt, v.blob.Params)
	nonce, err := randomBytes(nonceLen)
	if err != nil {
		return errkind.Wrap(errkind.IoFailure, "generating verifier nonce", err)
	}
	newVerifierCT, err := seal(newKey, nonce, []byte(verifierPT))
	if err != nil {
		return errkind.Wrap(errkind.IoFailure, "sealing verifier", err)
	}

	newEntries := make(map[string]Entry, len(v.blob.Entries))
	for provider, e := range v.blob.Entries {
		plaintext, derr := open(key, e.Nonce, e.Ciphertext)
		if derr != nil {
			return errkind.Wrap(errkind.IoFailure, "re-encrypting credential for "+provider, derr)
		}
		entryNonce, nerr := randomBytes(nonceLen)
		if nerr != nil {
			return errkind.Wrap(errkind.IoFailure, "generating credential nonce", nerr)
		}
		ct, serr := seal(newKey, entryNonce, plaintext)
		if serr != nil {
			return errkind.Wrap(errkind.IoFailure, "sealing credential for "+provider, serr)
		}
		e.Ciphertext = ct
		e.Nonce = entryNonce
		newEntries[provider] = e
	}

	v.blob.Salt = salt
	v.blob.VerifierNonce = nonce
	v.blob.VerifierCipher = newVerifierCT
	v.blob.Entries = newEntries
	v.key = newKey
	v.unlocked = true
	return nil
}

// Save encrypts apiKey under the current in-memory key and stores it for
// provider, overwriting any existing entry.
func (v *Vault) Save(provider, apiKey string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.unlocked {
		return ErrLocked
	}
	nonce, err := randomBytes(nonceLen)
	if err != nil {
		return errkind.Wrap(errkind.IoFailure, "generating credential nonce", err)
	}
	ct, err := seal(v.key, nonce, []byte(apiKey))
	if err != nil {
		return errkind.Wrap(errkind.IoFailure, "sealing credential", err)
	}
	v.blob.Entries[provider] = Entry{
		Provider:   provider,
		Ciphertext: ct,
		Nonce:      nonce,
		CreatedAt:  time.Now(),
	}
	return nil
}

// Read decrypts and returns the plaintext API key for provider. Fails with
// Locked if the vault hasn't been unlocked (invariant 4).
func (v *Vault) Read(provider string) (string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if !v.unlocked {
		return "", ErrLocked
	}
	e, ok := v.blob.Entries[provider]
	if !ok {
		return "", errkind.New(errkind.InvalidInput, "no credentials saved for "+provider)
	}
	pt, err := open(v.key, e.Nonce, e.Ciphertext)
	if err != nil {
		return "", errkind.Wrap(errkind.IoFailure, "decrypting credential", err)
	}
	return string(pt), nil
}

// Delete removes a provider's stored credential, if any.
func (v *Vault) Delete(provider string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.blob.Entries, provider)
}

// Status is the published, non-secret view of a provider's credential
// (§4.I: "never logged or returned in snapshots; only a boolean
// is_configured and optional last-validation result are published").
type Status struct {
	Configured      bool
	LastValidatedAt time.Time
	LastValidity    bool
}

// StatusFor returns the publishable status for provider (get_debrid_credentials_status, §6).
func (v *Vault) StatusFor(provider string) Status {
	v.mu.RLock()
	defer v.mu.RUnlock()
	e, ok := v.blob.Entries[provider]
	if !ok {
		return Status{}
	}
	return Status{Configured: true, LastValidatedAt: e.LastValidatedAt, LastValidity: e.LastValidity}
}

// RecordValidation stores the outcome of a validate() call (§4.J) without
// touching the ciphertext.
func (v *Vault) RecordValidation(provider string, ok bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	e, exists := v.blob.Entries[provider]
	if !exists {
		return
	}
	e.LastValidatedAt = time.Now()
	e.LastValidityKnow = true
	e.LastValidity = ok
	v.blob.Entries[provider] = e
}

// Export returns a copy of the persisted blob for internal/persistence to
// write to disk; never includes a derived key.
func (v *Vault) Export() Blob {
	v.mu.RLock()
	defer v.mu.RUnlock()
	entries := make(map[string]Entry, len(v.blob.Entries))
	for k, e := range v.blob.Entries {
		entries[k] = e
	}
	return Blob{
		Version:        v.blob.Version,
		Salt:           append([]byte(nil), v.blob.Salt...),
		Params:         v.blob.Params,
		VerifierNonce:  append([]byte(nil), v.blob.VerifierNonce...),
		VerifierCipher: append([]byte(nil), v.blob.VerifierCipher...),
		Entries:        entries,
	}
}
