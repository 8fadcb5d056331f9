package keystore

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/youmark/pkcs8"

	"github.com/pkjwt/pkjwt/core"
)

const (
	// EnvKeyID is the env file entry holding the current key id.
	EnvKeyID = "KID"
	// EnvKeyPassword is the env file entry holding the private key password.
	EnvKeyPassword = "PKEY_PASSWORD"

	privateKeyFile = "private.pem"
	publicKeyFile  = "public.pem"

	pemTypeEncryptedPrivateKey = "ENCRYPTED PRIVATE KEY"
	pemTypePublicKey           = "PUBLIC KEY"
)

// FileStore persists the key material as two PEM files and two entries in an
// env file:
//
//	<certsDir>/private.pem  PKCS#8, encrypted with PKEY_PASSWORD (0600)
//	<certsDir>/public.pem   SubjectPublicKeyInfo (0644)
//	<envFile>               KID=..., PKEY_PASSWORD=... (0600)
//
// Every file is replaced atomically. The env file is written last, so a
// reader that sees the new KID also sees the new PEM files.
type FileStore struct {
	certsDir string
	envFile  string
	logger   core.Logger

	mu       sync.RWMutex
	snapshot *KeyMaterial
}

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore) error

// WithEnvFile sets the env file that records KID and PKEY_PASSWORD.
// Defaults to "dev.env".
func WithEnvFile(path string) FileStoreOption {
	return func(s *FileStore) error {
		if path == "" {
			return errors.New("env file path cannot be empty")
		}
		s.envFile = path
		return nil
	}
}

// WithStoreLogger sets the logger of the FileStore.
func WithStoreLogger(logger core.Logger) FileStoreOption {
	return func(s *FileStore) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		s.logger = logger
		return nil
	}
}

// NewFileStore returns a FileStore rooted at certsDir.
func NewFileStore(certsDir string, opts ...FileStoreOption) (*FileStore, error) {
	if certsDir == "" {
		return nil, errors.New("certs directory cannot be empty")
	}

	s := &FileStore{
		certsDir: certsDir,
		envFile:  "dev.env",
		logger:   core.NoopLogger{},
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("invalid file store option: %w", err)
		}
	}

	return s, nil
}

// Load returns the current key material. The decoded snapshot is cached
// until the KID recorded in the env file changes.
func (s *FileStore) Load(ctx context.Context) (*KeyMaterial, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	kid, password, err := s.readEnv()
	if err == nil && s.snapshot != nil && s.snapshot.KeyID == kid {
		km := s.snapshot
		s.mu.RUnlock()
		return km, nil
	}
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-read under the write lock, a Save may have completed in between.
	kid, password, err = s.readEnv()
	if err != nil {
		return nil, err
	}
	if s.snapshot != nil && s.snapshot.KeyID == kid {
		return s.snapshot, nil
	}

	km, err := s.readKeys(kid, password)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Loaded signing key from disk", "kid", kid, "certs_dir", s.certsDir)
	s.snapshot = km
	return km, nil
}

// Save encrypts and writes km, replacing the previous key material.
func (s *FileStore) Save(ctx context.Context, km *KeyMaterial) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := km.Validate(); err != nil {
		return err
	}

	der, err := pkcs8.MarshalPrivateKey(km.PrivateKey, []byte(km.Password), nil)
	if err != nil {
		return fmt.Errorf("encrypt private key: %w", err)
	}
	privatePEM := pem.EncodeToMemory(&pem.Block{Type: pemTypeEncryptedPrivateKey, Bytes: der})

	spki, err := x509.MarshalPKIXPublicKey(km.PublicKey)
	if err != nil {
		return fmt.Errorf("marshal public key: %w", err)
	}
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: pemTypePublicKey, Bytes: spki})

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.certsDir, 0o755); err != nil {
		return fmt.Errorf("create certs directory: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(s.certsDir, privateKeyFile), privatePEM, 0o600); err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(s.certsDir, publicKeyFile), publicPEM, 0o644); err != nil {
		return err
	}

	env, err := godotenv.Read(s.envFile)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("read env file: %w", err)
		}
		env = map[string]string{}
	}
	env[EnvKeyID] = km.KeyID
	env[EnvKeyPassword] = km.Password

	content, err := godotenv.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal env file: %w", err)
	}
	if err := writeFileAtomic(s.envFile, []byte(content+"\n"), 0o600); err != nil {
		return err
	}

	snapshot := *km
	s.snapshot = &snapshot

	s.logger.Info("Stored signing key", "kid", km.KeyID, "certs_dir", s.certsDir)
	return nil
}

// readEnv returns the KID and password recorded in the env file.
func (s *FileStore) readEnv() (string, string, error) {
	env, err := godotenv.Read(s.envFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", "", fmt.Errorf("%w: env file %s does not exist", ErrNotFound, s.envFile)
		}
		return "", "", fmt.Errorf("read env file: %w", err)
	}

	kid, password := env[EnvKeyID], env[EnvKeyPassword]
	if kid == "" || password == "" {
		return "", "", fmt.Errorf("%w: %s or %s not set in %s", ErrNotFound, EnvKeyID, EnvKeyPassword, s.envFile)
	}
	return kid, password, nil
}

func (s *FileStore) readKeys(kid, password string) (*KeyMaterial, error) {
	privatePath := filepath.Join(s.certsDir, privateKeyFile)
	privatePEM, err := readPEMFile(privatePath, pemTypeEncryptedPrivateKey)
	if err != nil {
		return nil, err
	}

	privateKey, err := pkcs8.ParsePKCS8PrivateKeyRSA(privatePEM.Bytes, []byte(password))
	if err != nil {
		return nil, &DecryptionError{KeyID: kid, Err: err}
	}

	publicPEM, err := readPEMFile(filepath.Join(s.certsDir, publicKeyFile), pemTypePublicKey)
	if err != nil {
		return nil, err
	}

	parsed, err := x509.ParsePKIXPublicKey(publicPEM.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	publicKey, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is %T, want *rsa.PublicKey", parsed)
	}

	if !privateKey.PublicKey.Equal(publicKey) {
		return nil, ErrKeyMismatch
	}

	var createdAt time.Time
	if info, err := os.Stat(privatePath); err == nil {
		createdAt = info.ModTime()
	}

	return &KeyMaterial{
		KeyID:      kid,
		PrivateKey: privateKey,
		PublicKey:  publicKey,
		Password:   password,
		CreatedAt:  createdAt,
	}, nil
}

func readPEMFile(path, wantType string) (*pem.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s does not exist", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%s: no PEM block found", path)
	}
	if block.Type != wantType {
		return nil, fmt.Errorf("%s: unexpected PEM type %q, want %q", path, block.Type, wantType)
	}
	return block, nil
}

// writeFileAtomic writes data to a temp file in the target directory, syncs
// it and renames it over path.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if err := tmp.Chmod(perm); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp file for %s: %w", path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file for %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
