package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Anvoria/sessionly/internal/config"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

const defaultKID = "default"

// KeyStore holds the RSA keys used for access tokens. Every key verifies,
// only the active one signs.
type KeyStore struct {
	ActiveKid string
	KeySet    jwk.Set
}

// normalizeKID turns "main" into the "key-main" form stored in the set
func normalizeKID(kid string) string {
	if strings.HasPrefix(kid, "key-") {
		return kid
	}
	return "key-" + kid
}

// LoadKeys reads every private-<kid>.pem / public-<kid>.pem pair in path
func LoadKeys(path, activeKid string) (*KeyStore, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &ErrKeysDirectoryNotAccessible{Path: path, Err: err}
	}
	if !info.IsDir() {
		return nil, &ErrKeysPathNotDirectory{Path: path}
	}

	files, err := os.ReadDir(path)
	if err != nil {
		return nil, &ErrKeysDirectoryNotAccessible{Path: path, Err: err}
	}

	keySet := jwk.NewSet()
	for _, file := range files {
		fileName := file.Name()
		if file.IsDir() || !strings.HasPrefix(fileName, "private-") || filepath.Ext(fileName) != ".pem" {
			continue
		}

		kid := strings.TrimSuffix(strings.TrimPrefix(fileName, "private-"), ".pem")
		if kid == "" {
			continue
		}

		priv, err := readPrivateKey(filepath.Join(path, fileName))
		if err != nil {
			return nil, err
		}

		pubFileName := fmt.Sprintf("public-%s.pem", kid)
		if err := checkPublicKey(filepath.Join(path, pubFileName), priv); err != nil {
			return nil, err
		}

		if err := addKey(keySet, priv, kid); err != nil {
			return nil, err
		}
	}

	return &KeyStore{ActiveKid: activeKid, KeySet: keySet}, nil
}

// NewKeyStore wraps a single private key
func NewKeyStore(priv *rsa.PrivateKey, kid string) (*KeyStore, error) {
	if kid == "" {
		kid = defaultKID
	}

	keySet := jwk.NewSet()
	if err := addKey(keySet, priv, kid); err != nil {
		return nil, err
	}
	return &KeyStore{ActiveKid: kid, KeySet: keySet}, nil
}

// LoadKeyStore prefers the configured keys directory and falls back to the
// PRIVATE_KEY environment variable, which may be generated in development.
func LoadKeyStore(cfg *config.AuthConfig, env *config.Environment) (*KeyStore, error) {
	if cfg.KeysPath != "" {
		ks, err := LoadKeys(cfg.KeysPath, cfg.ActiveKID)
		var notAccessible *ErrKeysDirectoryNotAccessible
		switch {
		case err == nil && ks.KeySet.Len() > 0:
			if _, err := ks.GetActiveKey(); err != nil {
				return nil, err
			}
			return ks, nil
		case err == nil, errors.As(err, &notAccessible):
			slog.Warn("No keys in keys directory, falling back to PRIVATE_KEY", "path", cfg.KeysPath)
		default:
			return nil, err
		}
	}

	priv, err := config.LoadRSAPrivateKey(env.PrivateKey, env.Environment)
	if err != nil {
		return nil, err
	}
	if env.PrivateKey == "" {
		slog.Warn("Using a generated signing key, access tokens will not survive a restart")
	}
	return NewKeyStore(priv, cfg.ActiveKID)
}

// GetActiveKey returns the signing key for ActiveKid or ErrUnknownKey
func (ks *KeyStore) GetActiveKey() (jwk.Key, error) {
	key, ok := ks.KeySet.LookupKeyID(normalizeKID(ks.ActiveKid))
	if !ok {
		return nil, ErrUnknownKey
	}
	return key, nil
}

// JWKS returns the public half of every loaded key
func (ks *KeyStore) JWKS() jwk.Set {
	publicSet, err := jwk.PublicSetOf(ks.KeySet)
	if err != nil {
		return jwk.NewSet()
	}
	return publicSet
}

// GenerateKeyPair writes a new private-<kid>.pem / public-<kid>.pem pair into dir
func GenerateKeyPair(dir, kid string, bits int) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create keys directory: %w", err)
	}

	privPath := filepath.Join(dir, fmt.Sprintf("private-%s.pem", kid))
	pubPath := filepath.Join(dir, fmt.Sprintf("public-%s.pem", kid))

	if _, err := os.Stat(privPath); err == nil {
		return fmt.Errorf("key with ID %s already exists at %s", kid, privPath)
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return fmt.Errorf("failed to generate RSA key: %w", err)
	}

	if err := writePEM(privPath, 0600, &pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	}); err != nil {
		return err
	}

	publicKeyBytes, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		return err
	}
	return writePEM(pubPath, 0644, &pem.Block{Type: "PUBLIC KEY", Bytes: publicKeyBytes})
}

func writePEM(path string, perm os.FileMode, block *pem.Block) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	if err := pem.Encode(f, block); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func readPrivateKey(path string) (*rsa.PrivateKey, error) {
	fileName := filepath.Base(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ErrKeyFile{FileName: fileName, Reason: "read failed", Err: err}
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, &ErrKeyFile{FileName: fileName, Reason: "not PEM encoded"}
	}

	if priv, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return priv, nil
	}

	pkcs8Key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, &ErrKeyFile{FileName: fileName, Reason: "parse failed", Err: err}
	}
	rsaKey, ok := pkcs8Key.(*rsa.PrivateKey)
	if !ok {
		return nil, &ErrKeyFile{FileName: fileName, Reason: "not an RSA private key"}
	}
	return rsaKey, nil
}

// checkPublicKey makes sure the public half on disk belongs to priv
func checkPublicKey(path string, priv *rsa.PrivateKey) error {
	fileName := filepath.Base(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return &ErrKeyFile{FileName: fileName, Reason: "read failed", Err: err}
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return &ErrKeyFile{FileName: fileName, Reason: "not PEM encoded"}
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return &ErrKeyFile{FileName: fileName, Reason: "parse failed", Err: err}
	}

	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return &ErrKeyFile{FileName: fileName, Reason: "not an RSA public key"}
	}
	if !rsaPub.Equal(&priv.PublicKey) {
		return &ErrKeyFile{FileName: fileName, Reason: "does not match private key"}
	}
	return nil
}

func addKey(set jwk.Set, priv *rsa.PrivateKey, kid string) error {
	jwkKey, err := jwk.Import(priv)
	if err != nil {
		return fmt.Errorf("failed to convert private key to JWK: %w", err)
	}

	if err := jwkKey.Set(jwk.KeyIDKey, normalizeKID(kid)); err != nil {
		return fmt.Errorf("failed to set key ID: %w", err)
	}
	if err := jwkKey.Set(jwk.AlgorithmKey, jwa.RS256()); err != nil {
		return fmt.Errorf("failed to set algorithm: %w", err)
	}
	if err := jwkKey.Set(jwk.KeyUsageKey, jwk.ForSignature); err != nil {
		return fmt.Errorf("failed to set key usage: %w", err)
	}

	if err := set.AddKey(jwkKey); err != nil {
		return fmt.Errorf("failed to add key to set: %w", err)
	}
	return nil
}
