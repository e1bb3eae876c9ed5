package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"liyu1981.xyz/iot-shield-service/pkg/common"
)

const (
	DefaultKeyBits = 2048

	// EncryptionTypeRSAOAEP is what we emit on the wire. ASYM-OAEP is an
	// alias some device firmware sends; both decrypt the same way.
	EncryptionTypeRSAOAEP  = "RSA-OAEP"
	EncryptionTypeAsymOAEP = "ASYM-OAEP"

	privateKeyFile = "shield_private.pem"
	publicKeyFile  = "shield_public.pem"

	// OAEP with SHA-256: 2*hashLen + 2 bytes of padding overhead.
	oaepOverhead = 2*sha256.Size + 2
)

var ErrPlaintextTooLarge = errors.New("plaintext exceeds RSA-OAEP size limit")

// Envelope is the self-describing wrapper around transport payloads. A
// payload without the wrapper, or with encrypted=false, passes through
// unchanged so unencrypted legacy senders keep working during migration.
type Envelope struct {
	Encrypted      bool   `json:"encrypted"`
	EncryptionType string `json:"encryption_type,omitempty"`
	KeySize        int    `json:"key_size,omitempty"`
	Data           string `json:"data,omitempty"`
}

// Codec holds the process keypair. The private half never leaves this
// struct; only the public half and ciphertext cross the transport boundary.
type Codec struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	keyBits    int
}

// LoadOrGenerate loads persisted key material from dir, or generates a fresh
// keypair and persists it when none exists. Keys are never regenerated
// implicitly once both halves are present on disk.
func LoadOrGenerate(dir string, bits int) (*Codec, error) {
	logger := common.GetLoggerWith(common.LoggerNameCrypto)

	if bits == 0 {
		bits = DefaultKeyBits
	}

	privPath := filepath.Join(dir, privateKeyFile)
	pubPath := filepath.Join(dir, publicKeyFile)

	if _, err := os.Stat(privPath); err == nil {
		priv, err := loadPrivateKey(privPath)
		if err != nil {
			return nil, fmt.Errorf("load private key: %w", err)
		}
		logger.Info("Loaded RSA keypair", zap.String("path", privPath), zap.Int("bits", priv.N.BitLen()))
		return &Codec{privateKey: priv, publicKey: &priv.PublicKey, keyBits: priv.N.BitLen()}, nil
	}

	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}

	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(priv),
	})
	if err := os.WriteFile(privPath, privPEM, 0o600); err != nil {
		return nil, fmt.Errorf("persist private key: %w", err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	if err := os.WriteFile(pubPath, pubPEM, 0o644); err != nil {
		return nil, fmt.Errorf("persist public key: %w", err)
	}

	logger.Info("Generated and persisted new RSA keypair",
		zap.String("dir", dir), zap.Int("bits", bits))

	return &Codec{privateKey: priv, publicKey: &priv.PublicKey, keyBits: bits}, nil
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, errors.New("no PEM block in private key file")
	}
	return x509.ParsePKCS1PrivateKey(block.Bytes)
}

// PublicKeyPEM returns the public half for out-of-band distribution to
// devices.
func (c *Codec) PublicKeyPEM() (string, error) {
	der, err := x509.MarshalPKIXPublicKey(c.publicKey)
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

func (c *Codec) KeyBits() int {
	return c.keyBits
}

// MaxPlaintextSize is the largest payload EncryptEnvelope accepts. Callers
// with larger payloads must chunk or reduce them.
func (c *Codec) MaxPlaintextSize() int {
	return c.keyBits/8 - oaepOverhead
}

// EncryptEnvelope encrypts plaintext into a tagged envelope.
func (c *Codec) EncryptEnvelope(plaintext []byte) (*Envelope, error) {
	if len(plaintext) > c.MaxPlaintextSize() {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrPlaintextTooLarge, len(plaintext), c.MaxPlaintextSize())
	}

	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, c.publicKey, plaintext, nil)
	if err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}

	return &Envelope{
		Encrypted:      true,
		EncryptionType: EncryptionTypeRSAOAEP,
		KeySize:        c.keyBits,
		Data:           base64.StdEncoding.EncodeToString(ciphertext),
	}, nil
}

// DecryptEnvelope unwraps an inbound payload. Non-envelope JSON and
// envelopes with encrypted=false pass through unchanged. An unrecognized
// encryption_type also passes through, with a warning, so mixed-version
// fleets can coexist. Corrupt base64 or ciphertext returns an error; the
// caller drops the message.
func (c *Codec) DecryptEnvelope(raw []byte) ([]byte, error) {
	logger := common.GetLoggerWith(common.LoggerNameCrypto)

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || !env.Encrypted {
		logger.Debug("Payload is not an encrypted envelope, passing through")
		return raw, nil
	}

	switch env.EncryptionType {
	case EncryptionTypeRSAOAEP, EncryptionTypeAsymOAEP:
	default:
		logger.Warn("Unknown encryption_type, passing envelope through unchanged",
			zap.String("encryption_type", env.EncryptionType))
		return raw, nil
	}

	ciphertext, err := base64.StdEncoding.DecodeString(env.Data)
	if err != nil {
		return nil, fmt.Errorf("decode envelope data: %w", err)
	}

	plaintext, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, c.privateKey, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}

	return plaintext, nil
}
