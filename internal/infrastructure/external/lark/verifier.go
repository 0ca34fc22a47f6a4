package lark

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Callback headers Lark signs requests with
const (
	HeaderTimestamp = "X-Lark-Request-Timestamp"
	HeaderNonce     = "X-Lark-Request-Nonce"
	HeaderSignature = "X-Lark-Signature"
)

// ErrUnverifiedCallback is returned for callbacks that fail token or signature checks
var ErrUnverifiedCallback = errors.New("unverified lark callback")

// Verifier authenticates and decrypts Lark callbacks
type Verifier struct {
	verifyToken string
	encryptKey  string
	logger      *zap.Logger
}

// NewVerifier creates a new callback verifier. Empty settings disable the matching check.
func NewVerifier(verifyToken, encryptKey string, logger *zap.Logger) *Verifier {
	return &Verifier{
		verifyToken: verifyToken,
		encryptKey:  encryptKey,
		logger:      logger,
	}
}

// Open checks the signature, decrypts an encrypted body and checks the verification token.
// It returns the plain JSON payload.
func (v *Verifier) Open(timestamp, nonce, signature string, body []byte) ([]byte, error) {
	if v.encryptKey != "" && signature != "" && !v.VerifySignature(timestamp, nonce, signature, body) {
		v.logger.Warn("Lark callback signature mismatch")
		return nil, fmt.Errorf("%w: signature mismatch", ErrUnverifiedCallback)
	}

	var envelope struct {
		Encrypt string `json:"encrypt"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse callback: %w", err)
	}

	plain := body
	if envelope.Encrypt != "" {
		decrypted, err := v.DecryptData(envelope.Encrypt)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnverifiedCallback, err)
		}
		plain = decrypted
	}

	if err := v.checkToken(plain); err != nil {
		return nil, err
	}
	return plain, nil
}

// VerifySignature checks sha256(timestamp + nonce + encrypt_key + body)
func (v *Verifier) VerifySignature(timestamp, nonce, signature string, body []byte) bool {
	if v.encryptKey == "" {
		return true
	}
	hash := sha256.Sum256([]byte(timestamp + nonce + v.encryptKey + string(body)))
	calculated := hex.EncodeToString(hash[:])
	return subtle.ConstantTimeCompare([]byte(calculated), []byte(signature)) == 1
}

// DecryptData decrypts a base64 AES-256-CBC payload keyed by sha256(encrypt_key)
func (v *Verifier) DecryptData(encrypted string) ([]byte, error) {
	if v.encryptKey == "" {
		return nil, fmt.Errorf("encrypted callback but no encrypt key configured")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}
	if len(ciphertext) < 2*aes.BlockSize || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext has invalid length %d", len(ciphertext))
	}

	key := sha256.Sum256([]byte(v.encryptKey))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	iv := ciphertext[:aes.BlockSize]
	ciphertext = ciphertext[aes.BlockSize:]

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	return removePKCS7Padding(plaintext)
}

// checkToken compares the verification token of v1 (top level) and v2 (header) payloads
func (v *Verifier) checkToken(plain []byte) error {
	if v.verifyToken == "" {
		return nil
	}

	var payload struct {
		Token  string `json:"token"`
		Header struct {
			Token string `json:"token"`
		} `json:"header"`
	}
	if err := json.Unmarshal(plain, &payload); err != nil {
		return fmt.Errorf("failed to parse callback: %w", err)
	}

	token := payload.Header.Token
	if token == "" {
		token = payload.Token
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(v.verifyToken)) != 1 {
		v.logger.Warn("Lark callback token mismatch")
		return fmt.Errorf("%w: invalid verification token", ErrUnverifiedCallback)
	}
	return nil
}

func removePKCS7Padding(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty plaintext")
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > aes.BlockSize || padding > len(data) {
		return nil, fmt.Errorf("invalid padding")
	}
	return data[:len(data)-padding], nil
}
