// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/sha3"
)

func encryptPEMBlock(
	t *testing.T,
	typ string,
	plaintext []byte,
	password []byte,
) *pem.Block {
	salt := make([]byte, pbkdf2SaltSize)
	_, err := rand.Read(salt)
	require.NoError(t, err)

	key := pbkdf2.Key(password, salt, pbkdf2Rounds, pbkdf2KeySize, sha3.New256)

	nonce := make([]byte, aesGCMNonceSize)
	_, err = rand.Read(nonce)
	require.NoError(t, err)

	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	gcm, err := cipher.NewGCM(block)
	require.NoError(t, err)

	encrypted := salt
	encrypted = append(encrypted, nonce...)
	encrypted = append(encrypted, gcm.Seal(nil, nonce, plaintext, nil)...)
	return &pem.Block{Type: typ, Bytes: encrypted}
}

func TestDecryptPEMBlock(t *testing.T) {
	password := []byte("squarepants")
	plaintext := []byte("spongebob")
	block := encryptPEMBlock(t, "ENCRYPTED MESSAGE", plaintext, password)

	t.Run("ValidDecryption", func(t *testing.T) {
		decrypted, err := decryptPEMBlock(block, password)
		require.NoError(t, err)
		require.Equal(t, string(plaintext), string(decrypted))
	})

	t.Run("NilPEMBlock", func(t *testing.T) {
		_, err := decryptPEMBlock(nil, password)
		require.EqualError(t, err, "PEM block is nil")
	})

	t.Run("InvalidPassword", func(t *testing.T) {
		_, err := decryptPEMBlock(block, []byte("wrongpassword"))
		require.EqualError(t, err, "cipher: message authentication failed")
	})

	t.Run("TooShortCiphertext", func(t *testing.T) {
		_, err := decryptPEMBlock(&pem.Block{
			Type:  "ENCRYPTED MESSAGE",
			Bytes: block.Bytes[:19],
		}, password)
		require.EqualError(t, err, "ciphertext in PEM block is too short")
	})
}

type testCert struct {
	certPEM []byte
	keyDER  []byte
}

func newTestCert(t *testing.T) testCert {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "tegmon test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage: x509.KeyUsageCertSign |
			x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(
		rand.Reader,
		template,
		template,
		&key.PublicKey,
		key,
	)
	require.NoError(t, err)

	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	return testCert{
		certPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		keyDER:  keyDER,
	}
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestTLSConfigFromFiles(t *testing.T) {
	dir := t.TempDir()
	cert := newTestCert(t)

	caFile := writeFile(t, dir, "ca.pem", cert.certPEM)
	certFile := writeFile(t, dir, "client.pem", cert.certPEM)
	keyFile := writeFile(t, dir, "client.key", pem.EncodeToMemory(
		&pem.Block{Type: "EC PRIVATE KEY", Bytes: cert.keyDER},
	))
	encKeyFile := writeFile(t, dir, "client.enc.key", pem.EncodeToMemory(
		encryptPEMBlock(t, "EC PRIVATE KEY", cert.keyDER, []byte("hunter2")),
	))

	t.Run("Empty", func(t *testing.T) {
		config, err := TLSConfigFromFiles(TLSFiles{})
		require.NoError(t, err)
		require.Nil(t, config.RootCAs)
		require.Empty(t, config.Certificates)
	})

	t.Run("CAOnly", func(t *testing.T) {
		config, err := TLSConfigFromFiles(TLSFiles{CAFile: caFile})
		require.NoError(t, err)
		require.NotNil(t, config.RootCAs)
	})

	t.Run("PlainKeyPair", func(t *testing.T) {
		config, err := TLSConfigFromFiles(TLSFiles{
			CertFile: certFile,
			KeyFile:  keyFile,
		})
		require.NoError(t, err)
		require.Len(t, config.Certificates, 1)
	})

	t.Run("EncryptedKeyPair", func(t *testing.T) {
		config, err := TLSConfigFromFiles(TLSFiles{
			CertFile:    certFile,
			KeyFile:     encKeyFile,
			KeyPassword: "hunter2",
		})
		require.NoError(t, err)
		require.Len(t, config.Certificates, 1)
	})

	t.Run("WrongKeyPassword", func(t *testing.T) {
		_, err := TLSConfigFromFiles(TLSFiles{
			CertFile:    certFile,
			KeyFile:     encKeyFile,
			KeyPassword: "wrong",
		})
		var invalid *InvalidArgumentError
		require.ErrorAs(t, err, &invalid)
	})

	t.Run("MissingCA", func(t *testing.T) {
		_, err := TLSConfigFromFiles(TLSFiles{
			CAFile: filepath.Join(dir, "missing.pem"),
		})
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("CAWithoutCertificates", func(t *testing.T) {
		_, err := TLSConfigFromFiles(TLSFiles{
			CAFile: writeFile(t, dir, "empty.pem", []byte("nothing here")),
		})
		require.Error(t, err)
	})
}
