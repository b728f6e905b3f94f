// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/sha3"
)

const (
	aesGCMNonceSize = 12
	pbkdf2SaltSize  = 8
	pbkdf2Rounds    = 10000
	pbkdf2KeySize   = 32
)

// TLSFiles names the PEM files used to build a TLS configuration for wss://
// brokers. All fields are optional.
type TLSFiles struct {
	// CAFile is a bundle of trusted CA certificates. The system pool is used
	// when empty.
	CAFile string

	// CertFile and KeyFile hold the client certificate for mutual TLS.
	CertFile string
	KeyFile  string

	// KeyPassword decrypts KeyFile when it was encrypted with
	// PBKDF2(SHA3-256) and AES-GCM.
	KeyPassword string
}

// TLSConfigFromFiles builds a *tls.Config from PEM files.
func TLSConfigFromFiles(files TLSFiles) (*tls.Config, error) {
	config := &tls.Config{MinVersion: tls.VersionTLS12}

	if files.CAFile != "" {
		pool, err := loadCACertPool(files.CAFile)
		if err != nil {
			return nil, &InvalidArgumentError{
				message: "error loading CA file",
				wrapped: err,
			}
		}
		config.RootCAs = pool
	}

	if files.CertFile != "" && files.KeyFile != "" {
		var cert tls.Certificate
		var err error
		if files.KeyPassword != "" {
			cert, err = loadX509KeyPairWithPassword(
				files.CertFile,
				files.KeyFile,
				files.KeyPassword,
			)
		} else {
			cert, err = tls.LoadX509KeyPair(files.CertFile, files.KeyFile)
		}
		if err != nil {
			return nil, &InvalidArgumentError{
				message: "error loading client certificate",
				wrapped: err,
			}
		}
		config.Certificates = []tls.Certificate{cert}
	}

	return config, nil
}

// loadCACertPool loads a CA certificate pool from the specified file.
func loadCACertPool(caFile string) (*x509.CertPool, error) {
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, errors.New("no certificates found in CA file")
	}
	return pool, nil
}

// decryptPEMBlock decrypts a PEM block using PBKDF2 and AES-GCM. The block
// holds an 8-byte salt followed by the nonce and ciphertext.
func decryptPEMBlock(block *pem.Block, password []byte) ([]byte, error) {
	if block == nil {
		return nil, errors.New("PEM block is nil")
	}
	if len(block.Bytes) < pbkdf2SaltSize {
		return nil, errors.New("PEM block is too short")
	}

	salt := block.Bytes[:pbkdf2SaltSize]
	key := pbkdf2.Key(password, salt, pbkdf2Rounds, pbkdf2KeySize, sha3.New256)
	return aesGCMDecrypt(block.Bytes[pbkdf2SaltSize:], key)
}

// aesGCMDecrypt decrypts data using AES-GCM mode.
func aesGCMDecrypt(encrypted, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	if len(encrypted) < aesGCMNonceSize {
		return nil, errors.New("ciphertext in PEM block is too short")
	}
	nonce, ciphertext := encrypted[:aesGCMNonceSize], encrypted[aesGCMNonceSize:]

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, nonce, ciphertext, nil)
}

// loadX509KeyPairWithPassword loads a key pair whose key file is encrypted.
func loadX509KeyPairWithPassword(
	certFile,
	keyFile,
	password string,
) (tls.Certificate, error) {
	certPEMBlock, err := os.ReadFile(certFile)
	if err != nil {
		return tls.Certificate{}, err
	}

	keyPEMBlock, err := os.ReadFile(keyFile)
	if err != nil {
		return tls.Certificate{}, err
	}

	keyDERBlock, _ := pem.Decode(keyPEMBlock)
	if keyDERBlock == nil {
		return tls.Certificate{}, errors.New(
			"failed to decode PEM block containing private key",
		)
	}

	// x509.DecryptPEMBlock is deprecated due to insecurity:
	// https://github.com/golang/go/issues/8860
	decrypted, err := decryptPEMBlock(keyDERBlock, []byte(password))
	if err != nil {
		return tls.Certificate{}, err
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  keyDERBlock.Type,
		Bytes: decrypted,
	})
	return tls.X509KeyPair(certPEMBlock, keyPEM)
}
