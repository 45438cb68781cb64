package wsnet

import (
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keyInfo   = "simonsays peer link"
	nonceSize = 24
)

// deriveKey binds the link key to the shared secret and the service id.
func deriveKey(secret []byte, service string) (*[32]byte, error) {
	r := hkdf.New(sha256.New, secret, []byte(service), []byte(keyInfo))
	var key [32]byte
	if _, err := io.ReadFull(r, key[:]); err != nil {
		return nil, err
	}
	return &key, nil
}

// seal returns nonce || secretbox(msg).
func seal(key *[32]byte, msg []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], msg, &nonce, key), nil
}

func open(key *[32]byte, box []byte) ([]byte, bool) {
	if len(box) < nonceSize+secretbox.Overhead {
		return nil, false
	}
	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])
	return secretbox.Open(nil, box[nonceSize:], &nonce, key)
}
