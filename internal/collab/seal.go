package collab

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const keyInfo = "scenesync room v1"

// ErrBadRoomKey is returned when a room payload cannot be opened with the given key.
var ErrBadRoomKey = errors.New("collab: room key does not open payload")

func deriveKey(roomID, roomKey string) ([]byte, error) {
	if roomKey == "" {
		return nil, errors.New("collab: empty room key")
	}
	key := make([]byte, chacha20poly1305.KeySize)
	r := hkdf.New(sha256.New, []byte(roomKey), []byte(roomID), []byte(keyInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("collab: derive key: %w", err)
	}
	return key, nil
}

// seal encrypts plaintext for a room; the output is nonce || ciphertext.
func seal(roomID, roomKey string, plaintext []byte) ([]byte, error) {
	key, err := deriveKey(roomID, roomKey)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("collab: init cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("collab: nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, []byte(roomID)), nil
}

func open(roomID, roomKey string, payload []byte) ([]byte, error) {
	key, err := deriveKey(roomID, roomKey)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("collab: init cipher: %w", err)
	}
	if len(payload) < aead.NonceSize() {
		return nil, ErrBadRoomKey
	}
	nonce, ciphertext := payload[:aead.NonceSize()], payload[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, []byte(roomID))
	if err != nil {
		return nil, ErrBadRoomKey
	}
	return plain, nil
}
