// Copyright (c) 2025, Grigory Buteyko aka Hrissan
// Licensed under the MIT License. See LICENSE for details.

// Package protect applies per-epoch AEAD protection to record payloads
// for record layers that carry epochs above 0. Key material is expanded
// from an epoch secret the way the handshake key schedule would do it.
package protect

import (
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"hash"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/hrissan/mps/record"
	"github.com/hrissan/mps/safecast"
)

var ErrDeprotectionFailed = errors.New("record deprotection failed")

const SealSize = chacha20poly1305.Overhead

func hkdfExpand(dst []byte, hmacSecret hash.Hash, info []byte) {
	offset := 0
	hmacSecret.Reset()
	for i := 1; offset < len(dst); i++ {
		hmacSecret.Write(info)
		hmacSecret.Write([]byte{byte(i)}) // truncate
		sum := hmacSecret.Sum(nil)
		offset += copy(dst[offset:], sum)
		hmacSecret.Reset()
		hmacSecret.Write(sum)
	}
}

func hkdfExpandLabel(dst []byte, hmacSecret hash.Hash, label string, context []byte) {
	hkdflabel := make([]byte, 0, 128)
	hkdflabel = binary.BigEndian.AppendUint16(hkdflabel, safecast.Cast[uint16](len(dst)))
	hkdflabel = append(hkdflabel, safecast.Cast[byte](len(label)+5))
	hkdflabel = append(hkdflabel, "mps13"...)
	hkdflabel = append(hkdflabel, label...)
	hkdflabel = append(hkdflabel, safecast.Cast[byte](len(context)))
	hkdflabel = append(hkdflabel, context...)
	hkdfExpand(dst, hmacSecret, hkdflabel)
}

// panic if len(iv) is < 8
func fillIVSequence(iv []byte, seq uint64) {
	maskBytes := iv[len(iv)-8:]
	mask := binary.BigEndian.Uint64(maskBytes)
	binary.BigEndian.PutUint64(maskBytes, seq^mask)
}

func newChacha20Poly1305(key []byte) cipher.AEAD {
	c, err := chacha20poly1305.New(key)
	if err != nil {
		panic("chacha20poly1305.New fails " + err.Error())
	}
	return c
}

// EpochKeys protect records of one epoch in one direction.
type EpochKeys struct {
	write   cipher.AEAD
	writeIV [chacha20poly1305.NonceSize]byte
}

func NewEpochKeys(secret []byte) *EpochKeys {
	hm := hmac.New(sha256.New, secret)
	var key [chacha20poly1305.KeySize]byte
	keys := &EpochKeys{}
	hkdfExpandLabel(key[:], hm, "key", nil)
	hkdfExpandLabel(keys.writeIV[:], hm, "iv", nil)
	keys.write = newChacha20Poly1305(key[:])
	return keys
}

func additionalData(t record.ContentType, epoch record.Epoch, seq uint64) [11]byte {
	var ad [11]byte
	ad[0] = byte(t)
	binary.BigEndian.PutUint16(ad[1:], uint16(epoch))
	binary.BigEndian.PutUint64(ad[3:], seq)
	return ad
}

func (k *EpochKeys) nonce(seq uint64) [chacha20poly1305.NonceSize]byte {
	var n [chacha20poly1305.NonceSize]byte
	copy(n[:], k.writeIV[:])
	fillIVSequence(n[:], seq)
	return n
}

// Seal returns a newly allocated buffer holding the encrypted payload plus
// tag, authenticating record type, epoch and sequence number.
func (k *EpochKeys) Seal(t record.ContentType, epoch record.Epoch, seq uint64, payload []byte) []byte {
	nonce := k.nonce(seq)
	ad := additionalData(t, epoch, seq)
	dst := make([]byte, 0, len(payload)+SealSize)
	return k.write.Seal(dst, nonce[:], payload, ad[:])
}

func (k *EpochKeys) Open(t record.ContentType, epoch record.Epoch, seq uint64, sealed []byte) ([]byte, error) {
	nonce := k.nonce(seq)
	ad := additionalData(t, epoch, seq)
	dst := make([]byte, 0, len(sealed))
	payload, err := k.write.Open(dst, nonce[:], sealed, ad[:])
	if err != nil {
		return nil, ErrDeprotectionFailed
	}
	return payload, nil
}

// Protection maps epochs to key material. Epoch 0 is plaintext and must
// not be registered.
type Protection struct {
	epochs map[record.Epoch]*EpochKeys
}

func New() *Protection {
	return &Protection{epochs: map[record.Epoch]*EpochKeys{}}
}

func (p *Protection) SetEpoch(epoch record.Epoch, secret []byte) {
	if epoch == 0 {
		panic("epoch 0 records are never protected")
	}
	p.epochs[epoch] = NewEpochKeys(secret)
}

// Keys returns nil for epochs without protection.
func (p *Protection) Keys(epoch record.Epoch) *EpochKeys {
	if p == nil {
		return nil
	}
	return p.epochs[epoch]
}
