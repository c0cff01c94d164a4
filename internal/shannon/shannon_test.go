package shannon

import (
	"bytes"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)

	payloads := [][]byte{
		[]byte("hello, access point"),
		{},
		bytes.Repeat([]byte{0xaa}, 1000),
		[]byte("not a multiple of four bytes!"),
	}

	for _, original := range payloads {
		sender := New(key)
		receiver := New(key)

		sender.Nonce(1)
		receiver.Nonce(1)

		buf := append([]byte{}, original...)
		sender.Encrypt(buf)

		var senderMac [4]byte
		sender.Finish(senderMac[:])

		receiver.Decrypt(buf)
		var receiverMac [4]byte
		receiver.Finish(receiverMac[:])

		if !bytes.Equal(buf, original) {
			t.Errorf("decrypt(encrypt(x)) != x for payload len %d", len(original))
		}
		if senderMac != receiverMac {
			t.Errorf("sender/receiver MAC mismatch for payload len %d: %x vs %x", len(original), senderMac, receiverMac)
		}
	}
}

func TestNonceProducesDistinctKeystreams(t *testing.T) {
	key := bytes.Repeat([]byte{0x01}, 32)
	plain := bytes.Repeat([]byte{0x00}, 32)

	c1 := New(key)
	c1.Nonce(0)
	buf1 := append([]byte{}, plain...)
	c1.Encrypt(buf1)

	c2 := New(key)
	c2.Nonce(1)
	buf2 := append([]byte{}, plain...)
	c2.Encrypt(buf2)

	if bytes.Equal(buf1, buf2) {
		t.Error("different nonces should produce different keystreams")
	}
}

func TestSameNonceIsDeterministic(t *testing.T) {
	key := bytes.Repeat([]byte{0x07}, 32)
	plain := []byte("deterministic keystream check")

	c1 := New(key)
	c1.Nonce(42)
	buf1 := append([]byte{}, plain...)
	c1.Encrypt(buf1)

	c2 := New(key)
	c2.Nonce(42)
	buf2 := append([]byte{}, plain...)
	c2.Encrypt(buf2)

	if !bytes.Equal(buf1, buf2) {
		t.Error("same key+nonce should produce identical keystreams")
	}
}

func TestMacTamperDetection(t *testing.T) {
	key := bytes.Repeat([]byte{0x11}, 32)

	sender := New(key)
	sender.Nonce(5)
	buf := []byte("tamper-checked frame payload")
	sender.Encrypt(buf)
	var senderMac [4]byte
	sender.Finish(senderMac[:])

	tampered := append([]byte{}, buf...)
	tampered[0] ^= 0xff

	receiver := New(key)
	receiver.Nonce(5)
	receiver.Decrypt(tampered)
	var receiverMac [4]byte
	receiver.Finish(receiverMac[:])

	if senderMac == receiverMac {
		t.Error("tampered ciphertext should not reproduce the original MAC")
	}
}
