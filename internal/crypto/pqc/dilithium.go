package pqc

import (
	"fmt"

	"github.com/cloudflare/circl/sign"
	"github.com/cloudflare/circl/sign/dilithium/mode3"
)

// DilithiumKeyPair represents a Dilithium-3 key pair
type DilithiumKeyPair struct {
	PublicKey  sign.PublicKey
	PrivateKey sign.PrivateKey
	Scheme     sign.Scheme
}

// GenerateDilithiumKeyPair generates a new Dilithium-3 key pair
func GenerateDilithiumKeyPair() (*DilithiumKeyPair, error) {
	scheme := mode3.Scheme()
	publicKey, privateKey, err := scheme.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate Dilithium key pair: %w", err)
	}

	return &DilithiumKeyPair{
		PublicKey:  publicKey,
		PrivateKey: privateKey,
		Scheme:     scheme,
	}, nil
}

// DilithiumSign signs a message using Dilithium-3. context scopes the
// signature to a particular domain (e.g. a key pair id) so it cannot be
// replayed as valid under an unrelated context.
func DilithiumSign(privateKey sign.PrivateKey, message []byte, context []byte) ([]byte, error) {
	scheme := mode3.Scheme()
	signature := scheme.Sign(privateKey, message, context)
	return signature, nil
}

// DilithiumVerify verifies a signature using Dilithium-3. context must
// match whatever was passed to DilithiumSign or verification fails.
func DilithiumVerify(publicKey sign.PublicKey, message []byte, signature []byte, context []byte) bool {
	scheme := mode3.Scheme()
	return scheme.Verify(publicKey, message, signature, context)
}

// MarshalPublicKey converts a public key to bytes
func (kp *DilithiumKeyPair) MarshalPublicKey() ([]byte, error) {
	return kp.PublicKey.MarshalBinary()
}

// MarshalPrivateKey converts a private key to bytes
func (kp *DilithiumKeyPair) MarshalPrivateKey() ([]byte, error) {
	return kp.PrivateKey.MarshalBinary()
}

// UnmarshalDilithiumPublicKey converts bytes to a public key
func UnmarshalDilithiumPublicKey(data []byte) (sign.PublicKey, error) {
	scheme := mode3.Scheme()
	return scheme.UnmarshalBinaryPublicKey(data)
}

// UnmarshalDilithiumPrivateKey converts bytes to a private key
func UnmarshalDilithiumPrivateKey(data []byte) (sign.PrivateKey, error) {
	scheme := mode3.Scheme()
	return scheme.UnmarshalBinaryPrivateKey(data)
}
