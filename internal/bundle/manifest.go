// Package bundle implements the portable ZIP container a peer packs its
// store into for offline transfer and unpacks to resume from elsewhere:
// every storage chunk plus a manifest naming the root document and the
// network locations it last synced against.
package bundle

import "encoding/json"

// ManifestVersion is the only manifest schema this implementation
// writes or reads.
const ManifestVersion = "1"

// Manifest is the bundle's root.json-equivalent descriptor.
type Manifest struct {
	Version     string                 `json:"version"`
	RootDocID   string                 `json:"root_doc_id"`
	NetworkURIs []string               `json:"network_uris,omitempty"`
	Vendor      map[string]interface{} `json:"vendor,omitempty"`

	// Encrypted and Salt describe passphrase-based encryption of the
	// store/ entries (see internal/security.ChunkEncryption). The
	// manifest itself, and any Asset, are never encrypted.
	Encrypted bool   `json:"encrypted,omitempty"`
	Salt      string `json:"salt,omitempty"`

	// Signature is a Dilithium signature (internal/crypto/pqc) over the
	// manifest with this field cleared, base64-encoded. Set only when
	// PackOptions.Signer was provided; proves the bundle came from the
	// holder of that key pair's private key, not just that it is intact.
	Signature string `json:"signature,omitempty"`
}

func (m Manifest) encode() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

func decodeManifest(raw []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return Manifest{}, err
	}
	return m, nil
}
