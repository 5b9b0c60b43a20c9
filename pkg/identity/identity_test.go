package identity

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"

	"github.com/crev-dev/cargo-crev-sub001/pkg/crypto"
)

func fastParams() crypto.KDFParams {
	return crypto.KDFParams{
		Version:    argon2.Version,
		Variant:    crypto.KDFVariantArgon2id,
		Iterations: 1,
		MemorySize: 64,
		Lanes:      1,
		Salt:       bytes.Repeat([]byte{1}, 16),
	}
}

func TestID_DerivedFromPublicKey(t *testing.T) {
	pub := ed25519.PublicKey(bytes.Repeat([]byte{0xab}, ed25519.PublicKeySize))
	id, err := NewID(pub)
	require.NoError(t, err)
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(pub), id.String())

	again, err := ParseID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Equal(t, pub, again.PublicKey())

	_, err = ParseID("too-short")
	assert.ErrorIs(t, err, ErrInvalidKeyMaterial)
}

func TestOwnID_SignVerify(t *testing.T) {
	own, err := Generate("https://example.com/proofs", nil)
	require.NoError(t, err)

	msg := []byte("trust: high\n")
	sig := own.Sign(msg)
	assert.True(t, Verify(own.ID(), msg, sig))
	assert.False(t, Verify(own.ID(), []byte("trust: low\n"), sig))

	other, err := Generate("", nil)
	require.NoError(t, err)
	assert.False(t, Verify(other.ID(), msg, sig))

	pub := own.PubID()
	assert.Equal(t, "https://example.com/proofs", pub.URL)
	assert.Equal(t, own.ID(), pub.ID)
}

func TestPubID_YAMLOmitsDefaults(t *testing.T) {
	own, err := Generate("https://example.com/proofs", nil)
	require.NoError(t, err)

	out, err := yaml.Marshal(own.PubID())
	require.NoError(t, err)
	text := string(out)
	assert.NotContains(t, text, "id-type")
	assert.NotContains(t, text, "url-type")
	assert.Contains(t, text, "id: "+own.ID().String())

	var back PubID
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, own.PubID(), back)

	explicit := "id-type: crev\nid: " + own.ID().String() + "\nurl: x\nurl-type: git\n"
	require.NoError(t, yaml.Unmarshal([]byte(explicit), &back))
	assert.Equal(t, "", back.URLType)

	err = yaml.Unmarshal([]byte("id-type: pgp\nid: "+own.ID().String()+"\n"), &back)
	assert.ErrorIs(t, err, ErrUnsupportedIDType)
}

func TestLockedID_RoundTrip(t *testing.T) {
	own, err := Generate("https://example.com/proofs", nil)
	require.NoError(t, err)

	locked, err := LockWithParams(own, "hunter2", fastParams(), nil)
	require.NoError(t, err)

	doc, err := locked.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(doc), "sealed-secret-key:")
	assert.Contains(t, string(doc), "variant: argon2id")

	parsed, err := ParseLockedID(doc)
	require.NoError(t, err)

	id, err := parsed.ID()
	require.NoError(t, err)
	assert.Equal(t, own.ID(), id)

	unlocked, err := parsed.Unlock("hunter2")
	require.NoError(t, err)
	assert.Equal(t, own.PubID(), unlocked.PubID())

	msg := []byte("payload")
	assert.True(t, Verify(own.ID(), msg, unlocked.Sign(msg)))
}

func TestLockedID_AliasIsLocalOnly(t *testing.T) {
	own, err := Generate("", nil)
	require.NoError(t, err)
	own.Alias = "work laptop"

	locked, err := LockWithParams(own, "hunter2", fastParams(), nil)
	require.NoError(t, err)
	doc, err := locked.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(doc), "alias: work laptop")

	parsed, err := ParseLockedID(doc)
	require.NoError(t, err)
	unlocked, err := parsed.Unlock("hunter2")
	require.NoError(t, err)
	assert.Equal(t, "work laptop", unlocked.Alias)
	assert.Equal(t, own.PubID(), unlocked.PubID())

	// without an alias the key is omitted
	own.Alias = ""
	locked, err = LockWithParams(own, "hunter2", fastParams(), nil)
	require.NoError(t, err)
	doc, err = locked.Marshal()
	require.NoError(t, err)
	assert.NotContains(t, string(doc), "alias")
}

func TestLockedID_WrongPassphrase(t *testing.T) {
	own, err := Generate("", nil)
	require.NoError(t, err)
	locked, err := LockWithParams(own, "right", fastParams(), nil)
	require.NoError(t, err)

	_, err = locked.Unlock("wrong")
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestLockedID_MismatchedPublicKey(t *testing.T) {
	own, err := Generate("", nil)
	require.NoError(t, err)
	other, err := Generate("", nil)
	require.NoError(t, err)

	locked, err := LockWithParams(own, "pw", fastParams(), nil)
	require.NoError(t, err)
	locked.PublicKey = other.ID().String()

	_, err = locked.Unlock("pw")
	assert.ErrorIs(t, err, ErrInvalidKeyMaterial)
}

func TestParseLockedID_Malformed(t *testing.T) {
	_, err := ParseLockedID([]byte("public-key: ???\n"))
	assert.ErrorIs(t, err, ErrInvalidKeyMaterial)

	_, err = ParseLockedID([]byte(":\n  - ["))
	assert.ErrorIs(t, err, ErrInvalidKeyMaterial)
}
