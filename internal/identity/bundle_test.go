package identity

// Multi-identity test containers are assembled by hand from the RFC 7292
// structures below: the library encoders only ever write a single key entry,
// so there is no API-level way to produce one. The containers use the legacy
// PBE-SHA1-3DES shrouded key bags and a SHA-1 MAC, the encoding openssl and
// keytool historically produced for multi-entry exports.

import (
	"bytes"
	"crypto/cipher"
	"crypto/des"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var (
	oidDataContent      = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 1}
	oidPBESHA1TripleDES = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 12, 1, 3}
	oidSHA1Digest       = asn1.ObjectIdentifier{1, 3, 14, 3, 2, 26}
	oidShroudedKeyBag   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 12, 10, 1, 2}
	oidCertBag          = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 12, 10, 1, 3}
	oidX509CertBagValue = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 22, 1}
	oidLocalKeyIDAttr   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 21}
)

type pfxPdu struct {
	Version  int
	AuthSafe contentInfo
	MacData  macData `asn1:"optional"`
}

type contentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"tag:0,explicit,optional"`
}

type macData struct {
	Mac        digestInfo
	MacSalt    []byte
	Iterations int `asn1:"optional,default:1"`
}

type digestInfo struct {
	Algorithm pkix.AlgorithmIdentifier
	Digest    []byte
}

type safeBag struct {
	Id         asn1.ObjectIdentifier
	Value      asn1.RawValue  `asn1:"tag:0,explicit"`
	Attributes []bagAttribute `asn1:"set,optional"`
}

type bagAttribute struct {
	Id    asn1.ObjectIdentifier
	Value asn1.RawValue `asn1:"set"`
}

type certBagValue struct {
	Id   asn1.ObjectIdentifier
	Data []byte `asn1:"tag:0,explicit"`
}

type encryptedKeyInfo struct {
	Algorithm pkix.AlgorithmIdentifier
	Data      []byte
}

type pbeParams struct {
	Salt       []byte
	Iterations int
}

// pkcs12KDF derives key material per RFC 7292 appendix B.2 with SHA-1
// (u=160 bits, v=512 bits). id selects the purpose: 1 for cipher keys,
// 2 for IVs, 3 for MAC keys.
func pkcs12KDF(salt, password []byte, iterations int, id byte, size int) []byte {
	const v = 64

	diversifier := bytes.Repeat([]byte{id}, v)
	working := append(repeatToMultiple(salt, v), repeatToMultiple(password, v)...)

	var derived []byte
	for len(derived) < size {
		buf := make([]byte, 0, len(diversifier)+len(working))
		buf = append(buf, diversifier...)
		buf = append(buf, working...)
		sum := sha1.Sum(buf)
		for i := 1; i < iterations; i++ {
			sum = sha1.Sum(sum[:])
		}
		derived = append(derived, sum[:]...)
		if len(derived) >= size {
			break
		}

		increment := new(big.Int).SetBytes(repeatToMultiple(sum[:], v)[:v])
		increment.Add(increment, big.NewInt(1))
		for off := 0; off < len(working); off += v {
			chunk := new(big.Int).SetBytes(working[off : off+v])
			chunk.Add(chunk, increment)
			raw := chunk.Bytes()
			if len(raw) > v {
				raw = raw[len(raw)-v:]
			}
			for i := range working[off : off+v] {
				working[off+i] = 0
			}
			copy(working[off+v-len(raw):off+v], raw)
		}
	}
	return derived[:size]
}

// repeatToMultiple repeats pattern up to the next multiple of v bytes.
func repeatToMultiple(pattern []byte, v int) []byte {
	if len(pattern) == 0 {
		return nil
	}
	target := v * ((len(pattern) + v - 1) / v)
	return bytes.Repeat(pattern, (target+len(pattern)-1)/len(pattern))[:target]
}

// bmpPassword encodes a passphrase as a zero-terminated UCS-2 string.
func bmpPassword(t *testing.T, s string) []byte {
	t.Helper()

	out := make([]byte, 0, 2*len(s)+2)
	for _, r := range s {
		require.Less(t, r, rune(0x10000), "passphrase must stay within the BMP")
		out = append(out, byte(r>>8), byte(r))
	}
	return append(out, 0, 0)
}

const shroudIterations = 2048

// shroudKey wraps a PKCS#8 key into an encrypted key bag value.
func shroudKey(t *testing.T, pkcs8, password []byte) []byte {
	t.Helper()

	salt := make([]byte, 8)
	_, err := rand.Read(salt)
	require.NoError(t, err)

	key := pkcs12KDF(salt, password, shroudIterations, 1, 24)
	iv := pkcs12KDF(salt, password, shroudIterations, 2, 8)

	block, err := des.NewTripleDESCipher(key)
	require.NoError(t, err)

	pad := 8 - len(pkcs8)%8
	plaintext := append(append([]byte{}, pkcs8...), bytes.Repeat([]byte{byte(pad)}, pad)...)
	encrypted := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(encrypted, plaintext)

	params, err := asn1.Marshal(pbeParams{Salt: salt, Iterations: shroudIterations})
	require.NoError(t, err)

	der, err := asn1.Marshal(encryptedKeyInfo{
		Algorithm: pkix.AlgorithmIdentifier{
			Algorithm:  oidPBESHA1TripleDES,
			Parameters: asn1.RawValue{FullBytes: params},
		},
		Data: encrypted,
	})
	require.NoError(t, err)
	return der
}

// localKeyIDAttribute ties a key bag to its certificate bag.
func localKeyIDAttribute(t *testing.T, id byte) bagAttribute {
	t.Helper()

	inner, err := asn1.Marshal([]byte{id})
	require.NoError(t, err)

	return bagAttribute{
		Id: oidLocalKeyIDAttr,
		Value: asn1.RawValue{
			Class:      asn1.ClassUniversal,
			Tag:        asn1.TagSet,
			IsCompound: true,
			Bytes:      inner,
		},
	}
}

func shroudedKeyBag(t *testing.T, key *ecdsa.PrivateKey, password []byte, keyID byte) safeBag {
	t.Helper()

	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	return safeBag{
		Id: oidShroudedKeyBag,
		Value: asn1.RawValue{
			Class:      asn1.ClassContextSpecific,
			Tag:        0,
			IsCompound: true,
			Bytes:      shroudKey(t, pkcs8, password),
		},
		Attributes: []bagAttribute{localKeyIDAttribute(t, keyID)},
	}
}

func certificateBag(t *testing.T, certDER []byte, keyID byte) safeBag {
	t.Helper()

	value, err := asn1.Marshal(certBagValue{Id: oidX509CertBagValue, Data: certDER})
	require.NoError(t, err)

	return safeBag{
		Id: oidCertBag,
		Value: asn1.RawValue{
			Class:      asn1.ClassContextSpecific,
			Tag:        0,
			IsCompound: true,
			Bytes:      value,
		},
		Attributes: []bagAttribute{localKeyIDAttribute(t, keyID)},
	}
}

// dataContentInfo wraps a list of safe bags into a plain data ContentInfo.
func dataContentInfo(t *testing.T, bags []safeBag) contentInfo {
	t.Helper()

	contents, err := asn1.Marshal(bags)
	require.NoError(t, err)

	octets, err := asn1.Marshal(contents)
	require.NoError(t, err)

	return contentInfo{
		ContentType: oidDataContent,
		Content: asn1.RawValue{
			Class:      asn1.ClassContextSpecific,
			Tag:        0,
			IsCompound: true,
			Bytes:      octets,
		},
	}
}

// newMacData computes the SHA-1 integrity MAC over the authenticated safe.
func newMacData(t *testing.T, password, message []byte) macData {
	t.Helper()

	salt := make([]byte, 8)
	_, err := rand.Read(salt)
	require.NoError(t, err)

	key := pkcs12KDF(salt, password, shroudIterations, 3, 20)
	mac := hmac.New(sha1.New, key)
	mac.Write(message)

	return macData{
		Mac: digestInfo{
			Algorithm: pkix.AlgorithmIdentifier{Algorithm: oidSHA1Digest},
			Digest:    mac.Sum(nil),
		},
		MacSalt:    salt,
		Iterations: shroudIterations,
	}
}

// newClientIdentity generates a self-signed client certificate and its key.
func newClientIdentity(t *testing.T, cn string, serial int64) (*ecdsa.PrivateKey, *x509.Certificate) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject: pkix.Name{
			CommonName:   cn,
			Organization: []string{"Certpin Test"},
		},
		NotBefore:   time.Now().Add(-1 * time.Hour),
		NotAfter:    time.Now().Add(24 * time.Hour),
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return key, cert
}

// newMultiIdentityBundle builds a container holding two client identities.
// The certificate bags are emitted in reverse order of the key bags, so
// entry selection has to pair key and certificate through the local key ID
// rather than by position.
func newMultiIdentityBundle(t *testing.T, passphrase string) []byte {
	t.Helper()

	password := bmpPassword(t, passphrase)

	primaryKey, primaryCert := newClientIdentity(t, "primary-client", 10)
	secondaryKey, secondaryCert := newClientIdentity(t, "secondary-client", 11)

	keyBags := []safeBag{
		shroudedKeyBag(t, primaryKey, password, 1),
		shroudedKeyBag(t, secondaryKey, password, 2),
	}
	certBags := []safeBag{
		certificateBag(t, secondaryCert.Raw, 2),
		certificateBag(t, primaryCert.Raw, 1),
	}

	authSafe, err := asn1.Marshal([]contentInfo{
		dataContentInfo(t, keyBags),
		dataContentInfo(t, certBags),
	})
	require.NoError(t, err)

	wrapped, err := asn1.Marshal(authSafe)
	require.NoError(t, err)

	pfx, err := asn1.Marshal(pfxPdu{
		Version: 3,
		AuthSafe: contentInfo{
			ContentType: oidDataContent,
			Content: asn1.RawValue{
				Class:      asn1.ClassContextSpecific,
				Tag:        0,
				IsCompound: true,
				Bytes:      wrapped,
			},
		},
		MacData: newMacData(t, password, authSafe),
	})
	require.NoError(t, err)
	return pfx
}
