package qr

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func sampleReference() PaymentReference {
	return PaymentReference{
		PaymentID: "pay_1",
		OrderID:   "ord_1",
		Amount:    12900,
		Currency:  "EUR",
		Reference: "PAY-REF-0001",
	}
}

func TestEncryptedReferenceRoundTrip(t *testing.T) {
	gen := NewQRGenerator("test-secret")
	ref := sampleReference()

	encoded, err := encryptAES(mustMarshal(t, ref), gen.secret)
	require.NoError(t, err)
	assert.NotContains(t, encoded, "pay_1", "payload must not be readable in the clear")

	decoded, err := gen.DecryptReference(encoded)
	require.NoError(t, err)
	assert.Equal(t, ref, *decoded)
}

func TestDecryptReference_WrongSecretFails(t *testing.T) {
	gen := NewQRGenerator("test-secret")
	other := NewQRGenerator("different-secret")

	encoded, err := encryptAES(mustMarshal(t, sampleReference()), gen.secret)
	require.NoError(t, err)

	_, err = other.DecryptReference(encoded)
	assert.Error(t, err, "a foreign secret must not yield a valid reference")
}

func TestDecryptReference_RejectsMalformedInput(t *testing.T) {
	gen := NewQRGenerator("test-secret")

	_, err := gen.DecryptReference("not-base64!!!")
	assert.Error(t, err)

	// Valid base64 but shorter than one AES block.
	_, err = gen.DecryptReference("c2hvcnQ=")
	assert.Error(t, err)
}

func TestGenerateEncryptedQR_ProducesPNG(t *testing.T) {
	gen := NewQRGenerator("test-secret")

	png, err := gen.GenerateEncryptedQR(sampleReference())
	require.NoError(t, err)
	require.NotEmpty(t, png)

	// PNG magic bytes.
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])
}
