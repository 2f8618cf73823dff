package encoding_test

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/luisfernandobanegasro/parcial/internal/encoding"
)

const header = "Fecha;Descripción;Referencia;Crédito\n"

func decode(t *testing.T, input []byte) (string, string) {
	t.Helper()

	r, charset, err := encoding.NewUTF8Reader(bytes.NewReader(input))
	require.NoError(t, err)

	got, err := io.ReadAll(r)
	require.NoError(t, err)

	return string(got), charset
}

func TestNewUTF8Reader(t *testing.T) {
	tests := []struct {
		name        string
		input       []byte
		wantCharset string
	}{
		{name: "utf-8 passthrough", input: []byte(header), wantCharset: encoding.CharsetUTF8},
		{name: "utf-8 bom is stripped", input: append([]byte{0xEF, 0xBB, 0xBF}, header...), wantCharset: encoding.CharsetUTF8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, charset := decode(t, tt.input)
			assert.Equal(t, header, got)
			assert.Equal(t, tt.wantCharset, charset)
		})
	}
}

func TestNewUTF8Reader_LegacyCodePage(t *testing.T) {
	latin1, err := charmap.Windows1252.NewEncoder().Bytes([]byte(header))
	require.NoError(t, err)

	got, charset := decode(t, latin1)
	assert.Equal(t, header, got)
	assert.NotEqual(t, encoding.CharsetUTF8, charset)
}

func TestNewUTF8Reader_RuneAcrossSniffWindow(t *testing.T) {
	// "ó" is two bytes in UTF-8; place it so the window ends between them.
	padding := strings.Repeat("a", 4095)
	input := padding + "ó;fin\n"

	got, charset := decode(t, []byte(input))
	assert.Equal(t, input, got)
	assert.Equal(t, encoding.CharsetUTF8, charset)
}

func TestNewUTF8Reader_UTF16LE(t *testing.T) {
	input := []byte{0xFF, 0xFE, 'O', 0, 'K', 0}

	got, charset := decode(t, input)
	assert.Equal(t, "OK", got)
	assert.Equal(t, encoding.CharsetUTF16LE, charset)
}
