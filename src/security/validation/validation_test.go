package validation

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/cryptocgt/backend/src/logger"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

func TestSanitizeForFormulaInjection(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"=SUM(A1:A5)", "'=SUM(A1:A5)"},
		{"+1234", "'+1234"},
		{"-0.5 BTC", "'-0.5 BTC"},
		{"@import", "'@import"},
		{"  =cmd()", "'  =cmd()"},
		{"plain description", "plain description"},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SanitizeForFormulaInjection(tc.in), "input %q", tc.in)
	}
}

func TestStripUnprintable(t *testing.T) {
	assert.Equal(t, "hello world", StripUnprintable("hello\x00 world\x07"))
	assert.Equal(t, "tabs\tand\nnewlines\r", StripUnprintable("tabs\tand\nnewlines\r"))
	assert.Equal(t, "unicode é ok", StripUnprintable("unicode é ok"))
}

func TestValidateClientContentType(t *testing.T) {
	assert.NoError(t, ValidateClientContentType("text/csv"))
	assert.NoError(t, ValidateClientContentType("TEXT/CSV"))
	assert.NoError(t, ValidateClientContentType("application/vnd.ms-excel"))

	err := ValidateClientContentType("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidationFailed))

	err = ValidateClientContentType("image/png")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidationFailed))
}

func TestValidateFileContentByMagicBytes(t *testing.T) {
	detected, err := ValidateFileContentByMagicBytes(strings.NewReader("a,b,c\n1,2,3\n"))
	require.NoError(t, err)
	assert.Equal(t, "text/plain", detected)

	// PNG magic bytes are rejected.
	png := "\x89PNG\r\n\x1a\n" + strings.Repeat("\x00", 32)
	_, err = ValidateFileContentByMagicBytes(strings.NewReader(png))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidationFailed))
}

func TestValidateFileContentResetsReader(t *testing.T) {
	reader := strings.NewReader("a,b\n1,2\n")
	_, err := ValidateFileContentByMagicBytes(reader)
	require.NoError(t, err)

	rest := make([]byte, 8)
	n, _ := reader.Read(rest)
	assert.Equal(t, "a,b\n1,2\n", string(rest[:n]), "reader not rewound")
}
