package utils

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, "en", DetectLanguage("the quick brown fox jumps over the lazy dog and runs", "de"))
	assert.Equal(t, "de", DetectLanguage("der schnelle Fuchs springt über den faulen Hund und die Katze", "en"))
	assert.Equal(t, "fr", DetectLanguage("le renard rapide saute sur le chien et les chats dans la maison", "en"))
	assert.Equal(t, "en", DetectLanguage("zzz qqq xxx", "en"))
}

func TestSupportedLanguage(t *testing.T) {
	assert.True(t, SupportedLanguage("en"))
	assert.True(t, SupportedLanguage("de"))
	assert.False(t, SupportedLanguage("fi"))
}

func TestCountTokensRough(t *testing.T) {
	assert.Equal(t, 0, CountTokensRough(""))
	assert.Equal(t, 3, CountTokensRough("one two three"))
	assert.Equal(t, 3, CountTokensRough("call(foo, bar)"))
	assert.Equal(t, 2, CountTokensRough("  padded   text  "))
}

func TestCleanXML(t *testing.T) {
	t.Run("StripsNamespacesAndGUIDs", func(t *testing.T) {
		input := `<cp:coreProperties xmlns:cp="http://example.com/ns">` +
			`<dc:title xmlns:dc="http://purl.org/dc">Annual Report</dc:title>` +
			`<cp:revision>3</cp:revision>` +
			`<cp:id>12345678-1234-1234-1234-123456789abc</cp:id>` +
			`<cp:empty></cp:empty>` +
			`</cp:coreProperties>`
		out, err := CleanXML(input)
		require.NoError(t, err)
		assert.Contains(t, out, "<title>Annual Report</title>")
		assert.Contains(t, out, "<revision>3</revision>")
		assert.NotContains(t, out, "12345678-1234")
		assert.NotContains(t, out, "empty")
		assert.NotContains(t, out, "cp:")
	})

	t.Run("DropsUnwantedAttributes", func(t *testing.T) {
		input := `<props><property fmtid="{D5CDD505-2E9C-101B-9397-08002B2CF9AE}" pid="2" name="Pages">14</property></props>`
		out, err := CleanXML(input)
		require.NoError(t, err)
		assert.Contains(t, out, `name="Pages"`)
		assert.NotContains(t, out, "fmtid")
		assert.NotContains(t, out, "pid=")
	})

	t.Run("RejectsMalformedXML", func(t *testing.T) {
		_, err := CleanXML("not xml at all")
		assert.Error(t, err)
	})
}

func TestRunCommand(t *testing.T) {
	stdout, _, code, err := RunCommand(context.Background(), "echo", "hello")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "hello\n", stdout)

	_, _, code, err = RunCommand(context.Background(), "false")
	require.NoError(t, err)
	assert.Equal(t, 1, code)

	_, _, _, err = RunCommand(context.Background(), "definitely-not-a-command-xyz")
	assert.Error(t, err)
}
