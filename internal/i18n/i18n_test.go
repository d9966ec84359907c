package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestMatchLanguage(t *testing.T) {
	tests := []struct {
		accept   string
		expected language.Tag
	}{
		{"en-US,en;q=0.9", language.English},
		{"de-DE,de;q=0.9", language.German},
		{"fr-FR", language.English}, // Fallback
		{"", language.English},      // Empty
	}

	for _, tt := range tests {
		got := MatchLanguage(tt.accept)
		base, _ := got.Base()
		exp, _ := tt.expected.Base()
		assert.Equal(t, exp, base, "Accept: %s", tt.accept)
	}
}

func TestLangFromEnv(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want language.Tag
	}{
		{"unset", nil, language.English},
		{"posix", map[string]string{"LANG": "C"}, language.English},
		{"lang with encoding", map[string]string{"LANG": "de_DE.UTF-8"}, language.German},
		{"modifier", map[string]string{"LANG": "de_DE@euro"}, language.German},
		{"lc_all wins", map[string]string{"LC_ALL": "en_US.UTF-8", "LANG": "de_DE.UTF-8"}, language.English},
		{"lc_messages before lang", map[string]string{"LC_MESSAGES": "de", "LANG": "en_GB"}, language.German},
		{"unsupported", map[string]string{"LANG": "ja_JP.UTF-8"}, language.English},
		{"garbage", map[string]string{"LANG": "!!"}, language.English},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LangFromEnv(func(k string) string { return tt.env[k] })
			base, _ := got.Base()
			exp, _ := tt.want.Base()
			assert.Equal(t, exp, base)
		})
	}
}

func TestNewCLIPrinter_GroupsDigits(t *testing.T) {
	en := NewCLIPrinter(func(string) string { return "" })
	assert.Equal(t, "12,345 entries", en.Sprintf("%d entries", 12345))

	de := NewCLIPrinter(func(k string) string {
		if k == "LANG" {
			return "de_DE.UTF-8"
		}
		return ""
	})
	assert.Equal(t, "12.345 entries", de.Sprintf("%d entries", 12345))
}
