// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package i18n

import "testing"

func TestMatch(t *testing.T) {
	tests := []struct {
		tag  string
		want Locale
	}{
		{"ru", LocaleRU},
		{"ru-RU", LocaleRU},
		{"kk", LocaleKK},
		{"kk-KZ", LocaleKK},
		{"en-US", LocaleEN},
		{"en_GB", LocaleRU}, // underscore is not valid BCP 47; falls back
		{"garbage!!", LocaleRU},
		{"", LocaleRU},
	}

	for _, tt := range tests {
		if got := Match(tt.tag); got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.tag, got, tt.want)
		}
	}
}

func TestAPICode(t *testing.T) {
	if got := LocaleKK.APICode(); got != "kk" {
		t.Errorf("kk APICode = %q, want kk", got)
	}
	if got := LocaleRU.APICode(); got != "ru" {
		t.Errorf("ru APICode = %q, want ru", got)
	}
	// English has no backend language; it maps to Russian
	if got := LocaleEN.APICode(); got != "ru" {
		t.Errorf("en APICode = %q, want ru", got)
	}
}

func TestForFallback(t *testing.T) {
	if got := For(LocaleKK, "chat.greeting"); got == "" || got == "chat.greeting" {
		t.Errorf("kk greeting missing: %q", got)
	}
	// Unknown key is returned verbatim so the gap is visible in the UI
	if got := For(LocaleRU, "no.such.key"); got != "no.such.key" {
		t.Errorf("missing key = %q, want key itself", got)
	}
}

func TestSetActive(t *testing.T) {
	defer SetActive(DefaultLocale)

	SetActive(LocaleKK)
	if Active() != LocaleKK {
		t.Error("SetActive(kk) did not take effect")
	}

	// Invalid locale is ignored
	SetActive(Locale("xx"))
	if Active() != LocaleKK {
		t.Error("invalid locale should be ignored")
	}
}
