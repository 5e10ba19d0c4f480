// Package langmeta provides a locale display-metadata registry
// (native names and emoji flags) used by the CLI UI.
package langmeta

import "strings"

// Meta describes locale display metadata.
type Meta struct {
	Name string
	Flag string
}

// Registry contains canonical locale metadata. Lookups go through
// Resolve(), which normalizes region and script subtags and falls back
// to the base language.
var Registry = map[string]Meta{
	"ar":      {Name: "العربية", Flag: "🇸🇦"},
	"bg":      {Name: "Български", Flag: "🇧🇬"},
	"cs":      {Name: "Čeština", Flag: "🇨🇿"},
	"da":      {Name: "Dansk", Flag: "🇩🇰"},
	"de":      {Name: "Deutsch", Flag: "🇩🇪"},
	"de-AT":   {Name: "Deutsch (Österreich)", Flag: "🇦🇹"},
	"de-CH":   {Name: "Deutsch (Schweiz)", Flag: "🇨🇭"},
	"el":      {Name: "Ελληνικά", Flag: "🇬🇷"},
	"en":      {Name: "English", Flag: "🇺🇸"},
	"en-AU":   {Name: "English (Australia)", Flag: "🇦🇺"},
	"en-CA":   {Name: "English (Canada)", Flag: "🇨🇦"},
	"en-GB":   {Name: "English (UK)", Flag: "🇬🇧"},
	"en-US":   {Name: "English (US)", Flag: "🇺🇸"},
	"es":      {Name: "Español", Flag: "🇪🇸"},
	"es-AR":   {Name: "Español (Argentina)", Flag: "🇦🇷"},
	"es-MX":   {Name: "Español (México)", Flag: "🇲🇽"},
	"et":      {Name: "Eesti", Flag: "🇪🇪"},
	"fi":      {Name: "Suomi", Flag: "🇫🇮"},
	"fr":      {Name: "Français", Flag: "🇫🇷"},
	"fr-BE":   {Name: "Français (Belgique)", Flag: "🇧🇪"},
	"fr-CA":   {Name: "Français (Canada)", Flag: "🇨🇦"},
	"fr-CH":   {Name: "Français (Suisse)", Flag: "🇨🇭"},
	"he":      {Name: "עברית", Flag: "🇮🇱"},
	"hi":      {Name: "हिन्दी", Flag: "🇮🇳"},
	"hr":      {Name: "Hrvatski", Flag: "🇭🇷"},
	"hu":      {Name: "Magyar", Flag: "🇭🇺"},
	"id":      {Name: "Bahasa Indonesia", Flag: "🇮🇩"},
	"it":      {Name: "Italiano", Flag: "🇮🇹"},
	"ja":      {Name: "日本語", Flag: "🇯🇵"},
	"ko":      {Name: "한국어", Flag: "🇰🇷"},
	"lt":      {Name: "Lietuvių", Flag: "🇱🇹"},
	"lv":      {Name: "Latviešu", Flag: "🇱🇻"},
	"nb":      {Name: "Norsk bokmål", Flag: "🇳🇴"},
	"nl":      {Name: "Nederlands", Flag: "🇳🇱"},
	"nl-BE":   {Name: "Nederlands (België)", Flag: "🇧🇪"},
	"pl":      {Name: "Polski", Flag: "🇵🇱"},
	"pt":      {Name: "Português", Flag: "🇵🇹"},
	"pt-BR":   {Name: "Português (Brasil)", Flag: "🇧🇷"},
	"pt-PT":   {Name: "Português (Portugal)", Flag: "🇵🇹"},
	"ro":      {Name: "Română", Flag: "🇷🇴"},
	"ru":      {Name: "Русский", Flag: "🇷🇺"},
	"sk":      {Name: "Slovenčina", Flag: "🇸🇰"},
	"sl":      {Name: "Slovenščina", Flag: "🇸🇮"},
	"sr":      {Name: "Српски", Flag: "🇷🇸"},
	"sr-Cyrl": {Name: "Српски (ћирилица)", Flag: "🇷🇸"},
	"sr-Latn": {Name: "Srpski (latinica)", Flag: "🇷🇸"},
	"sv":      {Name: "Svenska", Flag: "🇸🇪"},
	"th":      {Name: "ไทย", Flag: "🇹🇭"},
	"tr":      {Name: "Türkçe", Flag: "🇹🇷"},
	"uk":      {Name: "Українська", Flag: "🇺🇦"},
	"vi":      {Name: "Tiếng Việt", Flag: "🇻🇳"},
	"zh":      {Name: "中文", Flag: "🇨🇳"},
	"zh-CN":   {Name: "简体中文", Flag: "🇨🇳"},
	"zh-Hans": {Name: "简体中文", Flag: "🇨🇳"},
	"zh-Hant": {Name: "繁體中文", Flag: "🇹🇼"},
	"zh-TW":   {Name: "繁體中文", Flag: "🇹🇼"},
}

// canonicalize normalizes a locale tag: lowercase language, Title-case
// four-letter script subtags (sr-latn → sr-Latn), uppercase two-letter
// region subtags (fr-ca → fr-CA). Underscore separators are accepted.
func canonicalize(locale string) string {
	normalized := strings.ReplaceAll(strings.TrimSpace(locale), "_", "-")
	if normalized == "" {
		return ""
	}
	parts := strings.Split(normalized, "-")
	parts[0] = strings.ToLower(parts[0])
	if len(parts) >= 2 {
		switch len(parts[1]) {
		case 4:
			parts[1] = strings.ToUpper(parts[1][:1]) + strings.ToLower(parts[1][1:])
		default:
			parts[1] = strings.ToUpper(parts[1])
		}
	}
	return strings.Join(parts, "-")
}

// Resolve returns best-effort metadata for a locale tag, supporting
// variants like pt_BR, pt-br, sr-latn, and base-language fallback.
func Resolve(locale string) Meta {
	if m, ok := Registry[locale]; ok {
		return m
	}
	normalized := canonicalize(locale)
	if m, ok := Registry[normalized]; ok {
		return m
	}
	if parts := strings.SplitN(normalized, "-", 2); len(parts) == 2 {
		if m, ok := Registry[parts[0]]; ok {
			return m
		}
	}
	return Meta{Name: locale, Flag: ""}
}

// Display renders a locale for terminal output: "fr-CA (Français (Canada))",
// or just the tag when no metadata is known.
func Display(locale string) string {
	m := Resolve(locale)
	if m.Name == locale || m.Name == "" {
		return locale
	}
	return locale + " (" + m.Name + ")"
}
