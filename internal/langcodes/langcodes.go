// Package langcodes maps between the language representations that show up
// around subtitle work: ISO 639-1 codes, the two ISO 639-2 variants,
// English and native names, and the regioned locales the speech service
// expects.
package langcodes

import "strings"

// Language is one row of the registry. The zero value is the "unknown"
// sentinel: every token accessor on it returns the empty string.
type Language struct {
	iso6391  string // 2-letter, e.g. "en"
	iso6392t string // 3-letter terminology, e.g. "deu"
	iso6392b string // 3-letter bibliographic, e.g. "ger" (equals 2T when no variant exists)
	name     string // English name
	native   string // native name
}

type entry struct {
	code1   string
	code2t  string
	alt2b   string // bibliographic variant when it differs from code2t
	name    string
	native  string
	aliases []string
}

var languages = []entry{
	{"en", "eng", "", "English", "English", nil},
	{"es", "spa", "", "Spanish", "Español", []string{"castilian"}},
	{"fr", "fra", "fre", "French", "Français", nil},
	{"de", "deu", "ger", "German", "Deutsch", nil},
	{"it", "ita", "", "Italian", "Italiano", nil},
	{"pt", "por", "", "Portuguese", "Português", nil},
	{"nl", "nld", "dut", "Dutch", "Nederlands", []string{"flemish"}},
	{"ja", "jpn", "", "Japanese", "日本語", nil},
	{"ko", "kor", "", "Korean", "한국어", nil},
	{"zh", "zho", "chi", "Chinese", "中文", []string{"mandarin"}},
	{"ru", "rus", "", "Russian", "Русский", nil},
	{"ar", "ara", "", "Arabic", "العربية", nil},
	{"hi", "hin", "", "Hindi", "हिन्दी", nil},
	{"tr", "tur", "", "Turkish", "Türkçe", nil},
	{"pl", "pol", "", "Polish", "Polski", nil},
	{"cs", "ces", "cze", "Czech", "Čeština", nil},
	{"da", "dan", "", "Danish", "Dansk", nil},
	{"fi", "fin", "", "Finnish", "Suomi", nil},
	{"el", "ell", "gre", "Greek", "Ελληνικά", nil},
	{"he", "heb", "", "Hebrew", "עברית", nil},
	{"hu", "hun", "", "Hungarian", "Magyar", nil},
	{"id", "ind", "", "Indonesian", "Bahasa Indonesia", nil},
	{"no", "nor", "", "Norwegian", "Norsk", []string{"bokmal", "bokmål", "nb", "nob"}},
	{"ro", "ron", "rum", "Romanian", "Română", nil},
	{"sk", "slk", "slo", "Slovak", "Slovenčina", nil},
	{"sv", "swe", "", "Swedish", "Svenska", nil},
	{"th", "tha", "", "Thai", "ไทย", nil},
	{"uk", "ukr", "", "Ukrainian", "Українська", nil},
	{"vi", "vie", "", "Vietnamese", "Tiếng Việt", nil},
	{"bg", "bul", "", "Bulgarian", "Български", nil},
	{"hr", "hrv", "", "Croatian", "Hrvatski", nil},
	{"sr", "srp", "", "Serbian", "Српски", nil},
	{"sl", "slv", "", "Slovenian", "Slovenščina", nil},
	{"et", "est", "", "Estonian", "Eesti", nil},
	{"lv", "lav", "", "Latvian", "Latviešu", nil},
	{"lt", "lit", "", "Lithuanian", "Lietuvių", nil},
	{"fa", "fas", "per", "Persian", "فارسی", []string{"farsi"}},
	{"ms", "msa", "may", "Malay", "Bahasa Melayu", nil},
	{"ta", "tam", "", "Tamil", "தமிழ்", nil},
	{"te", "tel", "", "Telugu", "తెలుగు", nil},
	{"bn", "ben", "", "Bengali", "বাংলা", nil},
	{"ur", "urd", "", "Urdu", "اردو", nil},
	{"ca", "cat", "", "Catalan", "Català", nil},
	{"eu", "eus", "baq", "Basque", "Euskara", nil},
	{"gl", "glg", "", "Galician", "Galego", nil},
	{"is", "isl", "ice", "Icelandic", "Íslenska", nil},
	{"ga", "gle", "", "Irish", "Gaeilge", nil},
	{"cy", "cym", "wel", "Welsh", "Cymraeg", nil},
	{"sw", "swa", "", "Swahili", "Kiswahili", nil},
	{"af", "afr", "", "Afrikaans", "Afrikaans", nil},
	{"sq", "sqi", "alb", "Albanian", "Shqip", nil},
	{"mk", "mkd", "mac", "Macedonian", "Македонски", nil},
	{"hy", "hye", "arm", "Armenian", "Հայերեն", nil},
	{"ka", "kat", "geo", "Georgian", "ქართული", nil},
	{"az", "aze", "", "Azerbaijani", "Azərbaycanca", nil},
	{"kk", "kaz", "", "Kazakh", "Қазақша", nil},
	{"uz", "uzb", "", "Uzbek", "Oʻzbekcha", nil},
	{"mn", "mon", "", "Mongolian", "Монгол", nil},
	{"my", "mya", "bur", "Burmese", "မြန်မာဘာသာ", nil},
	{"km", "khm", "", "Khmer", "ភាសាខ្មែរ", nil},
	{"lo", "lao", "", "Lao", "ລາວ", nil},
	{"ne", "nep", "", "Nepali", "नेपाली", nil},
	{"si", "sin", "", "Sinhala", "සිංහල", nil},
	{"am", "amh", "", "Amharic", "አማርኛ", nil},
	{"fil", "fil", "", "Filipino", "Filipino", []string{"tagalog", "tl", "tgl"}},
	{"mt", "mlt", "", "Maltese", "Malti", nil},
	{"bs", "bos", "", "Bosnian", "Bosanski", nil},
}

// Index maps built at init time.
var (
	byCode1 map[string]*entry
	byCode3 map[string]*entry
	byName  map[string]*entry
)

func init() {
	byCode1 = make(map[string]*entry, len(languages))
	byCode3 = make(map[string]*entry, len(languages)*2)
	byName = make(map[string]*entry, len(languages)*2)
	for i := range languages {
		e := &languages[i]
		byCode1[e.code1] = e
		byCode3[e.code2t] = e
		if e.alt2b != "" {
			byCode3[e.alt2b] = e
		}
		byName[strings.ToLower(e.name)] = e
		byName[strings.ToLower(e.native)] = e
		for _, alias := range e.aliases {
			byName[strings.ToLower(alias)] = e
		}
	}
}

func (e *entry) language() Language {
	code2b := e.alt2b
	if code2b == "" {
		code2b = e.code2t
	}
	return Language{
		iso6391:  e.code1,
		iso6392t: e.code2t,
		iso6392b: code2b,
		name:     e.name,
		native:   e.native,
	}
}

// FromAny resolves any recognized representation: 2-letter code, either
// 3-letter code, English name, native name, alias, or a regioned locale
// like "en-US". Matching is case-insensitive. The second return is false
// for unknown, empty, or undetermined ("und") input.
func FromAny(value string) (Language, bool) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" || normalized == "und" || normalized == "unknown" {
		return Language{}, false
	}
	if idx := strings.IndexAny(normalized, "-_"); idx > 0 {
		normalized = normalized[:idx]
	}
	if e, ok := byCode1[normalized]; ok {
		return e.language(), true
	}
	if e, ok := byCode3[normalized]; ok {
		return e.language(), true
	}
	if e, ok := byName[normalized]; ok {
		return e.language(), true
	}
	return Language{}, false
}

// IsZero reports whether the language is the unknown sentinel.
func (l Language) IsZero() bool { return l.iso6391 == "" }

// ISO6391 returns the 2-letter code, empty for the unknown sentinel.
func (l Language) ISO6391() string { return l.iso6391 }

// ISO6392T returns the terminology 3-letter code.
func (l Language) ISO6392T() string { return l.iso6392t }

// ISO6392B returns the bibliographic 3-letter code.
func (l Language) ISO6392B() string { return l.iso6392b }

// Name returns the English name, empty for the unknown sentinel.
func (l Language) Name() string { return l.name }

// Native returns the native name.
func (l Language) Native() string { return l.native }

// String implements fmt.Stringer using the 2-letter code.
func (l Language) String() string { return l.iso6391 }

// Matches reports whether value refers to this language in any
// representation.
func (l Language) Matches(value string) bool {
	other, ok := FromAny(value)
	if !ok {
		return false
	}
	return other.iso6391 == l.iso6391
}

// Supported returns every registry row in table order.
func Supported() []Language {
	out := make([]Language, 0, len(languages))
	for i := range languages {
		out = append(out, languages[i].language())
	}
	return out
}
