package recognize

import (
	"regexp"

	"github.com/starford/raido/internal/models"
)

// Rule is one element of the pattern catalog: a marker regex with named
// capture groups, the entry type it produces, and an optional resolver that
// can re-type or discard a match based on its captures.
type Rule struct {
	Type   models.EntryType
	Marker *regexp.Regexp

	// Resolve inspects the named captures of a match and returns the
	// concrete entry type, or ok=false to discard the match. A nil Resolve
	// accepts every match as Rule.Type.
	Resolve func(groups map[string]string) (models.EntryType, bool)
}

// catalog is built once at init and read-only thereafter. Ordering is fixed:
// it is the order in which rules fire on a given text. Sub-kind rules come
// before their generic parents so the generic markers (which require a
// trailing colon or dash) never swallow a sub-kind heading.
var catalog = []Rule{
	{
		Type:   models.TypeThreshold,
		Marker: regexp.MustCompile(`(?mi)(?:AmandaMap[ \t]+Threshold|^[ \t]*Threshold)[ \t]+(?P<number>\d+)[ \t]*:?`),
	},
	{
		Type:   models.TypeFieldPulse,
		Marker: regexp.MustCompile(`(?mi)(?:AmandaMap[ \t]+)?Field[ \t]?Pulse[ \t]*#?[ \t]*(?P<number>\d+)[ \t]*:?`),
	},
	{
		Type:   models.TypeWhisperedFlame,
		Marker: regexp.MustCompile(`(?mi)Whispered[ \t]?Flame[ \t]*#?[ \t]*(?P<number>\d+)[ \t]*:?`),
	},
	{
		Type:   models.TypeFlameVow,
		Marker: regexp.MustCompile(`(?mi)Flame[ \t]?Vow[ \t]*[:\-]?`),
	},
	{
		Type:   models.TypePhoenixCodexThreshold,
		Marker: regexp.MustCompile(`(?mi)Phoenix[ \t]?Codex[ \t]+Threshold[ \t]*#?[ \t]*(?P<number>\d+)?[ \t]*:?`),
	},
	{
		Type:   models.TypePhoenixCodexSilentAct,
		Marker: regexp.MustCompile(`(?mi)Phoenix[ \t]?Codex[ \t]+Silent[ \t]?Act[ \t]*#?[ \t]*(?P<number>\d+)?[ \t]*:?`),
	},
	{
		Type:   models.TypePhoenixCodexRitual,
		Marker: regexp.MustCompile(`(?mi)Phoenix[ \t]?Codex[ \t]+Ritual[ \t]*#?[ \t]*(?P<number>\d+)?[ \t]*:?`),
	},
	{
		Type:   models.TypePhoenixCodexCollapse,
		Marker: regexp.MustCompile(`(?mi)Phoenix[ \t]?Codex[ \t]+Collapse[ \t]*#?[ \t]*(?P<number>\d+)?[ \t]*:?`),
	},
	{
		Type:   models.TypePhoenixCodex,
		Marker: regexp.MustCompile(`(?mi)Phoenix[ \t]?Codex[ \t]*(?:entry)?[ \t]*[:\-]`),
	},
	{
		Type:   models.TypeAmandaMap,
		Marker: regexp.MustCompile(`(?mi)AmandaMap[ \t]*(?:entry)?[ \t]*[:\-]`),
	},
	{
		// Glyph-anchored sub-kind headings. The suffix after the glyph is
		// optional in the pattern; a glyph without kind and number captures
		// is discarded by the resolver.
		Type:   models.TypePhoenixCodex,
		Marker: regexp.MustCompile(`(?mi)(?P<glyph>🔥|🕯️|🌀|💥|🗝️)[ \t]*(?:(?:Phoenix[ \t]?Codex[ \t]+)?(?P<kind>Threshold|Silent[ \t]?Act|Ritual|Collapse)[ \t]*#?[ \t]*(?P<number>\d+)[ \t]*:?)?`),
		Resolve: resolveGlyphKind,
	},
}

// Catalog returns the process-wide pattern catalog. The returned slice must
// be treated as read-only.
func Catalog() []Rule {
	return catalog
}

var glyphKinds = map[string]models.EntryType{
	"threshold": models.TypePhoenixCodexThreshold,
	"silentact": models.TypePhoenixCodexSilentAct,
	"ritual":    models.TypePhoenixCodexRitual,
	"collapse":  models.TypePhoenixCodexCollapse,
}

func resolveGlyphKind(groups map[string]string) (models.EntryType, bool) {
	if groups["kind"] == "" || groups["number"] == "" {
		return "", false
	}
	key := normalizeKind(groups["kind"])
	t, ok := glyphKinds[key]
	return t, ok
}

var kindSepRe = regexp.MustCompile(`[ \t]+`)

func normalizeKind(kind string) string {
	lower := kindSepRe.ReplaceAllString(kind, "")
	b := make([]byte, 0, len(lower))
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		b = append(b, c)
	}
	return string(b)
}
