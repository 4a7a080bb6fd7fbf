package extract

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestIsland_Structured(t *testing.T) {
	// WHAT: A well-formed island yields name and avatar from the user object.
	// WHY: Primary extraction path.
	raw := `{"__DEFAULT_SCOPE__":{"webapp.user-detail":{"userInfo":{"user":{
		"uniqueId":"jane","nickname":"Jane Doe",
		"avatarLarger":"https://p16.tiktokcdn.com/large.jpeg",
		"avatarThumb":"https://p16.tiktokcdn.com/thumb.jpeg"}}}}}`

	got := Island(raw)
	want := Fields{Name: "Jane Doe", Avatar: "https://p16.tiktokcdn.com/large.jpeg"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Island() mismatch (-want +got):\n%s", diff)
	}
}

func TestIsland_PatternFallback(t *testing.T) {
	// WHAT: Invalid JSON around a nickname still yields the name.
	// WHY: The island is often truncated or wrapped in script noise.
	raw := `garbage {{ "nickname":"Jane Doe", oops`
	got := Island(raw)
	if got.Name != "Jane Doe" {
		t.Errorf("Name = %q, want %q", got.Name, "Jane Doe")
	}
	if got.Avatar != "" {
		t.Errorf("Avatar = %q, want empty", got.Avatar)
	}
}

func TestIsland_NoNameKeepsStructuredAvatar(t *testing.T) {
	// WHAT: Valid JSON with no name key still returns the structured avatar
	// after the pattern pass comes up empty.
	raw := `{"user":{"uniqueId":"jane","avatarMedium":"https://cdn/m.jpg"}}`
	got := Island(raw)
	want := Fields{Avatar: "https://cdn/m.jpg"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Island() mismatch (-want +got):\n%s", diff)
	}
}

func TestIsland_Empty(t *testing.T) {
	if got := Island("   "); got != (Fields{}) {
		t.Errorf("Island(blank) = %+v, want zero", got)
	}
}

func TestPattern_Unescape(t *testing.T) {
	raw := `"nickname":"Caf\u0026\u002FBar"`
	got, ok := Pattern(raw, NameKeys...)
	if !ok {
		t.Fatal("expected a match")
	}
	if got != "Caf&/Bar" {
		t.Errorf("Pattern() = %q, want %q", got, "Caf&/Bar")
	}
}

func TestPattern_EscapedBackslash(t *testing.T) {
	raw := `"nickname":"C:\\new\\dir"`
	got, _ := Pattern(raw, "nickname")
	if got != `C:\new\dir` {
		t.Errorf("Pattern() = %q, want %q", got, `C:\new\dir`)
	}
}

func TestPattern_KeyPriority(t *testing.T) {
	// WHAT: Keys are tried in the given order, not text order.
	raw := `"avatarThumb":"thumb","avatarLarger":"large"`
	got, _ := Pattern(raw, AvatarKeys...)
	if got != "large" {
		t.Errorf("Pattern() = %q, want large", got)
	}
}

func TestPattern_SkipsEmpty(t *testing.T) {
	raw := `"nickname":"","nickname":"Second"`
	got, ok := Pattern(raw, "nickname")
	if !ok || got != "Second" {
		t.Errorf("Pattern() = %q, %v; want Second, true", got, ok)
	}
}

func TestUnescape(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`https:\u002F\u002Fcdn\u002Fa.jpg`, "https://cdn/a.jpg"},
		{`a\u0026b`, "a&b"},
		{`a\u002fb`, "a/b"},
		{`line\nbreak`, "line break"},
		{`say \"hi\"`, `say "hi"`},
		{`https:\/\/cdn\/a.jpg`, "https://cdn/a.jpg"},
		{`C:\\new\\dir`, `C:\new\dir`},
		{`a\\\"b`, `a\"b`},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := Unescape(tt.in); got != tt.want {
			t.Errorf("Unescape(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFindString_BreadthFirst(t *testing.T) {
	// WHAT: A shallow match beats a deeper one even if the deeper one comes
	// first in the text.
	raw := `{"deep":{"deeper":{"nickname":"Deep"}},"nickname":"Shallow"}`
	tree, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	got, ok := tree.FindString(NameKeys...)
	if !ok || got != "Shallow" {
		t.Errorf("FindString() = %q, %v; want Shallow", got, ok)
	}
}

func TestFindString_KeyOrderWithinObject(t *testing.T) {
	// WHAT: Within one object the first key in document order wins.
	raw := `{"avatarThumb":"thumb","avatarLarger":"large"}`
	tree, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	got, _ := tree.FindString(AvatarKeys...)
	if got != "thumb" {
		t.Errorf("FindString() = %q, want thumb", got)
	}
}

func TestFindString_SkipsNonString(t *testing.T) {
	raw := `{"a":{"nickname":42},"b":[{"nickname":null},{"nickname":"Ok"}]}`
	tree, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	got, ok := tree.FindString("nickname")
	if !ok || got != "Ok" {
		t.Errorf("FindString() = %q, %v; want Ok", got, ok)
	}
}

func TestFindString_EmptyStringWins(t *testing.T) {
	// WHAT: An empty string still counts as the first string-valued match;
	// a deeper non-empty value does not replace it.
	raw := `{"nickname":"","user":{"nickname":"Deep"}}`
	tree, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	got, ok := tree.FindString("nickname")
	if !ok || got != "" {
		t.Errorf("FindString() = %q, %v; want \"\", true", got, ok)
	}
}

func TestIsland_EmptyStructuredNameFallsBackToPattern(t *testing.T) {
	raw := `{"nickname":"","user":{"nickname":"Deep","avatarLarger":"https://cdn/a.jpg"}}`
	got := Island(raw)
	want := Fields{Name: "Deep", Avatar: "https://cdn/a.jpg"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Island() mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_Errors(t *testing.T) {
	for _, raw := range []string{
		`{"a":1} trailing`,
		`{"a":`,
		`nope`,
		strings.Repeat("[", maxDepth+2) + strings.Repeat("]", maxDepth+2),
	} {
		if _, err := Decode(raw); err == nil {
			t.Errorf("Decode(%.30q) expected error", raw)
		}
	}
}

func TestDecode_PreservesKeyOrder(t *testing.T) {
	tree, err := Decode(`{"z":1,"a":2,"m":{"y":true,"b":null}}`)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"z", "a", "m"}, tree.Keys); diff != "" {
		t.Errorf("top keys (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"y", "b"}, tree.Items[2].Keys); diff != "" {
		t.Errorf("nested keys (-want +got):\n%s", diff)
	}
}

func TestScriptByIDAndMeta(t *testing.T) {
	page := `<html><head>
<meta property="og:image" content="https://cdn/og.jpg">
<script id="other">{}</script>
<script id="` + IslandID + `" type="application/json">{"user":{"nickname":"X"}}</script>
</head><body></body></html>`

	doc, err := ParseHTML(page)
	if err != nil {
		t.Fatal(err)
	}
	island, ok := ScriptByID(doc, IslandID)
	if !ok || island != `{"user":{"nickname":"X"}}` {
		t.Errorf("ScriptByID() = %q, %v", island, ok)
	}
	if _, ok := ScriptByID(doc, "missing"); ok {
		t.Error("ScriptByID(missing) should be absent")
	}
	img, ok := MetaContent(doc, "og:image")
	if !ok || img != "https://cdn/og.jpg" {
		t.Errorf("MetaContent() = %q, %v", img, ok)
	}
	if _, ok := MetaContent(doc, "twitter:image"); ok {
		t.Error("MetaContent(twitter:image) should be absent")
	}
}
