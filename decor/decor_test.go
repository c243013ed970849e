package decor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"cloud.google.com/go/civil"
	"github.com/google/go-cmp/cmp"

	"github.com/chaosshowdown/mitsuha/daily"
	"github.com/chaosshowdown/mitsuha/persona"
)

type fakeGen struct {
	reply   string
	err     error
	prompts []string
}

func (f *fakeGen) Generate(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

var newYear = civil.Date{Year: 2026, Month: 1, Day: 1}

func TestEmojiToken(t *testing.T) {
	if got := (Emoji{ID: "1", Name: "wave"}).Token(); got != "<:wave:1>" {
		t.Errorf("Token() = %q", got)
	}
	if got := (Emoji{ID: "2", Name: "spin", Animated: true}).Token(); got != "<a:spin:2>" {
		t.Errorf("animated Token() = %q", got)
	}
	got := Tokens([]Emoji{{ID: "1", Name: "a"}, {Name: "noid"}, {ID: "3"}})
	if diff := cmp.Diff(got, []string{"<:a:1>"}); diff != "" {
		t.Errorf("Tokens (-got +want):\n%s", diff)
	}
}

func TestNames(t *testing.T) {
	tests := []struct {
		name, prefix, suffix, norm string
	}{
		{"CSD_Holi", "CSD", "Holi", "csd_holi"},
		{"csd - New Year!", "CSD", "New Year!", "csd-newyear"},
		{"Other", "CSD", "Other", "other"},
	}
	for _, tt := range tests {
		if got := SuffixAfterPrefix(tt.name, tt.prefix); got != tt.suffix {
			t.Errorf("SuffixAfterPrefix(%q) = %q, want %q", tt.name, got, tt.suffix)
		}
		if got := NormalizeName(tt.name); got != tt.norm {
			t.Errorf("NormalizeName(%q) = %q, want %q", tt.name, got, tt.norm)
		}
	}
}

func TestStickerCandidates(t *testing.T) {
	all := []Sticker{{"1", "CSD_Holi"}, {"2", "cat"}, {"3", "csd-diwali"}}
	got := StickerCandidates(all, "CSD")
	if diff := cmp.Diff(got, []Sticker{{"1", "CSD_Holi"}, {"3", "csd-diwali"}}); diff != "" {
		t.Errorf("StickerCandidates (-got +want):\n%s", diff)
	}
	if got := StickerCandidates(all, "  "); got != nil {
		t.Errorf("empty prefix matched %v", got)
	}
}

func TestPickStickerByAI(t *testing.T) {
	candidates := []Sticker{{"1", "CSD_Holi"}, {"2", "CSD_Diwali"}, {"3", "CSD_NewYear"}}
	tests := []struct {
		reply string
		err   error
		want  string
	}{
		{reply: "CSD_Diwali", want: "2"},
		{reply: "  \"csd_newyear\"\n", want: "3"},
		{reply: "Holi", want: "1"},
		{reply: "NONE", want: ""},
		{reply: "none", want: ""},
		{reply: "CSD_Christmas", want: ""},
		{reply: "", want: ""},
		{err: errors.New("down"), want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			gen := &fakeGen{reply: tt.reply, err: tt.err}
			w := &Writer{Gen: gen, Persona: persona.Default()}
			got, ok := w.PickStickerByAI(context.Background(), candidates, "CSD", []string{"Holi"}, newYear)
			if ok != (tt.want != "") || got.ID != tt.want {
				t.Errorf("PickStickerByAI(%q) = %+v, %v; want id %q", tt.reply, got, ok, tt.want)
			}
			if len(gen.prompts) != 1 || !strings.Contains(gen.prompts[0], "- CSD_Holi  (suffix: 'Holi')") {
				t.Errorf("prompt does not list candidates: %q", gen.prompts)
			}
			if !strings.Contains(gen.prompts[0], "Date (IST): 01 Jan 2026") {
				t.Errorf("prompt missing date: %q", gen.prompts[0])
			}
		})
	}
}

func TestPickStickerByAICapsCandidates(t *testing.T) {
	var many []Sticker
	for i := range 150 {
		many = append(many, Sticker{ID: fmt.Sprint(i), Name: fmt.Sprintf("CSD_%03d", i)})
	}
	gen := &fakeGen{reply: "CSD_120"}
	w := &Writer{Gen: gen}
	if _, ok := w.PickStickerByAI(context.Background(), many, "CSD", nil, newYear); ok {
		t.Error("picked a sticker beyond the candidate cap")
	}
	if strings.Contains(gen.prompts[0], "CSD_100") || !strings.Contains(gen.prompts[0], "CSD_099") {
		t.Error("prompt should list exactly the first 100 candidates")
	}
}

type fakeStickers struct {
	all   []Sticker
	byID  map[string]Sticker
	err   error
	calls int
}

func (f *fakeStickers) Stickers(context.Context) ([]Sticker, error) {
	f.calls++
	return f.all, f.err
}

func (f *fakeStickers) Sticker(_ context.Context, id string) (Sticker, error) {
	s, ok := f.byID[id]
	if !ok {
		return Sticker{}, errors.New("unknown sticker")
	}
	return s, nil
}

func TestResolveSticker(t *testing.T) {
	src := &fakeStickers{
		all:  []Sticker{{"1", "CSD_Holi"}, {"2", "cat"}, {"3", "CSD_Diwali"}, {"4", "CSD_Onam"}},
		byID: map[string]Sticker{"99": {"99", "explicit"}},
	}
	candidates := StickerCandidates(src.all, "CSD")
	dailyPick := candidates[daily.Index(newYear, len(candidates))]

	tests := []struct {
		name  string
		opts  StickerOptions
		reply string
		want  string
	}{
		{"explicit id", StickerOptions{ID: "99", Prefix: "CSD"}, "", "99"},
		{"explicit id missing", StickerOptions{ID: "5"}, "", ""},
		{"no prefix", StickerOptions{}, "", ""},
		{"daily", StickerOptions{Prefix: "CSD", PickMode: "daily"}, "CSD_Onam", dailyPick.ID},
		{"ai", StickerOptions{Prefix: "CSD", PickMode: "ai"}, "Onam", "4"},
		{"ai none falls back", StickerOptions{Prefix: "CSD", PickMode: "ai"}, "NONE", dailyPick.ID},
		{"no candidates", StickerOptions{Prefix: "XYZ", PickMode: "ai"}, "cat", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGen{reply: tt.reply}
			w := &Writer{Gen: gen}
			got, ok := w.ResolveSticker(context.Background(), src, tt.opts, []string{"Holi"}, newYear)
			if ok != (tt.want != "") || got.ID != tt.want {
				t.Errorf("ResolveSticker() = %+v, %v; want id %q", got, ok, tt.want)
			}
			if tt.opts.PickMode != "ai" && len(gen.prompts) != 0 {
				t.Errorf("model consulted in %q mode", tt.opts.PickMode)
			}
		})
	}

	broken := &fakeStickers{err: errors.New("boom")}
	if _, ok := (&Writer{}).ResolveSticker(context.Background(), broken, StickerOptions{Prefix: "CSD"}, nil, newYear); ok {
		t.Error("sticker resolved despite lookup failure")
	}
}

func TestPickDecorationsByAI(t *testing.T) {
	emojis := []Emoji{{"1", "wave", false}, {"2", "heart", false}, {"3", "sun", true}, {"4", "moon", false}}
	stickers := []Sticker{{"10", "CSD_Hi"}, {"11", "CSD_Bye"}}

	tests := []struct {
		name        string
		reply       string
		wantEmojis  []string
		wantSticker string
	}{
		{"strict json", `{"emojis": ["wave", "sun"], "sticker": "CSD_Bye"}`, []string{"1", "3"}, "11"},
		{"wrapped in prose", "Sure!\n```json\n{\"emojis\": [\"heart\"], \"sticker\": null}\n```", []string{"2"}, ""},
		{"caps at three distinct", `{"emojis": ["wave", "wave", "heart", "sun", "moon"]}`, []string{"1", "2", "3"}, ""},
		{"unknown names ignored", `{"emojis": ["ghost", 7, "moon"], "sticker": "CSD_Nope"}`, []string{"4"}, ""},
		{"not json", "I like wave", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &Writer{Gen: &fakeGen{reply: tt.reply}}
			gotEmojis, gotSticker := w.PickDecorationsByAI(context.Background(), "Morning", "Have a nice day", emojis, stickers)
			var ids []string
			for _, e := range gotEmojis {
				ids = append(ids, e.ID)
			}
			if diff := cmp.Diff(ids, tt.wantEmojis); diff != "" {
				t.Errorf("emojis (-got +want):\n%s", diff)
			}
			gotID := ""
			if gotSticker != nil {
				gotID = gotSticker.ID
			}
			if gotID != tt.wantSticker {
				t.Errorf("sticker = %q, want %q", gotID, tt.wantSticker)
			}
		})
	}

	gen := &fakeGen{reply: "{}"}
	if e, s := (&Writer{Gen: gen}).PickDecorationsByAI(context.Background(), "Night", "x", nil, nil); e != nil || s != nil || len(gen.prompts) != 0 {
		t.Error("nothing to pick from should not consult the model")
	}
}

func TestRewriteWithCustomEmojis(t *testing.T) {
	gen := &fakeGen{reply: "Good morning <:wave:1> 🌞 <:evil:9> friends @everyone"}
	w := &Writer{Gen: gen}
	got := w.RewriteWithCustomEmojis(context.Background(), "Morning", "Good morning 🌞", []string{"<:wave:1>", ""})
	if got != "Good morning <:wave:1>   friends everyone" {
		t.Errorf("RewriteWithCustomEmojis() = %q", got)
	}
	if !strings.Contains(gen.prompts[0], "Wish to rewrite:\nGood morning\n") {
		t.Errorf("input was not cleaned before prompting: %q", gen.prompts[0])
	}

	idle := &fakeGen{}
	if got := (&Writer{Gen: idle}).RewriteWithCustomEmojis(context.Background(), "Night", " Sleep well 🌙 ", nil); got != "Sleep well" {
		t.Errorf("no emojis: got %q", got)
	}
	if len(idle.prompts) != 0 {
		t.Error("model called without allowed emojis")
	}
}

func TestChannelWishForcesEveryone(t *testing.T) {
	gen := &fakeGen{reply: "Happy Holi, friends!\nLet's play with colours."}
	w := &Writer{Gen: gen, Persona: persona.Default()}
	got := w.ChannelWish(context.Background(), []string{"Holi"}, newYear)
	if !strings.HasPrefix(got, "@everyone\nHappy Holi") {
		t.Errorf("ChannelWish() = %q", got)
	}
	if !strings.Contains(gen.prompts[0], "Holi") || !strings.Contains(gen.prompts[0], persona.Signature) {
		t.Errorf("prompt missing day or signature: %q", gen.prompts[0])
	}
}

func TestDMWishStripsMentions(t *testing.T) {
	w := &Writer{Gen: &fakeGen{reply: "Hi <@123> and @everyone, happy Holi!"}, Persona: persona.Default()}
	got := w.DMWish(context.Background(), []string{"Holi"}, newYear)
	if strings.Contains(got, "@") || strings.Contains(got, "<@") {
		t.Errorf("DMWish() kept a mention: %q", got)
	}
}

func TestEnsureEveryone(t *testing.T) {
	tests := []struct{ in, want string }{
		{"@everyone\nHi", "@everyone\nHi"},
		{"  @everyone hello", "@everyone hello"},
		{"Hi all", "@everyone\nHi all"},
		{"Hi\n@everyone", "@everyone\nHi\n@everyone"},
	}
	for _, tt := range tests {
		if got := EnsureEveryone(tt.in); got != tt.want {
			t.Errorf("EnsureEveryone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := WithoutEveryone("@everyone\nHi all"); got != "Hi all" {
		t.Errorf("WithoutEveryone() = %q", got)
	}
}

func TestPersonalizeDM(t *testing.T) {
	got := PersonalizeDM("BODY", "Taki")
	if !strings.HasPrefix(got, "Hey Taki ✨\n") || !strings.Contains(got, "\n\nBODY\n\n") || !strings.Contains(got, "P.S. Taki…") {
		t.Errorf("PersonalizeDM() = %q", got)
	}
	if got := PersonalizeDM("BODY", "  "); !strings.HasPrefix(got, "Hey there ✨") {
		t.Errorf("blank name: %q", got)
	}

	preview := PersonalizePreviewDM("BODY", "Taki", []string{"Holi"}, "A festival\nof colours.")
	if !strings.HasSuffix(preview, "**About Holi**\n> A festival\n> of colours.") {
		t.Errorf("PersonalizePreviewDM() = %q", preview)
	}
}

func TestBlockedNotice(t *testing.T) {
	if got := BlockedNotice(nil); got != "" {
		t.Errorf("BlockedNotice(nil) = %q", got)
	}

	short := BlockedNotice([]string{"<@1>", "<@2>"})
	if !strings.HasSuffix(short, ":\n\n<@1> <@2>") {
		t.Errorf("short notice = %q", short)
	}

	var many []string
	for i := range 200 {
		many = append(many, fmt.Sprintf("<@%d>", 100000000000000000+i))
	}
	got := BlockedNotice(many)
	if len(got) > MaxMessageLen {
		t.Fatalf("notice is %d bytes, over the limit", len(got))
	}
	kept := strings.Count(got, "<@")
	if !strings.HasSuffix(got, fmt.Sprintf("\n(+%d more)", len(many)-kept)) {
		t.Errorf("notice does not count omitted mentions: %q", got[len(got)-40:])
	}
	body, _, _ := strings.Cut(strings.TrimPrefix(got, blockedNoticeBase), "\n")
	for _, m := range strings.Fields(body) {
		if !strings.HasPrefix(m, "<@") || !strings.HasSuffix(m, ">") {
			t.Errorf("mention clipped mid-token: %q", m)
		}
	}
}

func TestWishEmbeds(t *testing.T) {
	in := EmbedInput{
		Guild:     GuildInfo{ID: "1", Name: "CSD", IconURL: "https://cdn/icon.png"},
		TimeOfDay: "Evening",
		Text:      "Relax 🌆 and unwind",
		Emojis:    []string{"<:a:1>", "<:a:1>", "<:b:2>"},
		ImageFile: ImageName("Evening"),
	}
	embeds := WishEmbeds(in)
	if len(embeds) != 1 {
		t.Fatalf("got %d embeds without banner, want 1", len(embeds))
	}
	e := embeds[0]
	if e.Color != 0x9B59B6 {
		t.Errorf("Color = %#x", e.Color)
	}
	if !strings.HasPrefix(e.Title, "<:a:1> ─ 🌆") || !strings.HasSuffix(e.Title, "─ <:b:2>") {
		t.Errorf("Title = %q", e.Title)
	}
	if !strings.Contains(e.Description, "Relax  and unwind") || !strings.HasSuffix(e.Description, "<:a:1> <:b:2>") {
		t.Errorf("Description = %q", e.Description)
	}
	if e.Image == nil || e.Image.URL != "attachment://good-evening.png" {
		t.Errorf("Image = %+v", e.Image)
	}
	if e.Thumbnail == nil || e.Author.IconURL != in.Guild.IconURL {
		t.Error("guild icon not used")
	}
	if e.Footer == nil || !strings.HasPrefix(e.Footer.Text, "✿ Mitsuha • CSD ✿") {
		t.Errorf("Footer = %+v", e.Footer)
	}

	in.Guild.BannerURL = "https://cdn/banner.png"
	in.Emojis = nil
	in.TimeOfDay = "Dawn"
	embeds = WishEmbeds(in)
	if len(embeds) != 2 || embeds[0].Image.URL != in.Guild.BannerURL {
		t.Fatalf("banner embed missing: %+v", embeds)
	}
	if embeds[1].Color != ThemeFor("Morning").Color || !strings.HasPrefix(embeds[1].Title, "✦ ─") {
		t.Errorf("unknown time of day should use Morning defaults: %+v", embeds[1])
	}
}

func TestOccasionEmbeds(t *testing.T) {
	in := EmbedInput{Guild: GuildInfo{Name: "CSD"}, TimeOfDay: "Noon", Text: "@everyone\nHappy Holi!"}
	embeds := OccasionEmbeds(in, []string{"Holi", "Dolyatra"}, strings.Repeat("x", 2000))
	if len(embeds) != 1 {
		t.Fatalf("got %d embeds", len(embeds))
	}
	e := embeds[0]
	if strings.Contains(e.Description, "@everyone") {
		t.Errorf("preview embed pings: %q", e.Description)
	}
	if !strings.Contains(e.Title, "Holi • Dolyatra") {
		t.Errorf("Title = %q", e.Title)
	}
	if len(e.Fields) != 1 || len([]rune(e.Fields[0].Value)) > maxFieldValue {
		t.Errorf("description field not clipped: %d fields", len(e.Fields))
	}
	if !strings.HasPrefix(e.Footer.Text, "✿ Mitsuha • CSD ✿") {
		t.Errorf("Footer = %q", e.Footer.Text)
	}
}

func TestOccasionEmbedsLongTitle(t *testing.T) {
	days := make([]string, 12)
	for i := range days {
		days[i] = fmt.Sprintf("International Day of Observance Number %d", i)
	}
	in := EmbedInput{
		Guild:     GuildInfo{Name: "CSD"},
		TimeOfDay: "Night",
		Text:      "Happy days!",
		Emojis:    []string{"<:left:111111111111111111>", "<:right:222222222222222222>"},
		Signer:    "Yotsuha",
	}
	e := OccasionEmbeds(in, days, "")[0]

	if n := utf8.RuneCountInString(e.Title); n > maxTitle {
		t.Errorf("title has %d runes, limit %d", n, maxTitle)
	}
	if !strings.HasPrefix(e.Title, "<:left:111111111111111111> ─ 🎉 International Day") ||
		!strings.HasSuffix(e.Title, "… 🎉 ─ <:right:222222222222222222>") {
		t.Errorf("Title = %q", e.Title)
	}
	if !strings.HasPrefix(e.Footer.Text, "✿ Yotsuha • CSD ✿") {
		t.Errorf("Footer = %q", e.Footer.Text)
	}
}
