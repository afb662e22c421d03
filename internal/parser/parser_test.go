package parser

import (
	"reflect"
	"testing"
)

func TestParse_BracketSyntax(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []CardReference
	}{
		{
			name: "basic lookup",
			text: "Check out [[Lightning Bolt]]",
			want: []CardReference{{RawName: "Lightning Bolt", ViewMode: ViewDefault}},
		},
		{
			name: "image flag",
			text: "[[!Force of Will]]",
			want: []CardReference{{RawName: "Force of Will", ViewMode: ViewImage}},
		},
		{
			name: "rulings flag",
			text: "[[?Past in Flames]]",
			want: []CardReference{{RawName: "Past in Flames", ViewMode: ViewRulings}},
		},
		{
			name: "legality flag",
			text: "[[#Treasure Cruise]]",
			want: []CardReference{{RawName: "Treasure Cruise", ViewMode: ViewLegalities}},
		},
		{
			name: "price flag",
			text: "[[$Tarmogoyf]]",
			want: []CardReference{{RawName: "Tarmogoyf", ViewMode: ViewPrices}},
		},
		{
			name: "set code",
			text: "[[Jace|WWK]]",
			want: []CardReference{{RawName: "Jace", ViewMode: ViewDefault, SetCode: "WWK"}},
		},
		{
			name: "set and collector number",
			text: "[[Black Lotus|LEA|232]]",
			want: []CardReference{{RawName: "Black Lotus", ViewMode: ViewDefault, SetCode: "LEA", CollectorNumber: "232"}},
		},
		{
			name: "flag with set",
			text: "[[!Counterspell|MMQ]]",
			want: []CardReference{{RawName: "Counterspell", ViewMode: ViewImage, SetCode: "MMQ"}},
		},
		{
			name: "multiple cards in order",
			text: "[[Lightning Bolt]] deals 3 to [[Grizzly Bears]]",
			want: []CardReference{
				{RawName: "Lightning Bolt", ViewMode: ViewDefault},
				{RawName: "Grizzly Bears", ViewMode: ViewDefault},
			},
		},
		{
			name: "consecutive brackets",
			text: "[[A]][[B]]",
			want: []CardReference{
				{RawName: "A", ViewMode: ViewDefault},
				{RawName: "B", ViewMode: ViewDefault},
			},
		},
		{
			name: "mixed flags in order",
			text: "check out [[Lightning Bolt]] and [[!Counterspell]]",
			want: []CardReference{
				{RawName: "Lightning Bolt", ViewMode: ViewDefault},
				{RawName: "Counterspell", ViewMode: ViewImage},
			},
		},
		{
			name: "extra pipe parts ignored",
			text: "[[Black Lotus|LEA|232|foil|whatever]]",
			want: []CardReference{{RawName: "Black Lotus", ViewMode: ViewDefault, SetCode: "LEA", CollectorNumber: "232"}},
		},
		{
			name: "collector number without set dropped",
			text: "[[Black Lotus||232]]",
			want: []CardReference{{RawName: "Black Lotus", ViewMode: ViewDefault}},
		},
		{
			name: "fuzzy name passes through untouched",
			text: "[[thalia guardian]]",
			want: []CardReference{{RawName: "thalia guardian", ViewMode: ViewDefault}},
		},
		{
			name: "set code case preserved",
			text: "[[Jace|wwk]]",
			want: []CardReference{{RawName: "Jace", ViewMode: ViewDefault, SetCode: "wwk"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.text, got, tt.want)
			}
		})
	}
}

func TestParse_NoReferences(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"plain message", "Just a normal message with no cards"},
		{"empty brackets", "[[]]"},
		{"sigil only", "[[!]]"},
		{"whitespace only", "[[   ]]"},
		{"unterminated span", "this [[Lightning Bolt never closes"},
		{"lone dot", "."},
		{"dot mid-sentence", "I think Mr. Smith is right"},
		{"reserved command", ".help"},
		{"reserved command with args", ".help me please"},
		{"empty message", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Parse(tt.text); len(got) != 0 {
				t.Errorf("Parse(%q) = %+v, want no references", tt.text, got)
			}
		})
	}
}

func TestParse_DotShorthand(t *testing.T) {
	tests := []struct {
		name string
		text string
		want CardReference
	}{
		{"basic", ".Lightning Bolt", CardReference{RawName: "Lightning Bolt", ViewMode: ViewDefault}},
		{"image flag", ".!Force of Will", CardReference{RawName: "Force of Will", ViewMode: ViewImage}},
		{"price flag", ".$Tarmogoyf", CardReference{RawName: "Tarmogoyf", ViewMode: ViewPrices}},
		{"with set", ".Jace|WWK", CardReference{RawName: "Jace", ViewMode: ViewDefault, SetCode: "WWK"}},
		{"leading whitespace trimmed", "   .Bolt", CardReference{RawName: "Bolt", ViewMode: ViewDefault}},
		// Shorthand has no collector-number position; a third part is discarded.
		{"collector part discarded", ".Black Lotus|LEA|232", CardReference{RawName: "Black Lotus", ViewMode: ViewDefault, SetCode: "LEA"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.text)
			if len(got) != 1 {
				t.Fatalf("Parse(%q) returned %d references, want 1", tt.text, len(got))
			}
			if got[0] != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.text, got[0], tt.want)
			}
		})
	}
}

func TestParse_BracketsWinOverShorthand(t *testing.T) {
	got := Parse(".[[Lightning Bolt]]")
	want := []CardReference{{RawName: "Lightning Bolt", ViewMode: ViewDefault}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Parse = %+v, want bracket reference only", got)
	}
}

func TestViewMode_String(t *testing.T) {
	tests := []struct {
		mode ViewMode
		want string
	}{
		{ViewDefault, "default"},
		{ViewImage, "image"},
		{ViewRulings, "rulings"},
		{ViewLegalities, "legalities"},
		{ViewPrices, "prices"},
	}
	for _, tt := range tests {
		if got := tt.mode.String(); got != tt.want {
			t.Errorf("ViewMode(%d).String() = %q, want %q", tt.mode, got, tt.want)
		}
	}
}
