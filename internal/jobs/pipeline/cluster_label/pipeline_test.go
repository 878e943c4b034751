package cluster_label

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"

	types "github.com/surveylab/codeframe-backend/internal/domain"
)

func TestDecodeLabels(t *testing.T) {
	obj := map[string]any{
		"theme": map[string]any{
			"name":        "  Whitening benefits ",
			"description": "Answers about whiter teeth",
			"confidence":  0.9,
		},
		"codes": []any{
			map[string]any{
				"name":        "Stain removal",
				"description": "",
				"confidence":  1.7,
				"examples":    []any{"a", "b", "c", "d", "e"},
			},
			map[string]any{
				"name":       "   ",
				"confidence": 0.5,
			},
			map[string]any{
				"name":       "Brightness",
				"confidence": -0.3,
			},
		},
	}

	theme, codes, err := decodeLabels(obj)
	if err != nil {
		t.Fatalf("decodeLabels: %v", err)
	}
	if theme.Name != "Whitening benefits" || theme.Confidence != 0.9 {
		t.Fatalf("theme: %+v", theme)
	}
	if len(codes) != 2 {
		t.Fatalf("blank code names must be dropped: %+v", codes)
	}
	if codes[0].Confidence != 1 {
		t.Fatalf("confidence must clamp to [0,1]: %v", codes[0].Confidence)
	}
	if len(codes[0].Examples) != 3 {
		t.Fatalf("examples must cap at 3: %v", codes[0].Examples)
	}
	if codes[1].Confidence != 0 {
		t.Fatalf("negative confidence must clamp to 0: %v", codes[1].Confidence)
	}
}

func TestDecodeLabelsRejectsDegenerateOutput(t *testing.T) {
	_, _, err := decodeLabels(map[string]any{
		"theme": map[string]any{"name": ""},
		"codes": []any{map[string]any{"name": "x"}},
	})
	if err == nil {
		t.Fatalf("empty theme name must fail")
	}

	_, _, err = decodeLabels(map[string]any{
		"theme": map[string]any{"name": "Theme"},
		"codes": []any{},
	})
	if err == nil {
		t.Fatalf("no codes must fail")
	}

	_, _, err = decodeLabels(map[string]any{
		"theme": map[string]any{"name": "Theme"},
		"codes": []any{map[string]any{"name": "   "}},
	})
	if err == nil {
		t.Fatalf("all-blank codes must fail")
	}
}

func TestSampleTexts(t *testing.T) {
	answers := []*types.Answer{
		nil,
		{ID: uuid.New(), Text: "   "},
		{ID: uuid.New(), Text: " colgate "},
		{ID: uuid.New(), Text: strings.Repeat("x", maxTextLen+50)},
	}
	got := sampleTexts(answers)
	if len(got) != 2 {
		t.Fatalf("nil and blank answers must be skipped: %v", got)
	}
	if got[0] != "- colgate" {
		t.Fatalf("prefix and trim: %q", got[0])
	}
	if len(got[1]) != len("- ")+maxTextLen {
		t.Fatalf("long answers must truncate: len=%d", len(got[1]))
	}

	many := make([]*types.Answer, maxSampleTexts*2)
	for i := range many {
		many[i] = &types.Answer{ID: uuid.New(), Text: "answer"}
	}
	if got := sampleTexts(many); len(got) != maxSampleTexts {
		t.Fatalf("sample cap: want=%d got=%d", maxSampleTexts, len(got))
	}
}

func TestSampleTextsTruncatesOnRuneBoundary(t *testing.T) {
	// The two-byte rune straddles the length cap; a byte slice there would
	// leave invalid UTF-8 in the prompt.
	text := strings.Repeat("x", maxTextLen-1) + "é trailing"
	got := sampleTexts([]*types.Answer{{ID: uuid.New(), Text: text}})
	if len(got) != 1 {
		t.Fatalf("sampleTexts: %v", got)
	}
	body := strings.TrimPrefix(got[0], "- ")
	if len(body) > maxTextLen {
		t.Fatalf("truncation overflow: len=%d", len(body))
	}
	if !utf8.ValidString(body) {
		t.Fatalf("truncation split a rune: %q", body)
	}
}

func TestProgressPct(t *testing.T) {
	if got := progressPct(0, 0); got != 0 {
		t.Fatalf("zero total: %d", got)
	}
	if got := progressPct(10, 10); got != 30 {
		t.Fatalf("nothing done yet: %d", got)
	}
	if got := progressPct(10, 0); got != 95 {
		t.Fatalf("drained queue caps at 95: %d", got)
	}
	mid := progressPct(10, 5)
	if mid <= 30 || mid >= 95 {
		t.Fatalf("midway progress out of band: %d", mid)
	}
}
