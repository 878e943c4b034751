package brand_extract

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"

	types "github.com/surveylab/codeframe-backend/internal/domain"
)

func TestDecodeBrands(t *testing.T) {
	obj := map[string]any{
		"brands": []any{
			map[string]any{
				"name":        "  Colgate ",
				"description": " whitening ",
				"count":       12,
				"confidence":  0.9,
				"examples":    []any{"a", "b", "c", "d"},
			},
			map[string]any{
				"name":       "   ",
				"confidence": 0.5,
			},
		},
	}

	brands, err := decodeBrands(obj)
	if err != nil {
		t.Fatalf("decodeBrands: %v", err)
	}
	if len(brands) != 1 {
		t.Fatalf("blank brand names must be dropped: %+v", brands)
	}
	if brands[0].Name != "Colgate" || brands[0].Description != "whitening" {
		t.Fatalf("trim: %+v", brands[0])
	}
	if len(brands[0].Examples) != 3 {
		t.Fatalf("examples must cap at 3: %v", brands[0].Examples)
	}
}

func TestDecodeBrandsRejectsEmptyOutput(t *testing.T) {
	if _, err := decodeBrands(map[string]any{"brands": []any{}}); err == nil {
		t.Fatalf("no brands must fail")
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
