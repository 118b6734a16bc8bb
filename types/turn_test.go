package types //nolint:revive // types is a valid package name

import (
	"reflect"
	"testing"
)

func TestStage_IsTerminal(t *testing.T) {
	tests := []struct {
		stage Stage
		want  bool
	}{
		{StageRetrieving, false},
		{StageGenerating, false},
		{StageFinalizing, false},
		{StageDone, true},
		{StageError, true},
		{StageAborted, true},
		{Stage("reranking"), false}, // unknown stages are never terminal
	}

	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			if got := tt.stage.IsTerminal(); got != tt.want {
				t.Errorf("Stage(%q).IsTerminal() = %v, want %v", tt.stage, got, tt.want)
			}
		})
	}
}

func TestStage_StatusText(t *testing.T) {
	tests := []struct {
		stage  Stage
		want   string
		wantOK bool
	}{
		{StageRetrieving, StatusTextRetrieving, true},
		{StageGenerating, StatusTextGenerating, true},
		{StageFinalizing, StatusTextFinalizing, true},
		{StageDone, "", false},
		{Stage("reranking"), "", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			got, ok := tt.stage.StatusText()
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("StatusText() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestNewAssistantTurn(t *testing.T) {
	turn := NewAssistantTurn()
	if turn.Stage != StageRetrieving {
		t.Errorf("Stage = %q, want %q", turn.Stage, StageRetrieving)
	}
	if !turn.Streaming {
		t.Error("Streaming = false, want true")
	}
	if turn.Content != "" {
		t.Errorf("Content = %q, want empty", turn.Content)
	}
	if turn.StageText != StatusTextRetrieving {
		t.Errorf("StageText = %q, want %q", turn.StageText, StatusTextRetrieving)
	}
}

func TestHistory_ReducesToRoleContent(t *testing.T) {
	turns := []Turn{
		{Role: RoleUser, Content: "hello"},
		{
			Role:      RoleAssistant,
			Content:   "hi",
			Stage:     StageDone,
			Citations: []Citation{{ID: "c1"}},
		},
	}

	got := History(turns)
	want := []HistoryEntry{
		{Role: RoleUser, Content: "hello"},
		{Role: RoleAssistant, Content: "hi"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("History() = %+v, want %+v", got, want)
	}
}

func TestNormalizeCitations(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  []Citation
	}{
		{
			name:  "bare strings",
			input: []any{"c1", "c2"},
			want:  []Citation{{ID: "c1"}, {ID: "c2"}},
		},
		{
			name: "objects with id and quote",
			input: []any{
				map[string]any{"id": "c1", "quote": "because"},
			},
			want: []Citation{{ID: "c1", Quote: "because"}},
		},
		{
			name: "elements without usable id filtered",
			input: []any{
				map[string]any{"quote": "orphan"},
				map[string]any{"id": ""},
				42,
				"",
				"c1",
			},
			want: []Citation{{ID: "c1"}},
		},
		{
			name:  "duplicate ids keep first",
			input: []any{"c1", map[string]any{"id": "c1", "quote": "later"}, "c2"},
			want:  []Citation{{ID: "c1"}, {ID: "c2"}},
		},
		{
			name:  "non-array input",
			input: "c1",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeCitations(tt.input)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NormalizeCitations() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNormalizeUsedContext(t *testing.T) {
	score := 0.87
	input := []any{
		map[string]any{
			"id":       "c1",
			"text":     "evidence",
			"metadata": map[string]any{"filename": "resume.pdf"},
			"score":    score,
		},
		map[string]any{}, // missing fields default to zero values
		"not-an-object",
	}

	got := NormalizeUsedContext(input)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "c1" || got[0].Text != "evidence" {
		t.Errorf("first element = %+v", got[0])
	}
	if got[0].Score == nil || *got[0].Score != score {
		t.Errorf("Score = %v, want %v", got[0].Score, score)
	}
	if got[0].Metadata["filename"] != "resume.pdf" {
		t.Errorf("Metadata = %+v", got[0].Metadata)
	}
	if got[1].ID != "" || got[1].Score != nil {
		t.Errorf("second element should be zero-valued, got %+v", got[1])
	}
}
