package bridge

import (
	"reflect"
	"testing"

	"github.com/knearme/atelier/internal/model"
)

// ─── Conversation ↔ form ─────────────────────────────────────────────────────

func TestConversationToForm(t *testing.T) {
	extracted := map[string]string{
		"projectType": "kitchen",
		"city":        " Denver ",
		"state":       "CO",
		"materials":   "walnut, quartz,  brass ",
		"problem":     "outdated layout",
		"unknownKey":  "ignored",
	}

	form := ConversationToForm(extracted)
	if form.ProjectType != "kitchen" || form.City != "Denver" || form.State != "CO" {
		t.Errorf("basic fields: %+v", form)
	}
	if !reflect.DeepEqual(form.Materials, []string{"walnut", "quartz", "brass"}) {
		t.Errorf("materials = %v", form.Materials)
	}
	if form.Solution != "" {
		t.Errorf("absent field should stay zero, got %q", form.Solution)
	}
}

func TestFormToConversationOmitsEmpty(t *testing.T) {
	bag := FormToConversation(FormData{
		ProjectType: "deck",
		Materials:   []string{"cedar", "composite"},
	})

	want := map[string]string{
		"projectType": "deck",
		"materials":   "cedar, composite",
	}
	if !reflect.DeepEqual(bag, want) {
		t.Errorf("bag = %v, want %v", bag, want)
	}
}

func TestRoundTripPreservesPopulatedFields(t *testing.T) {
	original := FormData{
		ProjectType: "bathroom",
		City:        "Tulsa",
		State:       "OK",
		Materials:   []string{"porcelain tile"},
		Techniques:  []string{"waterproofing", "leveling"},
		Problem:     "leaking shower pan",
		Solution:    "full tear-out and rebuild",
		Title:       "Master bath rebuild",
	}

	got := ConversationToForm(FormToConversation(original))
	if !reflect.DeepEqual(got, original) {
		t.Errorf("round trip changed data:\ngot  %+v\nwant %+v", got, original)
	}
}

func TestRoundTripPreservesBagEntries(t *testing.T) {
	original := map[string]string{
		"projectType": "deck",
		"city":        "Boise",
		"state":       "ID",
		"materials":   "cedar,composite",
		"techniques":  "framing ,  staining",
		"problem":     "rotted boards",
		"duration":    "2 weeks",
	}

	got := FormToConversation(ConversationToForm(original))

	// Every populated key survives; list values come back canonicalized
	// to ", "-joined form.
	want := map[string]string{
		"projectType": "deck",
		"city":        "Boise",
		"state":       "ID",
		"materials":   "cedar, composite",
		"techniques":  "framing, staining",
		"problem":     "rotted boards",
		"duration":    "2 weeks",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip:\ngot  %v\nwant %v", got, want)
	}
}

// ─── Checkpoints ─────────────────────────────────────────────────────────────

func TestCreateCheckpoint(t *testing.T) {
	extracted := map[string]string{"city": "Boise"}
	cp := CreateCheckpoint(extracted, nil, model.PhaseImages, 12)

	if cp.Phase != model.PhaseImages || cp.MessageCount != 12 {
		t.Errorf("checkpoint = %+v", cp)
	}
	if cp.Timestamp.IsZero() {
		t.Error("timestamp not stamped")
	}
	// The checkpoint owns its maps.
	extracted["city"] = "changed"
	if cp.Extracted["city"] != "Boise" {
		t.Error("checkpoint aliases the caller's map")
	}
}

func TestMergeCheckpointAccumulates(t *testing.T) {
	n1 := 5
	first := MergeCheckpoint(nil, CheckpointPatch{
		Extracted:    map[string]string{"projectType": "deck", "city": "Boise"},
		Phase:        model.PhaseGathering,
		MessageCount: &n1,
	})

	n2 := 9
	second := MergeCheckpoint(&first, CheckpointPatch{
		Extracted:    map[string]string{"city": "Meridian", "materials": "cedar"},
		State:        map[string]string{"activeTab": "photos"},
		Phase:        model.PhaseImages,
		MessageCount: &n2,
	})

	// Patch entries overwrite, everything else accumulates.
	want := map[string]string{"projectType": "deck", "city": "Meridian", "materials": "cedar"}
	if !reflect.DeepEqual(second.Extracted, want) {
		t.Errorf("extracted = %v, want %v", second.Extracted, want)
	}
	if second.State["activeTab"] != "photos" {
		t.Errorf("state = %v", second.State)
	}
	if second.Phase != model.PhaseImages || second.MessageCount != 9 {
		t.Errorf("phase=%s count=%d", second.Phase, second.MessageCount)
	}
}

func TestMergeCheckpointUnsuppliedFieldsRetained(t *testing.T) {
	n := 7
	existing := MergeCheckpoint(nil, CheckpointPatch{
		Extracted:    map[string]string{"city": "Boise"},
		Phase:        model.PhaseReview,
		MessageCount: &n,
	})

	// Empty patch: everything except the timestamp carries over.
	merged := MergeCheckpoint(&existing, CheckpointPatch{})
	if merged.Phase != model.PhaseReview || merged.MessageCount != 7 {
		t.Errorf("unsupplied fields clobbered: %+v", merged)
	}
	if merged.Extracted["city"] != "Boise" {
		t.Errorf("extracted = %v", merged.Extracted)
	}
}

func TestMergeCheckpointDefaults(t *testing.T) {
	merged := MergeCheckpoint(nil, CheckpointPatch{})
	if merged.Phase != model.PhaseGathering || merged.MessageCount != 0 {
		t.Errorf("defaults: %+v", merged)
	}
	if merged.Extracted == nil || merged.State == nil {
		t.Error("maps should be non-nil")
	}
}

// ─── Completeness ────────────────────────────────────────────────────────────

func TestFormCompleteness(t *testing.T) {
	tests := []struct {
		name string
		form FormData
		want int
	}{
		{"empty", FormData{}, 0},
		{
			"all required",
			FormData{ProjectType: "deck", City: "Boise", Problem: "rotting boards", Solution: "rebuild"},
			67,
		},
		{
			"required plus two optionals",
			FormData{
				ProjectType: "deck", City: "Boise", Problem: "rot", Solution: "rebuild",
				Duration: "2 weeks", Materials: []string{"cedar"},
			},
			83,
		},
		{
			"fully populated caps at 100",
			FormData{
				ProjectType: "deck", City: "Boise", Problem: "rot", Solution: "rebuild",
				Duration: "2 weeks", Challenges: "rain", ProudOf: "the railing",
				Title: "Deck rebuild", Description: "Full rebuild.",
				Materials: []string{"cedar"}, Techniques: []string{"joist hangers"},
			},
			100,
		},
		{"whitespace does not count", FormData{ProjectType: "   "}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormCompleteness(tt.form); got != tt.want {
				t.Errorf("FormCompleteness = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestHasMinimumData(t *testing.T) {
	tests := []struct {
		name string
		form FormData
		want bool
	}{
		{"empty", FormData{}, false},
		{"type only", FormData{ProjectType: "deck"}, false},
		{"type and problem", FormData{ProjectType: "deck", Problem: "rot"}, true},
		{"type and solution", FormData{ProjectType: "deck", Solution: "rebuild"}, true},
		{"problem without type", FormData{Problem: "rot"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasMinimumData(tt.form); got != tt.want {
				t.Errorf("HasMinimumData = %v, want %v", got, tt.want)
			}
		})
	}
}

// ─── Location parsing ────────────────────────────────────────────────────────

func TestParseLocationFromAddress(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want *Location
	}{
		{"street address", "1234 Pine St, Denver, CO 80202", &Location{City: "Denver", State: "CO"}},
		{"zip+4", "500 Main St, Boise, ID 83702-1234", &Location{City: "Boise", State: "ID"}},
		{"bare city state", "Tulsa, OK", &Location{City: "Tulsa", State: "OK"}},
		{"multi-word city", "12 Elm Ave, Salt Lake City, UT 84101", &Location{City: "Salt Lake City", State: "UT"}},
		{"lowercase state rejected", "Denver, co", nil},
		{"no state", "Denver", nil},
		{"empty", "", nil},
		{"street without zip", "1234 Pine St, Denver, CO", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseLocationFromAddress(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseLocationFromAddress(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}
