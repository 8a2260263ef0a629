// Package bridge converts losslessly between the conversation's
// extracted-field representation and the form representation of a project,
// and maintains session checkpoints for fallback and resume.
//
// Everything here is pure and deterministic: no I/O, no hidden defaults.
// A field present on one side and absent on the other is simply omitted.
package bridge

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/knearme/atelier/internal/model"
)

// FormData is the form-side representation of a project in progress.
type FormData struct {
	ProjectType string   `json:"project_type,omitempty"`
	City        string   `json:"city,omitempty"`
	State       string   `json:"state,omitempty"`
	Materials   []string `json:"materials,omitempty"`
	Techniques  []string `json:"techniques,omitempty"`
	Duration    string   `json:"duration,omitempty"`
	Problem     string   `json:"problem,omitempty"`
	Solution    string   `json:"solution,omitempty"`
	Challenges  string   `json:"challenges,omitempty"`
	ProudOf     string   `json:"proud_of,omitempty"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Images      []string `json:"images,omitempty"`
}

// Conversation-side field bag keys. Both directions copy field by field
// over this fixed set; unknown keys are ignored.
const (
	keyProjectType = "projectType"
	keyCity        = "city"
	keyState       = "state"
	keyMaterials   = "materials"
	keyTechniques  = "techniques"
	keyDuration    = "duration"
	keyProblem     = "problem"
	keySolution    = "solution"
	keyChallenges  = "challenges"
	keyProudOf     = "proudOf"
	keyTitle       = "title"
	keyDescription = "description"
	keyImages      = "images"
)

// ─── Conversation ↔ form ─────────────────────────────────────────────────────

// ConversationToForm maps an extracted-field bag onto form fields. Absent
// or empty bag entries leave the corresponding form field zero; the
// bridge never invents defaults.
func ConversationToForm(extracted map[string]string) FormData {
	get := func(key string) string { return strings.TrimSpace(extracted[key]) }
	return FormData{
		ProjectType: get(keyProjectType),
		City:        get(keyCity),
		State:       get(keyState),
		Materials:   splitList(get(keyMaterials)),
		Techniques:  splitList(get(keyTechniques)),
		Duration:    get(keyDuration),
		Problem:     get(keyProblem),
		Solution:    get(keySolution),
		Challenges:  get(keyChallenges),
		ProudOf:     get(keyProudOf),
		Title:       get(keyTitle),
		Description: get(keyDescription),
		Images:      splitList(get(keyImages)),
	}
}

// FormToConversation maps form fields back into an extracted-field bag.
// Only populated fields produce entries.
func FormToConversation(form FormData) map[string]string {
	out := make(map[string]string)
	put := func(key, v string) {
		if v != "" {
			out[key] = v
		}
	}
	put(keyProjectType, form.ProjectType)
	put(keyCity, form.City)
	put(keyState, form.State)
	put(keyMaterials, joinList(form.Materials))
	put(keyTechniques, joinList(form.Techniques))
	put(keyDuration, form.Duration)
	put(keyProblem, form.Problem)
	put(keySolution, form.Solution)
	put(keyChallenges, form.Challenges)
	put(keyProudOf, form.ProudOf)
	put(keyTitle, form.Title)
	put(keyDescription, form.Description)
	put(keyImages, joinList(form.Images))
	return out
}

// splitList parses a comma-separated bag value, trimming whitespace and
// dropping empty elements. Round-tripping a bag through the form
// canonicalizes list values: elements come back ", "-joined regardless of
// the spacing in the original.
func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinList(v []string) string {
	return strings.Join(v, ", ")
}

// ─── Checkpoints ─────────────────────────────────────────────────────────────

// CheckpointPatch carries the fields a caller wants to fold into an
// existing checkpoint. Nil maps and the zero Phase mean "not supplied" and
// never clobber existing values.
type CheckpointPatch struct {
	Extracted    map[string]string `json:"extracted,omitempty"`
	State        map[string]string `json:"state,omitempty"`
	Phase        model.Phase       `json:"phase,omitempty"`
	MessageCount *int              `json:"message_count,omitempty"`
}

// CreateCheckpoint bundles the inputs verbatim under the current time.
func CreateCheckpoint(extracted, state map[string]string, phase model.Phase, messageCount int) model.SessionCheckpoint {
	return model.SessionCheckpoint{
		Extracted:    copyMap(extracted),
		State:        copyMap(state),
		Phase:        phase,
		Timestamp:    time.Now().UTC(),
		MessageCount: messageCount,
	}
}

// MergeCheckpoint folds a patch into an existing checkpoint. Extracted and
// state merge shallowly (patch entries overwrite, everything else is
// retained), so a switch between conversation and form never erases a
// field the other modality already populated. With no existing checkpoint,
// phase defaults to gathering and the message count to 0.
func MergeCheckpoint(existing *model.SessionCheckpoint, patch CheckpointPatch) model.SessionCheckpoint {
	merged := model.SessionCheckpoint{
		Extracted:    map[string]string{},
		State:        map[string]string{},
		Phase:        model.PhaseGathering,
		MessageCount: 0,
	}
	if existing != nil {
		for k, v := range existing.Extracted {
			merged.Extracted[k] = v
		}
		for k, v := range existing.State {
			merged.State[k] = v
		}
		merged.Phase = existing.Phase
		merged.MessageCount = existing.MessageCount
	}

	for k, v := range patch.Extracted {
		merged.Extracted[k] = v
	}
	for k, v := range patch.State {
		merged.State[k] = v
	}
	if patch.Phase != "" {
		merged.Phase = patch.Phase
	}
	if patch.MessageCount != nil {
		merged.MessageCount = *patch.MessageCount
	}

	merged.Timestamp = time.Now().UTC()
	return merged
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ─── Completeness ────────────────────────────────────────────────────────────

// completenessDenominator is the four required fields at full weight plus
// four optional slots at half weight. Extra optional fields push the score
// toward the cap rather than widening the denominator.
const completenessDenominator = 6.0

// FormCompleteness scores a form 0-100. Required fields (type, city,
// problem, solution) count 1 unit each; optional fields count 0.5 when
// non-empty. Capped at 100.
func FormCompleteness(form FormData) int {
	var filled float64

	for _, v := range []string{form.ProjectType, form.City, form.Problem, form.Solution} {
		if strings.TrimSpace(v) != "" {
			filled++
		}
	}

	optionalStrings := []string{form.Duration, form.Challenges, form.ProudOf, form.Title, form.Description}
	for _, v := range optionalStrings {
		if strings.TrimSpace(v) != "" {
			filled += 0.5
		}
	}
	if len(form.Materials) > 0 {
		filled += 0.5
	}
	if len(form.Techniques) > 0 {
		filled += 0.5
	}

	pct := int(math.Round(filled / completenessDenominator * 100))
	if pct > 100 {
		pct = 100
	}
	return pct
}

// HasMinimumData reports whether a form holds enough to hand off to the
// conversation without immediately re-asking basics: a project type plus
// at least one of problem or solution.
func HasMinimumData(form FormData) bool {
	if strings.TrimSpace(form.ProjectType) == "" {
		return false
	}
	return strings.TrimSpace(form.Problem) != "" || strings.TrimSpace(form.Solution) != ""
}

// ─── Location parsing ────────────────────────────────────────────────────────

// Location is a parsed city/state pair.
type Location struct {
	City  string `json:"city"`
	State string `json:"state"`
}

var (
	// "1234 Pine St, Denver, CO 80202"
	streetCityStateZip = regexp.MustCompile(`^.+,\s*([A-Za-z .'-]+?),\s*([A-Z]{2})\s+\d{5}(?:-\d{4})?$`)
	// "Denver, CO"
	bareCityState = regexp.MustCompile(`^\s*([A-Za-z .'-]+?),\s*([A-Z]{2})\s*$`)
)

// ParseLocationFromAddress extracts a city/state pair from a free-form
// address. The state must be an exact two-letter uppercase token;
// ambiguous variants are rejected rather than guessed. Returns nil when
// neither pattern matches.
func ParseLocationFromAddress(address string) *Location {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil
	}
	if m := streetCityStateZip.FindStringSubmatch(address); m != nil {
		return &Location{City: strings.TrimSpace(m[1]), State: m[2]}
	}
	if m := bareCityState.FindStringSubmatch(address); m != nil {
		return &Location{City: strings.TrimSpace(m[1]), State: m[2]}
	}
	return nil
}
