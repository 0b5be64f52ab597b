package signal

import "testing"

var testPhrases = Phrases{
	Completion:    []string{"[STORY COMPLETE]", "[END]", "[FINISHED]", "story is complete and satisfying"},
	Approval:      []string{"I approve this story", "I approve the story", "story is approved"},
	TechnicalPass: []string{"technical review passed"},
	Conflict: []string{
		"strongly disagree", "major concern", "fundamental issue",
		"cannot accept", "this won't work", "completely wrong direction",
	},
}

func newTestParser() *Parser {
	return NewParser([]string{"Writer", "Reader", "Expert"}, "Expert", testPhrases)
}

func TestNextSpeakerBracketedMention(t *testing.T) {
	p := newTestParser()
	cases := []struct {
		text string
		want string
	}{
		{"Here is my outline. [@Reader]", "Reader"},
		{"[@writer] please revise the second scene.", "Writer"},
		{"Over to you [@EXPERT].", "Expert"},
		{"[Next: Reader] for feedback", "Reader"},
		{"[Writer's turn] to fix the typos", "Writer"},
		{"Passing along @Expert", "Expert"},
	}
	for _, tc := range cases {
		if got := p.NextSpeaker(tc.text); got != tc.want {
			t.Errorf("NextSpeaker(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestNextSpeakerEarliestConventionWins(t *testing.T) {
	p := newTestParser()
	// Two different conventions pointing at different roles: the one
	// appearing earliest in the text is authoritative.
	got := p.NextSpeaker("[Next: Expert] ... later on [@Reader]")
	if got != "Expert" {
		t.Fatalf("next speaker = %q, want Expert (earliest convention wins)", got)
	}
	// Within one convention the first occurrence in text order wins.
	got = p.NextSpeaker("[@Writer] then maybe [@Expert]")
	if got != "Writer" {
		t.Fatalf("next speaker = %q, want Writer (first occurrence wins)", got)
	}
	// A bracketed mention also contains a bare @-mention one byte later;
	// the bracketed convention wins the tie at that position.
	got = p.NextSpeaker("@Expert should wait, [@Reader] goes first")
	if got != "Expert" {
		t.Fatalf("next speaker = %q, want Expert (bare mention appears first)", got)
	}
}

func TestNextSpeakerPartialNameMatch(t *testing.T) {
	p := newTestParser()
	// Bidirectional substring containment: "Read" resolves to "Reader".
	if got := p.NextSpeaker("[@Read] what do you think?"); got != "Reader" {
		t.Fatalf("partial name resolved to %q, want Reader", got)
	}
}

func TestNextSpeakerUnknownRole(t *testing.T) {
	p := newTestParser()
	if got := p.NextSpeaker("[@Editor] please weigh in"); got != "" {
		t.Fatalf("unknown role resolved to %q, want empty", got)
	}
	if got := p.NextSpeaker("no handoff at all"); got != "" {
		t.Fatalf("missing handoff resolved to %q, want empty", got)
	}
}

func TestCompletionMarkers(t *testing.T) {
	p := newTestParser()
	for _, text := range []string{
		"That's a wrap. [STORY COMPLETE]",
		"The tale concludes here. [END]",
		"[finished]",
		"I believe the story is complete and satisfying.",
	} {
		if !p.Completion(text) {
			t.Errorf("Completion(%q) = false, want true", text)
		}
	}
	if p.Completion("We're nearly done, just one scene left.") {
		t.Fatalf("soft progress talk should not signal completion")
	}
}

func TestApprovalFromReader(t *testing.T) {
	p := newTestParser()
	if !p.Approval("Great revision. I APPROVE this story. [@Expert]", "Reader") {
		t.Fatalf("reader approval phrase not detected")
	}
	if p.Approval("I almost approve, but fix the ending first.", "Reader") {
		t.Fatalf("near-approval language should not count")
	}
}

func TestExpertApprovalRequiresTechnicalPass(t *testing.T) {
	p := newTestParser()
	if p.Approval("I approve this story as Expert.", "Expert") {
		t.Fatalf("bare approval from Expert must not count")
	}
	if !p.Approval("I APPROVE this story as Expert - technical review passed", "Expert") {
		t.Fatalf("approval plus technical pass should count")
	}
	// The same bare phrase is sufficient for every other role.
	if !p.Approval("I approve this story as Expert.", "Reader") {
		t.Fatalf("non-expert speaker should not need the technical-pass phrase")
	}
}

func TestConflictDetection(t *testing.T) {
	p := newTestParser()
	if !p.Conflict("I strongly disagree with this direction.") {
		t.Fatalf("strong disagreement not detected")
	}
	if !p.Conflict("This is a FUNDAMENTAL ISSUE with the premise.") {
		t.Fatalf("case-insensitive conflict phrase not detected")
	}
	if p.Conflict("I'm not sure about the pacing in scene two.") {
		t.Fatalf("mild disagreement must not trigger arbitration")
	}
}

func TestParseCombinesSignals(t *testing.T) {
	p := newTestParser()
	got := p.Parse("Looks good, I approve the story. [@Expert]", "Reader")
	if got.NextSpeaker != "Expert" || !got.Approval || got.Completion || got.Conflict {
		t.Fatalf("signals = %+v", got)
	}
}
