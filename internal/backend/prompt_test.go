package backend

import (
	"strings"
	"testing"

	"github.com/prepview/voice-gateway/internal/session"
)

func TestCleanResponse_StripsCompletionMarker(t *testing.T) {
	in := "Thank you for your time. " + CompletionMarker
	got := CleanResponse(in)
	if strings.Contains(got, CompletionMarker) {
		t.Errorf("Marker should be removed, got %q", got)
	}
	if got != "Thank you for your time." {
		t.Errorf("Unexpected cleaned text: %q", got)
	}
}

func TestCleanResponse_NoMarker(t *testing.T) {
	if got := CleanResponse("  plain reply  "); got != "plain reply" {
		t.Errorf("Expected trimmed text, got %q", got)
	}
}

func TestTurnInstruction_PhaseBands(t *testing.T) {
	tests := []struct {
		turn  int
		phase string
	}{
		{1, "BEHAVIORAL"},
		{3, "BEHAVIORAL"},
		{4, "CODING CHALLENGE"},
		{10, "CODING CHALLENGE"},
		{11, "SYSTEM DESIGN"},
		{13, "SYSTEM DESIGN"},
		{14, "CLOSING"},
		{20, "CLOSING"},
	}
	for _, tt := range tests {
		if got := TurnInstruction(tt.turn); !strings.Contains(got, tt.phase) {
			t.Errorf("Turn %d: expected phase %s, got %q", tt.turn, tt.phase, got)
		}
	}
}

func TestFormatTranscript(t *testing.T) {
	entries := []session.Entry{
		{Speaker: session.SpeakerInterviewer, Text: "Tell me about yourself."},
		{Speaker: session.SpeakerCandidate, Text: "I build backend services."},
	}
	got := FormatTranscript(entries)
	want := "Interviewer: Tell me about yourself.\n\nCandidate: I build backend services."
	if got != want {
		t.Errorf("Unexpected transcript:\n%q\nwant:\n%q", got, want)
	}
}

func TestBuildTurnPrompt_ContainsAllSections(t *testing.T) {
	transcript := []session.Entry{
		{Speaker: session.SpeakerInterviewer, Text: "Welcome."},
	}
	prompt := BuildTurnPrompt("Acme Corp hiring for SRE.", transcript, 5, "I used Go at my last job.")

	for _, fragment := range []string{
		"[SYSTEM CONTEXT]",
		"Acme Corp hiring for SRE.",
		"[CONVERSATION HISTORY]",
		"Interviewer: Welcome.",
		"[Turn 5]",
		"User said: I used Go at my last job.",
		"[CURRENT PHASE & GOAL]",
		"CODING CHALLENGE",
		"[RESPONSE GUIDELINES]",
	} {
		if !strings.Contains(prompt, fragment) {
			t.Errorf("Prompt missing %q", fragment)
		}
	}
}

func TestBuildTurnPrompt_WindowsLongHistory(t *testing.T) {
	long := strings.Repeat("a", 5000)
	transcript := []session.Entry{{Speaker: session.SpeakerCandidate, Text: long}}
	prompt := BuildTurnPrompt("ctx", transcript, 2, "ok")

	// only the tail of the transcript survives, so the speaker label at the
	// front is cut off
	if strings.Contains(prompt, "Candidate: aaa") {
		t.Error("Expected history to be truncated to the recent window")
	}
	if !strings.Contains(prompt, "aaa") {
		t.Error("Expected tail of history to be present")
	}
}

func TestBuildStartPrompt(t *testing.T) {
	prompt := BuildStartPrompt("Acme context")
	if !strings.Contains(prompt, "Acme context") || !strings.Contains(prompt, "[START INTERVIEW") {
		t.Errorf("Unexpected start prompt: %q", prompt)
	}
}

func TestBuildSummaryPrompt(t *testing.T) {
	transcript := []session.Entry{
		{Speaker: session.SpeakerCandidate, Text: "My answer."},
	}
	prompt := BuildSummaryPrompt(transcript)
	if !strings.Contains(prompt, "Candidate: My answer.") {
		t.Error("Expected transcript in summary prompt")
	}
	if !strings.Contains(prompt, "feedback") {
		t.Error("Expected feedback task in summary prompt")
	}
}
