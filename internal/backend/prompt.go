package backend

import (
	"fmt"
	"strings"

	"github.com/prepview/voice-gateway/internal/session"
)

// CompletionMarker is the internal token the backend appends when it decides
// the interview is over. It is stripped before the text is spoken or shown.
const CompletionMarker = "[INTERVIEW_COMPLETE]"

// recentHistoryChars bounds the transcript window included in turn prompts
const recentHistoryChars = 2000

// CleanResponse strips the completion marker and surrounding whitespace
func CleanResponse(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, CompletionMarker, ""))
}

// TurnInstruction returns the phase goal for a given turn number
func TurnInstruction(turn int) string {
	switch {
	case turn <= 3:
		return "PHASE: BEHAVIORAL. Goals: 1. Ensure introductions are complete. " +
			"2. Discuss their experience with a challenging project. " +
			"Only move to the next goal when the previous is satisfied."
	case turn <= 10:
		return "PHASE: CODING CHALLENGE. Goal: Evaluate their skills in their " +
			"strongest programming language. Guide them through the problem " +
			"step-by-step. Do not rush."
	case turn < 14:
		return "PHASE: SYSTEM DESIGN. Goal: Discuss how they would design a " +
			"scalable system. Focus on high-level architecture."
	default:
		return "PHASE: CLOSING. Wrap up the interview politely."
	}
}

// FormatTranscript renders transcript entries as dialogue text
func FormatTranscript(entries []session.Entry) string {
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(e.Speaker)
		b.WriteString(": ")
		b.WriteString(e.Text)
	}
	return b.String()
}

// recentWindow keeps the trailing max characters of the history
func recentWindow(history string, max int) string {
	if len(history) <= max {
		return history
	}
	return history[len(history)-max:]
}

// BuildTurnPrompt assembles the per-turn request: company context, recent
// transcript window, the user's utterance and the phase instruction
func BuildTurnPrompt(companyContext string, transcript []session.Entry, turn int, utterance string) string {
	history := recentWindow(FormatTranscript(transcript), recentHistoryChars)

	return fmt.Sprintf(`[SYSTEM CONTEXT]
%s

[CONVERSATION HISTORY]
...
%s

[Turn %d]
User said: %s

[CURRENT PHASE & GOAL]
%s

[RESPONSE GUIDELINES]
1. PRIORITIZE the user's immediate input (questions, checks, or concerns).
2. CHECK HISTORY: Did the user answer the LAST question asked by the Interviewer?
   - IF NO: Acknowledge their input, then GENTLY steer them back to the unanswered question. Do NOT jump to the [CURRENT PHASE & GOAL] yet.
   - IF YES (or if it was just small talk): Proceed to [CURRENT PHASE & GOAL].
3. Keep it conversational and professional.
`, companyContext, history, turn, utterance, TurnInstruction(turn))
}

// BuildStartPrompt assembles the opening request for a new interview
func BuildStartPrompt(companyContext string) string {
	return fmt.Sprintf(`[SYSTEM CONTEXT]
%s

[START INTERVIEW - Introduce yourself as the interviewer and ask about their background]`, companyContext)
}

// BuildSummaryPrompt asks the backend for closing feedback over the full
// transcript
func BuildSummaryPrompt(transcript []session.Entry) string {
	return fmt.Sprintf(`[INTERVIEW TRANSCRIPT]
%s

[TASK]
The interview is over. Provide concise, constructive feedback on the candidate's performance: strengths, areas to improve, and an overall impression.`, FormatTranscript(transcript))
}
