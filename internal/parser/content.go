package parser

import (
	"strings"

	"lovebomb-backend/internal/models"
)

// Markers embedded in assistant text deltas. These are part of the analyst
// wire format and must match it byte for byte.
const (
	phaseOpen  = "<phase>"
	phaseClose = "</phase>"
	thinkOpen  = "<thinking>"
	thinkClose = "</thinking>"
	fence      = "```"

	fenceEquilibrium = "equilibrium"
	fenceAnalysis    = "analysis"
)

// Result is the display-ready decomposition of one assistant message's
// cumulative raw text at an arbitrary point in its stream.
type Result struct {
	// MainContent is the prose left after stripping tags, thinking spans
	// and structured fences. Nothing partial or tag-like remains in it.
	MainContent string
	// Paragraphs is MainContent split on blank-line boundaries.
	Paragraphs []string
	// ThinkingContent is the interior of the thinking span, if any.
	ThinkingContent string
	// HasThinking reports whether a thinking span (complete or still
	// arriving) was found.
	HasThinking bool
	// IsThinkingStreaming is true while the thinking span is unterminated.
	// Raw partial thinking text is never shown in that state.
	IsThinkingStreaming bool
	// Phase is the highest phase tag seen so far; empty when none.
	Phase models.Phase
}

// Parse decomposes cumulative assistant text. It is pure, never fails, and
// is idempotent: running it on its own MainContent output is a no-op. The
// input may end mid-token, mid-tag or mid-fence; anything that could still
// become structured markup is withheld from MainContent rather than shown
// raw.
func Parse(raw string) Result {
	return ParseWithPhase(raw, "")
}

// ParseWithPhase parses with a previously detected phase carried in, so a
// later scan never downgrades what an earlier delta established.
func ParseWithPhase(raw string, current models.Phase) Result {
	text, phase := stripPhaseTags(raw, current)

	text, thinking, hasThinking, thinkingStreaming := extractThinking(text)

	text = stripStructuredFences(text)
	text = trimPartialTag(text)

	main := strings.TrimSpace(text)
	res := Result{
		MainContent:         main,
		Paragraphs:          splitParagraphs(main),
		ThinkingContent:     thinking,
		HasThinking:         hasThinking,
		IsThinkingStreaming: thinkingStreaming,
		Phase:               phase,
	}
	return res
}

// stripPhaseTags removes every complete phase tag and returns the highest
// valid phase seen, starting from current. An unterminated opening tag at
// the tail is removed so it never renders as raw markup.
func stripPhaseTags(text string, current models.Phase) (string, models.Phase) {
	phase := current
	for {
		start := strings.Index(text, phaseOpen)
		if start < 0 {
			return text, phase
		}
		rest := text[start+len(phaseOpen):]
		end := strings.Index(rest, phaseClose)
		if end < 0 {
			// Tag still arriving; hide it until it completes.
			return text[:start], phase
		}
		value := models.Phase(strings.TrimSpace(rest[:end]))
		if value.Valid() && value.Rank() > phase.Rank() {
			phase = value
		}
		text = text[:start] + rest[end+len(phaseClose):]
	}
}

// extractThinking pulls out the first thinking span. A complete span yields
// its trimmed interior; an unterminated one yields everything after the
// opening tag with the streaming flag set, and the whole open span is
// removed from the working text.
func extractThinking(text string) (remaining, thinking string, has, streaming bool) {
	start := strings.Index(text, thinkOpen)
	if start < 0 {
		return text, "", false, false
	}
	interior := text[start+len(thinkOpen):]
	end := strings.Index(interior, thinkClose)
	if end < 0 {
		return text[:start], strings.TrimSpace(interior), true, true
	}
	remaining = text[:start] + interior[end+len(thinkClose):]
	return remaining, strings.TrimSpace(interior[:end]), true, false
}

// stripStructuredFences removes equilibrium/analysis fenced blocks, complete
// or unterminated. Structured data is consumed exclusively from its own
// stream events; the fenced JSON must never flash on screen. Fences with
// other tags (ordinary code blocks) are left alone.
func stripStructuredFences(text string) string {
	var out strings.Builder
	for {
		start := strings.Index(text, fence)
		if start < 0 {
			out.WriteString(text)
			return out.String()
		}

		afterOpen := text[start+len(fence):]
		nl := strings.IndexByte(afterOpen, '\n')
		if nl < 0 {
			// Fence opened at the tail, tag still arriving. Withhold it
			// only if it could still become a structured fence.
			tag := strings.TrimSpace(afterOpen)
			if tag == "" || strings.HasPrefix(fenceEquilibrium, tag) || strings.HasPrefix(fenceAnalysis, tag) {
				out.WriteString(text[:start])
				return out.String()
			}
			out.WriteString(text)
			return out.String()
		}

		tag := strings.TrimSpace(afterOpen[:nl])
		body := afterOpen[nl+1:]
		if tag != fenceEquilibrium && tag != fenceAnalysis {
			// Not ours; emit the fence opener verbatim and keep scanning
			// past it.
			out.WriteString(text[:start+len(fence)])
			text = afterOpen
			continue
		}

		end := strings.Index(body, fence)
		if end < 0 {
			// Unterminated structured fence: drop everything from the
			// opener onward.
			out.WriteString(text[:start])
			return out.String()
		}
		out.WriteString(text[:start])
		text = body[end+len(fence):]
	}
}

// trimPartialTag hides a trailing fragment that could still become one of
// our markers (e.g. "<thin" mid-delta). Complete-looking text is untouched.
func trimPartialTag(text string) string {
	last := strings.LastIndexByte(text, '<')
	if last < 0 {
		return text
	}
	tail := text[last:]
	if tail == "<" ||
		(len(tail) < len(thinkOpen) && strings.HasPrefix(thinkOpen, tail)) ||
		(len(tail) < len(phaseOpen) && strings.HasPrefix(phaseOpen, tail)) {
		return text[:last]
	}
	return text
}

// splitParagraphs breaks display prose on blank-line boundaries, preserving
// line breaks inside a paragraph.
func splitParagraphs(text string) []string {
	if text == "" {
		return nil
	}
	var paragraphs []string
	var current []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			if len(current) > 0 {
				paragraphs = append(paragraphs, strings.Join(current, "\n"))
				current = nil
			}
			continue
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		paragraphs = append(paragraphs, strings.Join(current, "\n"))
	}
	return paragraphs
}
