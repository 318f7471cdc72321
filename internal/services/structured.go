package services

import (
	"encoding/json"
	"strings"

	"lovebomb-backend/internal/models"
)

// extractStructured pulls fully-formed equilibrium/analysis objects out of
// the fenced blocks in a complete model response. Unparseable blocks are
// ignored; the raw text already reaches the client as deltas, so nothing is
// lost by skipping a broken fence.
func extractStructured(text string) (*models.Equilibrium, *models.FormalAnalysis) {
	var eq *models.Equilibrium
	var fa *models.FormalAnalysis

	for _, block := range fencedBlocks(text, "equilibrium") {
		candidate := &models.Equilibrium{}
		if err := json.Unmarshal([]byte(block), candidate); err == nil && candidate.ID != "" {
			eq = candidate
			break
		}
	}
	for _, block := range fencedBlocks(text, "analysis") {
		candidate := &models.FormalAnalysis{}
		if err := json.Unmarshal([]byte(block), candidate); err == nil {
			fa = candidate
			break
		}
	}
	return eq, fa
}

// fencedBlocks returns the interior of every complete ```tag fence.
func fencedBlocks(text, tag string) []string {
	marker := "```" + tag
	var blocks []string
	for {
		start := strings.Index(text, marker)
		if start < 0 {
			return blocks
		}
		rest := text[start+len(marker):]
		nl := strings.IndexByte(rest, '\n')
		if nl < 0 {
			return blocks
		}
		body := rest[nl+1:]
		end := strings.Index(body, "```")
		if end < 0 {
			return blocks
		}
		blocks = append(blocks, strings.TrimSpace(body[:end]))
		text = body[end+3:]
	}
}
