package actions

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gptcompany/claude-hooks-shared/internal/app"
	"github.com/gptcompany/claude-hooks-shared/internal/events"
	"github.com/gptcompany/claude-hooks-shared/internal/gateway"
	"github.com/gptcompany/claude-hooks-shared/internal/models"
	"github.com/gptcompany/claude-hooks-shared/internal/store"
)

// searchTimeout bounds the orchestrator pattern search on the prompt path.
const searchTimeout = 2 * time.Second

// patternFingerprint derives the stable store suffix for a pattern.
func patternFingerprint(project string, ptype models.PatternType, text string) string {
	sum := sha256.Sum256([]byte(project + "|" + string(ptype) + "|" + text))
	return hex.EncodeToString(sum[:])[:12]
}

func patternKey(fingerprint string) string {
	return models.NamespacePattern + fingerprint
}

// ExtractPatterns mines lessons from one session's tool-usage statistics.
// Detectors and thresholds come from tuning; confidence is always clamped
// to [0,1].
func ExtractPatterns(stats *events.SessionStats, project string, tuning app.Tuning) []models.Pattern {
	if stats == nil || stats.TotalEvents == 0 {
		return nil
	}

	var patterns []models.Pattern
	now := time.Now().UTC()

	// high_rework: any file edited more than the threshold.
	for file, edits := range stats.FileEdits {
		if edits <= tuning.ReworkThreshold {
			continue
		}
		conf := 0.5 + 0.1*float64(edits-tuning.ReworkThreshold)
		if conf > 1.0 {
			conf = 1.0
		}
		text := fmt.Sprintf("%s was edited %d times in one session; read it fully and plan the change before the first edit", file, edits)
		patterns = append(patterns, models.Pattern{
			Fingerprint: patternFingerprint(project, models.PatternHighRework, text),
			Project:     project,
			Type:        models.PatternHighRework,
			Text:        text,
			Confidence:  conf,
			Metadata:    map[string]string{"file": file, "edits": strconv.Itoa(edits)},
			CreatedAt:   now,
		})
	}

	// high_error: session-wide tool error rate above threshold.
	if rate := stats.ErrorRate(); rate > tuning.ErrorRateThreshold {
		conf := 0.4 + (rate-tuning.ErrorRateThreshold)*2
		if conf > 1.0 {
			conf = 1.0
		}
		text := fmt.Sprintf("%.0f%% of tool calls failed last session; verify commands and paths before running them", rate*100)
		patterns = append(patterns, models.Pattern{
			Fingerprint: patternFingerprint(project, models.PatternHighError, text),
			Project:     project,
			Type:        models.PatternHighError,
			Text:        text,
			Confidence:  conf,
			Metadata:    map[string]string{"error_rate": fmt.Sprintf("%.2f", rate)},
			CreatedAt:   now,
		})
	}

	// quality_drop: per-step quality trending down across the session.
	if drop := qualityDrop(stats.QualitySeries); drop > tuning.QualityDropDelta {
		conf := 0.6 + drop
		if conf > 1.0 {
			conf = 1.0
		}
		text := "step quality declined over the session; take a checkpoint and re-plan when progress degrades"
		patterns = append(patterns, models.Pattern{
			Fingerprint: patternFingerprint(project, models.PatternQualityDrop, text),
			Project:     project,
			Type:        models.PatternQualityDrop,
			Text:        text,
			Confidence:  conf,
			Metadata:    map[string]string{"drop": fmt.Sprintf("%.2f", drop)},
			CreatedAt:   now,
		})
	}

	return patterns
}

// qualityDrop fits a least-squares line to the quality series and returns
// the total decline across the session (positive = falling quality).
func qualityDrop(series []float64) float64 {
	n := len(series)
	if n < 3 {
		return 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, y := range series {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	slope := (fn*sumXY - sumX*sumY) / denom
	drop := -slope * float64(n-1)
	if drop < 0 {
		return 0
	}
	return drop
}

// StorePatterns persists patterns to the shared store and mirrors each to
// the orchestrator's pattern store fire-and-forget.
func StorePatterns(st *store.Store, gw *gateway.Gateway, patterns []models.Pattern) error {
	for i := range patterns {
		p := &patterns[i]
		if p.Confidence < 0 {
			p.Confidence = 0
		}
		if p.Confidence > 1 {
			p.Confidence = 1
		}
		if err := st.Put(patternKey(p.Fingerprint), p); err != nil {
			return err
		}
		if gw != nil {
			payload, _ := json.Marshal(p)
			if err := gw.InvokeDetached(
				[]string{"pattern", "store", "--project", p.Project, "--type", string(p.Type)},
				json.RawMessage(payload),
			); err != nil {
				slog.Default().Debug("pattern store mirror skipped", "error", err)
			}
		}
	}
	return nil
}

// InjectLessons retrieves at most tuning.MaxLessons lessons relevant to the
// prompt, formatted per confidence band, as an additionalContext string.
// Empty string means nothing qualifies.
//
// Retrieval tries the orchestrator's pattern search inside a 2s budget and
// falls back to a store-level scan. Every failure degrades to "".
func InjectLessons(ctx context.Context, st *store.Store, gw *gateway.Gateway, project, prompt string, tuning app.Tuning) string {
	patterns := searchPatterns(ctx, st, gw, project, prompt, tuning)
	if len(patterns) == 0 {
		return ""
	}

	sort.SliceStable(patterns, func(i, j int) bool {
		return patterns[i].Confidence > patterns[j].Confidence
	})
	if len(patterns) > tuning.MaxLessons {
		patterns = patterns[:tuning.MaxLessons]
	}

	var b strings.Builder
	b.WriteString("[Lessons from past sessions]")
	for _, p := range patterns {
		b.WriteString("\n- ")
		if p.Confidence >= models.ConfidenceHigh {
			b.WriteString(p.Text)
		} else {
			b.WriteString("Consider: ")
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

func searchPatterns(ctx context.Context, st *store.Store, gw *gateway.Gateway, project, prompt string, tuning app.Tuning) []models.Pattern {
	if gw != nil && gw.Available() {
		if found, ok := gatewaySearch(ctx, gw, project, prompt, tuning); ok {
			return found
		}
	}
	found, err := storeSearch(st, project, prompt, tuning)
	if err != nil {
		slog.Default().Warn("pattern store scan failed", "error", err)
		return nil
	}
	return found
}

// gatewaySearch asks the orchestrator. ok=false means fall back to the store.
func gatewaySearch(ctx context.Context, gw *gateway.Gateway, project, prompt string, tuning app.Tuning) ([]models.Pattern, bool) {
	query := prompt
	if len(query) > 200 {
		query = query[:200]
	}
	res := gw.Invoke(ctx, []string{
		"pattern", "search",
		"--project", project,
		"--query", query,
		"--min-confidence", fmt.Sprintf("%.2f", tuning.LessonMinConf),
	}, nil, searchTimeout)
	if !res.Success || res.Parsed == nil {
		return nil, false
	}

	// Tolerate both a bare array and a {patterns: [...]} wrapper.
	var list []models.Pattern
	if err := json.Unmarshal(res.Parsed, &list); err != nil {
		var wrapper struct {
			Patterns []models.Pattern `json:"patterns"`
		}
		if err := json.Unmarshal(res.Parsed, &wrapper); err != nil {
			return nil, false
		}
		list = wrapper.Patterns
	}

	var out []models.Pattern
	for _, p := range list {
		if p.Confidence >= tuning.LessonMinConf {
			out = append(out, p)
		}
	}
	return out, true
}

// storeSearch is the orchestrator-absent fallback: linear scan of the
// pattern namespace filtered by project and the confidence floor, ranked by
// token overlap with the prompt. The caller's stable confidence sort runs
// after this, so overlap decides between equally confident lessons and which
// candidates survive the injection cap.
func storeSearch(st *store.Store, project, prompt string, tuning app.Tuning) ([]models.Pattern, error) {
	entries, err := st.List(models.NamespacePattern)
	if err != nil {
		return nil, err
	}

	query := tokenize(prompt)

	type scored struct {
		pattern models.Pattern
		overlap int
	}
	var candidates []scored
	for _, e := range entries {
		var p models.Pattern
		if err := json.Unmarshal(e.Value, &p); err != nil {
			continue
		}
		if p.Project != "" && p.Project != project {
			continue
		}
		if p.Confidence < tuning.LessonMinConf {
			continue
		}
		candidates = append(candidates, scored{pattern: p, overlap: tokenOverlap(query, p.Text)})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].overlap > candidates[j].overlap
	})

	out := make([]models.Pattern, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.pattern)
	}
	return out, nil
}

// overlapStopwords are filler tokens that would otherwise dominate overlap
// counts between any prompt and any lesson.
var overlapStopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "into": true, "from": true, "before": true, "after": true,
	"should": true, "when": true, "how": true, "was": true, "are": true,
}

// tokenize lowercases s and splits it into alphanumeric tokens. Short and
// stopword tokens carry no signal for overlap matching and are dropped.
func tokenize(s string) map[string]bool {
	tokens := map[string]bool{}
	for _, tok := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	}) {
		if len(tok) >= 3 && !overlapStopwords[tok] {
			tokens[tok] = true
		}
	}
	return tokens
}

// tokenOverlap counts how many query tokens appear in text.
func tokenOverlap(query map[string]bool, text string) int {
	if len(query) == 0 {
		return 0
	}
	overlap := 0
	for tok := range tokenize(text) {
		if query[tok] {
			overlap++
		}
	}
	return overlap
}
