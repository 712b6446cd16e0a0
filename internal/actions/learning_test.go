package actions

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gptcompany/claude-hooks-shared/internal/app"
	"github.com/gptcompany/claude-hooks-shared/internal/events"
	"github.com/gptcompany/claude-hooks-shared/internal/models"
	"github.com/gptcompany/claude-hooks-shared/internal/store"
)

func testTuning() app.Tuning {
	return app.Tuning{
		GraceWindow:        5 * time.Minute,
		MaxLessons:         3,
		LessonMinConf:      0.5,
		ReworkThreshold:    3,
		ErrorRateThreshold: 0.25,
		QualityDropDelta:   0.15,
	}
}

func storeTestPatterns(t *testing.T, st *store.Store, patterns []models.Pattern) {
	t.Helper()
	require.NoError(t, StorePatterns(st, nil, patterns))
}

func mkPattern(project, text string, conf float64) models.Pattern {
	return models.Pattern{
		Fingerprint: patternFingerprint(project, models.PatternWorkflow, text),
		Project:     project,
		Type:        models.PatternWorkflow,
		Text:        text,
		Confidence:  conf,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestInjectLessons_BandsAndFloor(t *testing.T) {
	st := store.New(t.TempDir())
	storeTestPatterns(t, st, []models.Pattern{
		mkPattern("demo", "use checkpoints", 0.9),
		mkPattern("demo", "shrink edits", 0.6),
		mkPattern("demo", "noise", 0.3),
	})

	out := InjectLessons(context.Background(), st, nil, "demo", "anything at all", testTuning())
	require.NotEmpty(t, out)
	assert.True(t, strings.HasPrefix(out, "[Lessons from past sessions]"))

	lines := strings.Split(out, "\n")
	require.Len(t, lines, 3) // header + exactly two bullets
	assert.Equal(t, "- use checkpoints", lines[1])
	assert.Equal(t, "- Consider: shrink edits", lines[2])
}

func TestInjectLessons_CapsAtThree(t *testing.T) {
	st := store.New(t.TempDir())
	storeTestPatterns(t, st, []models.Pattern{
		mkPattern("demo", "first", 0.95),
		mkPattern("demo", "second", 0.9),
		mkPattern("demo", "third", 0.85),
		mkPattern("demo", "fourth", 0.8),
		mkPattern("demo", "fifth", 0.7),
	})

	out := InjectLessons(context.Background(), st, nil, "demo", "q", testTuning())
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 4) // header + three bullets

	// Ordered by confidence descending.
	assert.Equal(t, "- first", lines[1])
	assert.Equal(t, "- second", lines[2])
	assert.Equal(t, "- third", lines[3])
}

func TestInjectLessons_NothingQualifies(t *testing.T) {
	st := store.New(t.TempDir())
	storeTestPatterns(t, st, []models.Pattern{
		mkPattern("demo", "weak", 0.2),
	})

	out := InjectLessons(context.Background(), st, nil, "demo", "q", testTuning())
	assert.Empty(t, out)
}

func TestInjectLessons_PromptRelevanceBreaksTies(t *testing.T) {
	st := store.New(t.TempDir())
	storeTestPatterns(t, st, []models.Pattern{
		mkPattern("demo", "pin the compiler version before upgrading", 0.7),
		mkPattern("demo", "run the migration dry-run first", 0.7),
		mkPattern("demo", "keep commits small", 0.7),
		mkPattern("demo", "read the failing test before editing", 0.7),
	})

	out := InjectLessons(context.Background(), st, nil, "demo", "how should I run the database migration?", testTuning())
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 4) // header + cap of three

	// Equal confidence everywhere: the prompt-relevant lesson ranks first
	// and survives the cap.
	assert.Equal(t, "- Consider: run the migration dry-run first", lines[1])
}

func TestStoreSearch_RanksByTokenOverlap(t *testing.T) {
	st := store.New(t.TempDir())
	storeTestPatterns(t, st, []models.Pattern{
		mkPattern("demo", "unrelated advice about logging", 0.8),
		mkPattern("demo", "split the parser refactor into stages", 0.8),
	})

	found, err := storeSearch(st, "demo", "planning a parser refactor", testTuning())
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "split the parser refactor into stages", found[0].Text)
}

func TestTokenize(t *testing.T) {
	tokens := tokenize("Fix the DB migration, twice!")
	assert.True(t, tokens["fix"])
	assert.True(t, tokens["migration"])
	assert.True(t, tokens["twice"])
	// Short tokens and stopwords are dropped.
	assert.False(t, tokens["db"])
	assert.False(t, tokens["the"])
}

func TestTokenOverlap(t *testing.T) {
	query := tokenize("run the database migration now")
	assert.Equal(t, 2, tokenOverlap(query, "migration checklist: back up the database"))
	assert.Zero(t, tokenOverlap(query, "something else entirely"))
	assert.Zero(t, tokenOverlap(tokenize(""), "anything"))
}

func TestInjectLessons_ProjectScoped(t *testing.T) {
	st := store.New(t.TempDir())
	storeTestPatterns(t, st, []models.Pattern{
		mkPattern("other", "foreign lesson", 0.9),
	})

	out := InjectLessons(context.Background(), st, nil, "demo", "q", testTuning())
	assert.Empty(t, out)
}

func TestExtractPatterns_HighRework(t *testing.T) {
	stats := &events.SessionStats{
		SessionID:   "s",
		TotalEvents: 10,
		FileEdits:   map[string]int{"/src/main.go": 5, "/src/ok.go": 2},
	}

	patterns := ExtractPatterns(stats, "demo", testTuning())
	require.Len(t, patterns, 1)
	p := patterns[0]
	assert.Equal(t, models.PatternHighRework, p.Type)
	assert.Contains(t, p.Text, "/src/main.go")
	assert.InDelta(t, 0.7, p.Confidence, 1e-9) // 0.5 + 0.1*(5-3)
	assert.Equal(t, "demo", p.Project)
}

func TestExtractPatterns_HighRework_ConfidenceClamped(t *testing.T) {
	stats := &events.SessionStats{
		SessionID:   "s",
		TotalEvents: 30,
		FileEdits:   map[string]int{"/src/hot.go": 20},
	}

	patterns := ExtractPatterns(stats, "demo", testTuning())
	require.Len(t, patterns, 1)
	assert.InDelta(t, 1.0, patterns[0].Confidence, 1e-9)
}

func TestExtractPatterns_HighError(t *testing.T) {
	stats := &events.SessionStats{
		SessionID:   "s",
		TotalEvents: 10,
		ErrorCount:  5, // rate 0.5
		FileEdits:   map[string]int{},
	}

	patterns := ExtractPatterns(stats, "demo", testTuning())
	require.Len(t, patterns, 1)
	p := patterns[0]
	assert.Equal(t, models.PatternHighError, p.Type)
	assert.InDelta(t, 0.9, p.Confidence, 1e-9) // 0.4 + (0.5-0.25)*2
}

func TestExtractPatterns_QualityDrop(t *testing.T) {
	stats := &events.SessionStats{
		SessionID:     "s",
		TotalEvents:   5,
		FileEdits:     map[string]int{},
		QualitySeries: []float64{1.0, 0.9, 0.8, 0.7, 0.6},
	}

	patterns := ExtractPatterns(stats, "demo", testTuning())
	require.Len(t, patterns, 1)
	p := patterns[0]
	assert.Equal(t, models.PatternQualityDrop, p.Type)
	// Total decline is 0.4; confidence 0.6 + 0.4.
	assert.InDelta(t, 1.0, p.Confidence, 1e-6)
}

func TestExtractPatterns_QuietSession(t *testing.T) {
	stats := &events.SessionStats{
		SessionID:     "s",
		TotalEvents:   6,
		ErrorCount:    1, // rate under threshold
		FileEdits:     map[string]int{"/a.go": 1},
		QualitySeries: []float64{1, 1, 1, 1, 1, 1},
	}

	patterns := ExtractPatterns(stats, "demo", testTuning())
	assert.Empty(t, patterns)
}

func TestExtractPatterns_NilStats(t *testing.T) {
	assert.Empty(t, ExtractPatterns(nil, "demo", testTuning()))
}

func TestQualityDrop(t *testing.T) {
	// Flat series: no drop.
	assert.Zero(t, qualityDrop([]float64{1, 1, 1, 1}))

	// Rising series: no drop.
	assert.Zero(t, qualityDrop([]float64{0.2, 0.5, 0.9}))

	// Too short to trend.
	assert.Zero(t, qualityDrop([]float64{1, 0}))

	// Linear decline from 1.0 to 0.6 over 5 points.
	assert.InDelta(t, 0.4, qualityDrop([]float64{1.0, 0.9, 0.8, 0.7, 0.6}), 1e-6)
}

func TestStorePatterns_Fingerprinting(t *testing.T) {
	st := store.New(t.TempDir())
	p := mkPattern("demo", "dedupe me", 0.8)

	require.NoError(t, StorePatterns(st, nil, []models.Pattern{p}))
	require.NoError(t, StorePatterns(st, nil, []models.Pattern{p}))

	entries, err := st.List(models.NamespacePattern)
	require.NoError(t, err)
	assert.Len(t, entries, 1) // same fingerprint overwrites, never duplicates
}

func TestStorePatterns_ClampsConfidence(t *testing.T) {
	st := store.New(t.TempDir())
	p := mkPattern("demo", "overconfident", 1.7)

	require.NoError(t, StorePatterns(st, nil, []models.Pattern{p}))

	entries, err := st.List(models.NamespacePattern)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	var stored models.Pattern
	found, err := st.Peek(entries[0].Key, &stored)
	require.NoError(t, err)
	require.True(t, found)
	assert.InDelta(t, 1.0, stored.Confidence, 1e-9)
}
