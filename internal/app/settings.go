package app

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Settings represents configuration loaded from config.yaml.
// Field names match snake_case YAML keys.
type Settings struct {
	StoreDir           string  `yaml:"store_dir"`
	ScratchDir         string  `yaml:"scratch_dir"`
	DBPath             string  `yaml:"db_path"`
	OrchestratorBin    string  `yaml:"orchestrator_bin"`
	GraceWindowSeconds int     `yaml:"grace_window_seconds"`
	MaxLessons         int     `yaml:"max_lessons"`
	LessonMinConf      float64 `yaml:"lesson_min_confidence"`
	ReworkThreshold    int     `yaml:"rework_threshold"`
	ErrorRateThreshold float64 `yaml:"error_rate_threshold"`
	QualityDropDelta   float64 `yaml:"quality_drop_delta"`
	MetricsEnabled     *bool   `yaml:"metrics_enabled"`
	DeadlineMS         int     `yaml:"deadline_ms"`
}

// Tuning is the validated runtime view of Settings with defaults applied.
type Tuning struct {
	GraceWindow        time.Duration
	MaxLessons         int
	LessonMinConf      float64
	ReworkThreshold    int
	ErrorRateThreshold float64
	QualityDropDelta   float64
	MetricsEnabled     bool
	Deadline           time.Duration
}

const (
	defaultGraceWindow   = 5 * time.Minute
	defaultMaxLessons    = 3
	defaultLessonMinConf = 0.5
	defaultReworkEdits   = 3
	defaultErrorRate     = 0.25
	defaultQualityDrop   = 0.15

	// defaultDeadline keeps a >= 500ms safety margin under the tightest
	// host-declared hook timeout.
	defaultDeadline = 4500 * time.Millisecond
)

// EffectiveTuning returns validated tuning values with defaults.
// Invalid or missing config values fall back to safe defaults.
func EffectiveTuning() Tuning {
	t := Tuning{
		GraceWindow:        defaultGraceWindow,
		MaxLessons:         defaultMaxLessons,
		LessonMinConf:      defaultLessonMinConf,
		ReworkThreshold:    defaultReworkEdits,
		ErrorRateThreshold: defaultErrorRate,
		QualityDropDelta:   defaultQualityDrop,
		MetricsEnabled:     true,
		Deadline:           defaultDeadline,
	}

	s, err := LoadSettings()
	if err != nil {
		return t
	}

	if s.GraceWindowSeconds > 0 {
		t.GraceWindow = time.Duration(s.GraceWindowSeconds) * time.Second
	}
	if s.MaxLessons > 0 {
		t.MaxLessons = s.MaxLessons
	}
	if s.LessonMinConf > 0 && s.LessonMinConf <= 1 {
		t.LessonMinConf = s.LessonMinConf
	}
	if s.ReworkThreshold > 0 {
		t.ReworkThreshold = s.ReworkThreshold
	}
	if s.ErrorRateThreshold > 0 && s.ErrorRateThreshold < 1 {
		t.ErrorRateThreshold = s.ErrorRateThreshold
	}
	if s.QualityDropDelta > 0 && s.QualityDropDelta < 1 {
		t.QualityDropDelta = s.QualityDropDelta
	}
	if s.MetricsEnabled != nil {
		t.MetricsEnabled = *s.MetricsEnabled
	}
	if s.DeadlineMS > 0 {
		t.Deadline = time.Duration(s.DeadlineMS) * time.Millisecond
	}
	if v := os.Getenv("CLAUDE_HOOKS_DEADLINE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			t.Deadline = time.Duration(ms) * time.Millisecond
		}
	}

	// The host hard ceiling is 30s; never configure past it minus margin.
	if t.Deadline > 29500*time.Millisecond {
		t.Deadline = 29500 * time.Millisecond
	}
	if t.MaxLessons > 10 {
		t.MaxLessons = 10
	}
	return t
}

// settingsOnce, settings, settingsErr implement the sync.Once lazy-load singleton for config.
//
//nolint:gochecknoglobals // sync.Once singleton is intentional process-wide state
var (
	settingsOnce sync.Once
	settings     Settings
	settingsErr  error
)

// LoadSettings loads configuration once using the documented lookup order.
// A best-effort godotenv load of <config dir>/.env runs first so env
// overrides declared there behave like real environment variables.
// Lookup order (first found wins):
// 1) ~/.config/claude-hooks/config.yaml
// 2) /etc/claude-hooks/config.yaml
// 3) ./config.yaml (lowest priority; allows repo-local overrides if desired)
func LoadSettings() (Settings, error) {
	settingsOnce.Do(func() {
		settings = Settings{}

		if dir, err := ConfigDir(); err == nil {
			_ = godotenv.Load(filepath.Join(dir, ".env"))
		}

		dir, err := ConfigDir()
		if err != nil {
			settingsErr = err
			return
		}
		if s, err := loadSettingsFile(filepath.Join(dir, "config.yaml")); err == nil {
			settings = s
			return
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			settingsErr = err
			return
		}

		if s, err := loadSettingsFile(filepath.Join(string(os.PathSeparator), "etc", "claude-hooks", "config.yaml")); err == nil {
			settings = s
			return
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			settingsErr = err
			return
		}

		if s, err := loadSettingsFile("config.yaml"); err == nil {
			settings = s
			return
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			settingsErr = err
			return
		}
	})

	return settings, settingsErr
}

func loadSettingsFile(path string) (Settings, error) {
	b, err := os.ReadFile(path) //nolint:gosec // G304: fixed config lookup paths
	if err != nil {
		return Settings{}, err
	}

	var s Settings
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// OrchestratorBin resolves the orchestrator CLI name:
// env CLAUDE_HOOKS_ORCHESTRATOR > settings orchestrator_bin > "claude-flow".
func OrchestratorBin() string {
	if v := os.Getenv("CLAUDE_HOOKS_ORCHESTRATOR"); v != "" {
		return v
	}
	if s, err := LoadSettings(); err == nil && s.OrchestratorBin != "" {
		return s.OrchestratorBin
	}
	return "claude-flow"
}
