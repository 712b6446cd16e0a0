// Package dashboard renders the claim store for humans. It never mutates:
// the snapshot is a lock-free read, and watch mode just re-reads on change.
package dashboard

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"

	"github.com/gptcompany/claude-hooks-shared/internal/models"
	"github.com/gptcompany/claude-hooks-shared/internal/store"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	activeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	stealableStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	completedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))
)

// Snapshot is one point-in-time view of the claim store.
type Snapshot struct {
	Active    []models.Claim `json:"active"`
	Stealable []models.Claim `json:"stealable"`
	Completed []models.Claim `json:"completed"`
	Taken     time.Time      `json:"taken"`
}

// BuildSnapshot reads and groups the claim store.
func BuildSnapshot(st *store.Store) (Snapshot, error) {
	claims, err := st.ListClaims(store.ClaimFilter{})
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{Taken: time.Now().UTC()}
	for _, c := range claims {
		switch c.Status {
		case models.ClaimActive:
			snap.Active = append(snap.Active, c)
		case models.ClaimStealable:
			snap.Stealable = append(snap.Stealable, c)
		case models.ClaimCompleted:
			snap.Completed = append(snap.Completed, c)
		}
	}
	sortByAge(snap.Active)
	sortByAge(snap.Stealable)
	return snap, nil
}

func sortByAge(claims []models.Claim) {
	sort.Slice(claims, func(i, j int) bool {
		return claims[i].ClaimedAt.Before(claims[j].ClaimedAt)
	})
}

// Summary returns the one-line totals.
func (s Snapshot) Summary() string {
	return fmt.Sprintf("%d active, %d stealable, %d completed",
		len(s.Active), len(s.Stealable), len(s.Completed))
}

// Render produces the styled terminal view.
func (s Snapshot) Render() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("CLAIM DASHBOARD"))
	b.WriteString(dimStyle.Render("  " + s.Taken.Local().Format("15:04:05")))
	b.WriteString("\n\n")

	b.WriteString(sectionStyle.Render("ACTIVE"))
	b.WriteString("\n")
	if len(s.Active) == 0 {
		b.WriteString(dimStyle.Render("  (none)"))
		b.WriteString("\n")
	}
	for _, c := range s.Active {
		fmt.Fprintf(&b, "  %s  %s  %s  %s\n",
			activeStyle.Render(c.IssueID),
			c.Claimant,
			dimStyle.Render(formatAge(c.Age(s.Taken))),
			progressBar(c.Progress),
		)
	}

	b.WriteString("\n")
	b.WriteString(sectionStyle.Render("STEALABLE"))
	b.WriteString("\n")
	if len(s.Stealable) == 0 {
		b.WriteString(dimStyle.Render("  (none)"))
		b.WriteString("\n")
	}
	for _, c := range s.Stealable {
		fmt.Fprintf(&b, "  %s  %s  %s\n",
			stealableStyle.Render(c.IssueID),
			c.StealReason,
			dimStyle.Render(formatAge(c.Age(s.Taken))),
		)
	}

	b.WriteString("\n")
	b.WriteString(completedStyle.Render(s.Summary()))
	b.WriteString("\n")
	return b.String()
}

func formatAge(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%.1fh", d.Hours())
	}
}

func progressBar(progress int) string {
	if progress <= 0 {
		return ""
	}
	if progress > 100 {
		progress = 100
	}
	const width = 10
	filled := progress * width / 100
	return fmt.Sprintf("[%s%s] %d%%",
		strings.Repeat("█", filled),
		strings.Repeat("░", width-filled),
		progress,
	)
}

// Watch re-renders on claim store changes until ctx is done. fsnotify fires
// on writes to the claims directory; the interval ticker is the fallback
// when the watcher cannot be established or events are coalesced away.
func Watch(ctx context.Context, st *store.Store, w io.Writer, interval time.Duration) error {
	if interval <= 0 {
		interval = 2 * time.Second
	}

	render := func() {
		snap, err := BuildSnapshot(st)
		if err != nil {
			fmt.Fprintf(w, "dashboard read failed: %v\n", err)
			return
		}
		// Clear screen + home before each frame.
		fmt.Fprint(w, "\033[2J\033[H")
		fmt.Fprint(w, snap.Render())
	}

	var events chan fsnotify.Event
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		defer watcher.Close()
		// Watch the directory: atomic rename replaces the file inode, so
		// watching the file itself would go stale after one update.
		if err := watcher.Add(filepath.Dir(st.ClaimsPath())); err == nil {
			events = watcher.Events
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	render()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			render()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				render()
			}
		}
	}
}
