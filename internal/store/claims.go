package store

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/gptcompany/claude-hooks-shared/internal/models"
)

// claimsDoc is the on-disk shape of claims/claims.json. The orchestrator
// reads the same document, so field names are fixed.
type claimsDoc struct {
	Claims    map[string]models.Claim    `json:"claims"`
	Stealable map[string]models.Claim    `json:"stealable"`
	Contests  map[string]json.RawMessage `json:"contests"`
}

func (d *claimsDoc) init() {
	if d.Claims == nil {
		d.Claims = map[string]models.Claim{}
	}
	if d.Stealable == nil {
		d.Stealable = map[string]models.Claim{}
	}
	if d.Contests == nil {
		d.Contests = map[string]json.RawMessage{}
	}
}

func (s *Store) updateClaims(fn func(doc *claimsDoc) error) error {
	path := s.ClaimsPath()
	lock, err := lockFile(path)
	if err != nil {
		return err
	}
	defer unlockFile(lock)

	var doc claimsDoc
	if err := readDocument(path, &doc); err != nil {
		return err
	}
	doc.init()
	if err := fn(&doc); err != nil {
		return err
	}
	return writeDocument(path, &doc)
}

// ClaimResult reports the outcome of Claim and Steal. On conflict Success is
// false and Existing carries the holder — contention is a result, not an error.
type ClaimResult struct {
	Success  bool          `json:"success"`
	Existing *models.Claim `json:"existing,omitempty"`
	Stolen   bool          `json:"stolen,omitempty"`
	Previous *models.Claim `json:"previous,omitempty"`
}

// ReleaseResult reports the outcome of Release.
type ReleaseResult struct {
	Success  bool          `json:"success"`
	Reason   string        `json:"reason,omitempty"`
	Previous *models.Claim `json:"previous,omitempty"`
}

// Claim attempts to take an exclusive claim on issueID for claimant.
//
// Semantics, in order:
//   - active claim held by the same claimant: idempotent success, and
//     claimed_at is NOT refreshed;
//   - active claim held by another claimant: conflict (Success=false,
//     Existing set);
//   - stealable claim: taken over (Stolen=true, Previous set);
//   - otherwise: a new active claim is created.
func (s *Store) Claim(issueID, claimant, context string) (ClaimResult, error) {
	var res ClaimResult
	err := s.updateClaims(func(doc *claimsDoc) error {
		if existing, ok := doc.Claims[issueID]; ok && existing.Status == models.ClaimActive {
			if existing.Claimant == claimant {
				res = ClaimResult{Success: true}
				return nil
			}
			held := existing
			res = ClaimResult{Success: false, Existing: &held}
			return nil
		}

		if stale, ok := doc.Stealable[issueID]; ok {
			prev := stale
			delete(doc.Stealable, issueID)
			doc.Claims[issueID] = models.Claim{
				IssueID:    issueID,
				Claimant:   claimant,
				Status:     models.ClaimActive,
				Context:    context,
				ClaimedAt:  time.Now().UTC(),
				StolenFrom: prev.Claimant,
			}
			res = ClaimResult{Success: true, Stolen: true, Previous: &prev}
			return nil
		}

		doc.Claims[issueID] = models.Claim{
			IssueID:   issueID,
			Claimant:  claimant,
			Status:    models.ClaimActive,
			Context:   context,
			ClaimedAt: time.Now().UTC(),
		}
		res = ClaimResult{Success: true}
		return nil
	})
	return res, err
}

// Release removes the claim on issueID. Only the owning claimant may
// release. A missing claim yields {success:false, reason:"not_found"};
// an owner mismatch yields a NotAuthorizedError.
func (s *Store) Release(issueID, claimant string) (ReleaseResult, error) {
	var res ReleaseResult
	err := s.updateClaims(func(doc *claimsDoc) error {
		existing, ok := doc.Claims[issueID]
		if !ok {
			res = ReleaseResult{Success: false, Reason: "not_found"}
			return nil
		}
		if existing.Claimant != claimant {
			res = ReleaseResult{Success: false, Reason: "not_authorized"}
			return &NotAuthorizedError{IssueID: issueID, Owner: existing.Claimant, RequestedBy: claimant}
		}
		prev := existing
		delete(doc.Claims, issueID)
		res = ReleaseResult{Success: true, Previous: &prev}
		return nil
	})
	return res, err
}

// Complete marks an owned claim as completed. Completed claims stay in the
// document for the dashboard's summary line; they no longer block anyone.
func (s *Store) Complete(issueID, claimant string) error {
	return s.updateClaims(func(doc *claimsDoc) error {
		existing, ok := doc.Claims[issueID]
		if !ok {
			return ErrNotFound
		}
		if existing.Claimant != claimant {
			return &NotAuthorizedError{IssueID: issueID, Owner: existing.Claimant, RequestedBy: claimant}
		}
		existing.Status = models.ClaimCompleted
		existing.Progress = 100
		doc.Claims[issueID] = existing
		return nil
	})
}

// MarkStealable moves an active claim to the stealable set with the given
// reason. A later session's Claim on the same id takes it over.
func (s *Store) MarkStealable(issueID, reason string) error {
	return s.updateClaims(func(doc *claimsDoc) error {
		existing, ok := doc.Claims[issueID]
		if !ok {
			return ErrNotFound
		}
		now := time.Now().UTC()
		existing.Status = models.ClaimStealable
		existing.StealReason = reason
		existing.MarkedStealableAt = &now
		delete(doc.Claims, issueID)
		doc.Stealable[issueID] = existing
		return nil
	})
}

// MarkClaimantStealable sweeps every active claim whose claimant has the
// given prefix into the stealable set. Used by the stuck detector at session
// stop with prefix "agent:{session_id}:". Returns the swept claims.
func (s *Store) MarkClaimantStealable(claimantPrefix, reason string) ([]models.Claim, error) {
	var swept []models.Claim
	err := s.updateClaims(func(doc *claimsDoc) error {
		now := time.Now().UTC()
		for id, c := range doc.Claims {
			if c.Status != models.ClaimActive || !strings.HasPrefix(c.Claimant, claimantPrefix) {
				continue
			}
			c.Status = models.ClaimStealable
			c.StealReason = reason
			c.MarkedStealableAt = &now
			delete(doc.Claims, id)
			doc.Stealable[id] = c
			swept = append(swept, c)
		}
		return nil
	})
	sort.Slice(swept, func(i, j int) bool { return swept[i].IssueID < swept[j].IssueID })
	return swept, err
}

// Steal takes over a stealable claim for newClaimant. Fails with not_found
// when the claim is not stealable.
func (s *Store) Steal(issueID, newClaimant string) (ClaimResult, error) {
	var res ClaimResult
	err := s.updateClaims(func(doc *claimsDoc) error {
		stale, ok := doc.Stealable[issueID]
		if !ok {
			res = ClaimResult{Success: false}
			return ErrNotFound
		}
		prev := stale
		delete(doc.Stealable, issueID)
		doc.Claims[issueID] = models.Claim{
			IssueID:    issueID,
			Claimant:   newClaimant,
			Status:     models.ClaimActive,
			Context:    prev.Context,
			ClaimedAt:  time.Now().UTC(),
			StolenFrom: prev.Claimant,
		}
		res = ClaimResult{Success: true, Stolen: true, Previous: &prev}
		return nil
	})
	return res, err
}

// SetProgress updates the progress (0-100) on an owned active claim.
func (s *Store) SetProgress(issueID, claimant string, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	return s.updateClaims(func(doc *claimsDoc) error {
		existing, ok := doc.Claims[issueID]
		if !ok {
			return ErrNotFound
		}
		if existing.Claimant != claimant {
			return &NotAuthorizedError{IssueID: issueID, Owner: existing.Claimant, RequestedBy: claimant}
		}
		existing.Progress = progress
		doc.Claims[issueID] = existing
		return nil
	})
}

// ClaimFilter narrows ListClaims. Zero values match everything.
type ClaimFilter struct {
	Status   models.ClaimStatus
	Claimant string // prefix match
	IssueID  string // exact match
}

func (f ClaimFilter) matches(c models.Claim) bool {
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if f.Claimant != "" && !strings.HasPrefix(c.Claimant, f.Claimant) {
		return false
	}
	if f.IssueID != "" && c.IssueID != f.IssueID {
		return false
	}
	return true
}

// ListClaims returns claims from both the active and stealable sets matching
// the filter, sorted by issue id. Lock-free read.
func (s *Store) ListClaims(filter ClaimFilter) ([]models.Claim, error) {
	var doc claimsDoc
	if err := readDocument(s.ClaimsPath(), &doc); err != nil {
		return nil, err
	}
	var out []models.Claim
	for _, c := range doc.Claims {
		if filter.matches(c) {
			out = append(out, c)
		}
	}
	for _, c := range doc.Stealable {
		if filter.matches(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssueID < out[j].IssueID })
	return out, nil
}
