package mev

import (
	"fmt"
	"sync"

	"github.com/versefi/versequeue/internal/crypto"
	"github.com/versefi/versequeue/internal/domain"
)

// CommitRevealConfig tunes the two-phase order protocol.
type CommitRevealConfig struct {
	// RevealDelaySlots is the minimum number of slots between commit and
	// reveal. Reveals before commitSlot+delay are rejected.
	RevealDelaySlots uint64

	// GraceSlots is the window after the delay elapses during which the
	// reveal is still accepted. Past commitSlot+delay+grace the commitment
	// expires and the user must re-commit.
	GraceSlots uint64
}

// DefaultCommitRevealConfig matches the production defaults.
func DefaultCommitRevealConfig() CommitRevealConfig {
	return CommitRevealConfig{
		RevealDelaySlots: 5,
		GraceSlots:       50,
	}
}

type commitment struct {
	hash [32]byte
	slot uint64
}

// CommitReveal tracks outstanding commitments, one per user. A commitment
// binds an order's full details plus a nonce to a keccak hash; the order
// enters the queue only when the reveal reproduces the hash inside the
// [delay, delay+grace] window. Revealed hashes are remembered to block
// replay.
type CommitReveal struct {
	mu       sync.Mutex
	cfg      CommitRevealConfig
	byUser   map[string]commitment
	revealed map[[32]byte]struct{}
}

// NewCommitReveal creates the tracker; a zero config falls back to defaults.
func NewCommitReveal(cfg CommitRevealConfig) *CommitReveal {
	if cfg == (CommitRevealConfig{}) {
		cfg = DefaultCommitRevealConfig()
	}
	return &CommitReveal{
		cfg:      cfg,
		byUser:   make(map[string]commitment),
		revealed: make(map[[32]byte]struct{}),
	}
}

// Commit records a commitment hash for the user at the given slot. A user
// with an outstanding unexpired commitment must reveal or let it expire
// before committing again.
func (cr *CommitReveal) Commit(user string, hash [32]byte, currentSlot uint64) error {
	if user == "" {
		return fmt.Errorf("empty user: %w", domain.ErrInvalidInput)
	}

	cr.mu.Lock()
	defer cr.mu.Unlock()

	if _, ok := cr.revealed[hash]; ok {
		return fmt.Errorf("commitment already revealed: %w", domain.ErrDuplicateEntry)
	}
	if prev, ok := cr.byUser[user]; ok {
		if currentSlot <= prev.slot+cr.cfg.RevealDelaySlots+cr.cfg.GraceSlots {
			return fmt.Errorf("user %s has an outstanding commitment: %w", user, domain.ErrCommitmentPending)
		}
		// Expired commitment is replaced silently.
	}

	cr.byUser[user] = commitment{hash: hash, slot: currentSlot}
	return nil
}

// Reveal checks the disclosed order against the user's outstanding
// commitment and, on success, consumes it. The returned slot is the
// original commit slot, which callers use as the order's effective
// submission slot so the delay does not cost queue priority.
func (cr *CommitReveal) Reveal(user string, digest crypto.OrderDigest, nonce uint64, currentSlot uint64) (uint64, error) {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	c, ok := cr.byUser[user]
	if !ok {
		return 0, fmt.Errorf("no commitment for user %s: %w", user, domain.ErrUnknownCommitment)
	}

	earliest := c.slot + cr.cfg.RevealDelaySlots
	latest := earliest + cr.cfg.GraceSlots
	if currentSlot < earliest {
		return 0, fmt.Errorf("reveal at slot %d before slot %d: %w", currentSlot, earliest, domain.ErrRevealTooEarly)
	}
	if currentSlot > latest {
		delete(cr.byUser, user)
		return 0, fmt.Errorf("commitment from slot %d expired at slot %d: %w", c.slot, latest, domain.ErrCommitmentExpired)
	}

	if crypto.CommitmentHash(digest, nonce) != c.hash {
		return 0, fmt.Errorf("revealed order does not match commitment: %w", domain.ErrHashMismatch)
	}

	delete(cr.byUser, user)
	cr.revealed[c.hash] = struct{}{}
	return c.slot, nil
}

// Outstanding reports whether the user has an unexpired commitment.
func (cr *CommitReveal) Outstanding(user string, currentSlot uint64) bool {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	c, ok := cr.byUser[user]
	if !ok {
		return false
	}
	return currentSlot <= c.slot+cr.cfg.RevealDelaySlots+cr.cfg.GraceSlots
}

// PurgeExpired drops commitments whose reveal window has closed and returns
// how many were removed. The scheduler calls this periodically.
func (cr *CommitReveal) PurgeExpired(currentSlot uint64) int {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	n := 0
	for user, c := range cr.byUser {
		if currentSlot > c.slot+cr.cfg.RevealDelaySlots+cr.cfg.GraceSlots {
			delete(cr.byUser, user)
			n++
		}
	}
	return n
}
