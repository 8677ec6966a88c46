package user

import (
	"context"
	"runtime"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// PasswordHasher hashes and verifies passwords. Hashes are self-describing,
// so Verify needs no extra parameters.
type PasswordHasher interface {
	Hash(ctx context.Context, plaintext string) (string, error)
	Verify(ctx context.Context, plaintext, hash string) bool
}

const DefaultBcryptCost = 12

// BcryptHasher limits concurrent bcrypt work to the number of CPUs so a
// burst of logins queues instead of starving request handling.
type BcryptHasher struct {
	cost int
	sem  *semaphore.Weighted
}

func NewBcryptHasher(cost int) *BcryptHasher {
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	return &BcryptHasher{cost: cost, sem: semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0)))}
}

func (b *BcryptHasher) Hash(ctx context.Context, plaintext string) (string, error) {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer b.sem.Release(1)
	h, err := bcrypt.GenerateFromPassword([]byte(plaintext), b.cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Verify returns false on mismatch, on a malformed hash and when ctx is done.
func (b *BcryptHasher) Verify(ctx context.Context, plaintext, hash string) bool {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return false
	}
	defer b.sem.Release(1)
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
