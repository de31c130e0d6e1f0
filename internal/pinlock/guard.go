package pinlock

import (
	"errors"
	"time"

	"hearth-chat/go-backend/internal/platform/ratelimiter"
)

var ErrTooManyAttempts = errors.New("too many pin attempts")

// Guard throttles interactive PIN attempts per storage slot. Decrypt
// itself is deliberately silent about why an attempt failed, so the
// retry loop needs an external brake against scripted guessing.
type Guard struct {
	limiter *ratelimiter.MapLimiter
	now     func() time.Time
}

func NewGuard() *Guard {
	return &Guard{
		// burst covers honest typos; steady rate is one attempt per 5s.
		limiter: ratelimiter.New(0.2, 5, 30*time.Minute),
		now:     time.Now,
	}
}

// TryDecrypt is Decrypt behind the attempt limiter. A correct PIN resets
// nothing; the bucket refills on its own schedule.
func (g *Guard) TryDecrypt(slot, envelope, pin string) (string, bool, error) {
	if !g.limiter.Allow(slot, g.now()) {
		return "", false, ErrTooManyAttempts
	}
	secret, ok := Decrypt(envelope, pin)
	return secret, ok, nil
}
