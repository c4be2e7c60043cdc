package payment

import (
	"context"

	"github.com/jogardn/food-storefront/internal/circuitbreaker"
)

// GuardedProvider sheds calls to a failing provider instead of letting every
// checkout wait on its timeout.
type GuardedProvider struct {
	next    Provider
	breaker *circuitbreaker.CircuitBreaker
}

func NewGuardedProvider(next Provider, breaker *circuitbreaker.CircuitBreaker) *GuardedProvider {
	return &GuardedProvider{next: next, breaker: breaker}
}

func (g *GuardedProvider) CreateCheckoutSession(ctx context.Context, req SessionRequest) (*Session, error) {
	var sess *Session
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		sess, err = g.next.CreateCheckoutSession(ctx, req)
		if err == nil && (sess == nil || sess.URL == "") {
			err = ErrNoRedirectURL
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}
