package services

import "context"

// Voter is the dedup identity behind a request: a stable authenticated
// subject, or a persisted anonymous device token.
type Voter struct {
	ID            string
	Authenticated bool
}

type contextKey string

const voterContextKey contextKey = "voter"

func WithVoterContext(ctx context.Context, v Voter) context.Context {
	return context.WithValue(ctx, voterContextKey, v)
}

func VoterFromContext(ctx context.Context) (Voter, bool) {
	v, ok := ctx.Value(voterContextKey).(Voter)
	if !ok || v.ID == "" {
		return Voter{}, false
	}
	return v, true
}
