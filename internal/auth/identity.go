package auth

import "context"

// Trust says how far an Identity was verified.
type Trust int

const (
	// TrustClaim means only the token signature was checked; the user row may be gone.
	TrustClaim Trust = iota + 1
	// TrustStore means the user row was loaded as well.
	TrustStore
)

func (t Trust) String() string {
	switch t {
	case TrustClaim:
		return "claim"
	case TrustStore:
		return "store"
	default:
		return "none"
	}
}

// Identity is the authenticated caller. Every store operation takes its UserID
// as the owner filter.
type Identity struct {
	UserID uint64
	Trust  Trust
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	if !ok || id.UserID == 0 {
		return Identity{}, false
	}
	return id, true
}
