package kid

import (
	"context"
	"errors"
)

var ErrKidNotFound = errors.New("kid not found")

// Repository covers the single kids column this service owns.
type Repository interface {
	SetBankAccountConnected(ctx context.Context, kidID string, connected bool) error
}
