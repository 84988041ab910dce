package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/gitshopapp/shopcore/internal/models"
)

var ErrUnknownObjectKind = errors.New("unknown object kind")

// ResolvedRef is what a lookup knows about a referenced object.
type ResolvedRef struct {
	Ref     models.ObjectRef
	OwnerID uuid.UUID
	Repr    string
}

type RefLookup func(ctx context.Context, id uuid.UUID) (ResolvedRef, error)

// RefRegistry resolves polymorphic object references through typed lookups,
// one per kind.
type RefRegistry struct {
	mu      sync.RWMutex
	lookups map[models.ObjectKind]RefLookup
}

func NewRefRegistry() *RefRegistry {
	return &RefRegistry{lookups: map[models.ObjectKind]RefLookup{}}
}

func (r *RefRegistry) Register(kind models.ObjectKind, lookup RefLookup) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups[kind] = lookup
}

func (r *RefRegistry) Resolve(ctx context.Context, ref models.ObjectRef) (ResolvedRef, error) {
	r.mu.RLock()
	lookup, ok := r.lookups[ref.Kind]
	r.mu.RUnlock()
	if !ok {
		return ResolvedRef{}, fmt.Errorf("%w: %s", ErrUnknownObjectKind, ref.Kind)
	}

	resolved, err := lookup(ctx, ref.ID)
	if err != nil {
		return ResolvedRef{}, err
	}
	resolved.Ref = ref
	return resolved, nil
}

// Describe returns a human label for audit entries and falls back to the
// raw reference when the object cannot be loaded.
func (r *RefRegistry) Describe(ctx context.Context, ref *models.ObjectRef) string {
	if ref == nil {
		return ""
	}
	resolved, err := r.Resolve(ctx, *ref)
	if err != nil || resolved.Repr == "" {
		return ref.String()
	}
	return resolved.Repr
}

func OrderLookup(orders interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
}) RefLookup {
	return func(ctx context.Context, id uuid.UUID) (ResolvedRef, error) {
		order, err := orders.GetByID(ctx, id)
		if err != nil {
			return ResolvedRef{}, err
		}
		return ResolvedRef{OwnerID: order.UserID, Repr: fmt.Sprintf("Order %s", order.ID)}, nil
	}
}

func PaymentLookup(payments interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
}) RefLookup {
	return func(ctx context.Context, id uuid.UUID) (ResolvedRef, error) {
		payment, err := payments.GetByID(ctx, id)
		if err != nil {
			return ResolvedRef{}, err
		}
		return ResolvedRef{OwnerID: payment.UserID, Repr: fmt.Sprintf("Payment %s", payment.TransactionID)}, nil
	}
}

func RefundLookup(refunds interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Refund, error)
}) RefLookup {
	return func(ctx context.Context, id uuid.UUID) (ResolvedRef, error) {
		refund, err := refunds.GetByID(ctx, id)
		if err != nil {
			return ResolvedRef{}, err
		}
		return ResolvedRef{OwnerID: refund.UserID, Repr: fmt.Sprintf("Refund %s", refund.ID)}, nil
	}
}
