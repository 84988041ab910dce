package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type ObjectKind string

const (
	KindOrder   ObjectKind = "order"
	KindPayment ObjectKind = "payment"
	KindRefund  ObjectKind = "refund"
	KindCoupon  ObjectKind = "coupon"
)

// ObjectRef points at any entity a payment or audit entry can refer to.
type ObjectRef struct {
	Kind ObjectKind `json:"kind"`
	ID   uuid.UUID  `json:"id"`
}

func Ref(kind ObjectKind, id uuid.UUID) *ObjectRef {
	return &ObjectRef{Kind: kind, ID: id}
}

func (r ObjectRef) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.ID)
}

func ParseObjectRef(value string) (ObjectRef, error) {
	kind, id, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok || kind == "" {
		return ObjectRef{}, fmt.Errorf("invalid object reference %q", value)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return ObjectRef{}, fmt.Errorf("invalid object reference id: %w", err)
	}
	return ObjectRef{Kind: ObjectKind(kind), ID: parsed}, nil
}
