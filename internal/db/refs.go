package db

import (
	"github.com/google/uuid"

	"github.com/gitshopapp/shopcore/internal/models"
)

func refColumns(ref *models.ObjectRef) (*string, *uuid.UUID) {
	if ref == nil {
		return nil, nil
	}
	kind := string(ref.Kind)
	id := ref.ID
	return &kind, &id
}

func refFromColumns(kind *string, id *uuid.UUID) *models.ObjectRef {
	if kind == nil || id == nil {
		return nil
	}
	return models.Ref(models.ObjectKind(*kind), *id)
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
