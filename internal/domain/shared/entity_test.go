package shared

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNewBaseEntity(t *testing.T) {
	e := NewBaseEntity()

	assert.NotEqual(t, uuid.Nil, e.ID)
	assert.Equal(t, time.UTC, e.CreatedAt.Location())
	assert.Equal(t, e.CreatedAt, e.UpdatedAt)
}

func TestTouchAdvancesUpdatedAt(t *testing.T) {
	e := NewBaseEntity()
	e.UpdatedAt = e.UpdatedAt.Add(-time.Minute)

	e.Touch()

	assert.True(t, e.UpdatedAt.After(e.CreatedAt.Add(-time.Second)))
	assert.Equal(t, time.UTC, e.UpdatedAt.Location())
}