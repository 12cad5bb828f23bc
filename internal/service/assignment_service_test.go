package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-portal/internal/models"
	"github.com/noah-isme/gema-portal/internal/repository"
)

func TestAssignmentServiceListOrdersByDueDate(t *testing.T) {
	db := setupServiceDB(t)
	open := seedAssignment(t, db)
	closed := models.Assignment{Title: "Cell Division Quiz", DueDate: time.Now().Add(-24 * time.Hour), TeacherID: open.TeacherID}
	require.NoError(t, db.Create(&closed).Error)

	svc := NewAssignmentService(repository.NewAssignmentRepository(db), testLogger())
	items, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "Cell Division Quiz", items[0].Title)
	require.True(t, items[0].PastDue)
	require.False(t, items[1].PastDue)
}

func TestAssignmentServiceGetMissing(t *testing.T) {
	db := setupServiceDB(t)
	svc := NewAssignmentService(repository.NewAssignmentRepository(db), testLogger())

	_, err := svc.Get(context.Background(), 42)
	require.ErrorIs(t, err, ErrAssignmentNotFound)
}
