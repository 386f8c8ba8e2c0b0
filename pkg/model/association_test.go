package model_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar0144/model4go/pkg/memstore"
	"github.com/ammar0144/model4go/pkg/model"
)

func TestAddAssociationReplacesLinks(t *testing.T) {
	s := newSchool(t)
	ctx := context.Background()

	teacher := mustCreate(t, s.teachers, model.Record{"name": "T"})
	s1 := mustCreate(t, s.students, model.Record{"name": "S1"})
	s2 := mustCreate(t, s.students, model.Record{"name": "S2"})

	_, err := s.teachers.AddAssociation(ctx, teacher, actingUser, []int64{s1}, "students")
	require.NoError(t, err)
	ids, err := s.teachers.AddAssociation(ctx, teacher, actingUser, []int64{s2}, "students")
	require.NoError(t, err)
	assert.Len(t, ids, 1)

	rows := s.store.Rows("teachers_students")
	require.Len(t, rows, 1)
	assert.Equal(t, teacher, rows[0].Int64("teacher_id"))
	assert.Equal(t, s2, rows[0].Int64("student_id"))
	assert.Equal(t, actingUser, rows[0].LastModifiedBy())
	assert.False(t, rows[0].Deleted())
}

func TestAddAssociationCopiesDeclaredFields(t *testing.T) {
	s := newSchool(t)
	ctx := context.Background()

	teacher := mustCreate(t, s.teachers, model.Record{"name": "T"})
	s1 := mustCreate(t, s.students, model.Record{"name": "S1"})
	s2 := mustCreate(t, s.students, model.Record{"name": "S2"})

	_, err := s.teachers.AddAssociation(ctx, teacher, actingUser, []int64{s1, s2}, "students",
		model.Record{"student_id": s1, "role": "tutor", "ignored": "x"})
	require.NoError(t, err)

	rows := s.store.Rows("teachers_students")
	require.Len(t, rows, 2)
	assert.Equal(t, "tutor", rows[0]["role"])
	assert.NotContains(t, rows[0], "ignored")
	assert.NotContains(t, rows[1], "role")
	assert.NotEqual(t, rows[0].UUID(), rows[1].UUID())
}

func TestAddAssociationRejectsAmbiguousFields(t *testing.T) {
	s := newSchool(t)
	ctx := context.Background()

	teacher := mustCreate(t, s.teachers, model.Record{"name": "T"})
	st := mustCreate(t, s.students, model.Record{"name": "S"})

	_, err := s.teachers.AddAssociation(ctx, teacher, actingUser, []int64{st}, "students",
		model.Record{"student_id": st, "role": "a"},
		model.Record{"student_id": st, "role": "b"})
	assert.True(t, model.IsValidation(err))
	assert.Zero(t, s.store.Calls(memstore.OpTransaction))
}

func TestAddAssociationUnregistered(t *testing.T) {
	s := newSchool(t)

	_, err := s.teachers.AddAssociation(context.Background(), 1, actingUser, []int64{2}, "classes")
	assert.True(t, model.IsConfiguration(err))
}

func TestAddAssociationEmptyClearsLinks(t *testing.T) {
	s := newSchool(t)
	ctx := context.Background()

	teacher := mustCreate(t, s.teachers, model.Record{"name": "T"})
	st := mustCreate(t, s.students, model.Record{"name": "S"})
	_, err := s.teachers.AddAssociation(ctx, teacher, actingUser, []int64{st}, "students")
	require.NoError(t, err)

	ids, err := s.teachers.AddAssociation(ctx, teacher, actingUser, nil, "students")
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Empty(t, s.store.Rows("teachers_students"))
}

func TestAddAssociationCollapsesDuplicates(t *testing.T) {
	s := newSchool(t)

	teacher := mustCreate(t, s.teachers, model.Record{"name": "T"})
	st := mustCreate(t, s.students, model.Record{"name": "S"})

	ids, err := s.teachers.AddAssociation(context.Background(), teacher, actingUser, []int64{st, st}, "students")
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestAddAssociationRollsBackOnInsertFailure(t *testing.T) {
	s := newSchool(t)
	ctx := context.Background()

	teacher := mustCreate(t, s.teachers, model.Record{"name": "T"})
	s1 := mustCreate(t, s.students, model.Record{"name": "S1"})
	s2 := mustCreate(t, s.students, model.Record{"name": "S2"})
	_, err := s.teachers.AddAssociation(ctx, teacher, actingUser, []int64{s1}, "students")
	require.NoError(t, err)

	boom := errors.New("boom")
	s.store.Fail(memstore.OpInsertBatch, boom)
	_, err = s.teachers.AddAssociation(ctx, teacher, actingUser, []int64{s2}, "students")
	require.ErrorIs(t, err, boom)

	rows := s.store.Rows("teachers_students")
	require.Len(t, rows, 1)
	assert.Equal(t, s1, rows[0].Int64("student_id"))
}

func TestAddAssociationFromOtherSide(t *testing.T) {
	s := newSchool(t)

	teacher := mustCreate(t, s.teachers, model.Record{"name": "T"})
	st := mustCreate(t, s.students, model.Record{"name": "S"})

	_, err := s.students.AddAssociation(context.Background(), st, actingUser, []int64{teacher}, "teachers")
	require.NoError(t, err)

	rows := s.store.Rows("teachers_students")
	require.Len(t, rows, 1)
	assert.Equal(t, teacher, rows[0].Int64("teacher_id"))
	assert.Equal(t, st, rows[0].Int64("student_id"))
}
