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

func rowByID(t *testing.T, store *memstore.Store, table string, id int64) model.Record {
	t.Helper()
	for _, row := range store.Rows(table) {
		if row.ID() == id {
			return row
		}
	}
	return nil
}

func TestSoftDeleteHidesRecord(t *testing.T) {
	s := newSchool(t)
	ctx := context.Background()
	id := mustCreate(t, s.classes, model.Record{"name": "Art"})

	require.NoError(t, s.classes.Delete(ctx, id, actingUser, model.DeleteOptions{}))

	_, found, err := s.classes.FindByID(ctx, id)
	require.NoError(t, err)
	assert.False(t, found)

	matches, err := s.classes.FindWhere(ctx, model.Criteria{"name": "Art"})
	require.NoError(t, err)
	assert.Empty(t, matches)

	row := rowByID(t, s.store, "classes", id)
	require.NotNil(t, row)
	assert.True(t, row.Deleted())
}

func TestHardDeleteRemovesRow(t *testing.T) {
	s := newSchool(t)
	id := mustCreate(t, s.classes, model.Record{"name": "Music"})

	require.NoError(t, s.classes.Delete(context.Background(), id, actingUser, model.DeleteOptions{Hard: true}))
	assert.Nil(t, rowByID(t, s.store, "classes", id))
}

func TestDeleteCascadesToChildren(t *testing.T) {
	s := newSchool(t)
	ctx := context.Background()

	c := mustCreate(t, s.classes, model.Record{"name": "C"})
	other := mustCreate(t, s.classes, model.Record{"name": "D"})
	s1 := mustCreate(t, s.students, model.Record{"name": "S1", "class_id": c})
	s2 := mustCreate(t, s.students, model.Record{"name": "S2", "class_id": c})
	s3 := mustCreate(t, s.students, model.Record{"name": "S3", "class_id": other})

	require.NoError(t, s.classes.Delete(ctx, c, actingUser, model.DeleteOptions{}))

	assert.True(t, rowByID(t, s.store, "students", s1).Deleted())
	assert.True(t, rowByID(t, s.store, "students", s2).Deleted())
	assert.False(t, rowByID(t, s.store, "students", s3).Deleted())
	assert.False(t, rowByID(t, s.store, "classes", other).Deleted())
}

func TestDeleteCascadeClearsChildAssociations(t *testing.T) {
	s := newSchool(t)
	ctx := context.Background()

	c := mustCreate(t, s.classes, model.Record{"name": "C"})
	st := mustCreate(t, s.students, model.Record{"name": "S1", "class_id": c})
	teacher := mustCreate(t, s.teachers, model.Record{"name": "T"})
	_, err := s.teachers.AddAssociation(ctx, teacher, actingUser, []int64{st}, "students")
	require.NoError(t, err)

	require.NoError(t, s.classes.Delete(ctx, c, actingUser, model.DeleteOptions{Hard: true}))

	assert.Nil(t, rowByID(t, s.store, "students", st))
	assert.Empty(t, s.store.Rows("teachers_students"))
	assert.NotNil(t, rowByID(t, s.store, "teachers", teacher))
}

func TestDeleteOnlyClearsOwnAssociations(t *testing.T) {
	s := newSchool(t)
	ctx := context.Background()

	t1 := mustCreate(t, s.teachers, model.Record{"name": "T1"})
	t2 := mustCreate(t, s.teachers, model.Record{"name": "T2"})
	st := mustCreate(t, s.students, model.Record{"name": "S1"})

	_, err := s.teachers.AddAssociation(ctx, t1, actingUser, []int64{st}, "students")
	require.NoError(t, err)
	_, err = s.teachers.AddAssociation(ctx, t2, actingUser, []int64{st}, "students")
	require.NoError(t, err)

	require.NoError(t, s.teachers.Delete(ctx, t1, actingUser, model.DeleteOptions{}))

	live, err := s.store.Select(ctx, "teachers_students", model.Criteria{"deleted": false})
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, t2, live[0].Int64("teacher_id"))
	assert.Equal(t, st, live[0].Int64("student_id"))
}

func TestDeleteFromOtherSideClearsJunctionRows(t *testing.T) {
	s := newSchool(t)
	ctx := context.Background()

	teacher := mustCreate(t, s.teachers, model.Record{"name": "T"})
	st := mustCreate(t, s.students, model.Record{"name": "S"})
	_, err := s.teachers.AddAssociation(ctx, teacher, actingUser, []int64{st}, "students")
	require.NoError(t, err)

	require.NoError(t, s.students.Delete(ctx, st, actingUser, model.DeleteOptions{Hard: true}))
	assert.Empty(t, s.store.Rows("teachers_students"))
}

func TestDeleteSkipAssociationRecords(t *testing.T) {
	s := newSchool(t)
	ctx := context.Background()

	c := mustCreate(t, s.classes, model.Record{"name": "C"})
	st := mustCreate(t, s.students, model.Record{"name": "S1", "class_id": c})

	require.NoError(t, s.classes.Delete(ctx, c, actingUser, model.DeleteOptions{SkipAssociationRecords: true}))

	assert.True(t, rowByID(t, s.store, "classes", c).Deleted())
	assert.False(t, rowByID(t, s.store, "students", st).Deleted())
}

func TestDeleteTerminatesOnSelfReference(t *testing.T) {
	store := memstore.New()
	nodes, err := model.New(store, "nodes")
	require.NoError(t, err)
	require.NoError(t, model.OneToMany(nodes, nodes, "parent_id", nil))

	root := mustCreate(t, nodes, model.Record{"name": "root"})
	child := mustCreate(t, nodes, model.Record{"name": "child", "parent_id": root})
	leaf := mustCreate(t, nodes, model.Record{"name": "leaf", "parent_id": child})
	// a row pointing back at the root must not loop
	_, err = store.Update(context.Background(), "nodes", model.Criteria{"id": root}, model.Record{"parent_id": leaf})
	require.NoError(t, err)

	require.NoError(t, nodes.Delete(context.Background(), root, actingUser, model.DeleteOptions{Hard: true}))
	assert.Empty(t, store.Rows("nodes"))
}

func TestDeleteStopsOnStoreFailure(t *testing.T) {
	s := newSchool(t)
	ctx := context.Background()

	c := mustCreate(t, s.classes, model.Record{"name": "C"})
	_ = mustCreate(t, s.students, model.Record{"name": "S1", "class_id": c})

	boom := errors.New("boom")
	s.store.Fail(memstore.OpSelect, boom)

	err := s.classes.Delete(ctx, c, actingUser, model.DeleteOptions{})
	require.ErrorIs(t, err, boom)

	s.store.Fail(memstore.OpSelect, nil)
	assert.False(t, rowByID(t, s.store, "classes", c).Deleted())
}

func TestDeleteMissingRecord(t *testing.T) {
	s := newSchool(t)
	ctx := context.Background()

	for _, opts := range []model.DeleteOptions{{}, {Hard: true}, {SkipAssociationRecords: true}} {
		err := s.classes.Delete(ctx, 404, actingUser, opts)
		assert.True(t, model.IsNotFound(err), "%+v", opts)
	}
}

func TestDeleteValidatesInput(t *testing.T) {
	s := newSchool(t)

	assert.True(t, model.IsValidation(s.classes.Delete(context.Background(), -1, actingUser, model.DeleteOptions{})))
	assert.True(t, model.IsValidation(s.classes.Delete(context.Background(), 1, "", model.DeleteOptions{})))
	assert.Zero(t, s.store.Calls(memstore.OpUpdate))
}
