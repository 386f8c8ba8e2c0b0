package model_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar0144/model4go/pkg/memstore"
	"github.com/ammar0144/model4go/pkg/model"
)

var actingUser = uuid.NewString()

type school struct {
	store    *memstore.Store
	classes  *model.Entity
	students *model.Entity
	teachers *model.Entity
}

func newSchool(t *testing.T) *school {
	t.Helper()

	store := memstore.New()
	classes, err := model.New(store, "classes")
	require.NoError(t, err)
	students, err := model.New(store, "students")
	require.NoError(t, err)
	teachers, err := model.New(store, "teachers")
	require.NoError(t, err)

	require.NoError(t, model.OneToMany(classes, students, "class_id", nil))
	require.NoError(t, model.ManyToMany(teachers, students, "teachers_students", "teacher_id", "student_id", "role"))

	return &school{store: store, classes: classes, students: students, teachers: teachers}
}

func mustCreate(t *testing.T, e *model.Entity, attrs model.Record) int64 {
	t.Helper()
	id, err := e.CreateID(context.Background(), attrs, actingUser)
	require.NoError(t, err)
	return id
}

func TestNewValidatesTable(t *testing.T) {
	_, err := model.New(memstore.New(), "classes; drop table x")
	assert.True(t, model.IsValidation(err))

	_, err = model.New(nil, "classes")
	assert.True(t, model.IsValidation(err))
}

func TestCreateAndFind(t *testing.T) {
	s := newSchool(t)
	ctx := context.Background()

	rec, err := s.classes.Create(ctx, model.Record{"name": "Algebra"}, actingUser)
	require.NoError(t, err)

	assert.Positive(t, rec.ID())
	assert.Equal(t, "Algebra", rec["name"])
	assert.False(t, rec.Deleted())
	assert.Equal(t, actingUser, rec.LastModifiedBy())
	_, err = uuid.Parse(rec.UUID())
	assert.NoError(t, err)

	byID, found, err := s.classes.FindByID(ctx, rec.ID())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, rec.UUID(), byID.UUID())

	byUUID, found, err := s.classes.FindBySecondaryID(ctx, rec.UUID())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, rec.ID(), byUUID.ID())

	matches, err := s.classes.FindWhere(ctx, model.Criteria{"name": "Algebra"})
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestCreateDoesNotMutateInput(t *testing.T) {
	s := newSchool(t)
	attrs := model.Record{"name": "History"}

	_ = mustCreate(t, s.classes, attrs)
	assert.Equal(t, model.Record{"name": "History"}, attrs)
}

func TestCreateRejectsBadInput(t *testing.T) {
	s := newSchool(t)
	ctx := context.Background()

	_, err := s.classes.CreateID(ctx, model.Record{"name": "x"}, "not-a-uuid")
	assert.True(t, model.IsValidation(err))

	_, err = s.classes.CreateID(ctx, model.Record{"name = 1 or": "x"}, actingUser)
	assert.True(t, model.IsValidation(err))

	assert.Zero(t, s.store.Calls(memstore.OpInsert))
}

func TestFindByIDAbsent(t *testing.T) {
	s := newSchool(t)

	rec, found, err := s.classes.FindByID(context.Background(), 42)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, rec)

	_, _, err = s.classes.FindByID(context.Background(), 0)
	assert.True(t, model.IsValidation(err))

	_, _, err = s.classes.FindBySecondaryID(context.Background(), "nope")
	assert.True(t, model.IsValidation(err))
}

func TestUpdateAdvancesModificationMetadata(t *testing.T) {
	s := newSchool(t)
	ctx := context.Background()

	before, err := s.classes.Create(ctx, model.Record{"name": "Physics"}, actingUser)
	require.NoError(t, err)

	other := uuid.NewString()
	id, err := s.classes.Update(ctx, before.ID(), model.Record{}, other)
	require.NoError(t, err)
	assert.Equal(t, before.ID(), id)

	after, found, err := s.classes.FindByID(ctx, before.ID())
	require.NoError(t, err)
	require.True(t, found)

	assert.Equal(t, other, after.LastModifiedBy())
	assert.True(t, after.LastModifiedAt().After(before.LastModifiedAt()))
	assert.Equal(t, before.UUID(), after.UUID())
}

func TestUpdateReturnsIdentifier(t *testing.T) {
	s := newSchool(t)
	ctx := context.Background()

	mustCreate(t, s.classes, model.Record{"name": "Art"})
	mustCreate(t, s.classes, model.Record{"name": "Music"})
	third := mustCreate(t, s.classes, model.Record{"name": "Drama"})

	id, err := s.classes.Update(ctx, third, model.Record{"name": "Theatre"}, actingUser)
	require.NoError(t, err)
	assert.Equal(t, third, id)

	id, err = s.classes.Update(ctx, 999, model.Record{"name": "Theatre"}, actingUser)
	assert.True(t, model.IsNotFound(err))
	assert.Zero(t, id)
}

func TestUpdateCannotChangeIdentifiers(t *testing.T) {
	s := newSchool(t)
	ctx := context.Background()

	rec, err := s.classes.Create(ctx, model.Record{"name": "Chemistry"}, actingUser)
	require.NoError(t, err)

	_, err = s.classes.Update(ctx, rec.ID(), model.Record{"uuid": uuid.NewString(), "name": "Biology"}, actingUser)
	require.NoError(t, err)

	after, _, err := s.classes.FindByID(ctx, rec.ID())
	require.NoError(t, err)
	assert.Equal(t, rec.UUID(), after.UUID())
	assert.Equal(t, "Biology", after["name"])
}

func TestFindIDsByParentReference(t *testing.T) {
	s := newSchool(t)
	ctx := context.Background()

	c1 := mustCreate(t, s.classes, model.Record{"name": "A"})
	c2 := mustCreate(t, s.classes, model.Record{"name": "B"})
	s1 := mustCreate(t, s.students, model.Record{"name": "s1", "class_id": c1})
	s2 := mustCreate(t, s.students, model.Record{"name": "s2", "class_id": c1})
	_ = mustCreate(t, s.students, model.Record{"name": "s3", "class_id": c2})

	ids, err := s.students.FindIDsByParentReference(ctx, c1, "classes")
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{s1, s2}, ids)

	_, err = s.students.FindIDsByParentReference(ctx, c1, "schools")
	assert.True(t, model.IsConfiguration(err))
}

func TestFindIDsByParentReferenceAppliesFilter(t *testing.T) {
	store := memstore.New()
	classes, err := model.New(store, "classes")
	require.NoError(t, err)
	students, err := model.New(store, "students")
	require.NoError(t, err)
	require.NoError(t, students.RegisterParent(classes, "class_id", model.Criteria{"active": true}))

	c := mustCreate(t, classes, model.Record{"name": "A"})
	active := mustCreate(t, students, model.Record{"class_id": c, "active": true})
	_ = mustCreate(t, students, model.Record{"class_id": c, "active": false})

	ids, err := students.FindIDsByParentReference(context.Background(), c, "classes")
	require.NoError(t, err)
	assert.Equal(t, []int64{active}, ids)
}

func TestRegistrationIsSymmetric(t *testing.T) {
	s := newSchool(t)

	assert.Contains(t, s.classes.Children(), "students")
	ref, ok := s.students.Parent("classes")
	require.True(t, ok)
	assert.Equal(t, "class_id", ref.ForeignKey)
	assert.Same(t, s.classes, ref.Parent)

	fromTeacher, ok := s.teachers.Associate("students")
	require.True(t, ok)
	assert.Equal(t, "teacher_id", fromTeacher.ThisKey)
	assert.Equal(t, "student_id", fromTeacher.OtherKey)

	fromStudent, ok := s.students.Associate("teachers")
	require.True(t, ok)
	assert.Equal(t, "student_id", fromStudent.ThisKey)
	assert.Equal(t, "teacher_id", fromStudent.OtherKey)
	assert.Equal(t, []string{"role"}, fromStudent.Fields)
}

func TestRegistrationValidation(t *testing.T) {
	s := newSchool(t)

	assert.True(t, model.IsValidation(s.classes.RegisterChild(nil, "class_id", nil)))
	assert.True(t, model.IsValidation(s.classes.RegisterChild(s.students, "class-id", nil)))
	assert.True(t, model.IsValidation(s.teachers.RegisterAssociate(s.students, "teachers students", "teacher_id", "student_id")))
	assert.True(t, model.IsValidation(s.teachers.RegisterAssociate(s.students, "teachers_students", "id", "id")))
}

func TestReRegistrationOverwrites(t *testing.T) {
	s := newSchool(t)

	require.NoError(t, s.students.RegisterParent(s.classes, "homeroom_id", nil))
	ref, ok := s.students.Parent("classes")
	require.True(t, ok)
	assert.Equal(t, "homeroom_id", ref.ForeignKey)
}

func TestSealRejectsRegistration(t *testing.T) {
	s := newSchool(t)
	s.classes.Seal()

	err := model.OneToMany(s.classes, s.students, "class_id", nil)
	assert.True(t, model.IsConfiguration(err))
	assert.True(t, s.classes.Sealed())
}

func TestClockIsStrictlyIncreasing(t *testing.T) {
	frozen := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := model.NewClock(func() time.Time { return frozen })

	a := clock.Now()
	b := clock.Now()
	assert.True(t, b.After(a))
	assert.Equal(t, time.Microsecond, b.Sub(a))
}
