package model4go

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar0144/model4go/pkg/cache"
	"github.com/ammar0144/model4go/pkg/memstore"
	"github.com/ammar0144/model4go/pkg/model"
)

func newTestDatabase(t *testing.T) (*Database, *memstore.Store) {
	t.Helper()

	store := memstore.New()
	local, err := cache.NewLocalStore(cache.DefaultLocalConfig())
	require.NoError(t, err)

	d, err := NewDatabase(store, local)
	require.NoError(t, err)
	return d, store
}

func TestNewDatabaseRequiresStore(t *testing.T) {
	_, err := NewDatabase(nil, nil)
	assert.True(t, model.IsValidation(err))
}

func TestRegistry(t *testing.T) {
	d, _ := newTestDatabase(t)

	classes, err := d.NewEntity("classes")
	require.NoError(t, err)

	got, ok := d.Entity("classes")
	require.True(t, ok)
	assert.Same(t, classes, got)

	_, err = d.NewEntity("classes")
	assert.True(t, model.IsConfiguration(err))

	err = d.Register("bad key", classes)
	assert.True(t, model.IsValidation(err))

	_, ok = d.Entity("teachers")
	assert.False(t, ok)
}

func TestRelationshipsByKey(t *testing.T) {
	d, _ := newTestDatabase(t)

	for _, table := range []string{"classes", "students", "teachers"} {
		_, err := d.NewEntity(table)
		require.NoError(t, err)
	}

	require.NoError(t, d.OneToMany("classes", "students", "class_id", nil))
	require.NoError(t, d.ManyToMany("teachers", "students", "teachers_students", "teacher_id", "student_id"))

	classes, _ := d.Entity("classes")
	students, _ := d.Entity("students")
	assert.Contains(t, classes.Children(), "students")
	assert.Contains(t, students.Parents(), "classes")
	assert.Contains(t, students.Associates(), "teachers")

	err := d.OneToMany("classes", "schools", "class_id", nil)
	assert.True(t, model.IsConfiguration(err))
}

func TestSeal(t *testing.T) {
	d, _ := newTestDatabase(t)

	_, err := d.NewEntity("classes")
	require.NoError(t, err)
	_, err = d.NewEntity("students")
	require.NoError(t, err)
	require.NoError(t, d.OneToMany("classes", "students", "class_id", nil))

	require.NoError(t, d.Seal())
	assert.True(t, d.Sealed())

	classes, _ := d.Entity("classes")
	assert.True(t, classes.Sealed())

	_, err = d.NewEntity("teachers")
	assert.True(t, model.IsConfiguration(err))
	err = d.OneToMany("students", "classes", "student_id", nil)
	assert.True(t, model.IsConfiguration(err))
}

func TestSealRejectsCycles(t *testing.T) {
	d, _ := newTestDatabase(t)

	for _, table := range []string{"a", "b", "c"} {
		_, err := d.NewEntity(table)
		require.NoError(t, err)
	}
	require.NoError(t, d.OneToMany("a", "b", "a_id", nil))
	require.NoError(t, d.OneToMany("b", "c", "b_id", nil))
	require.NoError(t, d.OneToMany("c", "a", "c_id", nil))

	err := d.Seal()
	assert.True(t, model.IsConfiguration(err))
	assert.False(t, d.Sealed())
}

func TestCachedEntityEndToEnd(t *testing.T) {
	d, store := newTestDatabase(t)
	ctx := context.Background()
	user := uuid.NewString()

	classes, err := d.NewCachedEntity("classes")
	require.NoError(t, err)
	students, err := d.NewCachedEntity("students")
	require.NoError(t, err)
	require.NoError(t, d.OneToMany("classes", "students", "class_id", nil))
	require.NoError(t, d.Seal())

	class, err := classes.Create(ctx, Record{"name": "Algebra"}, user)
	require.NoError(t, err)
	s1, err := students.CreateID(ctx, Record{"name": "Ana", "class_id": class.ID()}, user)
	require.NoError(t, err)

	store.ResetCalls()
	_, found, err := classes.FindByID(ctx, class.ID())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 0, store.Calls(memstore.OpSelect))

	require.NoError(t, classes.Delete(ctx, class.ID(), user, DeleteOptions{}))

	_, found, err = classes.FindByID(ctx, class.ID())
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = students.Base().FindByID(ctx, s1)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNewCachedEntityWithoutCache(t *testing.T) {
	d, err := NewDatabase(memstore.New(), nil)
	require.NoError(t, err)

	_, err = d.NewCachedEntity("classes")
	assert.True(t, model.IsConfiguration(err))
	assert.False(t, d.IsCacheReady())
}

func TestReadiness(t *testing.T) {
	d, _ := newTestDatabase(t)

	assert.True(t, d.IsSQLReady(context.Background()))
	assert.True(t, d.IsCacheReady())
	assert.NoError(t, d.Close())
}

func TestOpenValidatesConfig(t *testing.T) {
	_, err := Open(context.Background(), nil)
	assert.True(t, model.IsValidation(err))

	cfg := &Config{}
	_, err = Open(context.Background(), cfg)
	assert.Error(t, err)
}
