package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finlayjack89/Vinted-HQ-sub001/internal/model"
)

func TestOntologyReplaceAndList(t *testing.T) {
	repo := NewSQLiteOntologyRepository(newTestDB(t))
	ctx := context.Background()

	fetchedAt := time.Now().UTC().Truncate(time.Second)
	entities := []model.OntologyEntity{
		{EntityID: 1, Type: model.EntityCategory, Name: "Women"},
		{EntityID: 2, Type: model.EntityCategory, ParentID: int64Ptr(1), Name: "Dresses",
			Extra: json.RawMessage(`{"item_count":10}`)},
	}
	require.NoError(t, repo.Replace(ctx, model.EntityCategory, entities, fetchedAt))

	got, err := repo.ListByType(ctx, model.EntityCategory)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Women", got[0].Name)
	assert.Nil(t, got[0].ParentID)
	require.NotNil(t, got[1].ParentID)
	assert.Equal(t, int64(1), *got[1].ParentID)
	assert.JSONEq(t, `{"item_count":10}`, string(got[1].Extra))

	version, err := repo.Version(ctx, model.EntityCategory)
	require.NoError(t, err)
	require.NotNil(t, version)
	assert.Equal(t, fetchedAt.Unix(), version.Unix())
}

func TestOntologyReplaceSwapsSnapshot(t *testing.T) {
	repo := NewSQLiteOntologyRepository(newTestDB(t))
	ctx := context.Background()

	first := []model.OntologyEntity{
		{EntityID: 1, Type: model.EntityCategory, Name: "Women"},
		{EntityID: 2, Type: model.EntityCategory, Name: "Men"},
	}
	require.NoError(t, repo.Replace(ctx, model.EntityCategory, first, time.Now().UTC()))

	second := []model.OntologyEntity{
		{EntityID: 2, Type: model.EntityCategory, Name: "Men"},
		{EntityID: 3, Type: model.EntityCategory, Name: "Kids"},
	}
	later := time.Now().UTC().Add(time.Minute)
	require.NoError(t, repo.Replace(ctx, model.EntityCategory, second, later))

	ids, err := repo.IDSet(ctx, model.EntityCategory)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.Contains(t, ids, int64(2))
	assert.Contains(t, ids, int64(3))
	assert.NotContains(t, ids, int64(1))

	version, err := repo.Version(ctx, model.EntityCategory)
	require.NoError(t, err)
	require.NotNil(t, version)
	assert.Equal(t, later.Truncate(time.Second).Unix(), version.Unix())
}

func TestOntologyTypesAreIndependent(t *testing.T) {
	repo := NewSQLiteOntologyRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Replace(ctx, model.EntityBrand,
		[]model.OntologyEntity{{EntityID: 53, Type: model.EntityBrand, Name: "Nike"}},
		time.Now().UTC()))
	require.NoError(t, repo.Replace(ctx, model.EntityColor,
		[]model.OntologyEntity{{EntityID: 1, Type: model.EntityColor, Name: "Black"}},
		time.Now().UTC()))

	brands, err := repo.ListByType(ctx, model.EntityBrand)
	require.NoError(t, err)
	require.Len(t, brands, 1)
	assert.Equal(t, "Nike", brands[0].Name)

	// Replacing brands leaves colors alone.
	require.NoError(t, repo.Replace(ctx, model.EntityBrand, nil, time.Now().UTC()))
	colors, err := repo.ListByType(ctx, model.EntityColor)
	require.NoError(t, err)
	assert.Len(t, colors, 1)
}

func TestOntologyVersionNeverFetched(t *testing.T) {
	repo := NewSQLiteOntologyRepository(newTestDB(t))

	version, err := repo.Version(context.Background(), model.EntitySize)
	require.NoError(t, err)
	assert.Nil(t, version)
}
