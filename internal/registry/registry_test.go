package registry

import (
	"errors"
	"image"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/anime-shed/roi-gridview-go/internal/errors"
	"github.com/anime-shed/roi-gridview-go/pkg/models"
)

func makeItems(n int) []*models.Item {
	items := make([]*models.Item, n)
	for i := range items {
		items[i] = &models.Item{ID: uuid.New(), SourceURL: "https://example.org/a.png"}
	}
	return items
}

func pixels() *models.PixelData {
	return &models.PixelData{Image: image.NewNRGBA(image.Rect(0, 0, 1, 1))}
}

func TestReplace(t *testing.T) {
	r := New()
	hooks := 0
	r.OnReplace(func() { hooks++ })

	items := makeItems(3)
	epoch, err := r.Replace(items)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), epoch)
	assert.Equal(t, 1, hooks)

	entries, gotEpoch := r.Ordered()
	assert.Equal(t, epoch, gotEpoch)
	require.Len(t, entries, 3)
	for i, e := range entries {
		assert.Equal(t, items[i].ID, e.Item.ID)
		assert.Equal(t, i, e.Index)
		assert.Equal(t, models.Unloaded, e.State)
	}

	epoch, err = r.Replace(makeItems(1))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), epoch)
	assert.Equal(t, 1, r.Len())
	_, ok := r.Get(items[0].ID)
	assert.False(t, ok, "replace removes the previous set")
}

func TestReplace_RejectsDuplicates(t *testing.T) {
	r := New()
	items := makeItems(2)
	_, err := r.Replace(items)
	require.NoError(t, err)

	dup := makeItems(2)
	dup[1].ID = dup[0].ID
	_, err = r.Replace(dup)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	assert.Equal(t, uint64(1), r.Epoch())
	_, ok := r.Get(items[0].ID)
	assert.True(t, ok, "a rejected replace leaves the registry untouched")
}

func TestBeginComplete(t *testing.T) {
	r := New()
	items := makeItems(1)
	_, err := r.Replace(items)
	require.NoError(t, err)
	id := items[0].ID

	gen, ok := r.Begin(id)
	require.True(t, ok)
	state, _ := r.State(id)
	assert.Equal(t, models.Loading, state)

	entry, applied := r.Complete(id, gen, pixels(), nil)
	require.True(t, applied)
	assert.Equal(t, models.Loaded, entry.State)
	assert.NotNil(t, entry.Pixels)

	_, ok = r.Begin(id)
	assert.False(t, ok, "loaded items are not reloaded")
}

func TestComplete_StaleGenerationDiscarded(t *testing.T) {
	r := New()
	items := makeItems(1)
	_, err := r.Replace(items)
	require.NoError(t, err)
	id := items[0].ID

	oldGen, _ := r.Begin(id)
	newGen, ok := r.Begin(id)
	require.True(t, ok)
	assert.Greater(t, newGen, oldGen)

	_, applied := r.Complete(id, oldGen, pixels(), nil)
	assert.False(t, applied)
	state, _ := r.State(id)
	assert.Equal(t, models.Loading, state)

	_, applied = r.Complete(id, newGen, nil, errors.New("boom"))
	assert.True(t, applied)
	entry, _ := r.Get(id)
	assert.Equal(t, models.Failed, entry.State)
	assert.EqualError(t, entry.Err, "boom")
}

func TestComplete_AfterReplaceNeverApplies(t *testing.T) {
	r := New()
	items := makeItems(1)
	_, err := r.Replace(items)
	require.NoError(t, err)
	gen, _ := r.Begin(items[0].ID)

	// Same identity in the next set: the old attempt must still not land.
	_, err = r.Replace([]*models.Item{items[0]})
	require.NoError(t, err)
	_, applied := r.Complete(items[0].ID, gen, pixels(), nil)
	assert.False(t, applied)
	state, _ := r.State(items[0].ID)
	assert.Equal(t, models.Unloaded, state)
}

func TestFailedCanBeRearmed(t *testing.T) {
	r := New()
	items := makeItems(1)
	_, err := r.Replace(items)
	require.NoError(t, err)
	id := items[0].ID

	gen, _ := r.Begin(id)
	r.Complete(id, gen, nil, errors.New("timeout"))
	gen, ok := r.Begin(id)
	require.True(t, ok)
	entry, _ := r.Get(id)
	assert.Equal(t, models.Loading, entry.State)
	assert.Nil(t, entry.Err)
	assert.Equal(t, gen, entry.Generation)
}

func TestResetAndMark(t *testing.T) {
	r := New()
	items := makeItems(3)
	_, err := r.Replace(items)
	require.NoError(t, err)

	g0, _ := r.Begin(items[0].ID)
	r.Begin(items[1].ID)
	g2, _ := r.Begin(items[2].ID)
	r.Complete(items[2].ID, g2, pixels(), nil)

	assert.True(t, r.Reset(items[0].ID, g0))
	assert.False(t, r.Reset(items[0].ID, g0), "reset consumes the generation")

	reset := r.ResetLoading()
	assert.Equal(t, []uuid.UUID{items[1].ID}, reset)
	state, _ := r.State(items[2].ID)
	assert.Equal(t, models.Loaded, state, "loaded items survive")

	_, ok := r.Mark(items[2].ID, models.Loaded, nil)
	assert.False(t, ok)
	_, ok = r.Mark(items[2].ID, models.Unloaded, nil)
	assert.True(t, ok)
	entry, _ := r.Get(items[2].ID)
	assert.Nil(t, entry.Pixels)
}

func TestDelete(t *testing.T) {
	r := New()
	items := makeItems(3)
	_, err := r.Replace(items)
	require.NoError(t, err)
	gen, _ := r.Begin(items[1].ID)

	assert.True(t, r.Delete(items[1].ID))
	assert.False(t, r.Delete(items[1].ID))
	_, applied := r.Complete(items[1].ID, gen, pixels(), nil)
	assert.False(t, applied)

	entries, _ := r.Ordered()
	require.Len(t, entries, 2)
	assert.Equal(t, items[0].ID, entries[0].Item.ID)
	assert.Equal(t, items[2].ID, entries[1].Item.ID)
	assert.Equal(t, 2, entries[1].Index, "insertion index is kept")
}

func TestConcurrentBeginComplete(t *testing.T) {
	r := New()
	items := makeItems(1)
	_, err := r.Replace(items)
	require.NoError(t, err)
	id := items[0].ID

	var wg sync.WaitGroup
	var mu sync.Mutex
	applied := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			gen, ok := r.Begin(id)
			if !ok {
				return
			}
			if _, ok := r.Complete(id, gen, pixels(), nil); ok {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, applied, "once loaded, no further attempt starts or lands")
}
