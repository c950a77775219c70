package tree

import (
	"errors"
	"testing"

	"github.com/brettbedarf/h5browse"
	"github.com/brettbedarf/h5browse/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMaterializer_ScenarioRoot(t *testing.T) {
	t.Parallel()
	store := newScenarioStore()
	root := NewRoot()
	live, err := store.Resolve("/")
	require.NoError(t, err)

	require.NoError(t, NewMaterializer(store, "").Populate(root, live))

	assert.True(t, root.Populated())
	children := root.ChildNodes()
	require.Len(t, children, 2)

	grp := children[0]
	assert.Equal(t, "15", grp.Name())
	assert.Equal(t, h5browse.KindGroup, grp.Kind())
	assert.True(t, grp.Expandable())
	assert.False(t, grp.Populated(), "only one level is materialized")
	assert.Equal(t, "", grp.SizeStr())
	assert.Equal(t, "Group", grp.TypeStr())
	assert.Equal(t, "2 sub-items", grp.Tooltip())

	empty := children[1]
	assert.Equal(t, "empty_grp", empty.Name())
	assert.False(t, empty.Expandable())
	assert.Equal(t, "0 sub-items", empty.Tooltip())
}

func TestMaterializer_ScenarioGroup(t *testing.T) {
	t.Parallel()
	store := newScenarioStore()
	grp := NewNode("15", "", "Group", h5browse.KindGroup, NewRoot())
	live, err := store.Resolve("/15")
	require.NoError(t, err)

	require.NoError(t, NewMaterializer(store, "").Populate(grp, live))

	children := grp.ChildNodes()
	require.Len(t, children, 2)
	assert.Equal(t, "temperature", children[0].Name())
	assert.Equal(t, "(1024,)", children[0].SizeStr())
	assert.Equal(t, "float64", children[0].TypeStr())
	assert.False(t, children[0].Expandable())
	assert.Equal(t, "", children[0].Tooltip())
	assert.Equal(t, "wind", children[1].Name())
	assert.Equal(t, "(2048,)", children[1].SizeStr())
	assert.Equal(t, "/15/wind", children[1].FullPath())
}

func TestMaterializer_GroupLabel(t *testing.T) {
	t.Parallel()
	store := newScenarioStore()
	root := NewRoot()
	live, err := store.Resolve("/")
	require.NoError(t, err)

	require.NoError(t, NewMaterializer(store, "Folder").Populate(root, live))

	assert.Equal(t, "Folder", root.ChildNodes()[0].TypeStr())
}

func TestMaterializer_Dataset(t *testing.T) {
	t.Parallel()
	store := newScenarioStore()
	ds := NewNode("temperature", "(1024,)", "float64", h5browse.KindDataset, nil)
	live, err := store.Resolve("/15/temperature")
	require.NoError(t, err)

	require.NoError(t, NewMaterializer(store, "").Populate(ds, live))

	assert.True(t, ds.Populated())
	assert.Empty(t, ds.Children())
}

func TestMaterializer_EmptyGroup(t *testing.T) {
	t.Parallel()
	store := newScenarioStore()
	n := NewNode("empty_grp", "", "Group", h5browse.KindGroup, nil)
	live, err := store.Resolve("/empty_grp")
	require.NoError(t, err)

	require.NoError(t, NewMaterializer(store, "").Populate(n, live))

	assert.True(t, n.Populated())
	assert.Empty(t, n.Children())
}

func TestMaterializer_Idempotent(t *testing.T) {
	t.Parallel()
	store := newScenarioStore()
	root := NewRoot()
	live, err := store.Resolve("/")
	require.NoError(t, err)
	mat := NewMaterializer(store, "")

	require.NoError(t, mat.Populate(root, live))
	first := root.ChildNodes()
	require.NoError(t, mat.Populate(root, live))

	assert.Equal(t, first, root.ChildNodes(), "re-population never duplicates children")
}

func TestMaterializer_FailureLeavesUnpopulated(t *testing.T) {
	t.Parallel()

	groupObj := &mocks.MockObject{ObjName: "/", ObjPath: "/"}
	okObj := &mocks.MockObject{ObjName: "a", ObjPath: "/a"}
	store := &mocks.MockStore{}
	store.On("Classify", groupObj).Return(h5browse.KindGroup, nil)
	store.On("ChildNames", groupObj).Return([]string{"a", "b"}, nil)
	store.On("Child", groupObj, "a").Return(okObj, nil)
	store.On("Classify", okObj).Return(h5browse.KindGroup, nil)
	store.On("ChildCount", okObj).Return(0, nil)
	store.On("Child", groupObj, "b").Return(nil, errors.New("read error"))

	root := NewRoot()
	err := NewMaterializer(store, "").Populate(root, groupObj)

	require.Error(t, err)
	assert.False(t, root.Populated())
	assert.Empty(t, root.Children(), "no partial children are committed")
	store.AssertExpectations(t)
}

func TestMaterializer_ClassifyError(t *testing.T) {
	t.Parallel()

	obj := &mocks.MockObject{ObjName: "x", ObjPath: "/x"}
	store := &mocks.MockStore{}
	store.On("Classify", mock.Anything).Return(h5browse.Kind(0), h5browse.ErrInvalidHandle)

	n := NewNode("x", "", "Group", h5browse.KindGroup, nil)
	err := NewMaterializer(store, "").Populate(n, obj)

	assert.ErrorIs(t, err, h5browse.ErrInvalidHandle)
	assert.False(t, n.Populated())
}

func TestMaterializer_UnreadableDataset(t *testing.T) {
	t.Parallel()

	groupObj := &mocks.MockObject{ObjName: "15", ObjPath: "/15"}
	badObj := &mocks.MockObject{ObjName: "broken", ObjPath: "/15/broken"}
	okObj := &mocks.MockObject{ObjName: "wind", ObjPath: "/15/wind"}
	store := &mocks.MockStore{}
	store.On("Classify", groupObj).Return(h5browse.KindGroup, nil)
	store.On("ChildNames", groupObj).Return([]string{"broken", "wind"}, nil)
	store.On("Child", groupObj, "broken").Return(badObj, nil)
	store.On("Child", groupObj, "wind").Return(okObj, nil)
	store.On("Classify", badObj).Return(h5browse.KindDataset, nil)
	store.On("Classify", okObj).Return(h5browse.KindDataset, nil)
	store.On("ShapeAndType", badObj).Return(nil, "", h5browse.NewStoreError("shape", "/15/broken", h5browse.ErrFormat))
	store.On("ShapeAndType", okObj).Return(h5browse.Shape{2048}, "float64", nil)

	grp := NewNode("15", "", "Group", h5browse.KindGroup, NewRoot())
	require.NoError(t, NewMaterializer(store, "").Populate(grp, groupObj))

	children := grp.ChildNodes()
	require.Len(t, children, 2, "siblings of an unreadable dataset are still listed")
	assert.Equal(t, "broken", children[0].Name())
	assert.Equal(t, "?", children[0].SizeStr())
	assert.Equal(t, "?", children[0].TypeStr())
	assert.False(t, children[0].Expandable())
	assert.Equal(t, "(2048,)", children[1].SizeStr())
	assert.Equal(t, "float64", children[1].TypeStr())
	store.AssertExpectations(t)
}

func TestMaterializer_ShapeOfClosedStore(t *testing.T) {
	t.Parallel()

	groupObj := &mocks.MockObject{ObjName: "15", ObjPath: "/15"}
	dsObj := &mocks.MockObject{ObjName: "wind", ObjPath: "/15/wind"}
	store := &mocks.MockStore{}
	store.On("Classify", groupObj).Return(h5browse.KindGroup, nil)
	store.On("ChildNames", groupObj).Return([]string{"wind"}, nil)
	store.On("Child", groupObj, "wind").Return(dsObj, nil)
	store.On("Classify", dsObj).Return(h5browse.KindDataset, nil)
	store.On("ShapeAndType", dsObj).Return(nil, "", h5browse.NewStoreError("shape", "/15/wind", h5browse.ErrInvalidHandle))

	grp := NewNode("15", "", "Group", h5browse.KindGroup, NewRoot())
	err := NewMaterializer(store, "").Populate(grp, groupObj)

	assert.ErrorIs(t, err, h5browse.ErrInvalidHandle)
	assert.False(t, grp.Populated())
}
