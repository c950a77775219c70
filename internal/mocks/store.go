package mocks

import (
	"github.com/brettbedarf/h5browse"
	"github.com/stretchr/testify/mock"
)

// MockObject is a plain [h5browse.Object] for tests that never reach a real store
type MockObject struct {
	ObjName string
	ObjPath string
}

func (o *MockObject) Name() string { return o.ObjName }
func (o *MockObject) Path() string { return o.ObjPath }

// MockStore implements h5browse.ContainerStore for testing across packages
type MockStore struct {
	mock.Mock
}

var _ h5browse.ContainerStore = (*MockStore)(nil)

func (m *MockStore) Path() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockStore) Mode() h5browse.Mode {
	args := m.Called()
	return args.Get(0).(h5browse.Mode)
}

func (m *MockStore) Valid() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockStore) Resolve(absPath string) (h5browse.Object, error) {
	args := m.Called(absPath)

	// Handle function return types (for path-dependent tests)
	if fn, ok := args.Get(0).(func(string) h5browse.Object); ok {
		return fn(absPath), args.Error(1)
	}

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(h5browse.Object), args.Error(1)
}

func (m *MockStore) Child(group h5browse.Object, name string) (h5browse.Object, error) {
	args := m.Called(group, name)

	if fn, ok := args.Get(0).(func(h5browse.Object, string) h5browse.Object); ok {
		return fn(group, name), args.Error(1)
	}

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(h5browse.Object), args.Error(1)
}

func (m *MockStore) ChildNames(group h5browse.Object) ([]string, error) {
	args := m.Called(group)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockStore) Classify(obj h5browse.Object) (h5browse.Kind, error) {
	args := m.Called(obj)
	return args.Get(0).(h5browse.Kind), args.Error(1)
}

func (m *MockStore) ShapeAndType(dataset h5browse.Object) (h5browse.Shape, string, error) {
	args := m.Called(dataset)
	if args.Get(0) == nil {
		return nil, args.String(1), args.Error(2)
	}
	return args.Get(0).(h5browse.Shape), args.String(1), args.Error(2)
}

func (m *MockStore) ChildCount(group h5browse.Object) (int, error) {
	args := m.Called(group)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) Attributes(obj h5browse.Object) (map[string]any, error) {
	args := m.Called(obj)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]any), args.Error(1)
}
