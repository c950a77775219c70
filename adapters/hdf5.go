package adapters

import (
	"encoding/binary"
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/brettbedarf/h5browse"
	"github.com/brettbedarf/h5browse/internal/util"
	"github.com/scigolib/hdf5"
)

// HDF5Store is a [h5browse.ContainerStore] backed by a real HDF5 file.
// The format library loads the group graph when the file is opened, so
// navigation never touches disk; dataset info and attributes are read from
// object headers on demand.
type HDF5Store struct {
	mu     sync.Mutex
	file   *hdf5.File
	header *headerReader
	path   string
	mode   h5browse.Mode
	closed bool
}

var _ h5browse.ContainerStore = (*HDF5Store)(nil)

type h5Object struct {
	store *HDF5Store
	obj   hdf5.Object
	path  string
}

func (o *h5Object) Name() string {
	if o.path == "/" {
		return "/"
	}
	return path.Base(o.path)
}

func (o *h5Object) Path() string { return o.path }

func RegisterHDF5() {
	Register(HDF5StoreType, OpenHDF5, ".h5", ".hdf5", ".he5", ".hdf")
}

// OpenHDF5 opens the HDF5 file at filePath. ReadWrite only verifies the file is
// writable; the store itself never modifies the file.
func OpenHDF5(filePath string, mode h5browse.Mode) (h5browse.ContainerStore, error) {
	logger := util.GetLogger("HDF5Store.Open")

	if err := checkAccess("open", filePath, mode); err != nil {
		return nil, err
	}
	f, err := hdf5.Open(filePath)
	if err != nil {
		return nil, h5browse.NewStoreError("open", filePath, fmt.Errorf("%w: %w", h5browse.ErrFormat, err))
	}
	logger.Debug().Str("path", filePath).Str("mode", mode.String()).Uint8("superblock", f.SuperblockVersion()).Msg("Opened HDF5 file")

	return &HDF5Store{file: f, header: newHeaderReader(f), path: filePath, mode: mode}, nil
}

func newHeaderReader(f *hdf5.File) *headerReader {
	h := &headerReader{r: f.Reader(), order: binary.LittleEndian, offsetSize: 8, lengthSize: 8}
	if sb := f.Superblock(); sb != nil {
		if sb.Endianness != nil {
			h.order = sb.Endianness
		}
		if sb.OffsetSize != 0 {
			h.offsetSize = int(sb.OffsetSize)
		}
		if sb.LengthSize != 0 {
			h.lengthSize = int(sb.LengthSize)
		}
	}
	return h
}

func (s *HDF5Store) Path() string        { return s.path }
func (s *HDF5Store) Mode() h5browse.Mode { return s.mode }

func (s *HDF5Store) Valid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func (s *HDF5Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}

func (s *HDF5Store) Resolve(absPath string) (h5browse.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, h5browse.NewStoreError("resolve", absPath, h5browse.ErrInvalidHandle)
	}
	if !strings.HasPrefix(absPath, "/") {
		return nil, h5browse.NewStoreError("resolve", absPath, fmt.Errorf("%w: path must be absolute", h5browse.ErrNotFound))
	}

	var cur hdf5.Object = s.file.Root()
	curPath := "/"
	for _, seg := range util.SplitPath(absPath) {
		g, ok := cur.(*hdf5.Group)
		if !ok {
			return nil, h5browse.NewStoreError("resolve", absPath, fmt.Errorf("%w: %s is a dataset", h5browse.ErrNotFound, curPath))
		}
		next, ok := findChild(g, seg)
		if !ok {
			return nil, h5browse.NewStoreError("resolve", absPath, fmt.Errorf("%w: missing segment %q", h5browse.ErrNotFound, seg))
		}
		cur = next
		curPath = util.JoinPath(curPath, seg)
	}
	return &h5Object{store: s, obj: cur, path: curPath}, nil
}

// childName normalizes a link name. Depending on the file layout the library
// may report a child by its full path rather than its last segment.
func childName(obj hdf5.Object) string {
	name := strings.TrimRight(obj.Name(), "/")
	if name == "" {
		return ""
	}
	return path.Base(name)
}

func findChild(g *hdf5.Group, name string) (hdf5.Object, bool) {
	for _, ch := range g.Children() {
		if childName(ch) == name {
			return ch, true
		}
	}
	return nil, false
}

func (s *HDF5Store) handleLocked(op string, obj h5browse.Object) (*h5Object, error) {
	o, ok := obj.(*h5Object)
	if !ok || o == nil || o.store != s || s.closed {
		return nil, h5browse.NewStoreError(op, pathOf(obj), h5browse.ErrInvalidHandle)
	}
	return o, nil
}

func (s *HDF5Store) groupLocked(op string, obj h5browse.Object) (*h5Object, *hdf5.Group, error) {
	o, err := s.handleLocked(op, obj)
	if err != nil {
		return nil, nil, err
	}
	g, ok := o.obj.(*hdf5.Group)
	if !ok {
		return nil, nil, h5browse.NewStoreError(op, o.path, h5browse.ErrNotGroup)
	}
	return o, g, nil
}

func (s *HDF5Store) Child(group h5browse.Object, name string) (h5browse.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, g, err := s.groupLocked("child", group)
	if err != nil {
		return nil, err
	}
	ch, ok := findChild(g, name)
	if !ok {
		return nil, h5browse.NewStoreError("child", util.JoinPath(o.path, name), h5browse.ErrNotFound)
	}
	return &h5Object{store: s, obj: ch, path: util.JoinPath(o.path, name)}, nil
}

func (s *HDF5Store) ChildNames(group h5browse.Object) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, g, err := s.groupLocked("list", group)
	if err != nil {
		return nil, err
	}
	children := g.Children()
	names := make([]string, 0, len(children))
	for _, ch := range children {
		if name := childName(ch); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

func (s *HDF5Store) Classify(obj h5browse.Object) (h5browse.Kind, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.handleLocked("classify", obj)
	if err != nil {
		return 0, err
	}
	switch o.obj.(type) {
	case *hdf5.Group:
		return h5browse.KindGroup, nil
	case *hdf5.Dataset:
		return h5browse.KindDataset, nil
	default:
		return 0, h5browse.NewStoreError("classify", o.path, fmt.Errorf("%w: unsupported object %T", h5browse.ErrFormat, o.obj))
	}
}

func (s *HDF5Store) ShapeAndType(dataset h5browse.Object) (h5browse.Shape, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.handleLocked("shape", dataset)
	if err != nil {
		return nil, "", err
	}
	ds, ok := o.obj.(*hdf5.Dataset)
	if !ok {
		return nil, "", h5browse.NewStoreError("shape", o.path, h5browse.ErrNotDataset)
	}
	info, err := ds.Info()
	if err != nil {
		return nil, "", h5browse.NewStoreError("shape", o.path, fmt.Errorf("%w: %w", h5browse.ErrFormat, err))
	}
	unsigned := false
	if strings.HasPrefix(info, "Dataset: integer ") {
		signed, err := s.header.integerSigned(ds.Address())
		if err != nil {
			log := util.GetLogger("HDF5Store.ShapeAndType")
			log.Warn().Err(err).Str("path", o.path).Msg("Could not read integer sign, assuming signed")
		}
		unsigned = err == nil && !signed
	}
	shape, dtype, err := parseDatasetInfo(info, unsigned)
	if err != nil {
		return nil, "", h5browse.NewStoreError("shape", o.path, err)
	}
	return shape, dtype, nil
}

func (s *HDF5Store) ChildCount(group h5browse.Object) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, g, err := s.groupLocked("count", group)
	if err != nil {
		return 0, err
	}
	return len(g.Children()), nil
}

func (s *HDF5Store) Attributes(obj h5browse.Object) (map[string]any, error) {
	logger := util.GetLogger("HDF5Store.Attributes")
	s.mu.Lock()
	defer s.mu.Unlock()
	o, err := s.handleLocked("attributes", obj)
	if err != nil {
		return nil, err
	}

	attrs := map[string]any{}
	add := func(name string, read func() (any, error)) {
		v, err := read()
		if err != nil {
			logger.Warn().Err(err).Str("path", o.path).Str("attr", name).Msg("Skipping unreadable attribute")
			return
		}
		attrs[name] = v
	}

	switch v := o.obj.(type) {
	case *hdf5.Group:
		list, err := v.Attributes()
		if err != nil {
			return nil, h5browse.NewStoreError("attributes", o.path, fmt.Errorf("%w: %w", h5browse.ErrFormat, err))
		}
		for _, a := range list {
			add(a.Name, a.ReadValue)
		}
	case *hdf5.Dataset:
		list, err := v.Attributes()
		if err != nil {
			return nil, h5browse.NewStoreError("attributes", o.path, fmt.Errorf("%w: %w", h5browse.ErrFormat, err))
		}
		for _, a := range list {
			add(a.Name, a.ReadValue)
		}
	}
	return attrs, nil
}

// parseDatasetInfo extracts shape and element type from the summary the format
// library renders for a dataset, e.g.
//
//	Dataset: float (size=8 bytes), 2D array [3 x 4], contiguous (...)
//
// The summary has no sign for integers; unsigned comes from the datatype message.
func parseDatasetInfo(info string, unsigned bool) (h5browse.Shape, string, error) {
	rest, ok := strings.CutPrefix(info, "Dataset: ")
	if !ok {
		return nil, "", fmt.Errorf("%w: unexpected dataset info %q", h5browse.ErrFormat, info)
	}
	parts := strings.SplitN(rest, ", ", 3)
	if len(parts) < 2 {
		return nil, "", fmt.Errorf("%w: unexpected dataset info %q", h5browse.ErrFormat, info)
	}

	dtype, err := parseDatatype(parts[0], unsigned)
	if err != nil {
		return nil, "", err
	}
	shape, err := parseDataspace(parts[1])
	if err != nil {
		return nil, "", err
	}
	return shape, dtype, nil
}

// parseDatatype turns "float (size=8 bytes)" into "float64"
func parseDatatype(s string, unsigned bool) (string, error) {
	class, sizePart, ok := strings.Cut(s, " (size=")
	if !ok {
		return "", fmt.Errorf("%w: unexpected datatype %q", h5browse.ErrFormat, s)
	}
	size, err := strconv.Atoi(strings.TrimSuffix(sizePart, " bytes)"))
	if err != nil {
		return "", fmt.Errorf("%w: unexpected datatype size %q", h5browse.ErrFormat, s)
	}
	switch class {
	case "float":
		return "float" + strconv.Itoa(size*8), nil
	case "integer":
		if unsigned {
			return "uint" + strconv.Itoa(size*8), nil
		}
		return "int" + strconv.Itoa(size*8), nil
	case "string":
		return "string", nil
	default:
		return class, nil
	}
}

// parseDataspace handles "scalar", "null", "1D array [N]", "2D array [A x B]"
// and "ND array [a b c]"
func parseDataspace(s string) (h5browse.Shape, error) {
	switch s {
	case "scalar", "null":
		return h5browse.Shape{}, nil
	}
	open := strings.IndexByte(s, '[')
	if open < 0 || !strings.HasSuffix(s, "]") {
		return nil, fmt.Errorf("%w: unexpected dataspace %q", h5browse.ErrFormat, s)
	}
	dims := strings.Fields(strings.ReplaceAll(s[open+1:len(s)-1], " x ", " "))
	shape := make(h5browse.Shape, 0, len(dims))
	for _, d := range dims {
		n, err := strconv.ParseUint(d, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: unexpected dimension %q", h5browse.ErrFormat, d)
		}
		shape = append(shape, n)
	}
	return shape, nil
}
