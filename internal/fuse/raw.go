// Package fuse exposes a browsing session as a read-only FUSE filesystem.
// Groups are directories and datasets are files whose content is the YAML
// metadata document of the dataset. Directory lookups go through the session's
// expansion events, so the mount materializes the tree lazily as it is walked.
package fuse

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/brettbedarf/h5browse"
	"github.com/brettbedarf/h5browse/internal/util"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/puzpuzpuz/xsync/v4"
	"gopkg.in/yaml.v3"
)

const (
	DirMode  = syscall.S_IFDIR | 0o555
	FileMode = syscall.S_IFREG | 0o444
)

// Session is what the FUSE adapter needs from a browsing session
type Session interface {
	// Node returns the registered node for id
	Node(id uint64) (h5browse.NodeInfo, bool)
	// ParentID returns the ID of the parent of id; the root is its own parent
	ParentID(id uint64) (uint64, bool)
	// Expand materializes the children of id and registers them
	Expand(ctx context.Context, id uint64) ([]h5browse.NodeInfo, error)
	// Inspect returns the metadata document of id
	Inspect(ctx context.Context, id uint64) (*h5browse.Details, error)
	// Forget releases id once the kernel no longer references it
	Forget(id uint64)
}

// Options tune kernel caching of the mount
type Options struct {
	AttrTTL  time.Duration
	EntryTTL time.Duration
}

// FuseRaw implements the low-level FUSE wire protocol
// It serves as protocol adapter between FUSE and the browsing session.
// Inode numbers are session node IDs.
// See https://www.man7.org/linux//man-pages/man4/fuse.4.html
type FuseRaw struct {
	fuse.RawFileSystem
	session  Session
	opts     Options
	server   *fuse.Server
	mounted  time.Time
	lookups  *xsync.Map[uint64, *atomic.Int64] // kernel lookup counts per node ID
	contents *xsync.Map[uint64, []byte]        // rendered dataset documents
}

func NewFuseRaw(session Session, opts Options) *FuseRaw {
	return &FuseRaw{
		RawFileSystem: fuse.NewDefaultRawFileSystem(),
		session:       session,
		opts:          opts,
		mounted:       time.Now(),
		lookups:       xsync.NewMap[uint64, *atomic.Int64](),
		contents:      xsync.NewMap[uint64, []byte](),
	}
}

func (r *FuseRaw) Init(s *fuse.Server) {
	logger := util.GetLogger("Fuse.Init")
	logger.Debug().Msg("FUSE initialized")
	r.server = s
}

func (r *FuseRaw) OnUnmount() {
	logger := util.GetLogger("Fuse.OnUnmount")
	logger.Info().Msg("FUSE unmounted")
}

func (r *FuseRaw) String() string {
	return "h5browse"
}

// Access called when the kernel wants to know if the user has permission to access the node.
// If the 'default_permissions' mount option is given, this method is not called.
func (r *FuseRaw) Access(cancel <-chan struct{}, input *fuse.AccessIn) fuse.Status {
	const wOK = 2
	if input.Mask&wOK != 0 {
		return fuse.Status(syscall.EROFS)
	}
	if _, ok := r.session.Node(input.NodeId); !ok {
		return fuse.ENOENT
	}
	return fuse.OK
}

// Lookup is called by the kernel when the VFS wants to know
// about a file inside a directory. Many lookup calls can
// occur in parallel, but only one call happens for each (dir,
// name) pair.
// Lookup expands the parent through the session and answers with the child.
func (r *FuseRaw) Lookup(cancel <-chan struct{}, header *fuse.InHeader, name string, out *fuse.EntryOut) fuse.Status {
	logger := util.GetLogger("Fuse.Lookup")
	logger.Trace().Uint64("parent", header.NodeId).Str("name", name).Msg("Lookup called")

	ctx, stop := cancelContext(cancel)
	defer stop()

	children, err := r.session.Expand(ctx, header.NodeId)
	if err != nil {
		logger.Debug().Err(err).Uint64("parent", header.NodeId).Str("name", name).Msg("Parent expansion failed")
		return toStatus(err)
	}
	for _, ch := range children {
		if ch.Name() != name {
			continue
		}
		if st := r.fillEntry(ctx, ch, out); !st.Ok() {
			return st
		}
		r.addLookup(ch.NodeID())
		return fuse.OK
	}
	return fuse.ENOENT
}

// Forget is called when the kernel discards entries from its
// dentry cache. This happens on unmount, and when the kernel
// is short on memory. Since it is not guaranteed to occur at
// any moment, and since there is no return value, Forget
// should not do I/O, as there is no channel to report back
// I/O errors.
func (r *FuseRaw) Forget(nodeid, nlookup uint64) {
	logger := util.GetLogger("Fuse.Forget")
	cnt, ok := r.lookups.Load(nodeid)
	if !ok {
		return
	}
	if cnt.Add(-int64(nlookup)) > 0 {
		return
	}
	r.lookups.Delete(nodeid)
	r.contents.Delete(nodeid)
	r.session.Forget(nodeid)
	logger.Trace().Uint64("nodeID", nodeid).Msg("Node forgotten")
}

func (r *FuseRaw) GetAttr(cancel <-chan struct{}, input *fuse.GetAttrIn, out *fuse.AttrOut) fuse.Status {
	n, ok := r.session.Node(input.NodeId)
	if !ok {
		return fuse.ENOENT
	}
	ctx, stop := cancelContext(cancel)
	defer stop()

	if st := r.fillAttr(ctx, n, &out.Attr); !st.Ok() {
		return st
	}
	out.SetTimeout(r.opts.AttrTTL)
	return fuse.OK
}

func (r *FuseRaw) OpenDir(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	n, ok := r.session.Node(input.NodeId)
	if !ok {
		return fuse.ENOENT
	}
	if n.Kind() != h5browse.KindGroup {
		return fuse.ENOTDIR
	}
	return fuse.OK
}

func (r *FuseRaw) ReadDir(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	logger := util.GetLogger("Fuse.ReadDir")
	logger.Trace().Uint64("nodeID", input.NodeId).Uint64("offset", input.Offset).Msg("ReadDir called")

	entries, st := r.dirEntries(cancel, input.NodeId)
	if !st.Ok() {
		return st
	}
	// Start at the provided offset
	for i := int(input.Offset); i < len(entries); i++ {
		if !out.AddDirEntry(entries[i].DirEntry) {
			// The buffer is full, but we were able to add some entries.
			// The kernel calls us again with a new offset.
			return fuse.OK
		}
	}
	return fuse.OK
}

func (r *FuseRaw) ReadDirPlus(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	entries, st := r.dirEntries(cancel, input.NodeId)
	if !st.Ok() {
		return st
	}
	ctx, stop := cancelContext(cancel)
	defer stop()

	for i := int(input.Offset); i < len(entries); i++ {
		entryOut := out.AddDirLookupEntry(entries[i].DirEntry)
		if entryOut == nil {
			return fuse.OK
		}
		// "." and ".." carry no lookup
		if entries[i].node == nil {
			continue
		}
		if st := r.fillEntry(ctx, entries[i].node, entryOut); !st.Ok() {
			*entryOut = fuse.EntryOut{}
			continue
		}
		r.addLookup(entries[i].node.NodeID())
	}
	return fuse.OK
}

func (r *FuseRaw) Open(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	if input.Flags&uint32(syscall.O_WRONLY|syscall.O_RDWR|syscall.O_TRUNC|syscall.O_APPEND) != 0 {
		return fuse.Status(syscall.EROFS)
	}
	n, ok := r.session.Node(input.NodeId)
	if !ok {
		return fuse.ENOENT
	}
	if n.Kind() == h5browse.KindGroup {
		return fuse.Status(syscall.EISDIR)
	}

	ctx, stop := cancelContext(cancel)
	defer stop()
	if _, err := r.content(ctx, n); err != nil {
		return toStatus(err)
	}
	out.OpenFlags = fuse.FOPEN_DIRECT_IO
	return fuse.OK
}

func (r *FuseRaw) Read(cancel <-chan struct{}, input *fuse.ReadIn, buf []byte) (fuse.ReadResult, fuse.Status) {
	n, ok := r.session.Node(input.NodeId)
	if !ok {
		return nil, fuse.ENOENT
	}
	ctx, stop := cancelContext(cancel)
	defer stop()

	data, err := r.content(ctx, n)
	if err != nil {
		return nil, toStatus(err)
	}
	if input.Offset >= uint64(len(data)) {
		return fuse.ReadResultData(nil), fuse.OK
	}
	end := min(input.Offset+uint64(len(buf)), uint64(len(data)))
	return fuse.ReadResultData(data[input.Offset:end]), fuse.OK
}

type dirEntry struct {
	fuse.DirEntry
	node h5browse.NodeInfo
}

// dirEntries expands the directory and lists ".", ".." and its children
func (r *FuseRaw) dirEntries(cancel <-chan struct{}, id uint64) ([]dirEntry, fuse.Status) {
	n, ok := r.session.Node(id)
	if !ok {
		return nil, fuse.ENOENT
	}
	if n.Kind() != h5browse.KindGroup {
		return nil, fuse.ENOTDIR
	}

	ctx, stop := cancelContext(cancel)
	defer stop()
	children, err := r.session.Expand(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}

	parent, ok := r.session.ParentID(id)
	if !ok {
		parent = fuse.FUSE_ROOT_ID
	}
	entries := make([]dirEntry, 0, len(children)+2)
	entries = append(entries,
		dirEntry{DirEntry: fuse.DirEntry{Name: ".", Mode: DirMode, Ino: id}},
		dirEntry{DirEntry: fuse.DirEntry{Name: "..", Mode: DirMode, Ino: parent}},
	)
	for _, ch := range children {
		entries = append(entries, dirEntry{
			DirEntry: fuse.DirEntry{Name: ch.Name(), Mode: modeOf(ch), Ino: ch.NodeID()},
			node:     ch,
		})
	}
	return entries, fuse.OK
}

func (r *FuseRaw) fillEntry(ctx context.Context, n h5browse.NodeInfo, out *fuse.EntryOut) fuse.Status {
	if st := r.fillAttr(ctx, n, &out.Attr); !st.Ok() {
		return st
	}
	out.NodeId = n.NodeID()
	out.Generation = 1
	out.SetEntryTimeout(r.opts.EntryTTL)
	out.SetAttrTimeout(r.opts.AttrTTL)
	return fuse.OK
}

func (r *FuseRaw) fillAttr(ctx context.Context, n h5browse.NodeInfo, attr *fuse.Attr) fuse.Status {
	sec := uint64(r.mounted.Unix())
	nsec := uint32(r.mounted.Nanosecond())
	*attr = fuse.Attr{
		Ino:   n.NodeID(),
		Mode:  modeOf(n),
		Nlink: 1,
		Owner: fuse.Owner{
			Uid: uint32(os.Getuid()),
			Gid: uint32(os.Getgid()),
		},
		Atime:     sec,
		Mtime:     sec,
		Ctime:     sec,
		Atimensec: nsec,
		Mtimensec: nsec,
		Ctimensec: nsec,
		Blksize:   4096, // preferred size for fs ops
	}
	if n.Kind() == h5browse.KindGroup {
		attr.Nlink = 2
		return fuse.OK
	}

	data, err := r.content(ctx, n)
	if err != nil {
		return toStatus(err)
	}
	attr.Size = uint64(len(data))
	attr.Blocks = (attr.Size + 511) / 512
	return fuse.OK
}

// content renders and caches the metadata document of a dataset node
func (r *FuseRaw) content(ctx context.Context, n h5browse.NodeInfo) ([]byte, error) {
	if data, ok := r.contents.Load(n.NodeID()); ok {
		return data, nil
	}
	details, err := r.session.Inspect(ctx, n.NodeID())
	if err != nil {
		return nil, err
	}
	data, err := yaml.Marshal(details)
	if err != nil {
		return nil, err
	}
	r.contents.Store(n.NodeID(), data)
	return data, nil
}

func (r *FuseRaw) addLookup(id uint64) {
	cnt, _ := r.lookups.LoadOrStore(id, new(atomic.Int64))
	cnt.Add(1)
}

func modeOf(n h5browse.NodeInfo) uint32 {
	if n.Kind() == h5browse.KindGroup {
		return DirMode
	}
	return FileMode
}

// toStatus maps session errors to FUSE status codes
func toStatus(err error) fuse.Status {
	switch {
	case err == nil:
		return fuse.OK
	case errors.Is(err, h5browse.ErrStaleNode),
		errors.Is(err, h5browse.ErrNotFound),
		errors.Is(err, h5browse.ErrUnknownNode):
		return fuse.ENOENT
	case errors.Is(err, h5browse.ErrNotGroup):
		return fuse.ENOTDIR
	case errors.Is(err, h5browse.ErrPermission):
		return fuse.EACCES
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fuse.Status(syscall.EINTR)
	default:
		return fuse.EIO
	}
}

// cancelContext turns a FUSE cancel channel into a context
func cancelContext(cancel <-chan struct{}) (context.Context, context.CancelFunc) {
	ctx, stop := context.WithCancel(context.Background())
	if cancel != nil {
		go func() {
			select {
			case <-cancel:
				stop()
			case <-ctx.Done():
			}
		}()
	}
	return ctx, stop
}
