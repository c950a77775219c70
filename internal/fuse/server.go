package fuse

import (
	"github.com/brettbedarf/h5browse/config"
	"github.com/brettbedarf/h5browse/internal/util"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Server wraps the underlying fuse.Server.
type Server struct {
	server *fuse.Server
}

// Mount mounts raw at mountPoint according to opts.
// Returns a Server you can Serve() and Unmount().
func Mount(raw *FuseRaw, mountPoint string, opts config.MountOptions, lvl util.LogLevel) (*Server, error) {
	if opts.FsName == "" {
		opts.FsName = config.DefaultFsName
	}
	if opts.Name == "" {
		opts.Name = config.DefaultName
	}
	srv, err := fuse.NewServer(raw, mountPoint, &fuse.MountOptions{
		Name:   opts.Name,
		FsName: opts.FsName,
		Debug:  opts.Debug || lvl == util.TraceLevel,
		Logger: util.NewLogLogger("FuseServer", lvl),
	})
	if err != nil {
		return nil, err
	}
	return &Server{server: srv}, nil
}

// Serve starts serving and waits until the filesystem is mounted.
func (s *Server) Serve() error {
	go s.server.Serve()
	return s.server.WaitMount()
}

// Wait blocks until the filesystem is unmounted
func (s *Server) Wait() {
	s.server.Wait()
}

// Unmount cleanly unmounts the filesystem.
func (s *Server) Unmount() error {
	return s.server.Unmount()
}
