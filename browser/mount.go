package browser

import (
	"errors"

	"github.com/brettbedarf/h5browse"
	wfuse "github.com/brettbedarf/h5browse/internal/fuse"
	"github.com/brettbedarf/h5browse/internal/util"
)

// Mount mounts the read-only FUSE view of the session at mountPoint and waits
// until the kernel has it mounted.
func (b *Browser) Mount(mountPoint string) error {
	logger := util.GetLogger("Browser.Mount")
	if b.closed.Load() {
		return h5browse.ErrInvalidHandle
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.server != nil {
		return errors.New("already mounted")
	}

	raw := wfuse.NewFuseRaw(b, wfuse.Options{AttrTTL: b.cfg.AttrTTL(), EntryTTL: b.cfg.EntryTTL()})
	srv, err := wfuse.Mount(raw, mountPoint, b.cfg.MountOptions, b.cfg.LogLvl)
	if err != nil {
		return err
	}
	if err := srv.Serve(); err != nil {
		return err
	}
	b.server = srv
	logger.Info().Str("session", b.ID.String()).Str("mnt", mountPoint).Msg("Mounted")
	return nil
}

// ServeAsync mounts in the background and reports the mount result on the
// returned channel
func (b *Browser) ServeAsync(mountPoint string) <-chan error {
	done := make(chan error, 1)

	go func() {
		done <- b.Mount(mountPoint)
		close(done)
	}()

	return done
}

// Wait blocks until the mounted view is unmounted. It returns immediately if
// nothing is mounted.
func (b *Browser) Wait() {
	b.mu.Lock()
	srv := b.server
	b.mu.Unlock()
	if srv != nil {
		srv.Wait()
	}
}

// Unmount cleanly unmounts the filesystem.
func (b *Browser) Unmount() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.server == nil {
		return nil
	}
	err := b.server.Unmount()
	if err == nil {
		b.server = nil
	}
	return err
}
