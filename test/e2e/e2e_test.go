package e2e

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/scigolib/hdf5"
)

var (
	h5browseBin string
	projRoot    string
	testEnv     *E2ETestEnvironment
)

const weatherLayout = `
attrs:
  title: Simulated weather
children:
  - name: "15"
    attrs:
      dt: 10.0
    children:
      - name: temperature
        shape: [1024]
        dtype: float64
      - name: wind
        shape: [2048]
        dtype: float64
  - name: empty_grp
    kind: group
`

func TestMain(m *testing.M) {
	var err error

	// Build the binary once for all tests
	tmpBinDir, err := os.MkdirTemp("", "h5browse-bin")
	if err != nil {
		panic(err)
	}
	defer func() {
		if err := os.RemoveAll(tmpBinDir); err != nil {
			panic(err)
		}
	}()

	h5browseBin = filepath.Join(tmpBinDir, "h5browse")

	// Determine project root
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		panic("cannot determine current file path")
	}
	projRoot = filepath.Join(filepath.Dir(thisFile), "..", "..")

	cmd := exec.Command("go", "build", "-o", h5browseBin, "-gcflags=all=-N -l", "./cmd/h5browse")
	cmd.Dir = projRoot
	if out, err := cmd.CombinedOutput(); err != nil {
		panic(string(out))
	}

	testEnv, err = NewE2ETestEnvironment(h5browseBin)
	if err != nil {
		panic(err)
	}
	defer testEnv.Close()

	code := m.Run()
	os.Exit(code)
}

func TestE2ETreeLayout(t *testing.T) {
	file := testEnv.WriteFile(t, "weather.yaml", weatherLayout)

	stdout, stderr, err := testEnv.Run("-f", file, "tree", "--depth", "-1")
	if err != nil {
		t.Fatalf("tree failed: %v\n%s", err, stderr)
	}

	lines := strings.Split(strings.TrimRight(stdout, "\n"), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d:\n%s", len(lines), stdout)
	}
	for i, want := range [][]string{
		{"- /"},
		{"- 15", "Group"},
		{"temperature", "(1024,)", "float64"},
		{"wind", "(2048,)", "float64"},
		{"empty_grp", "Group"},
	} {
		for _, w := range want {
			if !strings.Contains(lines[i], w) {
				t.Errorf("line %d %q does not contain %q", i, lines[i], w)
			}
		}
	}
}

func TestE2ETreeDefaultDepth(t *testing.T) {
	file := testEnv.WriteFile(t, "weather.yaml", weatherLayout)

	stdout, stderr, err := testEnv.Run("-f", file)
	if err != nil {
		t.Fatalf("tree failed: %v\n%s", err, stderr)
	}
	if !strings.Contains(stdout, "+ 15") {
		t.Fatalf("expected a collapsed group 15, got:\n%s", stdout)
	}
	if strings.Contains(stdout, "temperature") {
		t.Fatalf("datasets below depth 1 should not be listed:\n%s", stdout)
	}
}

func TestE2EInspect(t *testing.T) {
	file := testEnv.WriteFile(t, "weather.yaml", weatherLayout)

	stdout, stderr, err := testEnv.Run("-f", file, "inspect", "/15")
	if err != nil {
		t.Fatalf("inspect failed: %v\n%s", err, stderr)
	}
	for _, want := range []string{"path: /15", "kind: group", "children: 2", "dt: 10"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("inspect output does not contain %q:\n%s", want, stdout)
		}
	}

	_, _, err = testEnv.Run("-f", file, "inspect", "/15/pressure")
	if err == nil {
		t.Fatal("expected inspect of a missing path to fail")
	}
}

func TestE2EHDF5File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.h5")
	fw, err := hdf5.CreateForWrite(path, hdf5.CreateTruncate)
	if err != nil {
		t.Fatalf("failed to create hdf5 file: %v", err)
	}
	ds, err := fw.CreateDataset("/temperature", hdf5.Float64, []uint64{1024})
	if err != nil {
		t.Fatalf("failed to create dataset: %v", err)
	}
	if err := ds.Write(make([]float64, 1024)); err != nil {
		t.Fatalf("failed to write dataset: %v", err)
	}
	_ = ds.Close()
	if err := fw.Close(); err != nil {
		t.Fatalf("failed to close hdf5 file: %v", err)
	}

	stdout, stderr, err := testEnv.Run("-f", path)
	if err != nil {
		t.Fatalf("tree failed: %v\n%s", err, stderr)
	}
	if !strings.Contains(stdout, "temperature") || !strings.Contains(stdout, "(1024,)") {
		t.Fatalf("unexpected tree output:\n%s", stdout)
	}
}

func TestE2EOpenErrors(t *testing.T) {
	garbage := testEnv.WriteFile(t, "garbage.h5", "definitely not hdf5")

	for _, args := range [][]string{
		{"-f", filepath.Join(testEnv.BaseDir, "missing.h5")},
		{"-f", garbage},
		{"tree"},
	} {
		if _, _, err := testEnv.Run(args...); err == nil {
			t.Errorf("expected %v to fail", args)
		}
	}
}

func TestE2EHTTPSource(t *testing.T) {
	testEnv.Serve("/files/weather.yaml", weatherLayout, 0)
	testEnv.Serve("/files/gone.yaml", "", http.StatusNotFound)

	stdout, stderr, err := testEnv.Run("-f", testEnv.MockServer.URL+"/files/weather.yaml", "--depth", "-1")
	if err != nil {
		t.Fatalf("tree over http failed: %v\n%s", err, stderr)
	}
	if !strings.Contains(stdout, "wind") {
		t.Fatalf("unexpected tree output:\n%s", stdout)
	}

	if _, _, err := testEnv.Run("-f", testEnv.MockServer.URL+"/files/gone.yaml"); err == nil {
		t.Fatal("expected a 404 source to fail")
	}
}

func TestE2EMountAndRead(t *testing.T) {
	if _, err := os.Stat("/dev/fuse"); err != nil {
		t.Skip("fuse is not available")
	}
	if _, err := exec.LookPath("fusermount"); err != nil {
		t.Skip("fusermount is not available")
	}
	file := testEnv.WriteFile(t, "weather.yaml", weatherLayout)

	inst := testEnv.StartMount(t, file)
	defer inst.Stop()

	entries, err := os.ReadDir(filepath.Join(inst.MountDir, "15"))
	if err != nil {
		t.Fatalf("failed to read group directory: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if strings.Join(names, ",") != "temperature,wind" {
		t.Fatalf("unexpected entries: %v", names)
	}

	data, err := os.ReadFile(filepath.Join(inst.MountDir, "15", "temperature"))
	if err != nil {
		t.Fatalf("failed to read dataset file: %v", err)
	}
	if !strings.Contains(string(data), "path: /15/temperature") {
		t.Fatalf("unexpected dataset document:\n%s", data)
	}

	if err := os.WriteFile(filepath.Join(inst.MountDir, "15", "temperature"), []byte("x"), 0o644); err == nil {
		t.Fatal("expected the mount to be read-only")
	}
}

// E2ETestEnvironment manages shared resources for all e2e tests
type E2ETestEnvironment struct {
	MockServer *httptest.Server
	Bin        string
	BaseDir    string
	mux        *http.ServeMux
}

// MountInstance represents a running "h5browse mount" process
type MountInstance struct {
	cmd      *exec.Cmd
	MountDir string
	stdout   *bytes.Buffer
	stderr   *bytes.Buffer
	cleanup  func()
}

// NewE2ETestEnvironment creates a shared test environment with a mock HTTP server
func NewE2ETestEnvironment(bin string) (*E2ETestEnvironment, error) {
	baseDir, err := os.MkdirTemp("", "h5browse-e2e-tests")
	if err != nil {
		return nil, err
	}

	env := &E2ETestEnvironment{
		Bin:     bin,
		BaseDir: baseDir,
		mux:     http.NewServeMux(),
	}
	env.MockServer = httptest.NewServer(env.mux)

	return env, nil
}

// Close cleans up the test environment
func (env *E2ETestEnvironment) Close() {
	if env.MockServer != nil {
		env.MockServer.Close()
	}
	if env.BaseDir != "" {
		_ = os.RemoveAll(env.BaseDir) // Best effort cleanup
	}
}

// WriteFile writes content to a test-specific file under the base dir
func (env *E2ETestEnvironment) WriteFile(t *testing.T, name, content string) string {
	t.Helper()
	dir := filepath.Join(env.BaseDir, strings.ReplaceAll(t.Name(), "/", "_"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("Failed to create test dir: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

// Serve registers content on the mock server. A non-zero status replies
// with that error instead.
func (env *E2ETestEnvironment) Serve(path, content string, status int) {
	env.mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		if status != 0 {
			http.Error(w, fmt.Sprintf("Mock error %d", status), status)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write([]byte(content))
	})
}

// Run runs the binary to completion and returns its output
func (env *E2ETestEnvironment) Run(args ...string) (stdout, stderr string, err error) {
	var outBuf, errBuf bytes.Buffer
	cmd := exec.Command(env.Bin, append([]string{"-v", "4"}, args...)...)
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	err = cmd.Run()
	return outBuf.String(), errBuf.String(), err
}

// StartMount mounts file at a fresh mount dir and waits for the mount to be ready
func (env *E2ETestEnvironment) StartMount(t *testing.T, file string) *MountInstance {
	testID := strings.ReplaceAll(t.Name(), "/", "_")
	mountDir := filepath.Join(env.BaseDir, fmt.Sprintf("mount-%s", testID))
	if err := os.MkdirAll(mountDir, 0o755); err != nil {
		t.Fatalf("Failed to create mount dir: %v", err)
	}

	cmd := exec.Command(env.Bin, "-f", file, "-v", "4", "mount", "--umount", mountDir)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		t.Fatalf("Failed to start h5browse: %v", err)
	}

	instance := &MountInstance{
		cmd:      cmd,
		MountDir: mountDir,
		stdout:   &stdout,
		stderr:   &stderr,
		cleanup: func() {
			_ = os.RemoveAll(mountDir) // Best effort cleanup
		},
	}

	if err := instance.WaitForMount(15 * time.Second); err != nil {
		instance.Stop()
		_, logs := instance.GetLogs()
		t.Fatalf("h5browse mount failed: %v\n%s", err, logs)
	}

	return instance
}

// Stop gracefully stops the mount process
func (w *MountInstance) Stop() {
	if w.cmd != nil && w.cmd.Process != nil {
		_ = w.cmd.Process.Signal(os.Interrupt) // Process may have already exited

		done := make(chan error, 1)
		go func() {
			done <- w.cmd.Wait()
		}()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			_ = w.cmd.Process.Kill() // Process may have already exited
			<-done
		}
	}

	if w.cleanup != nil {
		w.cleanup()
	}
}

// WaitForMount waits until the mount dir lists the root's children
func (w *MountInstance) WaitForMount(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if files, err := os.ReadDir(w.MountDir); err == nil && len(files) > 0 {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	return fmt.Errorf("timeout waiting for mount to be ready")
}

// GetLogs returns the stdout and stderr of the process
func (w *MountInstance) GetLogs() (stdout, stderr string) {
	return w.stdout.String(), w.stderr.String()
}
