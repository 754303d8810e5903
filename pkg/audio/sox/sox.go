// Package sox plays finished clips through SoX's play utility.
//
// Every clip is written to a temporary file owned by the player, played to
// completion, and removed before Play returns, whatever the outcome. PCM
// clips are wrapped in a WAV container first so play can read their format.
package sox

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/spf13/afero"

	"github.com/MrWong99/voxgate/pkg/audio"
	"github.com/MrWong99/voxgate/pkg/types"
)

const defaultCommand = "play"

// Runner executes the playback command and blocks until it exits.
type Runner func(ctx context.Context, name string, args ...string) error

// ExecRunner runs name as a subprocess. Cancelling ctx kills it.
func ExecRunner(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil && len(out) > 0 {
		return fmt.Errorf("%w: %s", err, out)
	}
	return err
}

// Compile-time assertion that Player implements audio.Player.
var _ audio.Player = (*Player)(nil)

// Option is a functional option for configuring a Player.
type Option func(*Player)

// WithCommand replaces the play binary path.
func WithCommand(cmd string) Option {
	return func(p *Player) { p.command = cmd }
}

// WithTempDir sets the directory for temporary clip files. Empty uses the
// OS temp directory.
func WithTempDir(dir string) Option {
	return func(p *Player) { p.dir = dir }
}

// WithFs replaces the filesystem used for temporary files. The runner must
// be able to read the files it is handed.
func WithFs(fs afero.Fs) Option {
	return func(p *Player) { p.fs = fs }
}

// WithRunner replaces the subprocess runner.
func WithRunner(r Runner) Option {
	return func(p *Player) { p.run = r }
}

// Player implements audio.Player with the play utility.
type Player struct {
	fs      afero.Fs
	dir     string
	command string
	run     Runner
}

// New creates a Player with the given options.
func New(opts ...Option) *Player {
	p := &Player{
		fs:      afero.NewOsFs(),
		command: defaultCommand,
		run:     ExecRunner,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Play implements audio.Player.
func (p *Player) Play(ctx context.Context, clip audio.Clip) error {
	if len(clip.Data) == 0 {
		return fmt.Errorf("%w: sox: empty clip", types.ErrPlayback)
	}
	path, err := p.writeTemp(clip)
	if err != nil {
		return fmt.Errorf("%w: sox: %w", types.ErrPlayback, err)
	}
	defer func() { _ = p.fs.Remove(path) }()

	if err := p.run(ctx, p.command, "-q", path); err != nil {
		return fmt.Errorf("%w: sox: %s: %w", types.ErrPlayback, p.command, err)
	}
	return nil
}

// writeTemp stores clip in a new temp file and returns its path.
func (p *Player) writeTemp(clip audio.Clip) (path string, err error) {
	f, err := afero.TempFile(p.fs, p.dir, "voxgate-speech-*"+clip.Encoding.Ext())
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	// Error returns reset path before the deferred cleanup runs.
	name := f.Name()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close temp file: %w", cerr)
		}
		if err != nil {
			_ = p.fs.Remove(name)
			path = ""
		}
	}()

	switch clip.Encoding {
	case audio.EncodingPCM:
		if clip.Format.SampleRate <= 0 || clip.Format.Channels <= 0 {
			return "", fmt.Errorf("pcm clip without format")
		}
		w := audio.NewWAVWriter(f, clip.Format)
		if _, err := w.Write(clip.Data); err != nil {
			return "", err
		}
		if err := w.Close(); err != nil {
			return "", err
		}
	default:
		if _, err := f.Write(clip.Data); err != nil {
			return "", fmt.Errorf("write temp file: %w", err)
		}
	}
	return name, nil
}
