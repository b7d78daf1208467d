package ffprobe

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/five82/deepprobe/internal/errors"
)

// Packet is one demuxed packet.
type Packet struct {
	StreamIndex int
	Size        int64
	Keyframe    bool
}

// PacketReader yields packets lazily in demux order. Next returns io.EOF
// after the last packet.
type PacketReader interface {
	Next() (Packet, error)
	Close() error
}

// Packets streams the packet list of path through ffprobe.
func (p *CLI) Packets(ctx context.Context, path string) (PacketReader, error) {
	if err := CheckReadable(path); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, p.binary(),
		"-v", "error",
		"-show_entries", "packet=stream_index,size,flags",
		"-of", "csv=p=0",
		path,
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.NewIOError("failed to get stdout pipe", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return nil, errors.NewOpenError(path, errors.NewCommandStartError(p.binary(), err))
	}

	return &cliPacketReader{
		cmd:     cmd,
		stdout:  stdout,
		stderr:  &stderr,
		scanner: NewPacketScanner(stdout),
		bin:     p.binary(),
	}, nil
}

type cliPacketReader struct {
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	stderr  *strings.Builder
	scanner *PacketScanner
	bin     string
	done    bool
}

func (r *cliPacketReader) Next() (Packet, error) {
	pkt, err := r.scanner.Next()
	if err != io.EOF {
		return pkt, err
	}
	if !r.done {
		r.done = true
		if werr := r.cmd.Wait(); werr != nil {
			return Packet{}, errors.WrapExecError(r.bin, werr, r.stderr.String())
		}
	}
	return Packet{}, io.EOF
}

func (r *cliPacketReader) Close() error {
	if r.done {
		return nil
	}
	r.done = true
	_ = r.stdout.Close()
	if r.cmd.Process != nil {
		_ = r.cmd.Process.Kill()
	}
	_ = r.cmd.Wait()
	return nil
}

// PacketScanner parses ffprobe's csv packet listing ("1,4096,K_").
type PacketScanner struct {
	scanner *bufio.Scanner
}

// NewPacketScanner reads packet rows from r.
func NewPacketScanner(r io.Reader) *PacketScanner {
	return &PacketScanner{scanner: bufio.NewScanner(r)}
}

// Next returns the next well-formed packet row. Malformed rows are a decode
// error; the caller may keep reading after one.
func (s *PacketScanner) Next() (Packet, error) {
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			continue
		}
		return parsePacketLine(line)
	}
	if err := s.scanner.Err(); err != nil {
		return Packet{}, errors.NewIOError("failed to read packet list", err)
	}
	return Packet{}, io.EOF
}

func parsePacketLine(line string) (Packet, error) {
	fields := strings.Split(line, ",")
	if len(fields) < 2 {
		return Packet{}, errors.NewDecodeError("malformed packet row "+strconv.Quote(line), nil)
	}
	idx, err := strconv.Atoi(fields[0])
	if err != nil {
		return Packet{}, errors.NewDecodeError("malformed packet stream index "+strconv.Quote(fields[0]), err)
	}
	size, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return Packet{}, errors.NewDecodeError("malformed packet size "+strconv.Quote(fields[1]), err)
	}
	pkt := Packet{StreamIndex: idx, Size: size}
	if len(fields) > 2 {
		pkt.Keyframe = strings.HasPrefix(fields[2], "K")
	}
	return pkt, nil
}
