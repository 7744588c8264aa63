// Package binary implements the compact on-disk snapshot format used by
// the history archive: a fixed-width array of (start, end) range records
// that can be memory-mapped and unioned across many snapshot files without
// decoding each one into an intermediate Go slice first.
package binary

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"

	"golang.org/x/sys/unix"

	"github.com/ipcurator/curator/pkg/ipset"
)

// Family identifies the address family of a snapshot's records. Only
// FamilyIPv4 has a working codec and algebra today; FamilyIPv6 is reserved
// so a future implementation can widen the record layout without
// reassigning the tag (see the module's recorded IPv6 decision).
type Family byte

const (
	FamilyIPv4 Family = 4
	FamilyIPv6 Family = 6
)

const (
	magic      = "IPS1"
	headerSize = 4 + 1 + 4 // magic + family + record count
	recordSize = 4 + 4     // start + end, both uint32 big-endian
)

// Write encodes s to w as a fixed-width record stream: a 4-byte magic, a
// 1-byte family tag (always FamilyIPv4 today), a uint32 record count, then
// count*(start,end) uint32 pairs in ascending order. The format has no
// padding and no per-record framing, so a reader can seek directly to
// record i at headerSize+i*recordSize.
func Write(w io.Writer, s *ipset.Set) error {
	bw := bufio.NewWriter(w)
	ranges := s.Ranges()

	if _, err := bw.WriteString(magic); err != nil {
		return fmt.Errorf("binary: write magic: %w", err)
	}
	if _, err := bw.Write([]byte{byte(FamilyIPv4)}); err != nil {
		return fmt.Errorf("binary: write family: %w", err)
	}
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(ranges)))
	if _, err := bw.Write(countBuf[:]); err != nil {
		return fmt.Errorf("binary: write count: %w", err)
	}

	var rec [recordSize]byte
	for _, r := range ranges {
		binary.BigEndian.PutUint32(rec[0:4], r.Start)
		binary.BigEndian.PutUint32(rec[4:8], r.End)
		if _, err := bw.Write(rec[:]); err != nil {
			return fmt.Errorf("binary: write record: %w", err)
		}
	}
	return bw.Flush()
}

// WriteFile atomically writes s to path via a tmp file and rename, so a
// reader never observes a partially-written snapshot.
func WriteFile(path string, s *ipset.Set) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("binary: create %s: %w", tmp, err)
	}
	if err := Write(f, s); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("binary: close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("binary: rename %s to %s: %w", tmp, path, err)
	}
	return nil
}

// Read decodes a full snapshot from r into a Set.
func Read(r io.Reader) (*ipset.Set, error) {
	br := bufio.NewReader(r)
	hdr := make([]byte, headerSize)
	if _, err := io.ReadFull(br, hdr); err != nil {
		return nil, fmt.Errorf("binary: read header: %w", err)
	}
	if string(hdr[:4]) != magic {
		return nil, fmt.Errorf("binary: bad magic %q", hdr[:4])
	}
	family := Family(hdr[4])
	if family != FamilyIPv4 {
		return nil, fmt.Errorf("binary: unsupported family %d", family)
	}
	count := binary.BigEndian.Uint32(hdr[5:9])

	ranges := make([]ipset.Range, 0, count)
	rec := make([]byte, recordSize)
	for i := uint32(0); i < count; i++ {
		if _, err := io.ReadFull(br, rec); err != nil {
			return nil, fmt.Errorf("binary: read record %d: %w", i, err)
		}
		ranges = append(ranges, ipset.Range{
			Start: binary.BigEndian.Uint32(rec[0:4]),
			End:   binary.BigEndian.Uint32(rec[4:8]),
		})
	}
	return ipset.New(ranges...), nil
}

// ReadFile decodes a snapshot file previously written by WriteFile.
func ReadFile(path string) (*ipset.Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("binary: open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f)
}

// mappedFile is a memory-mapped snapshot file: its record array is read
// directly out of the mapping, with no intermediate per-file slice.
type mappedFile struct {
	data []byte
}

func mapFile(path string) (*mappedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("binary: open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("binary: stat %s: %w", path, err)
	}
	if info.Size() < headerSize {
		return nil, fmt.Errorf("binary: %s too small to be a snapshot", path)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("binary: mmap %s: %w", path, err)
	}
	if string(data[:4]) != magic {
		unix.Munmap(data)
		return nil, fmt.Errorf("binary: %s: bad magic %q", path, data[:4])
	}
	if Family(data[4]) != FamilyIPv4 {
		unix.Munmap(data)
		return nil, fmt.Errorf("binary: %s: unsupported family %d", path, data[4])
	}
	return &mappedFile{data: data}, nil
}

func (m *mappedFile) close() error {
	return unix.Munmap(m.data)
}

func (m *mappedFile) count() uint32 {
	return binary.BigEndian.Uint32(m.data[5:9])
}

func (m *mappedFile) record(i uint32) ipset.Range {
	off := headerSize + int(i)*recordSize
	return ipset.Range{
		Start: binary.BigEndian.Uint32(m.data[off : off+4]),
		End:   binary.BigEndian.Uint32(m.data[off+4 : off+8]),
	}
}

// UnionFiles memory-maps every snapshot in paths and returns the union of
// their address ranges. This is the read path the history window composer
// uses to fold dozens of per-run snapshots into one set without ever
// materializing them individually: each file's records are read straight
// out of its mapping into the shared accumulator, which is then sorted and
// merged once at the end.
func UnionFiles(paths []string) (*ipset.Set, error) {
	var total int
	maps := make([]*mappedFile, 0, len(paths))
	defer func() {
		for _, m := range maps {
			m.close()
		}
	}()

	for _, p := range paths {
		m, err := mapFile(p)
		if err != nil {
			return nil, err
		}
		maps = append(maps, m)
		total += int(m.count())
	}

	acc := make([]ipset.Range, 0, total)
	for _, m := range maps {
		n := m.count()
		for i := uint32(0); i < n; i++ {
			acc = append(acc, m.record(i))
		}
	}
	sort.Slice(acc, func(i, j int) bool { return acc[i].Start < acc[j].Start })
	return ipset.New(acc...), nil
}
