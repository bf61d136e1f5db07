package loader

import (
	"debug/elf"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildMinimalELF writes a tiny valid ELF file (no DWARF sections) to
// a temp file and returns its path. It exercises the "missing debug
// sections -> still a valid DebugFile" contract.
func buildMinimalELF(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "tiny.elf")

	// A bare ELF64 header is enough for debug/elf.NewFile to succeed
	// and report zero sections.
	header := make([]byte, 64)
	copy(header[0:4], []byte{0x7f, 'E', 'L', 'F'})
	header[4] = 2 // ELFCLASS64
	header[5] = 1 // little endian
	header[6] = 1 // EV_CURRENT
	// e_type, e_machine
	header[16] = byte(elf.ET_EXEC)
	header[18] = byte(elf.EM_X86_64)
	// e_version
	header[20] = 1
	// e_ehsize
	header[52] = 64
	// e_shentsize
	header[58] = 64

	require.NoError(t, os.WriteFile(path, header, 0o644))
	return path
}

func TestOpenMinimalELF(t *testing.T) {
	path := buildMinimalELF(t)

	df, err := Open(path, nil)
	require.NoError(t, err)
	defer df.Close()

	require.Equal(t, FormatELF, df.Format)
	require.Equal(t, 8, df.AddrSize)
	require.Nil(t, df.DWARF())
	require.Empty(t, df.Sections())
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "does-not-exist"), nil)
	require.ErrorIs(t, err, ErrLoad)
}

func TestOpenUnknownFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "garbage.bin")
	require.NoError(t, os.WriteFile(path, []byte("not a binary at all"), 0o644))

	_, err := Open(path, nil)
	require.ErrorIs(t, err, ErrLoad)
}
