package build

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/matchers"
	"github.com/h2non/filetype/types"
)

// headerSize is the number of bytes filetype needs to recognize a type.
const headerSize = 262

// Verify checks that path holds a native binary for the host platform.
// Platforms without a known signature are accepted as is.
func Verify(path string) error {
	want, ok := nativeType()
	if !ok {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open artifact: %w", err)
	}
	defer func() { _ = f.Close() }()

	head := make([]byte, headerSize)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read artifact %s: %w", path, err)
	}

	if !filetype.IsType(head[:n], want) {
		return fmt.Errorf("artifact %s is not a %s binary", path, want.Extension)
	}
	return nil
}

func nativeType() (types.Type, bool) {
	switch runtime.GOOS {
	case "windows":
		return matchers.TypeExe, true
	case "darwin", "ios", "plan9", "js", "wasip1":
		return types.Unknown, false
	default:
		return matchers.TypeElf, true
	}
}
