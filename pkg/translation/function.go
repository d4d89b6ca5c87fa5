package translation

import (
	"fmt"

	"translator/pkg/errors"
	"translator/pkg/native"
)

// ErrNativeUnsupported is returned when generated code cannot be called on
// this platform.
var ErrNativeUnsupported = errors.New("native calls are only supported on linux/amd64")

// Function is a mapped function in the code cache.
type Function struct {
	Name    string
	Address uintptr
	Size    int
}

// Call runs the function with a single integer argument. The function must
// have been compiled for one I64 argument and an I64 result, and must still
// be mapped.
func (f *Function) Call(arg uint64) (uint64, error) {
	if !native.Supported {
		return 0, ErrNativeUnsupported
	}
	return native.Call(f.Address, arg), nil
}

func (f *Function) String() string {
	return fmt.Sprintf("%s@0x%x+%d", f.Name, f.Address, f.Size)
}
