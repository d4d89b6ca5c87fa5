//go:build !linux || !amd64

package translation

import (
	"testing"

	"translator/pkg/errors"
)

func TestCallUnsupported(t *testing.T) {
	fn := &Function{Name: "f", Address: 0x1000, Size: 16}
	if _, err := fn.Call(1); !errors.Is(err, ErrNativeUnsupported) {
		t.Errorf("Call err = %v, want ErrNativeUnsupported", err)
	}
}
