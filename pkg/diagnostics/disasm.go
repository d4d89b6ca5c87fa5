// Package diagnostics holds the translator's debugging aids: pass timing,
// disassembly, and the base/diff dump store used to compare the output of
// two compiler builds.
package diagnostics

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

// Disassemble renders x86-64 code in Intel syntax, one instruction per line.
// Offsets are relative to the start of code so dumps of the same function
// mapped at different addresses compare equal.
func Disassemble(code []byte) string {
	var sb strings.Builder
	offset := 0
	for offset < len(code) {
		inst, err := x86asm.Decode(code[offset:], 64)
		if err != nil {
			sb.WriteString(fmt.Sprintf("0x%04x: db 0x%02x\n", offset, code[offset]))
			offset++
			continue
		}

		sb.WriteString(fmt.Sprintf("0x%04x: %s\n", offset, x86asm.IntelSyntax(inst, uint64(offset), nil)))
		offset += inst.Len
	}
	return sb.String()
}
