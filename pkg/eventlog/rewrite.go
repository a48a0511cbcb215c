package eventlog

import (
	"bytes"

	"github.com/mcp-tool-shop-org/repomesh/pkg/rmerror"
)

// VerifyExtendsBaseline checks that candidate is baseline with zero or more
// additional lines appended, byte-for-byte. Any divergence in the
// previously-committed prefix — a changed byte, a removed line, a
// reordering — is a LogRewrite failure. This is the append-only guarantee
// checked before admission ever looks at individual events.
func VerifyExtendsBaseline(baseline, candidate []byte) error {
	if len(candidate) < len(baseline) {
		return rmerror.New(rmerror.KindLogRewrite, "candidate log is shorter than baseline")
	}
	if !bytes.Equal(candidate[:len(baseline)], baseline) {
		return rmerror.New(rmerror.KindLogRewrite, "candidate log diverges from baseline within the previously-committed prefix")
	}
	return nil
}
