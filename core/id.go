package core

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"sync/atomic"

	"pkt.systems/webtabs/schema"
)

var tabSeq atomic.Uint64

// newTabID returns an opaque tab id. Ids are never reused within a process;
// the sequence only backs up a failing entropy source.
func newTabID() schema.TabID {
	var buf [6]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return schema.TabID("seq" + strconv.FormatUint(tabSeq.Add(1), 36))
	}
	return schema.TabID(hex.EncodeToString(buf[:]))
}
