package model

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"
	"sort"
)

// OrderBookHash returns the lowercase hex SHA-256 of the levels' canonical
// encoding. Levels are taken in ascending depth order regardless of input
// order. Each level contributes its depth (big-endian uint32) followed by
// bid_px, ask_px, bid_sz, ask_sz, bid_ct, ask_ct; every field is a presence
// byte (0 absent, 1 present) and, when present, the big-endian value
// (8 bytes for prices, 4 for sizes and counts).
func OrderBookHash(levels []DepthLevel) string {
	sorted := make([]DepthLevel, len(levels))
	copy(sorted, levels)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Depth < sorted[j].Depth })

	h := sha256.New()
	var buf [9]byte
	for _, l := range sorted {
		binary.BigEndian.PutUint32(buf[:4], uint32(l.Depth))
		h.Write(buf[:4])

		writeInt64(h, l.BidPx, buf[:])
		writeInt64(h, l.AskPx, buf[:])
		writeUint32(h, l.BidSz, buf[:])
		writeUint32(h, l.AskSz, buf[:])
		writeUint32(h, l.BidCt, buf[:])
		writeUint32(h, l.AskCt, buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeInt64(w io.Writer, v *int64, buf []byte) {
	if v == nil {
		buf[0] = 0
		w.Write(buf[:1])
		return
	}
	buf[0] = 1
	binary.BigEndian.PutUint64(buf[1:9], uint64(*v))
	w.Write(buf[:9])
}

func writeUint32(w io.Writer, v *uint32, buf []byte) {
	if v == nil {
		buf[0] = 0
		w.Write(buf[:1])
		return
	}
	buf[0] = 1
	binary.BigEndian.PutUint32(buf[1:5], *v)
	w.Write(buf[:5])
}
