package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"hash"
)

func (w *World) stateDigest(nowTick uint64) string {
	h := sha256.New()
	writeU64(h, nowTick)
	writeU64(h, w.src.draws)
	for _, pos := range w.order {
		v := w.nodes[pos].Durable()
		v.Pos = pos.Array()
		b, _ := json.Marshal(v)
		writeU64(h, uint64(len(b)))
		_, _ = h.Write(b)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeU64(h hash.Hash, v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	_, _ = h.Write(tmp[:])
}
