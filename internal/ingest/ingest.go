// Package ingest receives weewx records over HTTP and UDP, or polls them from
// a remoteweather TimescaleDB, and hands them to the forwarder.
package ingest

import (
	"github.com/chrissnell/wxdatadog/internal/types"
)

// MaxPacketBytes bounds a single encoded packet
const MaxPacketBytes = 64 * 1024

// Handler receives decoded records. The forwarder implements it; both calls
// must return without blocking.
type Handler interface {
	HandleLoopPacket(rec types.Record)
	HandleArchiveRecord(rec types.Record)
}

func dispatch(h Handler, t types.RecordType, packet map[string]any) (types.Record, error) {
	rec, err := types.RecordFromPacket(t, packet)
	if err != nil {
		return types.Record{}, err
	}

	switch t {
	case types.LoopPacket:
		h.HandleLoopPacket(rec)
	case types.ArchiveRecord:
		h.HandleArchiveRecord(rec)
	}
	return rec, nil
}
