package model

import "time"

// ShareRecord is a peer's own bookkeeping for a file it registered with an
// index server.
type ShareRecord struct {
	Path         string          `json:"path"`
	Descriptor   ChunkDescriptor `json:"descriptor"`
	IdxAddr      string          `json:"idxAddr"`
	SharerSecret string          `json:"sharerSecret"`
	NumSharers   int             `json:"numSharers"`
	SharedAt     time.Time       `json:"sharedAt"`
}

func NewShareRecord(path string, descr ChunkDescriptor, idxAddr, secret string, numSharers int) ShareRecord {
	return ShareRecord{
		Path:         path,
		Descriptor:   descr,
		IdxAddr:      idxAddr,
		SharerSecret: secret,
		NumSharers:   numSharers,
		SharedAt:     time.Now().UTC(),
	}
}
