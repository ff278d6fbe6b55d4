package model

import "fmt"

// IndexElement is one registration held by the index server: a sharer
// endpoint offering a named file with a known descriptor. Secret is the
// value required to drop the registration.
type IndexElement struct {
	IP        string
	Port      int
	FileDescr *ChunkDescriptor
	Filename  string
	Secret    string
}

// SharerKey identifies one unique registration.
type SharerKey struct {
	IP       string
	Port     int
	Filename string
	FileMD5  string
}

func NewSharerKey(ip string, port int, filename, fileMD5 string) SharerKey {
	return SharerKey{
		IP:       ip,
		Port:     port,
		Filename: filename,
		FileMD5:  fileMD5,
	}
}

func (k SharerKey) String() string {
	return fmt.Sprintf("%s:%d:%s:%s", k.IP, k.Port, k.Filename, k.FileMD5)
}

func (e *IndexElement) Key() SharerKey {
	return NewSharerKey(e.IP, e.Port, e.Filename, e.FileDescr.FileHash())
}
