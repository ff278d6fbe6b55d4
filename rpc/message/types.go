package message

import "github.com/pyropy/idxshare/core/model"

type Welcome struct {
	Msg string
}

func (*Welcome) Kind() Kind { return KindWelcome }

func (m *Welcome) encodeFields(e *encoder) {
	e.String("msg", m.Msg)
}

func (m *Welcome) decodeFields(d *decoder) {
	m.Msg = d.String("msg")
}

type AuthenticateRequest struct {
	Secret string
}

func (*AuthenticateRequest) Kind() Kind { return KindAuthenticateRequest }

func (m *AuthenticateRequest) encodeFields(e *encoder) {
	e.String("secret", m.Secret)
}

func (m *AuthenticateRequest) decodeFields(d *decoder) {
	m.Secret = d.String("secret")
}

type AuthenticateReply struct {
	Success bool
}

func (*AuthenticateReply) Kind() Kind { return KindAuthenticateReply }

func (m *AuthenticateReply) encodeFields(e *encoder) {
	e.Bool("success", m.Success)
}

func (m *AuthenticateReply) decodeFields(d *decoder) {
	m.Success = d.Bool("success")
}

// ShareRequest registers a file. Port is the port the sharer serves blocks
// on; the sharer's address is taken from the connection.
type ShareRequest struct {
	FileDescr     *model.ChunkDescriptor
	Filename      string
	SharingSecret string
	Port          int
}

func (*ShareRequest) Kind() Kind { return KindShareRequest }

func (m *ShareRequest) encodeFields(e *encoder) {
	e.Descriptor("fileDescr", m.FileDescr)
	e.String("filename", m.Filename)
	e.String("sharingSecret", m.SharingSecret)
	e.Int("port", m.Port)
}

func (m *ShareRequest) decodeFields(d *decoder) {
	m.FileDescr = d.Descriptor("fileDescr")
	m.Filename = d.String("filename")
	m.SharingSecret = d.String("sharingSecret")
	m.Port = d.Int("port")
}

type ShareReply struct {
	NumSharers int
}

func (*ShareReply) Kind() Kind { return KindShareReply }

func (m *ShareReply) encodeFields(e *encoder) {
	e.Int("numSharers", m.NumSharers)
}

func (m *ShareReply) decodeFields(d *decoder) {
	m.NumSharers = d.Int("numSharers")
}

type DropShareRequest struct {
	Filename      string
	FileMD5       string
	SharingSecret string
	Port          int
}

func (*DropShareRequest) Kind() Kind { return KindDropShareRequest }

func (m *DropShareRequest) encodeFields(e *encoder) {
	e.String("filename", m.Filename)
	e.String("fileMd5", m.FileMD5)
	e.String("sharingSecret", m.SharingSecret)
	e.Int("port", m.Port)
}

func (m *DropShareRequest) decodeFields(d *decoder) {
	m.Filename = d.String("filename")
	m.FileMD5 = d.String("fileMd5")
	m.SharingSecret = d.String("sharingSecret")
	m.Port = d.Int("port")
}

type DropShareReply struct {
	Success bool
}

func (*DropShareReply) Kind() Kind { return KindDropShareReply }

func (m *DropShareReply) encodeFields(e *encoder) {
	e.Bool("success", m.Success)
}

func (m *DropShareReply) decodeFields(d *decoder) {
	m.Success = d.Bool("success")
}

type SearchRequest struct {
	MaxHits  int
	Keywords []string
}

func (*SearchRequest) Kind() Kind { return KindSearchRequest }

func (m *SearchRequest) encodeFields(e *encoder) {
	e.Int("maxhits", m.MaxHits)
	e.Strings("keywords", m.Keywords)
}

func (m *SearchRequest) decodeFields(d *decoder) {
	m.MaxHits = d.Int("maxhits")
	m.Keywords = d.Strings("keywords")
}

// SearchReply pairs every hit with the number of sharers known for it.
type SearchReply struct {
	Hits       []*model.IndexElement
	SeedCounts []int
}

func (*SearchReply) Kind() Kind { return KindSearchReply }

func (m *SearchReply) encodeFields(e *encoder) {
	e.Elements("hits", m.Hits)
	e.Ints("seedCounts", m.SeedCounts)
}

func (m *SearchReply) decodeFields(d *decoder) {
	m.Hits = d.Elements("hits")
	m.SeedCounts = d.Ints("seedCounts")
}

type LookupRequest struct {
	Filename string
	FileMD5  string
}

func (*LookupRequest) Kind() Kind { return KindLookupRequest }

func (m *LookupRequest) encodeFields(e *encoder) {
	e.String("filename", m.Filename)
	e.String("fileMd5", m.FileMD5)
}

func (m *LookupRequest) decodeFields(d *decoder) {
	m.Filename = d.String("filename")
	m.FileMD5 = d.String("fileMd5")
}

type LookupReply struct {
	Hits []*model.IndexElement
}

func (*LookupReply) Kind() Kind { return KindLookupReply }

func (m *LookupReply) encodeFields(e *encoder) {
	e.Elements("hits", m.Hits)
}

func (m *LookupReply) decodeFields(d *decoder) {
	m.Hits = d.Elements("hits")
}

// ErrorMsg is the "Error" kind, sent instead of a reply when a request is
// rejected.
type ErrorMsg struct {
	Msg string
}

func (*ErrorMsg) Kind() Kind { return KindError }

func (m *ErrorMsg) encodeFields(e *encoder) {
	e.String("msg", m.Msg)
}

func (m *ErrorMsg) decodeFields(d *decoder) {
	m.Msg = d.String("msg")
}
