// Package registry holds the index server's in-memory record of who shares
// what. A Registry is not safe for concurrent use; the server's dispatcher
// is its only caller.
package registry

import (
	"crypto/subtle"
	"sort"
	"strings"

	"github.com/pyropy/idxshare/core/model"
)

type Result int

const (
	Accepted Result = iota
	Removed
	NotFound
	SecretMismatch
)

func (r Result) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case Removed:
		return "removed"
	case NotFound:
		return "not found"
	case SecretMismatch:
		return "secret mismatch"
	}

	return "unknown"
}

type Registry struct {
	// content hash -> sharer key -> element
	byContentHash map[string]map[model.SharerKey]*model.IndexElement
	bySharerKey   map[model.SharerKey]*model.IndexElement
}

func New() *Registry {
	return &Registry{
		byContentHash: map[string]map[model.SharerKey]*model.IndexElement{},
		bySharerKey:   map[model.SharerKey]*model.IndexElement{},
	}
}

// Share records that ip:port offers filename with content descr. Sharing
// an already registered key replaces the record, but only when secret
// matches the one it was registered with.
func (r *Registry) Share(ip string, port int, descr *model.ChunkDescriptor, filename, secret string) Result {
	el := &model.IndexElement{
		IP:        ip,
		Port:      port,
		FileDescr: descr,
		Filename:  filename,
		Secret:    secret,
	}
	key := el.Key()

	if existing, ok := r.bySharerKey[key]; ok {
		if !secretsEqual(existing.Secret, secret) {
			return SecretMismatch
		}
		r.remove(key)
	}

	hash := descr.FileHash()
	bucket, ok := r.byContentHash[hash]
	if !ok {
		bucket = map[model.SharerKey]*model.IndexElement{}
		r.byContentHash[hash] = bucket
	}
	bucket[key] = el
	r.bySharerKey[key] = el

	return Accepted
}

func (r *Registry) Drop(ip string, port int, filename, fileMD5, secret string) Result {
	key := model.NewSharerKey(ip, port, filename, fileMD5)

	existing, ok := r.bySharerKey[key]
	if !ok {
		return NotFound
	}

	if !secretsEqual(existing.Secret, secret) {
		return SecretMismatch
	}

	r.remove(key)

	return Removed
}

// Search returns up to maxHits records whose filename contains every
// keyword, ignoring case, with at most one record per content hash.
func (r *Registry) Search(keywords []string, maxHits int) []*model.IndexElement {
	hits := []*model.IndexElement{}
	if maxHits <= 0 {
		return hits
	}

	lowered := make([]string, len(keywords))
	for i, kw := range keywords {
		lowered[i] = strings.ToLower(kw)
	}

	seen := map[string]struct{}{}
	for _, el := range sortedElements(r.bySharerKey) {
		hash := el.FileDescr.FileHash()
		if _, dup := seen[hash]; dup {
			continue
		}

		if !containsAll(strings.ToLower(el.Filename), lowered) {
			continue
		}

		seen[hash] = struct{}{}
		hits = append(hits, el)
		if len(hits) == maxHits {
			break
		}
	}

	return hits
}

// Lookup returns every record sharing exactly filename with content fileMD5.
func (r *Registry) Lookup(filename, fileMD5 string) []*model.IndexElement {
	hits := []*model.IndexElement{}
	for _, el := range sortedElements(r.byContentHash[fileMD5]) {
		if el.Filename == filename {
			hits = append(hits, el)
		}
	}

	return hits
}

// Len returns the number of registrations.
func (r *Registry) Len() int {
	return len(r.bySharerKey)
}

// NumContentHashes returns the number of distinct file contents registered.
func (r *Registry) NumContentHashes() int {
	return len(r.byContentHash)
}

func (r *Registry) remove(key model.SharerKey) {
	delete(r.bySharerKey, key)

	bucket := r.byContentHash[key.FileMD5]
	delete(bucket, key)
	if len(bucket) == 0 {
		delete(r.byContentHash, key.FileMD5)
	}
}

func sortedElements(m map[model.SharerKey]*model.IndexElement) []*model.IndexElement {
	keys := make([]model.SharerKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})

	out := make([]*model.IndexElement, len(keys))
	for i, k := range keys {
		out[i] = m[k]
	}

	return out
}

func containsAll(s string, substrs []string) bool {
	for _, sub := range substrs {
		if !strings.Contains(s, sub) {
			return false
		}
	}

	return true
}

func secretsEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
