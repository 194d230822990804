package record

import (
	"fmt"
	"hash/fnv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"gedcom-review/pkg/db"
)

// Record is the in-memory representation of one record's proposed state,
// built by a factory from the change's raw texts.
type Record struct {
	Xref    string   `json:"xref"`
	Type    Type     `json:"type"`
	Label   string   `json:"label,omitempty"`
	Tree    *db.Tree `json:"-"`
	OldText string   `json:"-"`
	NewText string   `json:"-"`
}

// Cache bounds the records shared across the per-request factories.
type Cache = lru.Cache[string, *Record]

// NewCache creates the shared record cache.
func NewCache(size int) (*Cache, error) {
	return lru.New[string, *Record](size)
}

// Factory builds records of a single type.
type Factory struct {
	typ   Type
	cache *Cache
}

// New constructs the in-memory record for a change, reusing a cached
// instance when the same texts were already seen for this tree and xref.
func (f *Factory) New(id, oldText, newText string, tree *db.Tree) *Record {
	key := cacheKey(f.typ, tree, id, oldText, newText)
	if rec, ok := f.cache.Get(key); ok {
		return rec
	}

	rec := &Record{
		Xref:    id,
		Type:    f.typ,
		Label:   label(f.typ, id, oldText, newText),
		Tree:    tree,
		OldText: oldText,
		NewText: newText,
	}
	f.cache.Add(key, rec)
	return rec
}

func cacheKey(typ Type, tree *db.Tree, id, oldText, newText string) string {
	h := fnv.New64a()
	h.Write([]byte(oldText))
	h.Write([]byte{0})
	h.Write([]byte(newText))

	treeName := ""
	if tree != nil {
		treeName = tree.Name
	}
	return fmt.Sprintf("%s|%s|%s|%x", treeName, id, typ, h.Sum64())
}

// label pulls a human-readable caption from the record text: the NAME line
// for individuals, TITL for sources and media, falling back to the xref.
func label(typ Type, id, oldText, newText string) string {
	text := newText
	if text == "" {
		text = oldText
	}

	tag := ""
	switch typ {
	case TypeIndividual:
		tag = "1 NAME "
	case TypeSource, TypeMedia:
		tag = "1 TITL "
	}

	if tag != "" {
		for _, line := range strings.Split(text, "\n") {
			if strings.HasPrefix(line, tag) {
				return strings.TrimSpace(strings.TrimPrefix(line, tag))
			}
		}
	}
	return id
}

var allTypes = []Type{
	TypeIndividual,
	TypeFamily,
	TypeSource,
	TypeRepository,
	TypeMedia,
	TypeNote,
	TypeSubmitter,
	TypeSubmission,
	TypeHeader,
	TypeGeneric,
}

// Registry holds one factory per record type, all sharing a single cache.
// A registry is built per request and handed to whatever resolves records
// during that request.
type Registry struct {
	factories map[Type]*Factory
}

// NewRegistry builds the ten record-type factories around the shared cache.
// A nil cache is a wiring error, fatal at startup.
func NewRegistry(cache *Cache) *Registry {
	if cache == nil {
		panic("record: registry requires a cache")
	}

	factories := make(map[Type]*Factory, len(allTypes))
	for _, typ := range allTypes {
		factories[typ] = &Factory{typ: typ, cache: cache}
	}
	return &Registry{factories: factories}
}

// ForType returns the factory for a record type, falling back to the
// generic factory for types it does not know.
func (r *Registry) ForType(typ Type) *Factory {
	if f, ok := r.factories[typ]; ok {
		return f
	}
	return r.factories[TypeGeneric]
}
