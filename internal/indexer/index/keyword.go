package index

import "github.com/RoaringBitmap/roaring/v2"

// KeywordIndex is an exact-match index over a set of discrete values per
// document, such as tags or share recipients.
type KeywordIndex struct {
	values map[string]*roaring.Bitmap
	docs   map[uint32][]string
}

func NewKeywordIndex() *KeywordIndex {
	return &KeywordIndex{
		values: make(map[string]*roaring.Bitmap),
		docs:   make(map[uint32][]string),
	}
}

func (k *KeywordIndex) IndexDoc(id uint32, v Value) {
	if _, ok := k.docs[id]; ok {
		k.UnindexDoc(id)
	}
	kept := make([]string, 0, len(v.Keywords))
	for _, kw := range v.Keywords {
		if kw == "" {
			continue
		}
		bm, ok := k.values[kw]
		if !ok {
			bm = roaring.New()
			k.values[kw] = bm
		}
		if !bm.CheckedAdd(id) {
			continue
		}
		kept = append(kept, kw)
	}
	k.docs[id] = kept
}

func (k *KeywordIndex) UnindexDoc(id uint32) bool {
	kws, ok := k.docs[id]
	if !ok {
		return false
	}
	for _, kw := range kws {
		if bm := k.values[kw]; bm != nil {
			bm.Remove(id)
			if bm.IsEmpty() {
				delete(k.values, kw)
			}
		}
	}
	delete(k.docs, id)
	return true
}

func (k *KeywordIndex) ReindexDoc(id uint32, v Value) {
	k.UnindexDoc(id)
	k.IndexDoc(id, v)
}

func (k *KeywordIndex) Apply(value string) *roaring.Bitmap {
	return cloneOrEmpty(k.values[value])
}

// ApplyAny returns the documents carrying at least one of values.
func (k *KeywordIndex) ApplyAny(values ...string) *roaring.Bitmap {
	bms := make([]*roaring.Bitmap, 0, len(values))
	for _, v := range values {
		if bm := k.values[v]; bm != nil {
			bms = append(bms, bm)
		}
	}
	if len(bms) == 0 {
		return roaring.New()
	}
	return roaring.FastOr(bms...)
}

func (k *KeywordIndex) Has(id uint32) bool {
	_, ok := k.docs[id]
	return ok
}

func (k *KeywordIndex) DocCount() int {
	return len(k.docs)
}
