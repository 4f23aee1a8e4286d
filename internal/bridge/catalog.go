package bridge

import (
	"sort"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
)

// Block is one entry of the server's placeable block list.
type Block struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Catalog maps block ids and display names to ids.  An empty catalog
// accepts any block.
type Catalog struct {
	mu     sync.RWMutex
	blocks []Block
	index  map[string]string // lower-cased id or name -> id
}

// Replace installs a new block list.
func (c *Catalog) Replace(blocks []Block) {
	index := make(map[string]string, 2*len(blocks))
	for _, b := range blocks {
		index[strings.ToLower(b.ID)] = b.ID
		if b.Name != "" {
			if _, taken := index[strings.ToLower(b.Name)]; !taken {
				index[strings.ToLower(b.Name)] = b.ID
			}
		}
	}
	sorted := append([]Block(nil), blocks...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	c.mu.Lock()
	c.blocks, c.index = sorted, index
	c.mu.Unlock()
}

// Resolve returns the id for a block given by id or display name.  The
// second result is false only when the catalog is loaded and does not
// know the block.
func (c *Catalog) Resolve(block string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.index) == 0 {
		return block, true
	}
	id, ok := c.index[strings.ToLower(block)]
	return id, ok
}

// Len returns the number of known blocks.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

// Blocks returns the known blocks sorted by id.
func (c *Catalog) Blocks() []Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Block(nil), c.blocks...)
}

// parseBlocks reads result.blocks, accepting either {id,name} objects
// or bare id strings.
func parseBlocks(res Result) []Block {
	var out []Block
	res.Get("blocks").ForEach(func(_, v gjson.Result) bool {
		switch {
		case v.Type == gjson.String && v.Str != "":
			out = append(out, Block{ID: v.Str})
		case v.IsObject():
			if id := v.Get("id").String(); id != "" {
				out = append(out, Block{ID: id, Name: v.Get("name").String()})
			}
		}
		return true
	})
	return out
}
