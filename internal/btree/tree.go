package btree

import (
	"fmt"
	"log/slog"

	"github.com/quanla/pagestore/internal/bufferpool"
	"github.com/quanla/pagestore/internal/disk"
	"github.com/quanla/pagestore/internal/heap"
)

// Tree is a persistent B+ tree index: a metadata page pointing at a root
// node, and a chain of leaf/internal node pages reached through the buffer
// pool. Insert preemptively splits any full node it would otherwise
// descend through (including the root), so a single top-down pass never
// needs to propagate a split back up after the fact.
type Tree struct {
	bpm             bufferpool.BufferPool
	metadataPageID  disk.PageID
	keyType         KeyType
	leafMaxSize     int
	internalMaxSize int
}

// New allocates a metadata page and an empty root leaf, and returns a tree
// ready to accept inserts.
func New(bpm bufferpool.BufferPool, keyType KeyType) (*Tree, error) {
	metaGuard, err := bpm.NewPage()
	if err != nil {
		return nil, fmt.Errorf("btree: allocate metadata page: %w", err)
	}
	metadataPageID := metaGuard.PageID()

	rootGuard, err := bpm.NewPage()
	if err != nil {
		metaGuard.Close()
		return nil, fmt.Errorf("btree: allocate root page: %w", err)
	}
	rootPageID := rootGuard.PageID()

	meta := NewIndexMetadata(keyType)
	meta.RootPageID = rootPageID

	Initialize(rootGuard.Data(), keyType, rootPageID, true, disk.InvalidPageID)
	rootGuard.MarkDirty()
	if err := rootGuard.Close(); err != nil {
		metaGuard.Close()
		return nil, err
	}

	copy(metaGuard.Data(), meta.serialize())
	metaGuard.MarkDirty()
	if err := metaGuard.Close(); err != nil {
		return nil, err
	}

	slog.Debug("btree: created", "metadataPageID", metadataPageID, "rootPageID", rootPageID)
	return &Tree{
		bpm:             bpm,
		metadataPageID:  metadataPageID,
		keyType:         meta.KeyType,
		leafMaxSize:     meta.LeafMaxSize,
		internalMaxSize: meta.InternalMaxSize,
	}, nil
}

// Open reopens a tree whose metadata page is already on disk.
func Open(bpm bufferpool.BufferPool, metadataPageID disk.PageID) (*Tree, error) {
	g, err := bpm.FetchPage(metadataPageID)
	if err != nil {
		return nil, fmt.Errorf("btree: fetch metadata page: %w", err)
	}
	meta := deserializeIndexMetadata(g.Data())
	if err := g.Close(); err != nil {
		return nil, err
	}
	return &Tree{
		bpm:             bpm,
		metadataPageID:  metadataPageID,
		keyType:         meta.KeyType,
		leafMaxSize:     meta.LeafMaxSize,
		internalMaxSize: meta.InternalMaxSize,
	}, nil
}

// MetadataPageID returns the page this tree's metadata is stored on, the
// handle a caller needs to Open it again later.
func (t *Tree) MetadataPageID() disk.PageID { return t.metadataPageID }

func (t *Tree) loadMetadata() (IndexMetadata, error) {
	g, err := t.bpm.FetchPage(t.metadataPageID)
	if err != nil {
		return IndexMetadata{}, fmt.Errorf("btree: load metadata: %w", err)
	}
	defer g.Close()
	return deserializeIndexMetadata(g.Data()), nil
}

func (t *Tree) updateRoot(newRootPageID disk.PageID) error {
	g, err := t.bpm.FetchPage(t.metadataPageID)
	if err != nil {
		return fmt.Errorf("btree: update root: %w", err)
	}
	meta := deserializeIndexMetadata(g.Data())
	meta.RootPageID = newRootPageID
	copy(g.Data(), meta.serialize())
	g.MarkDirty()
	return g.Close()
}

func (t *Tree) fetchNode(pageID disk.PageID) (bufferpool.PageGuard, Node, error) {
	g, err := t.bpm.FetchPage(pageID)
	if err != nil {
		return nil, Node{}, fmt.Errorf("btree: fetch page %d: %w", pageID, err)
	}
	return g, Node{Buf: g.Data(), KeyType: t.keyType}, nil
}

func (t *Tree) maxSizeFor(isLeaf bool) int {
	if isLeaf {
		return t.leafMaxSize
	}
	return t.internalMaxSize
}

func (t *Tree) setParentPageID(pageID, parentPageID disk.PageID) error {
	g, node, err := t.fetchNode(pageID)
	if err != nil {
		return err
	}
	node.SetParentPageID(parentPageID)
	g.MarkDirty()
	return g.Close()
}

// Search returns the row a key maps to, if present.
func (t *Tree) Search(key Key) (heap.RowID, bool, error) {
	meta, err := t.loadMetadata()
	if err != nil {
		return heap.RowID{}, false, err
	}

	pageID := meta.RootPageID
	for {
		g, node, err := t.fetchNode(pageID)
		if err != nil {
			return heap.RowID{}, false, err
		}

		if node.IsLeaf() {
			idx, found := node.BinarySearch(key)
			if !found {
				g.Close()
				return heap.RowID{}, false, nil
			}
			value := node.GetValue(idx)
			g.Close()
			return value, true, nil
		}

		idx, found := node.BinarySearch(key)
		childIdx := idx
		if found {
			childIdx = idx + 1
		}
		pageID = node.GetChild(childIdx)
		g.Close()
	}
}

// Insert adds (key, row) to the tree. Returns ErrDuplicateKey if key is
// already present.
func (t *Tree) Insert(key Key, row heap.RowID) error {
	meta, err := t.loadMetadata()
	if err != nil {
		return err
	}

	root := meta.RootPageID
	g, node, err := t.fetchNode(root)
	if err != nil {
		return err
	}
	rootIsLeaf := node.IsLeaf()
	rootFull := node.IsFull(t.maxSizeFor(rootIsLeaf))
	g.Close()

	if rootFull {
		newRoot, err := t.splitRoot(root, rootIsLeaf)
		if err != nil {
			return err
		}
		root = newRoot
	}

	return t.insertDescending(root, key, row)
}

// splitRoot splits the current root node and installs a fresh root above
// it, so that Insert's descent always starts from a non-full node.
func (t *Tree) splitRoot(oldRoot disk.PageID, oldRootIsLeaf bool) (disk.PageID, error) {
	splitKey, newSibling, err := t.split(oldRoot, oldRootIsLeaf)
	if err != nil {
		return disk.InvalidPageID, err
	}

	newRootGuard, err := t.bpm.NewPage()
	if err != nil {
		return disk.InvalidPageID, fmt.Errorf("btree: allocate new root: %w", err)
	}
	newRootID := newRootGuard.PageID()
	newRootNode := Initialize(newRootGuard.Data(), t.keyType, newRootID, false, disk.InvalidPageID)
	newRootNode.SetChild(0, oldRoot)
	newRootNode.InsertKeyChild(0, splitKey, newSibling)
	newRootGuard.MarkDirty()
	if err := newRootGuard.Close(); err != nil {
		return disk.InvalidPageID, err
	}

	if err := t.setParentPageID(oldRoot, newRootID); err != nil {
		return disk.InvalidPageID, err
	}
	if err := t.setParentPageID(newSibling, newRootID); err != nil {
		return disk.InvalidPageID, err
	}
	if err := t.updateRoot(newRootID); err != nil {
		return disk.InvalidPageID, err
	}

	slog.Debug("btree: split root", "oldRoot", oldRoot, "newSibling", newSibling, "newRoot", newRootID)
	return newRootID, nil
}

// insertDescending walks from current (guaranteed non-full) down to a
// leaf, preemptively splitting any full child before descending into it so
// current is always safe to receive a pushed-up split key.
func (t *Tree) insertDescending(current disk.PageID, key Key, row heap.RowID) error {
	for {
		g, node, err := t.fetchNode(current)
		if err != nil {
			return err
		}

		if node.IsLeaf() {
			idx, found := node.BinarySearch(key)
			if found {
				g.Close()
				return ErrDuplicateKey
			}
			node.InsertAt(idx, key, row)
			g.MarkDirty()
			return g.Close()
		}

		idx, found := node.BinarySearch(key)
		childIdx := idx
		if found {
			childIdx = idx + 1
		}
		childID := node.GetChild(childIdx)
		g.Close()

		cg, childNode, err := t.fetchNode(childID)
		if err != nil {
			return err
		}
		childIsLeaf := childNode.IsLeaf()
		childFull := childNode.IsFull(t.maxSizeFor(childIsLeaf))
		cg.Close()

		if !childFull {
			current = childID
			continue
		}

		splitKey, newSibling, err := t.split(childID, childIsLeaf)
		if err != nil {
			return err
		}

		pg, parentNode, err := t.fetchNode(current)
		if err != nil {
			return err
		}
		insIdx, _ := parentNode.BinarySearch(splitKey)
		parentNode.InsertKeyChild(insIdx, splitKey, newSibling)
		pg.MarkDirty()
		if err := pg.Close(); err != nil {
			return err
		}

		if err := t.setParentPageID(childID, current); err != nil {
			return err
		}
		if err := t.setParentPageID(newSibling, current); err != nil {
			return err
		}

		if key.Compare(splitKey) < 0 {
			current = childID
		} else {
			current = newSibling
		}
	}
}

// split dispatches to splitLeaf or splitInternal and returns the key to
// push into the parent along with the new sibling's page ID.
func (t *Tree) split(pageID disk.PageID, isLeaf bool) (Key, disk.PageID, error) {
	if isLeaf {
		return t.splitLeaf(pageID)
	}
	return t.splitInternal(pageID)
}

// splitLeaf moves the upper entries of leaf to a new right sibling. It
// compares the leaf's last two keys to pick the split point: 75/25 (the
// rightmost quarter moves) if they ascend, otherwise 50/50. A leaf's keys
// are kept sorted, so the last two always ascend and any leaf with more
// than two entries is split 75/25.
// Returns the new sibling's first key (the separator pushed to the parent)
// and its page ID.
func (t *Tree) splitLeaf(leafID disk.PageID) (Key, disk.PageID, error) {
	oldGuard, oldNode, err := t.fetchNode(leafID)
	if err != nil {
		return Key{}, disk.InvalidPageID, err
	}
	parentID := oldNode.ParentPageID()

	newGuard, err := t.bpm.NewPage()
	if err != nil {
		oldGuard.Close()
		return Key{}, disk.InvalidPageID, fmt.Errorf("btree: allocate leaf sibling: %w", err)
	}
	newID := newGuard.PageID()
	newNode := Initialize(newGuard.Data(), t.keyType, newID, true, parentID)

	oldCount := oldNode.KeyCount()
	splitPoint := oldCount / 2
	if oldCount > 2 {
		last := oldNode.GetKey(oldCount - 1)
		secondLast := oldNode.GetKey(oldCount - 2)
		if last.Compare(secondLast) > 0 {
			splitPoint = (oldCount * 3) / 4
		}
	}

	for i := splitPoint; i < oldCount; i++ {
		newNode.InsertAt(i-splitPoint, oldNode.GetKey(i), oldNode.GetValue(i))
	}
	oldNode.SetKeyCount(splitPoint)

	oldNext := oldNode.NextLeaf()
	newNode.SetNextLeaf(oldNext)
	newNode.SetPrevLeaf(leafID)
	oldNode.SetNextLeaf(newID)

	oldGuard.MarkDirty()
	newGuard.MarkDirty()
	splitKey := newNode.GetKey(0)

	if err := oldGuard.Close(); err != nil {
		newGuard.Close()
		return Key{}, disk.InvalidPageID, err
	}
	if err := newGuard.Close(); err != nil {
		return Key{}, disk.InvalidPageID, err
	}

	if oldNext != disk.InvalidPageID {
		ng, nextNode, err := t.fetchNode(oldNext)
		if err != nil {
			return Key{}, disk.InvalidPageID, err
		}
		nextNode.SetPrevLeaf(newID)
		ng.MarkDirty()
		if err := ng.Close(); err != nil {
			return Key{}, disk.InvalidPageID, err
		}
	}

	slog.Debug("btree: split leaf", "leafID", leafID, "newSibling", newID, "splitPoint", splitPoint)
	return splitKey, newID, nil
}

// splitInternal moves the upper half of internal's (key, child) pairs to a
// new right sibling and pushes the middle key up to the caller, who
// inserts it into the parent. Reparents every moved child to the sibling.
func (t *Tree) splitInternal(internalID disk.PageID) (Key, disk.PageID, error) {
	oldGuard, oldNode, err := t.fetchNode(internalID)
	if err != nil {
		return Key{}, disk.InvalidPageID, err
	}
	parentID := oldNode.ParentPageID()
	oldCount := oldNode.KeyCount()
	splitPoint := oldCount / 2
	splitKey := oldNode.GetKey(splitPoint)

	movedChildren := make([]disk.PageID, 0, oldCount-splitPoint)
	movedChildren = append(movedChildren, oldNode.GetChild(splitPoint+1))
	type movedEntry struct {
		key   Key
		child disk.PageID
	}
	movedEntries := make([]movedEntry, 0, oldCount-splitPoint-1)
	for i := splitPoint + 1; i < oldCount; i++ {
		child := oldNode.GetChild(i + 1)
		movedEntries = append(movedEntries, movedEntry{key: oldNode.GetKey(i), child: child})
		movedChildren = append(movedChildren, child)
	}
	oldNode.SetKeyCount(splitPoint)
	oldGuard.MarkDirty()
	if err := oldGuard.Close(); err != nil {
		return Key{}, disk.InvalidPageID, err
	}

	newGuard, err := t.bpm.NewPage()
	if err != nil {
		return Key{}, disk.InvalidPageID, fmt.Errorf("btree: allocate internal sibling: %w", err)
	}
	newID := newGuard.PageID()
	newNode := Initialize(newGuard.Data(), t.keyType, newID, false, parentID)
	newNode.SetChild(0, movedChildren[0])
	for _, e := range movedEntries {
		newNode.InsertKeyChild(newNode.KeyCount(), e.key, e.child)
	}
	newGuard.MarkDirty()
	if err := newGuard.Close(); err != nil {
		return Key{}, disk.InvalidPageID, err
	}

	for _, childID := range movedChildren {
		if err := t.setParentPageID(childID, newID); err != nil {
			return Key{}, disk.InvalidPageID, err
		}
	}

	slog.Debug("btree: split internal", "internalID", internalID, "newSibling", newID, "splitPoint", splitPoint)
	return splitKey, newID, nil
}

// findLeftmostLeaf descends the current root's left spine, the starting
// point for a full scan.
func (t *Tree) findLeftmostLeaf() (disk.PageID, error) {
	meta, err := t.loadMetadata()
	if err != nil {
		return disk.InvalidPageID, err
	}
	pageID := meta.RootPageID
	for {
		g, node, err := t.fetchNode(pageID)
		if err != nil {
			return disk.InvalidPageID, err
		}
		if node.IsLeaf() {
			g.Close()
			return pageID, nil
		}
		pageID = node.GetChild(0)
		g.Close()
	}
}

// findLeafForKey descends to the leaf that would hold key, used to seed a
// range scan at an arbitrary start key.
func (t *Tree) findLeafForKey(key Key) (disk.PageID, error) {
	meta, err := t.loadMetadata()
	if err != nil {
		return disk.InvalidPageID, err
	}
	pageID := meta.RootPageID
	for {
		g, node, err := t.fetchNode(pageID)
		if err != nil {
			return disk.InvalidPageID, err
		}
		if node.IsLeaf() {
			g.Close()
			return pageID, nil
		}
		idx, found := node.BinarySearch(key)
		childIdx := idx
		if found {
			childIdx = idx + 1
		}
		pageID = node.GetChild(childIdx)
		g.Close()
	}
}
