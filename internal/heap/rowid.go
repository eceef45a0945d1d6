// Package heap implements the table heap: a singly-linked chain of slotted
// pages holding a table's rows, addressed by RowID.
package heap

import "github.com/quanla/pagestore/internal/disk"

// RowID identifies a row's storage location: the page holding it and its
// slot within that page's slot directory.
type RowID struct {
	PageID disk.PageID
	Slot   uint16
}
